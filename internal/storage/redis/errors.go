package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/mcoot/roommatch/internal/model"
)

// wrapErr classifies client errors so callers can tell transient failures apart
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", model.ErrStorageTimeout, err)
	}
	return err
}
