package factory

import (
	"time"

	"github.com/mcoot/roommatch/internal/dependencies/mocks"
	"github.com/mcoot/roommatch/internal/storage"
	"github.com/mcoot/roommatch/internal/storage/memory"
	"github.com/mcoot/roommatch/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an in-memory App configured for testing with mocked
// dependencies
func NewTestApp(delivery string) *TestApp {
	return NewTestAppWithStorage(memory.New(), delivery)
}

// NewTestAppWithStorage creates a test App over the given storage
func NewTestAppWithStorage(store storage.Storage, delivery string) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	app, err := newWithDependencies(store, mockClock, mockRandom, Config{Delivery: delivery}, testutil.NopLogger())
	if err != nil {
		panic(err)
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
