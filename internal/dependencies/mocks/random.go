package mocks

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mcoot/roommatch/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Once a queue is exhausted it falls back to deterministic sequential values.
type MockRandom struct {
	mu sync.Mutex

	// StringResults is a queue of results to return from String
	StringResults []string
	stringIndex   int
	stringSeq     int

	// UUIDResults is a queue of results to return from UUID
	UUIDResults []string
	uuidIndex   int
	uuidSeq     int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// String returns the next queued result, or a zero-padded sequence number
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stringIndex < len(r.StringResults) {
		result := r.StringResults[r.stringIndex]
		r.stringIndex++
		return result
	}
	r.stringSeq++
	s := fmt.Sprintf("%0*d", length, r.stringSeq)
	if len(s) > length {
		s = s[len(s)-length:]
	}
	return strings.ToUpper(s)
}

// UUID returns the next queued result, or "uuid-<n>"
func (r *MockRandom) UUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uuidIndex < len(r.UUIDResults) {
		result := r.UUIDResults[r.uuidIndex]
		r.uuidIndex++
		return result
	}
	r.uuidSeq++
	return fmt.Sprintf("uuid-%d", r.uuidSeq)
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StringResults = append(r.StringResults, values...)
}

// QueueUUID adds values to the UUID result queue
func (r *MockRandom) QueueUUID(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UUIDResults = append(r.UUIDResults, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StringResults = nil
	r.stringIndex = 0
	r.stringSeq = 0
	r.UUIDResults = nil
	r.uuidIndex = 0
	r.uuidSeq = 0
}
