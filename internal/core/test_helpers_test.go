package core

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

var testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// steppingClock returns a settable time.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock(at time.Time) *steppingClock { return &steppingClock{now: at} }

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) add(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+msg)
	l.mu.Unlock()
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.add("d:", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.add("i:", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.add("w:", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.add("e:", msg) }

func (l *captureLogger) has(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if got == line {
			return true
		}
	}
	return false
}

// newTestService wires an in-memory service with the default rules, a
// stepping clock and predictable ids.
func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *steppingClock) {
	t.Helper()
	clock := newSteppingClock(testEpoch)
	base := []ServiceOption{WithClock(clock), WithIDGenerator(sequentialIDs("id"))}
	return NewInMemoryService(NewDefaultRulesEngine(), append(base, opts...)...), clock
}
