// Package sequence hands out order numbers.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/orderdesk/internal/store"
)

// Allocator returns strictly increasing numbers backed by a durable counter.
// The read-increment-persist cycle runs under a mutex, so concurrent callers
// in this process never see the same value.
type Allocator struct {
	mu      sync.Mutex
	counter store.Counter
}

func NewAllocator(counter store.Counter) *Allocator {
	return &Allocator{counter: counter}
}

// Next persists and returns the next number. A counter value that cannot be
// parsed counts as 0. If persisting fails the number is not handed out.
func (a *Allocator) Next(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := a.counter.LoadCounter(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading sequence counter: %w", err)
	}

	n := parse(raw) + 1
	if err := a.counter.StoreCounter(ctx, strconv.FormatInt(n, 10)); err != nil {
		return 0, fmt.Errorf("persisting sequence counter: %w", err)
	}
	return n, nil
}

func parse(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		logger.Warnf("Sequence counter value %q is corrupt, restarting from 0", raw)
		return 0
	}
	return n
}
