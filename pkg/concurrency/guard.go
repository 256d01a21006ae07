package concurrency

import (
	"context"
	"errors"
	"sync"
)

var ErrBusy = errors.New("System is busy!")

type ConcurrencyGuard struct {
	mu     sync.Mutex
	isBusy bool
}

func NewConcurrencyGuard() *ConcurrencyGuard {
	return &ConcurrencyGuard{}
}

func (g *ConcurrencyGuard) Execute(task func() error) error {
	if !g.TryBegin() {
		return ErrBusy
	}
	defer g.End()
	return task()
}

// ExecuteWithContext runs the task like Execute but hands it the caller's
// context so it can honor cancellation.
func (g *ConcurrencyGuard) ExecuteWithContext(ctx context.Context, task func(ctx context.Context) error) error {
	if !g.TryBegin() {
		return ErrBusy
	}
	defer g.End()
	return task(ctx)
}

// TryBegin marks the guard busy and returns true, or returns false if it is
// busy already. Callers that acquire the guard this way must release it with
// End, possibly from a different goroutine than the one that acquired it.
func (g *ConcurrencyGuard) TryBegin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.isBusy {
		return false
	}
	g.isBusy = true
	return true
}

// End releases a guard acquired with TryBegin. Releasing an idle guard is a
// no-op.
func (g *ConcurrencyGuard) End() {
	g.mu.Lock()
	g.isBusy = false
	g.mu.Unlock()
}

// Busy reports whether the guard is currently held.
func (g *ConcurrencyGuard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isBusy
}
