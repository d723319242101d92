package runtime

import (
	"context"
	"fmt"
)

const (
	LockGlobal     = "global"
	LockOptimistic = "optimistic"
)

// LockStrategy decides how units of work are serialized before they open
// their transaction.
type LockStrategy interface {
	Acquire(ctx context.Context) error
	Release()
}

// GlobalLock admits one unit of work at a time. Waiting for it honours
// context cancellation, unlike sync.Mutex.
type GlobalLock struct {
	sem chan struct{}
}

func NewGlobalLock() *GlobalLock {
	return &GlobalLock{sem: make(chan struct{}, 1)}
}

func (l *GlobalLock) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *GlobalLock) Release() {
	<-l.sem
}

// OptimisticLock lets units run concurrently and leaves serialization to
// badger's conflict detection: the later committer of two units touching
// the same keys fails with badger.ErrConflict.
type OptimisticLock struct{}

func (OptimisticLock) Acquire(ctx context.Context) error {
	return ctx.Err()
}

func (OptimisticLock) Release() {}

func NewLockStrategy(name string) (LockStrategy, error) {
	switch name {
	case LockGlobal, "":
		return NewGlobalLock(), nil
	case LockOptimistic:
		return OptimisticLock{}, nil
	default:
		return nil, fmt.Errorf("unknown lock strategy %q", name)
	}
}
