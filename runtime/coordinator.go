package runtime

import (
	"context"
	"fmt"
	"inchat/errors"
	"inchat/observability"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// rejections are the failures that make a unit of work yield an empty
// result instead of an error. Anything else, backing-store failures
// included, is returned to the caller.
var rejections = []error{
	errors.ErrConflict,
	errors.ErrNotFound,
	errors.ErrUnauthorized,
	errors.ErrUserAlreadyExists,
	errors.ErrInvalidUsername,
	errors.ErrInvalidPassword,
	errors.ErrInvalidCredentials,
}

// Result is the single slot an atomic operation writes its outcome into.
type Result[T any] struct {
	value T
	set   bool
}

// Accept records the outcome. Calling it twice is a programming error.
func (r *Result[T]) Accept(v T) {
	if r.set {
		panic(errors.ErrResultAlreadySet)
	}
	r.value = v
	r.set = true
}

func (r *Result[T]) IsSet() bool {
	return r.set
}

// Coordinator runs composed operations over several stores as one atomic
// unit: all of their writes commit together or none of them do.
type Coordinator struct {
	db      *badger.DB
	lock    LockStrategy
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewCoordinator(db *badger.DB, lock LockStrategy, log *slog.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		db:      db,
		lock:    lock,
		log:     log.With("component", "coordinator"),
		metrics: metrics,
	}
}

// RunAtomic executes op inside a new unit of work.
//
// The unit commits when op returns nil and the outcome is whatever op
// passed to Result.Accept, if anything. A conflict, a missing record or a
// domain rejection rolls the unit back and yields (zero, false, nil). Any
// other failure also rolls back and is returned. A panic in op rolls back
// and is re-raised. After-commit hooks run once the lock is released.
//
// When ctx already carries a unit, op joins it: nothing is committed here
// and errors are returned untouched so that the enclosing unit aborts.
func RunAtomic[T any](ctx context.Context, c *Coordinator, op func(ctx context.Context, res *Result[T]) error) (T, bool, error) {
	var zero T
	res := &Result[T]{}

	if _, joined := UnitFrom(ctx); joined {
		if err := op(ctx, res); err != nil {
			return zero, false, err
		}
		return res.value, res.set, nil
	}

	start := time.Now()
	defer c.metrics.ObserveUnit(start)

	if err := c.lock.Acquire(ctx); err != nil {
		return zero, false, fmt.Errorf("acquire unit lock: %w", err)
	}
	locked := true
	release := func() {
		if locked {
			locked = false
			c.lock.Release()
		}
	}
	defer release()

	txn := c.db.NewTransaction(true)
	defer txn.Discard()
	unit := &Unit{txn: txn}

	defer func() {
		if p := recover(); p != nil {
			c.metrics.IncrementAborted(observability.ReasonPanic)
			c.log.Error("rolled back unit of work after panic", "panic", p)
			panic(p)
		}
	}()

	if err := op(WithUnit(ctx, unit), res); err != nil {
		return zero, false, c.abort(err)
	}

	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			c.metrics.IncrementAborted(observability.ReasonConflict)
			c.log.Debug("unit of work lost a commit race")
			return zero, false, nil
		}
		c.metrics.IncrementAborted(observability.ReasonError)
		c.log.Error("failed to commit unit of work", "error", err)
		return zero, false, fmt.Errorf("commit unit of work: %w: %w", errors.ErrBackingStore, err)
	}
	c.metrics.UnitsCommitted.Inc()

	release()
	unit.runHooks()
	return res.value, res.set, nil
}

// Run is RunAtomic for operations that produce no value. It reports
// whether the unit committed.
func (c *Coordinator) Run(ctx context.Context, op func(ctx context.Context) error) (bool, error) {
	_, ok, err := RunAtomic(ctx, c, func(ctx context.Context, res *Result[struct{}]) error {
		if err := op(ctx); err != nil {
			return err
		}
		res.Accept(struct{}{})
		return nil
	})
	return ok, err
}

func (c *Coordinator) abort(err error) error {
	switch {
	case errors.Is(err, errors.ErrConflict), errors.Is(err, badger.ErrConflict):
		c.metrics.IncrementAborted(observability.ReasonConflict)
		c.log.Debug("rolled back unit of work on conflict", "error", err)
		return nil
	case errors.Is(err, errors.ErrNotFound):
		c.metrics.IncrementAborted(observability.ReasonNotFound)
		c.log.Debug("rolled back unit of work on missing record", "error", err)
		return nil
	case lo.ContainsBy(rejections, func(target error) bool { return errors.Is(err, target) }):
		c.metrics.IncrementAborted(observability.ReasonRejected)
		c.log.Debug("rolled back rejected unit of work", "error", err)
		return nil
	default:
		c.metrics.IncrementAborted(observability.ReasonError)
		c.log.Error("rolled back unit of work", "error", err)
		return err
	}
}
