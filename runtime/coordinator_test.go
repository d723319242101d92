package runtime

import (
	"context"
	"fmt"
	"inchat/errors"
	"inchat/observability"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, lock LockStrategy) (*Coordinator, *badger.DB, *observability.Metrics) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewCoordinator(db, lock, slog.Default(), metrics), db, metrics
}

func set(ctx context.Context, key, value string) error {
	unit, _ := UnitFrom(ctx)
	return unit.Txn().Set([]byte(key), []byte(value))
}

func read(t *testing.T, db *badger.DB, key string) (string, bool) {
	t.Helper()
	var value []byte
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false
	}
	require.NoError(t, err)
	return string(value), true
}

func TestRunAtomic_Commits_And_Runs_Hooks(t *testing.T) {
	req := require.New(t)
	coordinator, db, metrics := newTestCoordinator(t, NewGlobalLock())
	hookRan := false

	value, ok, err := RunAtomic(context.Background(), coordinator, func(ctx context.Context, res *Result[string]) error {
		if err := set(ctx, "k", "v"); err != nil {
			return err
		}
		unit, _ := UnitFrom(ctx)
		unit.AfterCommit(func() { hookRan = true })
		res.Accept("done")
		return nil
	})

	req.NoError(err)
	req.True(ok)
	req.Equal("done", value)
	req.True(hookRan)
	stored, found := read(t, db, "k")
	req.True(found)
	req.Equal("v", stored)
	req.Equal(1.0, testutil.ToFloat64(metrics.UnitsCommitted))
}

func TestUnit_AfterCommitLatest_Keeps_Last_Hook_Per_Key(t *testing.T) {
	req := require.New(t)
	coordinator, _, _ := newTestCoordinator(t, NewGlobalLock())
	var ran []string

	_, err := coordinator.Run(context.Background(), func(ctx context.Context) error {
		unit, _ := UnitFrom(ctx)
		unit.AfterCommitLatest("channel:1", func() { ran = append(ran, "first") })
		unit.AfterCommit(func() { ran = append(ran, "plain") })
		unit.AfterCommitLatest("channel:2", func() { ran = append(ran, "other") })
		unit.AfterCommitLatest("channel:1", func() { ran = append(ran, "second") })
		return set(ctx, "k", "v")
	})

	req.NoError(err)
	req.Equal([]string{"second", "plain", "other"}, ran)
}

func TestRunAtomic_Without_Accept_Commits_Empty(t *testing.T) {
	req := require.New(t)
	coordinator, db, _ := newTestCoordinator(t, NewGlobalLock())

	_, ok, err := RunAtomic(context.Background(), coordinator, func(ctx context.Context, res *Result[string]) error {
		return set(ctx, "k", "v")
	})

	req.NoError(err)
	req.False(ok)
	_, found := read(t, db, "k")
	req.True(found)
}

func TestRunAtomic_Rolls_Back_On_Rejection(t *testing.T) {
	for _, failure := range []error{
		fmt.Errorf("channel x: %w", errors.ErrConflict),
		fmt.Errorf("channel x: %w", errors.ErrNotFound),
		errors.ErrUserAlreadyExists,
		errors.ErrInvalidCredentials,
	} {
		t.Run(failure.Error(), func(t *testing.T) {
			req := require.New(t)
			coordinator, db, metrics := newTestCoordinator(t, NewGlobalLock())
			hookRan := false

			value, ok, err := RunAtomic(context.Background(), coordinator, func(ctx context.Context, res *Result[string]) error {
				if err := set(ctx, "ghost", "boo"); err != nil {
					return err
				}
				unit, _ := UnitFrom(ctx)
				unit.AfterCommit(func() { hookRan = true })
				res.Accept("never")
				return failure
			})

			// Then the result is empty and nothing is observable
			req.NoError(err)
			req.False(ok)
			req.Empty(value)
			req.False(hookRan)
			_, found := read(t, db, "ghost")
			req.False(found)
			req.Equal(0.0, testutil.ToFloat64(metrics.UnitsCommitted))
		})
	}
}

func TestRunAtomic_Propagates_Backing_Store_Errors(t *testing.T) {
	req := require.New(t)
	coordinator, db, metrics := newTestCoordinator(t, NewGlobalLock())
	failure := fmt.Errorf("disk on fire: %w", errors.ErrBackingStore)

	_, ok, err := RunAtomic(context.Background(), coordinator, func(ctx context.Context, res *Result[int]) error {
		if err := set(ctx, "ghost", "boo"); err != nil {
			return err
		}
		return failure
	})

	req.ErrorIs(err, errors.ErrBackingStore)
	req.False(ok)
	_, found := read(t, db, "ghost")
	req.False(found)
	req.Equal(1.0, testutil.ToFloat64(metrics.UnitsAborted.WithLabelValues(observability.ReasonError)))
}

func TestRunAtomic_Rolls_Back_And_Repanics(t *testing.T) {
	req := require.New(t)
	lock := NewGlobalLock()
	coordinator, db, _ := newTestCoordinator(t, lock)

	req.PanicsWithValue("boom", func() {
		_, _, _ = RunAtomic(context.Background(), coordinator, func(ctx context.Context, res *Result[int]) error {
			_ = set(ctx, "ghost", "boo")
			panic("boom")
		})
	})

	_, found := read(t, db, "ghost")
	req.False(found)

	// The lock was released, the next unit goes through
	_, ok, err := RunAtomic(context.Background(), coordinator, func(ctx context.Context, res *Result[int]) error {
		res.Accept(1)
		return nil
	})
	req.NoError(err)
	req.True(ok)
}

func TestResult_Accept_Twice_Panics(t *testing.T) {
	req := require.New(t)
	coordinator, _, _ := newTestCoordinator(t, NewGlobalLock())

	req.PanicsWithValue(errors.ErrResultAlreadySet, func() {
		_, _, _ = RunAtomic(context.Background(), coordinator, func(ctx context.Context, res *Result[int]) error {
			res.Accept(1)
			res.Accept(2)
			return nil
		})
	})
}

func TestRunAtomic_Nested_Joins_Outer_Unit(t *testing.T) {
	req := require.New(t)
	coordinator, db, metrics := newTestCoordinator(t, NewGlobalLock())

	// When the outer unit fails after a nested unit succeeded
	_, ok, err := RunAtomic(context.Background(), coordinator, func(ctx context.Context, res *Result[int]) error {
		inner, innerOK, err := RunAtomic(ctx, coordinator, func(ctx context.Context, res *Result[int]) error {
			res.Accept(7)
			return set(ctx, "inner", "x")
		})
		if err != nil {
			return err
		}
		req.True(innerOK)
		req.Equal(7, inner)
		return errors.ErrConflict
	})

	// Then nothing of the nested unit survives
	req.NoError(err)
	req.False(ok)
	_, found := read(t, db, "inner")
	req.False(found)
	req.Equal(0.0, testutil.ToFloat64(metrics.UnitsCommitted))
}

func TestRunAtomic_Optimistic_Commit_Race_Is_Empty(t *testing.T) {
	req := require.New(t)
	coordinator, db, _ := newTestCoordinator(t, OptimisticLock{})
	req.NoError(db.Update(func(txn *badger.Txn) error { return txn.Set([]byte("k"), []byte("0")) }))

	// When another writer commits the key read by the unit before it commits
	_, ok, err := RunAtomic(context.Background(), coordinator, func(ctx context.Context, res *Result[int]) error {
		unit, _ := UnitFrom(ctx)
		if _, err := unit.Txn().Get([]byte("k")); err != nil {
			return err
		}
		err := db.Update(func(txn *badger.Txn) error { return txn.Set([]byte("k"), []byte("other")) })
		req.NoError(err)
		res.Accept(1)
		return set(ctx, "k", "mine")
	})

	// Then the unit is reported empty and the other write wins
	req.NoError(err)
	req.False(ok)
	stored, _ := read(t, db, "k")
	req.Equal("other", stored)
}

func TestGlobalLock_Acquire_Honours_Context(t *testing.T) {
	req := require.New(t)
	lock := NewGlobalLock()
	req.NoError(lock.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req.ErrorIs(lock.Acquire(ctx), context.DeadlineExceeded)

	lock.Release()
	req.NoError(lock.Acquire(context.Background()))
}

func TestNewLockStrategy(t *testing.T) {
	req := require.New(t)

	global, err := NewLockStrategy(LockGlobal)
	req.NoError(err)
	req.IsType(&GlobalLock{}, global)

	optimistic, err := NewLockStrategy(LockOptimistic)
	req.NoError(err)
	req.IsType(OptimisticLock{}, optimistic)

	_, err = NewLockStrategy("pessimistic")
	req.Error(err)
}
