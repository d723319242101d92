package runtime

import (
	"context"

	"github.com/dgraph-io/badger/v4"
)

// Unit is an open unit of work: one badger read-write transaction shared by
// every store call made with a context carrying it. Stores never commit or
// discard it themselves.
type Unit struct {
	txn   *badger.Txn
	hooks []func()
	keyed map[string]int
}

func (u *Unit) Txn() *badger.Txn {
	return u.txn
}

// AfterCommit queues fn to run once the unit committed. Hooks of a unit
// that rolls back are dropped.
func (u *Unit) AfterCommit(fn func()) {
	u.hooks = append(u.hooks, fn)
}

// AfterCommitLatest queues fn under key. A later hook with the same key
// replaces the earlier one in place, so only the last state reached by the
// unit is announced.
func (u *Unit) AfterCommitLatest(key string, fn func()) {
	if i, ok := u.keyed[key]; ok {
		u.hooks[i] = fn
		return
	}
	if u.keyed == nil {
		u.keyed = make(map[string]int)
	}
	u.keyed[key] = len(u.hooks)
	u.hooks = append(u.hooks, fn)
}

func (u *Unit) runHooks() {
	for _, fn := range u.hooks {
		fn()
	}
	u.hooks = nil
	u.keyed = nil
}

type unitKey struct{}

// WithUnit returns a copy of ctx carrying the unit.
func WithUnit(ctx context.Context, u *Unit) context.Context {
	return context.WithValue(ctx, unitKey{}, u)
}

// UnitFrom returns the unit carried by ctx, if any.
func UnitFrom(ctx context.Context) (*Unit, bool) {
	u, ok := ctx.Value(unitKey{}).(*Unit)
	return u, ok && u != nil
}
