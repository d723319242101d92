package repositories

import (
	"context"
	"inchat/domain"
)

// DefaultMaxAttempts bounds UpdateWith and DeleteWith.
const DefaultMaxAttempts = 5

// UpdateWith applies fn to the record and stores the result. On a conflict
// fn is applied again to the live record, at most maxAttempts times in
// total. fn may be called several times and must not have side effects.
func UpdateWith[T any](ctx context.Context, store IStore[T], record domain.Stored[T], maxAttempts int, fn func(T) T) (domain.Stored[T], error) {
	for attempt := 1; ; attempt++ {
		updated, err := store.Update(ctx, record, fn(record.Value))
		if err == nil {
			return updated, nil
		}
		current, ok := AsConflict[T](err)
		if !ok || attempt >= maxAttempts {
			return domain.Stored[T]{}, err
		}
		record = current
	}
}

// DeleteWith deletes the record, retrying against the live version on a
// conflict, at most maxAttempts times in total.
func DeleteWith[T any](ctx context.Context, store IStore[T], record domain.Stored[T], maxAttempts int) error {
	for attempt := 1; ; attempt++ {
		err := store.Delete(ctx, record)
		if err == nil {
			return nil
		}
		current, ok := AsConflict[T](err)
		if !ok || attempt >= maxAttempts {
			return err
		}
		record = current
	}
}
