package repositories

import (
	"context"
	"inchat/domain"
	"inchat/errors"
	"inchat/observability"
	"inchat/runtime"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// IStore is the versioned-entity protocol shared by every entity kind.
type IStore[T any] interface {
	Save(ctx context.Context, value T) (domain.Stored[T], error)
	Get(ctx context.Context, id uuid.UUID) (domain.Stored[T], error)
	Update(ctx context.Context, expected domain.Stored[T], value T) (domain.Stored[T], error)
	Delete(ctx context.Context, expected domain.Stored[T]) error
}

// Schema describes how an entity kind is laid out in badger. Marshal and
// Unmarshal handle the flat row stored in the record envelope. Attach and
// Detach maintain what the record owns outside of it: child relations and
// secondary indexes. Every hook runs inside the caller's transaction.
type Schema[T any] struct {
	Kind      string
	Marshal   func(value T) ([]byte, error)
	Unmarshal func(txn *badger.Txn, id uuid.UUID, row []byte) (T, error)
	// Attach is called after the row is written. previous is the row being
	// replaced, nil on creation.
	Attach func(txn *badger.Txn, id uuid.UUID, value T, previous []byte) error
	// Detach is called when the record is deleted, with its last row.
	Detach func(txn *badger.Txn, id uuid.UUID, row []byte) error
}

// Store is a compare-and-swap store of versioned records, generic over the
// entity kind. Calls made with a context carrying a runtime.Unit join its
// transaction, any other call runs in a transaction of its own.
type Store[T any] struct {
	db       *badger.DB
	schema   Schema[T]
	log      *slog.Logger
	metrics  *observability.Metrics
	onChange func(record domain.Stored[T], deleted bool)
}

func NewStore[T any](db *badger.DB, schema Schema[T], log *slog.Logger, metrics *observability.Metrics) *Store[T] {
	return &Store[T]{
		db:      db,
		schema:  schema,
		log:     log.With("component", schema.Kind+"_store"),
		metrics: metrics,
	}
}

// Save stores value under a fresh identity and version.
func (s *Store[T]) Save(ctx context.Context, value T) (domain.Stored[T], error) {
	var saved domain.Stored[T]
	id, version := uuid.New(), uuid.New()
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := s.write(txn, id, version, value, nil); err != nil {
			return err
		}
		var err error
		saved, err = s.read(txn, id)
		return err
	}, func() {
		s.metrics.IncrementMutation(s.schema.Kind, "save")
	})
	if err != nil {
		return domain.Stored[T]{}, s.wrap("save", err)
	}
	s.log.Debug("record saved", "id", id, "version", version)
	return saved, nil
}

// Get returns the live record or ErrNotFound. Reads never mutate.
func (s *Store[T]) Get(ctx context.Context, id uuid.UUID) (domain.Stored[T], error) {
	var record domain.Stored[T]
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		record, err = s.read(txn, id)
		return err
	})
	if err != nil {
		return domain.Stored[T]{}, s.wrap("get", err)
	}
	return record, nil
}

// CurrentVersion returns the live version of id without decoding the
// record.
func (s *Store[T]) CurrentVersion(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var version uuid.UUID
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		version, _, err = s.envelope(txn, id)
		return err
	})
	if err != nil {
		return uuid.Nil, s.wrap("version", err)
	}
	return version, nil
}

// Update replaces the record if expected is still the live version. A stale
// expected version yields a *ConflictError carrying the live record.
func (s *Store[T]) Update(ctx context.Context, expected domain.Stored[T], value T) (domain.Stored[T], error) {
	var updated domain.Stored[T]
	err := s.update(ctx, func(txn *badger.Txn) error {
		version, previous, err := s.envelope(txn, expected.ID)
		if err != nil {
			return err
		}
		if version != expected.Version {
			return s.conflict(txn, expected.ID)
		}
		if err = s.write(txn, expected.ID, uuid.New(), value, previous); err != nil {
			return err
		}
		updated, err = s.read(txn, expected.ID)
		return err
	}, func() {
		s.metrics.IncrementMutation(s.schema.Kind, "update")
	})
	if errors.Is(err, badger.ErrConflict) {
		err = s.conflictAfterRace(expected.ID)
	}
	if err != nil {
		return domain.Stored[T]{}, s.wrap("update", err)
	}
	s.announce(ctx, updated, false)
	return updated, nil
}

// Delete removes the record if expected is still the live version.
func (s *Store[T]) Delete(ctx context.Context, expected domain.Stored[T]) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		version, row, err := s.envelope(txn, expected.ID)
		if err != nil {
			return err
		}
		if version != expected.Version {
			return s.conflict(txn, expected.ID)
		}
		if err = txn.Delete(recordKey(s.schema.Kind, expected.ID)); err != nil {
			return err
		}
		if s.schema.Detach != nil {
			return s.schema.Detach(txn, expected.ID, row)
		}
		return nil
	}, func() {
		s.metrics.IncrementMutation(s.schema.Kind, "delete")
	})
	if errors.Is(err, badger.ErrConflict) {
		err = s.conflictAfterRace(expected.ID)
	}
	if err != nil {
		return s.wrap("delete", err)
	}
	s.announce(ctx, domain.Stored[T]{ID: expected.ID}, true)
	return nil
}

func (s *Store[T]) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if unit, ok := runtime.UnitFrom(ctx); ok {
		return fn(unit.Txn())
	}
	return s.db.View(fn)
}

// update runs fn in the unit carried by ctx, or in a transaction of its
// own. after runs once the writes are committed and never for a rolled
// back unit.
func (s *Store[T]) update(ctx context.Context, fn func(txn *badger.Txn) error, after func()) error {
	if unit, ok := runtime.UnitFrom(ctx); ok {
		if err := fn(unit.Txn()); err != nil {
			return err
		}
		unit.AfterCommit(after)
		return nil
	}
	if err := s.db.Update(fn); err != nil {
		return err
	}
	after()
	return nil
}

// announce hands a committed change to onChange. Inside a unit it is
// deferred to the commit and only the last change of each record is kept.
func (s *Store[T]) announce(ctx context.Context, record domain.Stored[T], deleted bool) {
	if s.onChange == nil {
		return
	}
	notify := func() { s.onChange(record, deleted) }
	if unit, ok := runtime.UnitFrom(ctx); ok {
		unit.AfterCommitLatest(s.schema.Kind+":"+record.ID.String(), notify)
		return
	}
	notify()
}

func (s *Store[T]) write(txn *badger.Txn, id, version uuid.UUID, value T, previous []byte) error {
	row, err := s.schema.Marshal(value)
	if err != nil {
		return NewStoreError(s.schema.Kind, "encode", err)
	}
	raw, err := encodeEnvelope(version, row)
	if err != nil {
		return NewStoreError(s.schema.Kind, "encode", err)
	}
	if err = txn.Set(recordKey(s.schema.Kind, id), raw); err != nil {
		return err
	}
	if s.schema.Attach != nil {
		return s.schema.Attach(txn, id, value, previous)
	}
	return nil
}

func (s *Store[T]) envelope(txn *badger.Txn, id uuid.UUID) (uuid.UUID, []byte, error) {
	item, err := txn.Get(recordKey(s.schema.Kind, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return uuid.Nil, nil, notFound(s.schema.Kind, id)
	}
	if err != nil {
		return uuid.Nil, nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return uuid.Nil, nil, err
	}
	version, row, err := decodeEnvelope(raw)
	if err != nil {
		return uuid.Nil, nil, NewStoreError(s.schema.Kind, "decode", err)
	}
	return version, row, nil
}

// read loads and hydrates a record within txn. Other stores call it to
// resolve references so that a whole graph is read from one snapshot.
func (s *Store[T]) read(txn *badger.Txn, id uuid.UUID) (domain.Stored[T], error) {
	version, row, err := s.envelope(txn, id)
	if err != nil {
		return domain.Stored[T]{}, err
	}
	value, err := s.schema.Unmarshal(txn, id, row)
	if err != nil {
		return domain.Stored[T]{}, err
	}
	return domain.Stored[T]{ID: id, Version: version, Value: value}, nil
}

func (s *Store[T]) conflict(txn *badger.Txn, id uuid.UUID) error {
	current, err := s.read(txn, id)
	if err != nil {
		return err
	}
	s.metrics.IncrementConflict(s.schema.Kind)
	s.log.Debug("stale version rejected", "id", id, "current", current.Version)
	return &ConflictError[T]{Entity: s.schema.Kind, Current: current}
}

// conflictAfterRace handles a standalone write that lost badger's commit
// race: the winner is reported the same way as a stale version.
func (s *Store[T]) conflictAfterRace(id uuid.UUID) error {
	return s.db.View(func(txn *badger.Txn) error {
		return s.conflict(txn, id)
	})
}

// wrap leaves domain outcomes untouched and turns anything else into a
// StoreError.
func (s *Store[T]) wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrNotFound), errors.Is(err, errors.ErrConflict):
		return err
	case errors.Is(err, errors.ErrUserAlreadyExists):
		return err
	case errors.Is(err, errors.ErrBackingStore):
		s.log.Error("backing store failure", "op", op, "error", err)
		return err
	default:
		s.log.Error("backing store failure", "op", op, "error", err)
		return NewStoreError(s.schema.Kind, op, err)
	}
}
