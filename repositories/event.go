package repositories

import (
	"fmt"
	"inchat/domain"
	"inchat/observability"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const KindEvent = "event"

type eventRow struct {
	Channel string `msgpack:"channel"`
	Kind    string `msgpack:"kind"`
	Time    int64  `msgpack:"time"`
	Sender  string `msgpack:"sender"`
	Message string `msgpack:"message,omitempty"`
}

// EventStore owns the idx:channel_event index from which a channel's
// history is derived. Positions come from a badger sequence so the index
// follows insertion order, never event time. Editing an event keeps its
// position.
type EventStore struct {
	*Store[domain.Event]
	seq *badger.Sequence
}

func NewEventStore(db *badger.DB, log *slog.Logger, metrics *observability.Metrics) (*EventStore, error) {
	seq, err := db.GetSequence([]byte(channelEventSequence), 128)
	if err != nil {
		return nil, NewStoreError(KindEvent, "sequence", err)
	}
	s := &EventStore{seq: seq}
	s.Store = NewStore(db, s.eventSchema(), log, metrics)
	return s, nil
}

// Close hands the unused part of the leased sequence back to badger.
func (s *EventStore) Close() error {
	return s.seq.Release()
}

func (s *EventStore) eventSchema() Schema[domain.Event] {
	return Schema[domain.Event]{
		Kind: KindEvent,
		Marshal: func(e domain.Event) ([]byte, error) {
			return serialize(eventRow{
				Channel: e.Channel.String(),
				Kind:    string(e.Kind),
				Time:    toUnixNano(e.Time),
				Sender:  e.Sender,
				Message: e.Message,
			})
		},
		Unmarshal: func(_ *badger.Txn, _ uuid.UUID, raw []byte) (domain.Event, error) {
			var row eventRow
			if err := deserialize(raw, &row); err != nil {
				return domain.Event{}, NewStoreError(KindEvent, "decode", err)
			}
			channel, err := uuid.Parse(row.Channel)
			if err != nil {
				return domain.Event{}, NewStoreError(KindEvent, "decode", err)
			}
			return domain.Event{
				Channel: channel,
				Kind:    domain.EventKind(row.Kind),
				Time:    fromUnixNano(row.Time),
				Sender:  row.Sender,
				Message: row.Message,
			}, nil
		},
		Attach: func(txn *badger.Txn, id uuid.UUID, e domain.Event, previous []byte) error {
			if previous != nil {
				return nil
			}
			n, err := s.seq.Next()
			if err != nil {
				return fmt.Errorf("next event position: %w", err)
			}
			position := channelEventKey(e.Channel, n)
			if err = setID(txn, position, id); err != nil {
				return err
			}
			return txn.Set(eventPositionKey(id), position)
		},
		Detach: func(txn *badger.Txn, id uuid.UUID, _ []byte) error {
			item, err := txn.Get(eventPositionKey(id))
			if err != nil {
				return err
			}
			position, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err = txn.Delete(position); err != nil {
				return err
			}
			return txn.Delete(eventPositionKey(id))
		},
	}
}

// history returns the events of a channel in insertion order.
func (s *EventStore) history(txn *badger.Txn, channel uuid.UUID) ([]domain.Stored[domain.Event], error) {
	var events []domain.Stored[domain.Event]
	err := scanPrefix(txn, channelEventPrefix(channel), func(_, val []byte) error {
		id, err := uuid.FromBytes(val)
		if err != nil {
			return NewStoreError(KindEvent, "decode", err)
		}
		event, err := s.read(txn, id)
		if err != nil {
			return err
		}
		events = append(events, event)
		return nil
	})
	return events, err
}

func eventPositionKey(id uuid.UUID) []byte {
	return []byte(eventPositionIndex + id.String())
}
