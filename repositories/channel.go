package repositories

import (
	"context"
	"inchat/domain"
	"inchat/observability"
	"inchat/runtime"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	KindChannel = "channel"

	relationChannelRole = "channel_role"
)

type IChannelRepository interface {
	IStore[domain.Channel]
	CurrentVersion(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	WaitForNext(ctx context.Context, id, known uuid.UUID) (domain.Stored[domain.Channel], error)
	Touch(ctx context.Context, expected domain.Stored[domain.Channel]) (domain.Stored[domain.Channel], error)
	LookupForEvent(ctx context.Context, event uuid.UUID) (domain.Stored[domain.Channel], error)
}

type channelRow struct {
	Name string `msgpack:"name"`
}

type roleRow struct {
	User string `msgpack:"user"`
	Role string `msgpack:"role"`
}

// ChannelStore persists the channel row and its role table. Events are
// not written through it: Channel.Events is always rebuilt from the
// EventStore index and whatever a caller puts there on Update is ignored.
// Committed updates and deletions wake the waiters parked on the channel.
type ChannelStore struct {
	*Store[domain.Channel]
	events  *EventStore
	waiters *runtime.Waiters[domain.Channel]
}

func NewChannelStore(db *badger.DB, events *EventStore, waiters *runtime.Waiters[domain.Channel], log *slog.Logger, metrics *observability.Metrics) *ChannelStore {
	s := &ChannelStore{events: events, waiters: waiters}
	s.Store = NewStore(db, s.channelSchema(), log, metrics)
	s.Store.onChange = func(record domain.Stored[domain.Channel], deleted bool) {
		if deleted {
			waiters.NotifyDeleted(record.ID)
			return
		}
		waiters.Notify(record)
	}
	return s
}

func (s *ChannelStore) channelSchema() Schema[domain.Channel] {
	return Schema[domain.Channel]{
		Kind: KindChannel,
		Marshal: func(c domain.Channel) ([]byte, error) {
			return serialize(channelRow{Name: c.Name})
		},
		Unmarshal: func(txn *badger.Txn, id uuid.UUID, raw []byte) (domain.Channel, error) {
			var row channelRow
			if err := deserialize(raw, &row); err != nil {
				return domain.Channel{}, NewStoreError(KindChannel, "decode", err)
			}
			channel := domain.NewChannel(row.Name)
			err := scanPrefix(txn, relationKeyPrefix(relationChannelRole, id), func(_, val []byte) error {
				var role roleRow
				if err := deserialize(val, &role); err != nil {
					return NewStoreError(KindChannel, "decode", err)
				}
				channel.Roles[role.User] = domain.Role(role.Role)
				return nil
			})
			if err != nil {
				return domain.Channel{}, err
			}
			channel.Events, err = s.events.history(txn, id)
			return channel, err
		},
		Attach: func(txn *badger.Txn, id uuid.UUID, c domain.Channel, _ []byte) error {
			prefix := relationKeyPrefix(relationChannelRole, id)
			if err := deletePrefix(txn, prefix); err != nil {
				return err
			}
			for user, role := range c.Roles {
				if role == domain.RoleNone {
					continue
				}
				raw, err := serialize(roleRow{User: user, Role: string(role)})
				if err != nil {
					return NewStoreError(KindChannel, "encode", err)
				}
				if err = txn.Set(append(append([]byte{}, prefix...), user...), raw); err != nil {
					return err
				}
			}
			return nil
		},
		Detach: func(txn *badger.Txn, id uuid.UUID, _ []byte) error {
			return deletePrefix(txn, relationKeyPrefix(relationChannelRole, id))
		},
	}
}

// Touch stores the channel unchanged under a new version. Changes made
// through other stores (an edited or removed event) are announced to
// waiters this way.
func (s *ChannelStore) Touch(ctx context.Context, expected domain.Stored[domain.Channel]) (domain.Stored[domain.Channel], error) {
	return s.Update(ctx, expected, expected.Value)
}

// WaitForNext blocks until the channel has a committed version other than
// known and returns it. A version that is already different returns
// immediately. A deleted channel yields ErrNotFound. Cancelling ctx
// withdraws the registration.
func (s *ChannelStore) WaitForNext(ctx context.Context, id, known uuid.UUID) (domain.Stored[domain.Channel], error) {
	for {
		waiter, err := s.waiters.Register(id)
		if err != nil {
			return domain.Stored[domain.Channel]{}, err
		}

		// Registration happens before this check, so a commit landing in
		// between is either seen here or delivered to the waiter.
		current, err := s.CurrentVersion(ctx, id)
		if err != nil {
			s.waiters.Cancel(waiter)
			return domain.Stored[domain.Channel]{}, err
		}
		if current != known {
			s.waiters.Cancel(waiter)
			return s.Get(ctx, id)
		}

		select {
		case change := <-waiter.Done():
			switch {
			case change.Err != nil:
				return domain.Stored[domain.Channel]{}, change.Err
			case change.Deleted:
				return domain.Stored[domain.Channel]{}, notFound(KindChannel, id)
			case change.Record.Version != known:
				return change.Record, nil
			}
			// A late notification for the version we already hold, park again.
		case <-ctx.Done():
			s.waiters.Cancel(waiter)
			return domain.Stored[domain.Channel]{}, ctx.Err()
		}
	}
}

// LookupForEvent returns the channel an event was posted to.
func (s *ChannelStore) LookupForEvent(ctx context.Context, event uuid.UUID) (domain.Stored[domain.Channel], error) {
	var channel domain.Stored[domain.Channel]
	err := s.view(ctx, func(txn *badger.Txn) error {
		e, err := s.events.read(txn, event)
		if err != nil {
			return err
		}
		channel, err = s.read(txn, e.Value.Channel)
		return err
	})
	if err != nil {
		return domain.Stored[domain.Channel]{}, s.wrap("lookup", err)
	}
	return channel, nil
}

var _ IChannelRepository = (*ChannelStore)(nil)
