package repositories

import (
	"inchat/domain"
	"inchat/observability"
	"inchat/runtime"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Stores wires the five entity stores over one badger instance.
type Stores struct {
	Users    *UserStore
	Accounts *AccountStore
	Channels *ChannelStore
	Events   *EventStore
	Sessions *SessionStore
}

func NewStores(db *badger.DB, waiters *runtime.Waiters[domain.Channel], log *slog.Logger, metrics *observability.Metrics) (*Stores, error) {
	events, err := NewEventStore(db, log, metrics)
	if err != nil {
		return nil, err
	}
	users := NewUserStore(db, log, metrics)
	channels := NewChannelStore(db, events, waiters, log, metrics)
	accounts := NewAccountStore(db, users, channels, log, metrics)
	return &Stores{
		Users:    users,
		Accounts: accounts,
		Channels: channels,
		Events:   events,
		Sessions: NewSessionStore(db, accounts, log, metrics),
	}, nil
}

func (s *Stores) Close() error {
	return s.Events.Close()
}
