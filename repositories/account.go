package repositories

import (
	"context"
	"fmt"
	"inchat/domain"
	"inchat/errors"
	"inchat/observability"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	KindAccount = "account"

	relationAccountChannel = "account_channel"
)

type IAccountRepository interface {
	IStore[domain.Account]
	LookupByUsername(ctx context.Context, name string) (domain.Stored[domain.Account], error)
}

type accountRow struct {
	User         string `msgpack:"user"`
	PasswordHash []byte `msgpack:"password_hash"`
	Salt         []byte `msgpack:"salt"`
}

type membershipRow struct {
	Alias   string `msgpack:"alias"`
	Channel string `msgpack:"channel"`
}

// AccountStore persists the credentials row and the ordered list of joined
// channels. Channels are resolved when the account is read, memberships
// pointing at a deleted channel are skipped.
type AccountStore struct {
	*Store[domain.Account]
	users    *UserStore
	channels *ChannelStore
}

func NewAccountStore(db *badger.DB, users *UserStore, channels *ChannelStore, log *slog.Logger, metrics *observability.Metrics) *AccountStore {
	s := &AccountStore{users: users, channels: channels}
	s.Store = NewStore(db, s.accountSchema(), log, metrics)
	return s
}

func (s *AccountStore) accountSchema() Schema[domain.Account] {
	return Schema[domain.Account]{
		Kind: KindAccount,
		Marshal: func(a domain.Account) ([]byte, error) {
			return serialize(accountRow{
				User:         a.User.ID.String(),
				PasswordHash: a.PasswordHash,
				Salt:         a.Salt,
			})
		},
		Unmarshal: func(txn *badger.Txn, id uuid.UUID, raw []byte) (domain.Account, error) {
			row, userID, err := decodeAccountRow(raw)
			if err != nil {
				return domain.Account{}, err
			}
			user, err := s.users.read(txn, userID)
			if err != nil {
				return domain.Account{}, fmt.Errorf("account %s: %w", id, err)
			}
			account := domain.Account{User: user, PasswordHash: row.PasswordHash, Salt: row.Salt}
			err = scanPrefix(txn, relationKeyPrefix(relationAccountChannel, id), func(_, val []byte) error {
				var m membershipRow
				if err := deserialize(val, &m); err != nil {
					return NewStoreError(KindAccount, "decode", err)
				}
				channelID, err := uuid.Parse(m.Channel)
				if err != nil {
					return NewStoreError(KindAccount, "decode", err)
				}
				channel, err := s.channels.read(txn, channelID)
				if errors.Is(err, errors.ErrNotFound) {
					s.log.Debug("skipping membership of deleted channel", "account", id, "channel", channelID)
					return nil
				}
				if err != nil {
					return err
				}
				account.Channels = append(account.Channels, domain.ChannelAlias{Alias: m.Alias, Channel: channel})
				return nil
			})
			return account, err
		},
		Attach: func(txn *badger.Txn, id uuid.UUID, a domain.Account, previous []byte) error {
			prefix := relationKeyPrefix(relationAccountChannel, id)
			if err := deletePrefix(txn, prefix); err != nil {
				return err
			}
			for i, membership := range a.Channels {
				raw, err := serialize(membershipRow{Alias: membership.Alias, Channel: membership.Channel.ID.String()})
				if err != nil {
					return NewStoreError(KindAccount, "encode", err)
				}
				if err = txn.Set(ordinalKey(prefix, i), raw); err != nil {
					return err
				}
			}
			if previous != nil {
				_, oldUser, err := decodeAccountRow(previous)
				if err != nil {
					return err
				}
				if oldUser != a.User.ID {
					if err = txn.Delete(accountUserKey(oldUser)); err != nil {
						return err
					}
				}
			}
			return setID(txn, accountUserKey(a.User.ID), id)
		},
		Detach: func(txn *badger.Txn, id uuid.UUID, raw []byte) error {
			_, userID, err := decodeAccountRow(raw)
			if err != nil {
				return err
			}
			if err = deletePrefix(txn, relationKeyPrefix(relationAccountChannel, id)); err != nil {
				return err
			}
			return txn.Delete(accountUserKey(userID))
		},
	}
}

// LookupByUsername resolves user name, then the account owned by that user.
func (s *AccountStore) LookupByUsername(ctx context.Context, name string) (domain.Stored[domain.Account], error) {
	var account domain.Stored[domain.Account]
	err := s.view(ctx, func(txn *badger.Txn) error {
		userID, err := s.users.lookupID(txn, name)
		if err != nil {
			return err
		}
		id, err := getID(txn, accountUserKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("account of %q: %w", name, errors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		account, err = s.read(txn, id)
		return err
	})
	if err != nil {
		return domain.Stored[domain.Account]{}, s.wrap("lookup", err)
	}
	return account, nil
}

func accountUserKey(user uuid.UUID) []byte {
	return []byte(accountUserIndex + user.String())
}

func decodeAccountRow(raw []byte) (accountRow, uuid.UUID, error) {
	var row accountRow
	if err := deserialize(raw, &row); err != nil {
		return accountRow{}, uuid.Nil, NewStoreError(KindAccount, "decode", err)
	}
	user, err := uuid.Parse(row.User)
	if err != nil {
		return accountRow{}, uuid.Nil, NewStoreError(KindAccount, "decode", err)
	}
	return row, user, nil
}
