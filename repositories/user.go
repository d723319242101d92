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

const KindUser = "user"

type IUserRepository interface {
	IStore[domain.User]
	LookupByName(ctx context.Context, name string) (domain.Stored[domain.User], error)
}

type userRow struct {
	Name   string `msgpack:"name"`
	Joined int64  `msgpack:"joined"`
}

// UserStore keeps names unique through idx:user_name. Saving or renaming
// to a taken name fails with ErrUserAlreadyExists.
type UserStore struct {
	*Store[domain.User]
}

func NewUserStore(db *badger.DB, log *slog.Logger, metrics *observability.Metrics) *UserStore {
	return &UserStore{Store: NewStore(db, userSchema(), log, metrics)}
}

func userSchema() Schema[domain.User] {
	return Schema[domain.User]{
		Kind: KindUser,
		Marshal: func(u domain.User) ([]byte, error) {
			return serialize(userRow{Name: u.Name, Joined: toUnixNano(u.Joined)})
		},
		Unmarshal: func(_ *badger.Txn, _ uuid.UUID, raw []byte) (domain.User, error) {
			row, err := decodeUserRow(raw)
			if err != nil {
				return domain.User{}, err
			}
			return domain.User{Name: row.Name, Joined: fromUnixNano(row.Joined)}, nil
		},
		Attach: func(txn *badger.Txn, id uuid.UUID, u domain.User, previous []byte) error {
			if previous != nil {
				old, err := decodeUserRow(previous)
				if err != nil {
					return err
				}
				if old.Name == u.Name {
					return nil
				}
				if err = txn.Delete(userNameKey(old.Name)); err != nil {
					return err
				}
			}
			_, err := txn.Get(userNameKey(u.Name))
			switch {
			case err == nil:
				return fmt.Errorf("%q: %w", u.Name, errors.ErrUserAlreadyExists)
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			return setID(txn, userNameKey(u.Name), id)
		},
		Detach: func(txn *badger.Txn, _ uuid.UUID, raw []byte) error {
			row, err := decodeUserRow(raw)
			if err != nil {
				return err
			}
			return txn.Delete(userNameKey(row.Name))
		},
	}
}

// LookupByName resolves a user through the name index.
func (s *UserStore) LookupByName(ctx context.Context, name string) (domain.Stored[domain.User], error) {
	var user domain.Stored[domain.User]
	err := s.view(ctx, func(txn *badger.Txn) error {
		id, err := s.lookupID(txn, name)
		if err != nil {
			return err
		}
		user, err = s.read(txn, id)
		return err
	})
	if err != nil {
		return domain.Stored[domain.User]{}, s.wrap("lookup", err)
	}
	return user, nil
}

func (s *UserStore) lookupID(txn *badger.Txn, name string) (uuid.UUID, error) {
	id, err := getID(txn, userNameKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return uuid.Nil, fmt.Errorf("user named %q: %w", name, errors.ErrNotFound)
	}
	return id, err
}

func userNameKey(name string) []byte {
	return []byte(userNameIndex + name)
}

func decodeUserRow(raw []byte) (userRow, error) {
	var row userRow
	if err := deserialize(raw, &row); err != nil {
		return userRow{}, NewStoreError(KindUser, "decode", err)
	}
	return row, nil
}
