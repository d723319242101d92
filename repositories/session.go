package repositories

import (
	"fmt"
	"inchat/domain"
	"inchat/observability"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const KindSession = "session"

type sessionRow struct {
	Account string `msgpack:"account"`
	Expiry  int64  `msgpack:"expiry"`
}

// SessionStore only stores the session row, the account is resolved on
// read. Expiry is not enforced here.
type SessionStore struct {
	*Store[domain.Session]
	accounts *AccountStore
}

func NewSessionStore(db *badger.DB, accounts *AccountStore, log *slog.Logger, metrics *observability.Metrics) *SessionStore {
	s := &SessionStore{accounts: accounts}
	s.Store = NewStore(db, Schema[domain.Session]{
		Kind: KindSession,
		Marshal: func(v domain.Session) ([]byte, error) {
			return serialize(sessionRow{Account: v.Account.ID.String(), Expiry: toUnixNano(v.Expiry)})
		},
		Unmarshal: func(txn *badger.Txn, id uuid.UUID, raw []byte) (domain.Session, error) {
			var row sessionRow
			if err := deserialize(raw, &row); err != nil {
				return domain.Session{}, NewStoreError(KindSession, "decode", err)
			}
			accountID, err := uuid.Parse(row.Account)
			if err != nil {
				return domain.Session{}, NewStoreError(KindSession, "decode", err)
			}
			account, err := s.accounts.read(txn, accountID)
			if err != nil {
				return domain.Session{}, fmt.Errorf("session %s: %w", id, err)
			}
			return domain.Session{Account: account, Expiry: fromUnixNano(row.Expiry)}, nil
		},
	}, log, metrics)
	return s
}
