package repositories

import (
	"context"
	"inchat/domain"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDescribe_Redacts_Credentials(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	user, err := f.stores.Users.Save(ctx, domain.NewUser("alice", time.Now()))
	req.NoError(err)
	account, err := f.stores.Accounts.Save(ctx, domain.Account{User: user, PasswordHash: []byte("secret-hash"), Salt: []byte("secret-salt")})
	req.NoError(err)

	infos, err := Inspect(f.db, "")
	req.NoError(err)

	byKey := map[string]KeyInfo{}
	for _, info := range infos {
		byKey[info.Key] = info
		req.NotContains(info.Detail, "secret")
	}

	accountInfo := byKey[string(recordKey(KindAccount, account.ID))]
	req.Equal(KindAccount, accountInfo.Kind)
	req.Equal(account.ID.String(), accountInfo.Entity)
	req.Equal(account.Version.String(), accountInfo.Version)
	req.True(strings.Contains(accountInfo.Detail, "password_hash=***"))

	nameInfo := byKey[string(userNameKey("alice"))]
	req.Equal("user_name", nameInfo.Kind)
	req.Equal("alice", nameInfo.Entity)
	req.Equal("-> "+user.ID.String(), nameInfo.Detail)
}
