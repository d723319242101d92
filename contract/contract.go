// Package contract holds the interfaces consumers of the chat core depend on.
package contract

import (
	"context"
	"inchat/domain"

	"github.com/google/uuid"
)

// IChatService is the whole surface offered to a transport layer.
type IChatService interface {
	Login(ctx context.Context, username, password string) (domain.Stored[domain.Session], bool, error)
	Register(ctx context.Context, username, password string) (domain.Stored[domain.Session], bool, error)
	RestoreSession(ctx context.Context, id uuid.UUID) (domain.Stored[domain.Session], bool, error)
	Logout(ctx context.Context, session domain.Stored[domain.Session]) (bool, error)

	CreateChannel(ctx context.Context, account domain.Stored[domain.Account], name string) (domain.Stored[domain.Channel], bool, error)
	JoinChannel(ctx context.Context, account domain.Stored[domain.Account], channel uuid.UUID) (domain.Stored[domain.Channel], bool, error)
	GetChannel(ctx context.Context, id uuid.UUID) (domain.Stored[domain.Channel], bool, error)
	LookupChannelForEvent(ctx context.Context, event uuid.UUID) (domain.Stored[domain.Channel], bool, error)
	WaitForNextChannelVersion(ctx context.Context, id, known uuid.UUID) (domain.Stored[domain.Channel], bool, error)

	PostMessage(ctx context.Context, account domain.Stored[domain.Account], channel domain.Stored[domain.Channel], text string) (domain.Stored[domain.Channel], bool, error)
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Stored[domain.Event], bool, error)
	EditMessage(ctx context.Context, channel domain.Stored[domain.Channel], event domain.Stored[domain.Event], text string, account domain.Stored[domain.Account]) (domain.Stored[domain.Channel], error)
	DeleteEvent(ctx context.Context, channel domain.Stored[domain.Channel], event domain.Stored[domain.Event], account domain.Stored[domain.Account]) (domain.Stored[domain.Channel], error)

	SetRole(ctx context.Context, account domain.Stored[domain.Account], channel domain.Stored[domain.Channel], target string, role domain.Role) (domain.Stored[domain.Channel], error)
	Role(username string, channel domain.Stored[domain.Channel]) domain.Role
	CanPost(account domain.Stored[domain.Account], channel domain.Stored[domain.Channel]) bool
	CanRead(account domain.Stored[domain.Account], channel domain.Stored[domain.Channel]) bool
}
