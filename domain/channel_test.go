package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestChannel_WithRole_Returns_Copy(t *testing.T) {
	req := require.New(t)
	original := NewChannel("general").WithRole("alice", RoleOwner)

	updated := original.WithRole("bob", RoleParticipant)

	req.Equal(RoleOwner, updated.Role("alice"))
	req.Equal(RoleParticipant, updated.Role("bob"))
	req.Equal(RoleNone, original.Role("bob"))

	// Assigning none removes the entry
	removed := updated.WithRole("bob", RoleNone)
	req.NotContains(removed.Roles, "bob")
	req.Contains(updated.Roles, "bob")
}

func TestChannel_LastEvent(t *testing.T) {
	req := require.New(t)
	channel := NewChannel("general")

	_, ok := channel.LastEvent()
	req.False(ok)

	join := Stored[Event]{ID: uuid.New(), Value: NewJoin(uuid.New(), "bob", time.Now())}
	message := Stored[Event]{ID: uuid.New(), Value: NewMessage(uuid.New(), "bob", "hi", time.Now())}
	channel.Events = []Stored[Event]{join, message}

	last, ok := channel.LastEvent()
	req.True(ok)
	req.Equal(message, last)
}

func TestAccount_WithChannel_Appends_Copy(t *testing.T) {
	req := require.New(t)
	general := Stored[Channel]{ID: uuid.New(), Value: NewChannel("general")}
	base := Account{}.WithChannel("general", general)

	first := base.WithChannel("general", general)
	second := base.WithChannel("other", general)

	req.Len(base.Channels, 1)
	req.Equal("general", first.Channels[1].Alias)
	req.Equal("other", second.Channels[1].Alias)
}

func TestParseRole(t *testing.T) {
	req := require.New(t)

	role, ok := ParseRole("moderator")
	req.True(ok)
	req.Equal(RoleModerator, role)

	_, ok = ParseRole("admin")
	req.False(ok)
}

func TestSession_Expired(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	session := Session{Expiry: now.Add(time.Minute)}

	req.False(session.Expired(now))
	req.True(session.Expired(now.Add(time.Minute)))
}
