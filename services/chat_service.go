package services

import (
	"context"
	"fmt"
	"inchat/auth"
	"inchat/contract"
	"inchat/domain"
	"inchat/errors"
	"inchat/repositories"
	"inchat/runtime"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// SessionDuration is how long a session issued by Login or Register lives.
const SessionDuration = 24 * time.Hour

var (
	postingRoles   = []domain.Role{domain.RoleOwner, domain.RoleModerator, domain.RoleParticipant}
	readingRoles   = []domain.Role{domain.RoleOwner, domain.RoleModerator, domain.RoleParticipant, domain.RoleObserver}
	moderatorRoles = []domain.Role{domain.RoleOwner, domain.RoleModerator}
	// Joining never downgrades these roles to participant.
	stickyRoles = []domain.Role{domain.RoleOwner, domain.RoleBanned, domain.RoleObserver}

	// Login verifies against these when the username is unknown.
	unknownUserSalt = make([]byte, auth.SaltLength)
	unknownUserHash = make([]byte, auth.KeyLength)
)

// ChatService composes the entity stores into chat operations. Every
// mutating operation runs as one atomic unit: it either fully applies or
// leaves no trace. Failed preconditions are reported as an empty result,
// never as which precondition failed. Backing-store failures are returned
// as errors.
type ChatService struct {
	log             *slog.Logger
	coordinator     *runtime.Coordinator
	stores          *repositories.Stores
	hasher          auth.Hasher
	sessionDuration time.Duration
	maxAttempts     int
	now             func() time.Time
}

func NewChatService(
	log *slog.Logger,
	coordinator *runtime.Coordinator,
	stores *repositories.Stores,
	hasher auth.Hasher,
	sessionDuration time.Duration,
	maxAttempts int,
) *ChatService {
	if sessionDuration <= 0 {
		sessionDuration = SessionDuration
	}
	if maxAttempts <= 0 {
		maxAttempts = repositories.DefaultMaxAttempts
	}
	return &ChatService{
		log:             log.With("component", "chat_service"),
		coordinator:     coordinator,
		stores:          stores,
		hasher:          hasher,
		sessionDuration: sessionDuration,
		maxAttempts:     maxAttempts,
		now:             time.Now,
	}
}

// Login issues a session when the password matches. The password is checked
// before anything is written, so a failed attempt leaves no session behind.
func (s *ChatService) Login(ctx context.Context, username, password string) (domain.Stored[domain.Session], bool, error) {
	if utf8.RuneCountInString(password) > auth.MaxLoginPasswordLength {
		s.log.Debug("login rejected, password too long")
		return domain.Stored[domain.Session]{}, false, nil
	}
	return runtime.RunAtomic(ctx, s.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Session]]) error {
		account, err := s.stores.Accounts.LookupByUsername(ctx, username)
		if errors.Is(err, errors.ErrNotFound) {
			// An unknown user pays the same hashing cost as a wrong password.
			s.hasher.Verify(password, unknownUserSalt, unknownUserHash)
			return errors.ErrInvalidCredentials
		}
		if err != nil {
			return err
		}
		if !s.hasher.Verify(password, account.Value.Salt, account.Value.PasswordHash) {
			// Generic error to prevent user enumeration attacks
			return errors.ErrInvalidCredentials
		}
		session, err := s.stores.Sessions.Save(ctx, s.newSession(account))
		if err != nil {
			return err
		}
		res.Accept(session)
		return nil
	})
}

// Register creates the user, its account and a first session. Policy
// violations and taken names yield no session.
func (s *ChatService) Register(ctx context.Context, username, password string) (domain.Stored[domain.Session], bool, error) {
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		s.log.Debug("registration rejected", "error", err)
		return domain.Stored[domain.Session]{}, false, nil
	}

	// Hashing happens before the unit opens, it is the slow part.
	salt, err := s.hasher.NewSalt()
	if err != nil {
		return domain.Stored[domain.Session]{}, false, err
	}
	hash, err := s.hasher.Hash(password, salt)
	if err != nil {
		return domain.Stored[domain.Session]{}, false, fmt.Errorf("hashing failed: %w", err)
	}

	return runtime.RunAtomic(ctx, s.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Session]]) error {
		user, err := s.stores.Users.Save(ctx, domain.NewUser(username, s.now()))
		if err != nil {
			return err
		}
		account, err := s.stores.Accounts.Save(ctx, domain.Account{User: user, PasswordHash: hash, Salt: salt})
		if err != nil {
			return err
		}
		session, err := s.stores.Sessions.Save(ctx, s.newSession(account))
		if err != nil {
			return err
		}
		res.Accept(session)
		return nil
	})
}

// RestoreSession returns a live session. An expired one is deleted and
// reported as absent.
func (s *ChatService) RestoreSession(ctx context.Context, id uuid.UUID) (domain.Stored[domain.Session], bool, error) {
	return runtime.RunAtomic(ctx, s.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Session]]) error {
		session, err := s.stores.Sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		if session.Value.Expired(s.now()) {
			s.log.Debug("dropping expired session", "session", id)
			return s.stores.Sessions.Delete(ctx, session)
		}
		res.Accept(session)
		return nil
	})
}

func (s *ChatService) Logout(ctx context.Context, session domain.Stored[domain.Session]) (bool, error) {
	return s.coordinator.Run(ctx, func(ctx context.Context) error {
		return repositories.DeleteWith(ctx, s.stores.Sessions, session, s.maxAttempts)
	})
}

// CreateChannel creates a channel owned by the account and joins it.
func (s *ChatService) CreateChannel(ctx context.Context, account domain.Stored[domain.Account], name string) (domain.Stored[domain.Channel], bool, error) {
	return runtime.RunAtomic(ctx, s.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Channel]]) error {
		channel, err := s.stores.Channels.Save(ctx, domain.NewChannel(name).WithRole(account.Value.Username(), domain.RoleOwner))
		if err != nil {
			return err
		}
		joined, err := s.joinChannel(ctx, account, channel.ID)
		if err != nil {
			return err
		}
		res.Accept(joined)
		return nil
	})
}

func (s *ChatService) JoinChannel(ctx context.Context, account domain.Stored[domain.Account], channelID uuid.UUID) (domain.Stored[domain.Channel], bool, error) {
	return runtime.RunAtomic(ctx, s.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Channel]]) error {
		joined, err := s.joinChannel(ctx, account, channelID)
		if err != nil {
			return err
		}
		res.Accept(joined)
		return nil
	})
}

// joinChannel must run inside a unit of work.
func (s *ChatService) joinChannel(ctx context.Context, account domain.Stored[domain.Account], channelID uuid.UUID) (domain.Stored[domain.Channel], error) {
	channel, err := s.stores.Channels.Get(ctx, channelID)
	if err != nil {
		return domain.Stored[domain.Channel]{}, err
	}
	username := account.Value.Username()
	role := channel.Value.Role(username)
	if !lo.Contains(stickyRoles, role) {
		role = domain.RoleParticipant
	}

	if _, err = s.stores.Events.Save(ctx, domain.NewJoin(channelID, username, s.now())); err != nil {
		return domain.Stored[domain.Channel]{}, err
	}
	updated, err := s.stores.Channels.Update(ctx, channel, channel.Value.WithRole(username, role))
	if err != nil {
		return domain.Stored[domain.Channel]{}, err
	}

	// Appending a membership is recomputed on the live account, a caller
	// holding an older snapshot of it still joins.
	_, err = repositories.UpdateWith(ctx, s.stores.Accounts, account, s.maxAttempts, func(a domain.Account) domain.Account {
		return a.WithChannel(updated.Value.Name, updated)
	})
	if err != nil {
		return domain.Stored[domain.Channel]{}, err
	}
	return updated, nil
}

// PostMessage appends a message to the channel. The caller's snapshot only
// identifies the channel: posting rights are checked against the live
// roles and the live channel is the one moved to a new version.
func (s *ChatService) PostMessage(ctx context.Context, account domain.Stored[domain.Account], channel domain.Stored[domain.Channel], text string) (domain.Stored[domain.Channel], bool, error) {
	return runtime.RunAtomic(ctx, s.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Channel]]) error {
		live, err := s.stores.Channels.Get(ctx, channel.ID)
		if err != nil {
			return err
		}
		if !s.CanPost(account, live) {
			s.log.Debug("post rejected", "user", account.Value.Username(), "channel", channel.ID)
			return errors.ErrUnauthorized
		}
		if _, err = s.stores.Events.Save(ctx, domain.NewMessage(channel.ID, account.Value.Username(), text, s.now())); err != nil {
			return err
		}
		updated, err := s.stores.Channels.Touch(ctx, live)
		if err != nil {
			return err
		}
		res.Accept(updated)
		return nil
	})
}

// EditMessage replaces the text of a message event. Unauthorized callers,
// or an aborted unit, get the channel back unchanged.
func (s *ChatService) EditMessage(ctx context.Context, channel domain.Stored[domain.Channel], event domain.Stored[domain.Event], text string, account domain.Stored[domain.Account]) (domain.Stored[domain.Channel], error) {
	if event.Value.Kind != domain.EventMessage {
		s.log.Debug("edit rejected, not a message", "event", event.ID)
		return channel, nil
	}
	return s.modifyEvent(ctx, channel, event, account, func(ctx context.Context) error {
		_, err := repositories.UpdateWith(ctx, s.stores.Events, event, s.maxAttempts, func(e domain.Event) domain.Event {
			return e.WithMessage(text)
		})
		return err
	})
}

// DeleteEvent removes an event from the channel history, under the same
// rules as EditMessage.
func (s *ChatService) DeleteEvent(ctx context.Context, channel domain.Stored[domain.Channel], event domain.Stored[domain.Event], account domain.Stored[domain.Account]) (domain.Stored[domain.Channel], error) {
	return s.modifyEvent(ctx, channel, event, account, func(ctx context.Context) error {
		return repositories.DeleteWith(ctx, s.stores.Events, event, s.maxAttempts)
	})
}

// modifyEvent checks the account against the live channel, runs change and
// bumps the live channel version so that parked readers see the edited
// history.
func (s *ChatService) modifyEvent(ctx context.Context, channel domain.Stored[domain.Channel], event domain.Stored[domain.Event], account domain.Stored[domain.Account], change func(ctx context.Context) error) (domain.Stored[domain.Channel], error) {
	updated, ok, err := runtime.RunAtomic(ctx, s.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Channel]]) error {
		live, err := s.stores.Channels.Get(ctx, channel.ID)
		if err != nil {
			return err
		}
		if !s.canModify(account, live, event) {
			s.log.Debug("event change rejected", "user", account.Value.Username(), "event", event.ID)
			return errors.ErrUnauthorized
		}
		if err = change(ctx); err != nil {
			return err
		}
		touched, err := s.stores.Channels.Touch(ctx, live)
		if err != nil {
			return err
		}
		res.Accept(touched)
		return nil
	})
	if err != nil || !ok {
		return channel, err
	}
	return updated, nil
}

// SetRole lets an owner assign a role in the channel. Another owner's role
// cannot be changed. Rights are checked against the live roles and the
// change is applied to them. Unauthorized callers get the channel back
// unchanged.
func (s *ChatService) SetRole(ctx context.Context, account domain.Stored[domain.Account], channel domain.Stored[domain.Channel], target string, role domain.Role) (domain.Stored[domain.Channel], error) {
	actor := account.Value.Username()
	updated, ok, err := runtime.RunAtomic(ctx, s.coordinator, func(ctx context.Context, res *runtime.Result[domain.Stored[domain.Channel]]) error {
		live, err := s.stores.Channels.Get(ctx, channel.ID)
		if err != nil {
			return err
		}
		if live.Value.Role(actor) != domain.RoleOwner ||
			(target != actor && live.Value.Role(target) == domain.RoleOwner) {
			s.log.Debug("role change rejected", "user", actor, "target", target, "channel", channel.ID)
			return errors.ErrUnauthorized
		}
		updated, err := s.stores.Channels.Update(ctx, live, live.Value.WithRole(target, role))
		if err != nil {
			return err
		}
		res.Accept(updated)
		return nil
	})
	if err != nil || !ok {
		return channel, err
	}
	return updated, nil
}

func (s *ChatService) GetChannel(ctx context.Context, id uuid.UUID) (domain.Stored[domain.Channel], bool, error) {
	return found(s.stores.Channels.Get(ctx, id))
}

func (s *ChatService) GetEvent(ctx context.Context, id uuid.UUID) (domain.Stored[domain.Event], bool, error) {
	return found(s.stores.Events.Get(ctx, id))
}

// LookupChannelForEvent returns the channel an event belongs to.
func (s *ChatService) LookupChannelForEvent(ctx context.Context, event uuid.UUID) (domain.Stored[domain.Channel], bool, error) {
	return found(s.stores.Channels.LookupForEvent(ctx, event))
}

// WaitForNextChannelVersion parks until the channel moves past known. A
// deleted channel yields no result. It must not be called inside a unit of
// work, the wait would hold the unit open.
func (s *ChatService) WaitForNextChannelVersion(ctx context.Context, id, known uuid.UUID) (domain.Stored[domain.Channel], bool, error) {
	if _, inUnit := runtime.UnitFrom(ctx); inUnit {
		return domain.Stored[domain.Channel]{}, false, errors.ErrWaitInUnit
	}
	return found(s.stores.Channels.WaitForNext(ctx, id, known))
}

func (s *ChatService) Role(username string, channel domain.Stored[domain.Channel]) domain.Role {
	return channel.Value.Role(username)
}

func (s *ChatService) CanPost(account domain.Stored[domain.Account], channel domain.Stored[domain.Channel]) bool {
	return lo.Contains(postingRoles, s.Role(account.Value.Username(), channel))
}

func (s *ChatService) CanRead(account domain.Stored[domain.Account], channel domain.Stored[domain.Channel]) bool {
	return lo.Contains(readingRoles, s.Role(account.Value.Username(), channel))
}

// canModify gates edit and delete: owners and moderators may touch any
// event of the channel, a participant only their own.
func (s *ChatService) canModify(account domain.Stored[domain.Account], channel domain.Stored[domain.Channel], event domain.Stored[domain.Event]) bool {
	if event.Value.Channel != channel.ID {
		return false
	}
	username := account.Value.Username()
	role := s.Role(username, channel)
	if lo.Contains(moderatorRoles, role) {
		return true
	}
	return role == domain.RoleParticipant && event.Value.Sender == username
}

func (s *ChatService) newSession(account domain.Stored[domain.Account]) domain.Session {
	return domain.Session{Account: account, Expiry: s.now().Add(s.sessionDuration).UTC()}
}

// found turns ErrNotFound into an absent result.
func found[T any](record domain.Stored[T], err error) (domain.Stored[T], bool, error) {
	if errors.Is(err, errors.ErrNotFound) {
		return domain.Stored[T]{}, false, nil
	}
	if err != nil {
		return domain.Stored[T]{}, false, err
	}
	return record, true, nil
}

var _ contract.IChatService = (*ChatService)(nil)
