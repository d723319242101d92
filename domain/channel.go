package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventMessage EventKind = "message"
	EventJoin    EventKind = "join"
)

// Event is an entry of a channel's history. Message is only meaningful for
// EventMessage.
type Event struct {
	Channel uuid.UUID
	Kind    EventKind
	Time    time.Time
	Sender  string
	Message string
}

func NewMessage(channel uuid.UUID, sender, text string, at time.Time) Event {
	return Event{Channel: channel, Kind: EventMessage, Time: at.UTC(), Sender: sender, Message: text}
}

func NewJoin(channel uuid.UUID, sender string, at time.Time) Event {
	return Event{Channel: channel, Kind: EventJoin, Time: at.UTC(), Sender: sender}
}

func (e Event) WithMessage(text string) Event {
	e.Message = text
	return e
}

// Channel holds its history oldest first. Insertion order is authoritative,
// events are never re-sorted by Time.
type Channel struct {
	Name   string
	Events []Stored[Event]
	Roles  map[string]Role
}

func NewChannel(name string) Channel {
	return Channel{Name: name, Roles: map[string]Role{}}
}

// Role returns RoleNone for users without an entry.
func (c Channel) Role(user string) Role {
	if r, ok := c.Roles[user]; ok {
		return r
	}
	return RoleNone
}

// WithRole returns a copy of the channel where user holds role. Assigning
// RoleNone removes the entry.
func (c Channel) WithRole(user string, role Role) Channel {
	roles := make(map[string]Role, len(c.Roles)+1)
	maps.Copy(roles, c.Roles)
	if role == RoleNone {
		delete(roles, user)
	} else {
		roles[user] = role
	}
	c.Roles = roles
	return c
}

// LastEvent returns the most recently inserted event, if any.
func (c Channel) LastEvent() (Stored[Event], bool) {
	if len(c.Events) == 0 {
		return Stored[Event]{}, false
	}
	return c.Events[len(c.Events)-1], true
}
