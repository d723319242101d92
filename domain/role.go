package domain

type Role string

const (
	RoleOwner       Role = "owner"
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
	RoleObserver    Role = "observer"
	RoleBanned      Role = "banned"
	// RoleNone is never persisted, it is what an absent entry reads as.
	RoleNone Role = "none"
)

var roles = map[Role]struct{}{
	RoleOwner:       {},
	RoleModerator:   {},
	RoleParticipant: {},
	RoleObserver:    {},
	RoleBanned:      {},
	RoleNone:        {},
}

func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roles[r]
	return r, ok
}

func (r Role) String() string {
	return string(r)
}
