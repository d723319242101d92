package domain

// ChannelAlias is the name under which an account lists a joined channel.
// Aliases are not required to be unique within an account.
type ChannelAlias struct {
	Alias   string
	Channel Stored[Channel]
}

type Account struct {
	User         Stored[User]
	Channels     []ChannelAlias
	PasswordHash []byte
	Salt         []byte
}

// WithChannel appends a membership. Joining the same channel twice yields
// two entries.
func (a Account) WithChannel(alias string, channel Stored[Channel]) Account {
	channels := make([]ChannelAlias, 0, len(a.Channels)+1)
	channels = append(channels, a.Channels...)
	a.Channels = append(channels, ChannelAlias{Alias: alias, Channel: channel})
	return a
}

func (a Account) Username() string {
	return a.User.Value.Name
}
