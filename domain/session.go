package domain

import "time"

type Session struct {
	Account Stored[Account]
	Expiry  time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}
