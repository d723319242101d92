package domain

import "time"

type User struct {
	Name   string
	Joined time.Time
}

func NewUser(name string, joined time.Time) User {
	return User{Name: name, Joined: joined.UTC()}
}
