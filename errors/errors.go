package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = fmt.Errorf("record not found")
	ErrConflict     = fmt.Errorf("version conflict")
	ErrBackingStore = fmt.Errorf("backing store failure")
	ErrUnauthorized = fmt.Errorf("operation not permitted for this role")

	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidUsername    = fmt.Errorf("invalid username")
	ErrInvalidPassword    = fmt.Errorf("invalid password")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	ErrResultAlreadySet = fmt.Errorf("result of atomic operation already set")
	ErrWaiterClosed     = fmt.Errorf("change waiter closed")
	ErrWaitInUnit       = fmt.Errorf("cannot wait for a change inside a unit of work")
)

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
