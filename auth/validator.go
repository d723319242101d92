package auth

import (
	"fmt"
	"inchat/errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MaxLoginPasswordLength caps what login accepts before hashing anything.
const MaxLoginPasswordLength = 1000

var forbiddenWords = []string{"inchat", "password"}

type RegisterRequest struct {
	Username string `validate:"required,max=999"`
	Password string `validate:"required,min=7,max=256"`
}

// ValidateRegister applies the credential policy: length bounds, no
// whitespace, and no password containing the username or an obvious word.
func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 && invalid[0].Field() == "Username" {
			return fmt.Errorf("%w: %v", errors.ErrInvalidUsername, err)
		}
		return fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}
	if strings.TrimSpace(req.Username) != req.Username {
		return fmt.Errorf("%w: surrounding whitespace", errors.ErrInvalidUsername)
	}

	if !isPasswordAcceptable(req.Username, req.Password) {
		return errors.ErrInvalidPassword
	}
	return nil
}

func isPasswordAcceptable(username, password string) bool {
	if strings.ContainsAny(password, " \t\n\r") {
		return false
	}
	lower := strings.ToLower(password)
	if strings.Contains(lower, strings.ToLower(username)) {
		return false
	}
	for _, word := range forbiddenWords {
		if strings.Contains(lower, word) {
			return false
		}
	}
	return true
}
