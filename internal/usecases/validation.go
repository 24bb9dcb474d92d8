package usecases

import (
	"regexp"
	"strings"

	domainerrors "newsletter.backend/internal/domain/errors"
)

const maxEmailLength = 255

var emailPattern = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// NormalizeEmail trims email and checks it against the accepted address
// pattern.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", domainerrors.ErrEmailRequired
	}
	if len(email) > maxEmailLength || !emailPattern.MatchString(email) {
		return "", domainerrors.ErrInvalidEmail
	}
	return email, nil
}
