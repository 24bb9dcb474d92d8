package repositories

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pqUniqueViolation = "23505"

// uniqueViolation reports whether err is a unique constraint violation and,
// when the driver exposes it, which constraint or column was hit.
func uniqueViolation(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) == pqUniqueViolation {
			return true, pqErr.Constraint + " " + pqErr.Message
		}
		return false, ""
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true, ""
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value") {
		return true, msg
	}
	return false, ""
}
