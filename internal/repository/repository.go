package repository

import (
	"errors"

	"github.com/lib/pq"
)

// isUniqueViolation reports whether the error is a Postgres unique constraint
// violation (SQLSTATE 23505). Callers translate it into the business error
// that matches the violated constraint.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
