package bunstore

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isDuplicateKey(err error) bool {
	return pgCode(err) == uniqueViolation
}

// pgCode extracts the SQLSTATE code from a pgdriver error, or "" when err
// is not one.
func pgCode(err error) string {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return ""
	}
	return pgErr.Field('C')
}
