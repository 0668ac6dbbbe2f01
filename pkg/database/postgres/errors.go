package pg

import (
	"database/sql"

	"github.com/pkg/errors"
)

// CheckNoRows maps sql.ErrNoRows to outErr, leaving any other error as is.
func CheckNoRows(inErr, outErr error) error {
	if IsNoRows(inErr) {
		return outErr
	}
	return inErr
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
