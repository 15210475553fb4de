package postgres

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/caja-pos/internal/domain/poserr"
)

// remote turns a failed stored function call into a RemoteOperationError.
// Messages raised by the function reach the operator unchanged.
func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &poserr.RemoteOperationError{Op: op, Message: pgErr.Message, Err: err}
	}
	return poserr.Remote(op, err)
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
