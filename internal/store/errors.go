package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jw6ventures/foodlog/internal/supabase"
)

// PersistenceError reports a table operation the store rejected. Message is the
// backend's own wording.
type PersistenceError struct {
	Op      string
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Message: backendMessage(err), Err: err}
}

func backendMessage(err error) string {
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	return err.Error()
}
