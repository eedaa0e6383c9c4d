package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/store"
	"github.com/surrealdb/surrealdb.go"
)

// ErrTransactionConflict indicates concurrent writers touched the same records.
var ErrTransactionConflict = errors.New("transaction conflict")

// wrapQueryError maps known SurrealDB query errors onto sentinels and wraps
// the result as a *store.Error for op.
func wrapQueryError(op string, err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		switch {
		case strings.Contains(msg, "not found"):
			err = fmt.Errorf("%w: %s", store.ErrNotFound, msg)
		case strings.Contains(msg, "Transaction conflict"):
			err = fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}
	return store.Wrap(op, err)
}
