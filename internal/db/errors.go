package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors, checked with errors.Is.
var (
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict means SurrealDB aborted a concurrent transaction. Retryable.
	ErrTransactionConflict = errors.New("transaction conflict")

	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict means a compare-and-swap lost against another writer.
	// Reload the record and retry.
	ErrVersionConflict = errors.New("version conflict")
)

// queryErrorPatterns maps SurrealDB query error messages onto sentinels.
var queryErrorPatterns = []struct {
	substr   string
	sentinel error
}{
	{"already exists", ErrAlreadyExists},
	{"Transaction conflict", ErrTransactionConflict},
	{"Resource busy", ErrTransactionConflict},
}

// wrapQueryError attaches the matching sentinel to a SurrealDB query error.
// Other errors are returned unchanged.
func wrapQueryError(err error) error {
	var queryErr *surrealdb.QueryError
	if !errors.As(err, &queryErr) {
		return err
	}
	for _, p := range queryErrorPatterns {
		if strings.Contains(queryErr.Message, p.substr) {
			return fmt.Errorf("%w: %s", p.sentinel, queryErr.Message)
		}
	}
	return err
}
