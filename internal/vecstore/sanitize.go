package vecstore

import (
	"fmt"
	"strings"

	"github.com/reviewhound/dupindex/pkg/types"
)

// Every filter predicate that embeds a caller-controlled string passes
// through this boundary before any query executes. Queries are
// parameterized, but the sanitizer is enforced regardless: a malformed
// id is a caller bug that must surface synchronously, not reach the
// database in any form.

// ValidateFunctionID rejects any id not matching ^[a-f0-9]{16}$.
// Invalid ids are rejected, never coerced.
func ValidateFunctionID(id string) error {
	if !types.FunctionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", types.ErrInvalidFunctionID, id)
	}
	return nil
}

// EscapePath doubles single quotes in a file path literal. Every path
// filter in this package binds the path as a query parameter, which
// needs no escaping; this is the required sanitizer for any predicate
// that ever has to inline a path into SQL text instead.
func EscapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}

// validateColumn restricts vector-column selection to the allow-list
func validateColumn(column string) error {
	switch column {
	case ColumnCode, ColumnNLP:
		return nil
	default:
		return fmt.Errorf("invalid vector column %q", column)
	}
}
