package cohort

import (
	"fmt"
	"strings"
)

// SchemaError reports a required column missing from a source table.
type SchemaError struct {
	Table     string
	Column    string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("column %q not found in %s (columns: %s)", e.Column, e.Table, strings.Join(e.Available, ", "))
}

// DuplicateKeyError reports keys that occur more than once in a join column.
type DuplicateKeyError struct {
	Table  string
	Column string
	Keys   []string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate %s values in %s: %s", e.Column, e.Table, strings.Join(e.Keys, ", "))
}
