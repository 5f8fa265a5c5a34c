package model

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrQuotaExceeded is returned when the matrix-duration service rejects a
// call for exceeding its usage quota. It is never retried.
var ErrQuotaExceeded = eris.New("matrix service quota exceeded")

// ErrShape is returned when a service or model answers with a matrix whose
// dimensions do not match the request.
var ErrShape = eris.New("unexpected matrix shape")

// SchemaError reports required columns absent from a table.
type SchemaError struct {
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema mismatch in %s: missing columns [%s]", e.Table, strings.Join(e.Missing, ", "))
}
