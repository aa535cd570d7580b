package manifest

import (
	"fmt"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
)

// Fixed reasons of structural and assignment errors. Bracket errors carry
// formatted reasons naming the bracket.
const (
	ReasonUnterminatedString = "unterminated string"
	ReasonUnexpectedIndent   = "unexpected indentation"
	ReasonMissingValue       = "missing value"
)

// ParseError reports a problem at a byte offset of a manifest.
// Structural errors come from the bracket/quote scan; Field is set when the
// problem lies in the value of an assignment.
type ParseError struct {
	Field      string
	Offset     int
	End        int
	Reason     string
	Structural bool
	Err        error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Field == "" {
		return fmt.Sprintf("offset %d: %s", e.Offset, msg)
	}
	return fmt.Sprintf("field %q at offset %d: %s", e.Field, e.Offset, msg)
}

// Unwrap returns the underlying version or requirement error, if any.
func (e *ParseError) Unwrap() error { return e.Err }

// Code classifies the error for [rerrors.Is].
func (e *ParseError) Code() rerrors.Code { return rerrors.ErrCodeParse }

