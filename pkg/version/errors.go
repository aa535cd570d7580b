package version

import (
	"fmt"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
)

// ParseError reports malformed version, range or requirement text.
// Offset is the byte position of Text within Input.
type ParseError struct {
	Input  string
	Offset int
	Text   string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("%s at offset %d in %q", e.Reason, e.Offset, e.Input)
	}
	return fmt.Sprintf("%s: %q at offset %d in %q", e.Reason, e.Text, e.Offset, e.Input)
}

// Code classifies the error for [rerrors.Is].
func (e *ParseError) Code() rerrors.Code { return rerrors.ErrCodeParse }

