package parser

import (
	"errors"
	"fmt"
)

// ErrSignatureMismatch reports that the bytes at the candidate offset are not
// this format after all. Dispatch moves on to the next candidate silently.
var ErrSignatureMismatch = errors.New("signature mismatch")

// StructuralError reports that the data looked like the format but violated one
// of its structural rules (bad field, truncated data, range outside the stream).
type StructuralError struct {
	Parser string
	Offset int64
	Reason string
}

func (e *StructuralError) Error() string {
	switch {
	case e.Parser != "":
		return fmt.Sprintf("%s at 0x%x: %s", e.Parser, e.Offset, e.Reason)
	default:
		return fmt.Sprintf("structural violation at 0x%x: %s", e.Offset, e.Reason)
	}
}

// IOError wraps a failure of the underlying storage. It aborts processing of
// the current file.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Mismatch returns ErrSignatureMismatch annotated with a short detail.
func Mismatch(detail string) error {
	return fmt.Errorf("%w: %s", ErrSignatureMismatch, detail)
}

// Violation builds a StructuralError without parser attribution; dispatch fills
// in the parser name and candidate offset.
func Violation(format string, args ...any) error {
	return &StructuralError{Reason: fmt.Sprintf(format, args...)}
}

// Check returns a StructuralError carrying reason when cond is false.
func Check(cond bool, reason string) error {
	if cond {
		return nil
	}
	return &StructuralError{Reason: reason}
}

// IsStructural reports whether err is, or wraps, a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsIO reports whether err is, or wraps, an IOError.
func IsIO(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}

// Attribute fills in the parser name and offset of a StructuralError that was
// raised without them. Other errors are returned unchanged.
func Attribute(err error, parser string, offset int64) error {
	var se *StructuralError
	if !errors.As(err, &se) {
		return err
	}
	if se.Parser == "" {
		se.Parser = parser
		se.Offset = offset
	}
	return err
}

// Classify converts an error returned by a decoder into the engine taxonomy:
// storage failures stay IOErrors, anything else becomes a StructuralError.
func Classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if IsIO(err) || IsStructural(err) || errors.Is(err, ErrSignatureMismatch) {
		return err
	}
	return &StructuralError{Reason: fmt.Sprintf("%s: %v", what, err)}
}
