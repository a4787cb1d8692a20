package tokenizer

import "fmt"

// Error is a parse diagnostic. Every lexical, grammar and semantic failure
// of the reader is reported with this type.
type Error struct {
	Message string   `json:"message"`
	Pos     Position `json:"pos"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at line %d, column %d", e.Message, e.Pos.Line, e.Pos.Col)
}

// NewError creates a diagnostic for the given position.
func NewError(pos Position, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Pos: pos}
}
