package tokenizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Options are one-shot flags that change how the next token is read. They
// apply to a single call of Next or Peek only.
type Options uint16

const (
	// NewlineIsToken returns a bare newline as its own token (with EOL set).
	NewlineIsToken Options = 1 << iota
	// PreserveUnderscores keeps '_' instead of converting it to a space.
	PreserveUnderscores
	// SaveCommandComments returns the body of a [&...] comment as token text.
	SaveCommandComments
	// ParentheticalToken reads a balanced (...) span as one token.
	ParentheticalToken
	// CurlyBracketedToken reads a balanced {...} span as one token.
	CurlyBracketedToken
	// DoubleQuotedToken reads "..." as one token, without the quotes.
	DoubleQuotedToken
	// SingleCharacterToken returns exactly one non-whitespace character.
	SingleCharacterToken
)

// Has reports whether all flags in o2 are set in o.
func (o Options) Has(o2 Options) bool {
	return o&o2 == o2
}

// Position represents a location in the source file.
type Position struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Col    int `json:"col"`
}

// String renders the position the way diagnostics quote it.
func (p Position) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Col)
}

// Token represents the current lexical unit of a NEXUS file.
type Token struct {
	Text   string   `json:"text"`
	Pos    Position `json:"pos"`
	EOF    bool     `json:"eof,omitempty"`
	EOL    bool     `json:"eol,omitempty"`
	Quoted bool     `json:"quoted,omitempty"` // Read from a '...' or "..." quotation
}

// Upper returns the default, upper-cased view of the token text.
func (tk Token) Upper() string {
	return strings.ToUpper(tk.Text)
}

// Get returns the token text, upper-cased unless respectCase is set.
func (tk Token) Get(respectCase bool) string {
	if respectCase {
		return tk.Text
	}
	return tk.Upper()
}

// Equals compares the token text with s, ignoring case.
func (tk Token) Equals(s string) bool {
	return strings.EqualFold(tk.Text, s)
}

// IsPunct reports whether the token is the single punctuation character c.
// Quoted tokens never count as punctuation.
func (tk Token) IsPunct(c rune) bool {
	return !tk.Quoted && len(tk.Text) == 1 && rune(tk.Text[0]) == c
}

// MarshalJSON renders EOL tokens with a visible text. Token text is written
// verbatim, without HTML escaping of '&', '<' and '>'.
func (tk Token) MarshalJSON() ([]byte, error) {
	type plain Token
	p := plain(tk)
	if tk.EOL {
		p.Text = `\n`
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
