package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// punctuation is the NEXUS reserved punctuation set. These characters never
// become part of an unquoted word.
const punctuation = "()[]{}/\\,;:=*'\"`+-<>"

// Tokenizer reads NEXUS tokens from an in-memory file.
type Tokenizer struct {
	input    string
	position int
	line     int
	column   int

	// A character read ahead that ended the previous token.
	saved    rune
	savedPos Position
	hasSaved bool

	token          Token
	outputComments []string
	markStack      []scanState // Stack of saved scanner states for Peek
}

type scanState struct {
	position, line, column int
	saved                  rune
	savedPos               Position
	hasSaved               bool
	token                  Token
	ncomments              int
}

// New creates a tokenizer over the complete file contents.
func New(input string) *Tokenizer {
	return &Tokenizer{
		input:  input,
		line:   1,
		column: 1,
	}
}

// IsPunctuation reports whether r is one of the NEXUS punctuation characters.
func IsPunctuation(r rune) bool {
	return strings.ContainsRune(punctuation, r)
}

// IsWhitespace reports whether r separates NEXUS tokens.
func IsWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == 0
}

// Token returns the most recently read token.
func (t *Tokenizer) Token() Token {
	return t.token
}

// OutputComments returns and clears the [!...] comments seen so far.
func (t *Tokenizer) OutputComments() []string {
	comments := t.outputComments
	t.outputComments = nil
	return comments
}

// Errorf creates a diagnostic positioned at the current token.
func (t *Tokenizer) Errorf(format string, args ...any) *Error {
	return NewError(t.token.Pos, format, args...)
}

// Tokenize reads every remaining token with the given options.
func (t *Tokenizer) Tokenize(opts Options) ([]Token, error) {
	var tokens []Token
	for {
		if err := t.Next(opts); err != nil {
			return tokens, err
		}
		if t.token.EOF {
			return tokens, nil
		}
		tokens = append(tokens, t.token)
	}
}

// Peek reads the next token without consuming it.
func (t *Tokenizer) Peek(opts Options) (Token, error) {
	t.markPosition()
	err := t.Next(opts)
	tok := t.token
	t.resetPosition()
	return tok, err
}

// Next advances to the next token. It fails only on malformed comments or
// quotations; at the end of the input it produces a token with EOF set.
func (t *Tokenizer) Next(opts Options) error {
	t.token = Token{}
	var text strings.Builder
	started := false

	appendRune := func(r rune, pos Position) {
		if !started {
			t.token.Pos = pos
			started = true
		}
		text.WriteRune(r)
	}

scan:
	for {
		r, pos, ok := t.consume()
		if !ok {
			if !started {
				t.token.EOF = true
				t.token.Pos = pos
			}
			break
		}

		switch {
		case r == '\n' && opts.Has(NewlineIsToken):
			if started {
				t.save(r, pos)
				break scan
			}
			t.token = Token{Text: "\n", Pos: pos, EOL: true}
			return nil

		case IsWhitespace(r):
			if started {
				break scan
			}

		case r == '[':
			body, err := t.readComment(pos)
			if err != nil {
				return err
			}
			if strings.HasPrefix(body, "!") {
				t.outputComments = append(t.outputComments, body[1:])
				continue
			}
			if strings.HasPrefix(body, "&") && opts.Has(SaveCommandComments) {
				if !started {
					t.token.Pos = pos
				}
				text.WriteString(body)
				started = true
				break scan
			}

		case (r == '(' && opts.Has(ParentheticalToken)) || (r == '{' && opts.Has(CurlyBracketedToken)):
			if started {
				t.save(r, pos)
				break scan
			}
			s, err := t.readBalanced(r, pos)
			if err != nil {
				return err
			}
			t.token = Token{Text: s, Pos: pos}
			return nil

		case r == '"' && opts.Has(DoubleQuotedToken):
			if started {
				t.save(r, pos)
				break scan
			}
			s, err := t.readDoubleQuoted(pos)
			if err != nil {
				return err
			}
			t.token = Token{Text: s, Pos: pos, Quoted: true}
			return nil

		case opts.Has(SingleCharacterToken):
			t.token = Token{Text: string(r), Pos: pos}
			return nil

		case r == '\'':
			if started {
				t.save(r, pos)
				break scan
			}
			s, err := t.readQuoted(pos)
			if err != nil {
				return err
			}
			t.token = Token{Text: s, Pos: pos, Quoted: true}
			return nil

		case IsPunctuation(r):
			if started {
				t.save(r, pos)
				break scan
			}
			t.token = Token{Text: string(r), Pos: pos}
			return nil

		case r == '_' && !opts.Has(PreserveUnderscores):
			appendRune(' ', pos)

		default:
			appendRune(r, pos)
		}
	}

	t.token.Text = text.String()
	return nil
}

// readComment reads the body of a comment whose '[' has been consumed.
// Comments nest.
func (t *Tokenizer) readComment(start Position) (string, error) {
	var body strings.Builder
	depth := 1
	for {
		r, _, ok := t.consume()
		if !ok {
			return "", NewError(start, "unterminated comment")
		}
		switch r {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return body.String(), nil
			}
		}
		body.WriteRune(r)
	}
}

// readBalanced reads a (...) or {...} span, brackets included.
func (t *Tokenizer) readBalanced(open rune, start Position) (string, error) {
	closer := ')'
	if open == '{' {
		closer = '}'
	}
	var text strings.Builder
	text.WriteRune(open)
	depth := 1
	for {
		r, _, ok := t.consume()
		if !ok {
			return "", NewError(start, "unmatched '%c'", open)
		}
		text.WriteRune(r)
		switch r {
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text.String(), nil
			}
		}
	}
}

// readDoubleQuoted reads up to the closing '"'. There is no escaping.
func (t *Tokenizer) readDoubleQuoted(start Position) (string, error) {
	var text strings.Builder
	for {
		r, _, ok := t.consume()
		if !ok {
			return "", NewError(start, "unterminated double-quoted token")
		}
		if r == '"' {
			return text.String(), nil
		}
		text.WriteRune(r)
	}
}

// readQuoted reads a NEXUS quoted word. A doubled quote stands for a single
// literal quote.
func (t *Tokenizer) readQuoted(start Position) (string, error) {
	var text strings.Builder
	for {
		r, _, ok := t.consume()
		if !ok {
			return "", NewError(start, "unmatched single quote")
		}
		if r == '\'' {
			if next, ok := t.peek(); ok && next == '\'' {
				t.consume()
				text.WriteRune('\'')
				continue
			}
			return text.String(), nil
		}
		text.WriteRune(r)
	}
}

// here returns the position of the next unread character.
func (t *Tokenizer) here() Position {
	return Position{Offset: t.position, Line: t.line, Col: t.column}
}

func (t *Tokenizer) save(r rune, pos Position) {
	t.saved = r
	t.savedPos = pos
	t.hasSaved = true
}

// consume reads one character, normalising CR, LF and CRLF to '\n'.
func (t *Tokenizer) consume() (rune, Position, bool) {
	if t.hasSaved {
		t.hasSaved = false
		return t.saved, t.savedPos, true
	}
	pos := t.here()
	if t.position >= len(t.input) {
		return 0, pos, false
	}
	r, size := utf8.DecodeRuneInString(t.input[t.position:])
	t.position += size
	switch r {
	case '\r':
		if t.position < len(t.input) && t.input[t.position] == '\n' {
			t.position++
		}
		r = '\n'
		t.line++
		t.column = 1
	case '\n':
		t.line++
		t.column = 1
	default:
		t.column++
	}
	return r, pos, true
}

// peek returns the next raw character without consuming it.
func (t *Tokenizer) peek() (rune, bool) {
	if t.hasSaved {
		return t.saved, true
	}
	if t.position >= len(t.input) {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(t.input[t.position:])
	return r, true
}

func (t *Tokenizer) markPosition() {
	t.markStack = append(t.markStack, scanState{
		position:  t.position,
		line:      t.line,
		column:    t.column,
		saved:     t.saved,
		savedPos:  t.savedPos,
		hasSaved:  t.hasSaved,
		token:     t.token,
		ncomments: len(t.outputComments),
	})
}

// resetPosition restores the last marked scanner state.
func (t *Tokenizer) resetPosition() {
	if len(t.markStack) == 0 {
		return
	}
	n1 := len(t.markStack) - 1
	s := t.markStack[n1]
	t.markStack = t.markStack[:n1]
	t.position, t.line, t.column = s.position, s.line, s.column
	t.saved, t.savedPos, t.hasSaved = s.saved, s.savedPos, s.hasSaved
	t.token = s.token
	if len(t.outputComments) > s.ncomments {
		t.outputComments = t.outputComments[:s.ncomments]
	}
}
