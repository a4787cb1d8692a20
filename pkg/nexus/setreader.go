package nexus

import (
	"slices"
	"strconv"

	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

// IndexSet is a set of 0-based indices.
type IndexSet map[int]bool

// Sorted returns the members in increasing order.
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// LabelResolver maps a label to a 1-based number. The bool is false when the
// label is unknown.
type LabelResolver func(label string) (int, bool)

// SetReader parses one NEXUS set expression such as "1-3 5 7-.\2" up to a
// terminating ';' or ','.
type SetReader struct {
	tok     *tokenizer.Tokenizer
	limit   int
	resolve LabelResolver
	Set     IndexSet
}

// NewSetReader creates a set reader for values in 1..limit. resolve may be
// nil when the set has no labels.
func NewSetReader(tok *tokenizer.Tokenizer, limit int, resolve LabelResolver) *SetReader {
	return &SetReader{
		tok:     tok,
		limit:   limit,
		resolve: resolve,
		Set:     make(IndexSet),
	}
}

// Run reads the set expression. atSemicolon is true if the set ended with
// ';' and false if it ended with ','.
func (sr *SetReader) Run() (atSemicolon bool, err error) {
	for {
		tk, err := sr.next()
		if err != nil {
			return false, err
		}
		switch {
		case tk.IsPunct(';'):
			return true, nil
		case tk.IsPunct(','):
			return false, nil
		case !tk.Quoted && tk.Equals("ALL"):
			if err := sr.addRange(1, sr.limit, 1); err != nil {
				return false, err
			}
			continue
		}

		first, err := sr.value(tk)
		if err != nil {
			return false, err
		}
		last := first
		if peeked, err := sr.tok.Peek(0); err != nil {
			return false, err
		} else if peeked.IsPunct('-') {
			if err := sr.tok.Next(0); err != nil {
				return false, err
			}
			tk, err := sr.next()
			if err != nil {
				return false, err
			}
			if last, err = sr.value(tk); err != nil {
				return false, err
			}
		}
		modulus := 1
		if peeked, err := sr.tok.Peek(0); err != nil {
			return false, err
		} else if peeked.IsPunct('\\') {
			if err := sr.tok.Next(0); err != nil {
				return false, err
			}
			tk, err := sr.next()
			if err != nil {
				return false, err
			}
			n, convErr := strconv.Atoi(tk.Text)
			if convErr != nil || n <= 0 {
				return false, sr.tok.Errorf("modulus must be a number greater than 0, but found '%s' instead", tk.Text)
			}
			modulus = n
		}
		if err := sr.addRange(first, last, modulus); err != nil {
			return false, err
		}
	}
}

func (sr *SetReader) next() (tokenizer.Token, error) {
	if err := sr.tok.Next(0); err != nil {
		return tokenizer.Token{}, err
	}
	tk := sr.tok.Token()
	if tk.EOF {
		return tk, sr.tok.Errorf("unexpected end of file in set expression")
	}
	return tk, nil
}

// value interprets a number, '.' or a label.
func (sr *SetReader) value(tk tokenizer.Token) (int, error) {
	if !tk.Quoted {
		if tk.Text == "." {
			return sr.limit, nil
		}
		if n, err := strconv.Atoi(tk.Text); err == nil {
			return n, nil
		}
	}
	if sr.resolve != nil {
		if n, ok := sr.resolve(tk.Text); ok {
			return n, nil
		}
	}
	return 0, sr.tok.Errorf("'%s' is neither a number nor a known label", tk.Text)
}

func (sr *SetReader) addRange(first, last, modulus int) error {
	if first < 1 || first > last || last > sr.limit {
		if first == last {
			return sr.tok.Errorf("set member %d is out of range (1-%d)", first, sr.limit)
		}
		return sr.tok.Errorf("set range %d-%d is invalid (1-%d)", first, last, sr.limit)
	}
	for i := first; i <= last; i += modulus {
		sr.Set[i-1] = true
	}
	return nil
}
