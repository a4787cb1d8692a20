package nexus

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spicery/nexus-reader/pkg/matrix"
)

// applyEquates replaces every character that has an equate by its value.
func (b *CharactersBlock) applyEquates(raw string) string {
	if len(b.equates) == 0 {
		return raw
	}
	var sb strings.Builder
	for _, r := range raw {
		if v, ok := b.equates[r]; ok {
			sb.WriteString(v)
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (b *CharactersBlock) isSpecial(r, special rune) bool {
	return special != 0 && b.sameSymbol(r, special)
}

// decodeState turns the text of one matrix entry into a cell. row and char
// are 0-based.
func (b *CharactersBlock) decodeState(raw string, row, char int) (matrix.Cell, error) {
	text := b.applyEquates(raw)
	if text == "" {
		return matrix.Cell{}, b.errorf("attempt to set state to Gap without using the Gap symbol, for taxon %d, character %d", row+1, char+1)
	}

	if utf8.RuneCountInString(text) == 1 {
		r, _ := utf8.DecodeRuneInString(text)
		return b.decodeSingle(r, row, char)
	}

	kind := matrix.Polymorphic
	open, closer := "(", ")"
	interior := text
	switch {
	case strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")"):
		interior = text[1 : len(text)-1]
	case strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}"):
		kind = matrix.Uncertain
		open, closer = "{", "}"
		interior = text[1 : len(text)-1]
	}

	symbols, err := b.expandStateList(interior, row, char)
	if err != nil {
		return matrix.Cell{}, err
	}
	return matrix.Cell{State: open + symbols + closer, Kind: kind}, nil
}

func (b *CharactersBlock) decodeSingle(r rune, row, char int) (matrix.Cell, error) {
	switch {
	case b.isSpecial(r, b.missing):
		return matrix.Cell{State: string(b.missing), Kind: matrix.Missing}, nil
	case b.isSpecial(r, b.matchchar):
		return b.matchedCell(row, char)
	case b.isSpecial(r, b.gap):
		return matrix.Cell{State: string(b.gap), Kind: matrix.Gap}, nil
	}
	i, ok := b.lookupSymbol(r)
	if !ok {
		return matrix.Cell{}, b.errorf("state '%c' not found in list of valid symbols, for taxon %d, character %d", r, row+1, char+1)
	}
	return matrix.Cell{State: string(b.alphabet[i]), Kind: matrix.Single}, nil
}

// matchedCell copies the state of the first row for a MATCHCHAR entry.
func (b *CharactersBlock) matchedCell(row, char int) (matrix.Cell, error) {
	if row == 0 {
		return matrix.Cell{}, b.errorf("the MATCHCHAR symbol '%c' cannot be used in the first row of the matrix, for character %d", b.matchchar, char+1)
	}
	firstID := b.taxa.TaxonID(b.taxonPos[0])
	first, ok := b.Cell(firstID, b.chars[char].ID)
	if !ok {
		return matrix.Cell{}, b.errorf("no state in the first row to match, for taxon %d, character %d", row+1, char+1)
	}
	return matrix.Cell{State: first.State, Kind: matrix.MatchChar}, nil
}

// expandStateList validates the symbols of a polymorphic or uncertain state
// and expands a~d ranges in symbol order.
func (b *CharactersBlock) expandStateList(interior string, row, char int) (string, error) {
	var indices []int
	seen := make(map[int]bool)
	add := func(i int) {
		if !seen[i] {
			seen[i] = true
			indices = append(indices, i)
		}
	}

	runes := []rune(interior)
	for k := 0; k < len(runes); k++ {
		r := runes[k]
		switch {
		case isBlank(r) || r == ',' || strings.ContainsRune("(){}", r):
			continue
		case b.isSpecial(r, b.missing) || b.isSpecial(r, b.gap) || b.isSpecial(r, b.matchchar):
			return "", b.errorf("the MISSING, GAP or MATCHCHAR symbol '%c' cannot appear inside a polymorphic or uncertain state, for taxon %d, character %d", r, row+1, char+1)
		case r == '~':
			if len(indices) == 0 {
				return "", b.errorf("a state range must not begin with '~', for taxon %d, character %d", row+1, char+1)
			}
			k++
			for k < len(runes) && isBlank(runes[k]) {
				k++
			}
			if k >= len(runes) {
				return "", b.errorf("a state range must not end with '~', for taxon %d, character %d", row+1, char+1)
			}
			hi, ok := b.lookupSymbol(runes[k])
			if !ok {
				return "", b.errorf("state '%c' not found in list of valid symbols, for taxon %d, character %d", runes[k], row+1, char+1)
			}
			lo := indices[len(indices)-1]
			if hi < lo {
				return "", b.errorf("state range %c~%c runs backwards, for taxon %d, character %d", b.alphabet[lo], b.alphabet[hi], row+1, char+1)
			}
			for i := lo + 1; i <= hi; i++ {
				add(i)
			}
		default:
			i, ok := b.lookupSymbol(r)
			if !ok {
				return "", b.errorf("state '%c' not found in list of valid symbols, for taxon %d, character %d", r, row+1, char+1)
			}
			add(i)
		}
	}
	if len(indices) == 0 {
		return "", b.errorf("empty polymorphic or uncertain state, for taxon %d, character %d", row+1, char+1)
	}

	var sb strings.Builder
	for _, i := range indices {
		sb.WriteRune(b.alphabet[i])
	}
	return sb.String(), nil
}

// decodeToken turns a whole-word TOKENS entry into a cell. Continuous data
// takes numbers; discrete data takes state names or symbols.
func (b *CharactersBlock) decodeToken(raw string, row, char int) (matrix.Cell, error) {
	if raw == "" {
		return matrix.Cell{}, b.errorf("attempt to set state to Gap without using the Gap symbol, for taxon %d, character %d", row+1, char+1)
	}
	if utf8.RuneCountInString(raw) == 1 {
		r, _ := utf8.DecodeRuneInString(raw)
		if b.isSpecial(r, b.missing) || b.isSpecial(r, b.gap) || b.isSpecial(r, b.matchchar) {
			return b.decodeSingle(r, row, char)
		}
	}
	if b.datatype == Continuous {
		return b.decodeContinuous(raw, row, char)
	}

	kind := matrix.Polymorphic
	open, closer := "(", ")"
	interior := ""
	switch {
	case strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")"):
		interior = raw[1 : len(raw)-1]
	case strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}"):
		kind = matrix.Uncertain
		open, closer = "{", "}"
		interior = raw[1 : len(raw)-1]
	default:
		sym, err := b.stateSymbol(raw, row, char)
		if err != nil {
			return matrix.Cell{}, err
		}
		return matrix.Cell{State: sym, Kind: matrix.Single}, nil
	}

	var sb strings.Builder
	for _, name := range strings.FieldsFunc(interior, func(r rune) bool { return isBlank(r) || r == ',' }) {
		sym, err := b.stateSymbol(name, row, char)
		if err != nil {
			return matrix.Cell{}, err
		}
		sb.WriteString(sym)
	}
	if sb.Len() == 0 {
		return matrix.Cell{}, b.errorf("empty polymorphic or uncertain state, for taxon %d, character %d", row+1, char+1)
	}
	return matrix.Cell{State: open + sb.String() + closer, Kind: kind}, nil
}

// stateSymbol resolves a state name, or a bare symbol, to its symbol.
func (b *CharactersBlock) stateSymbol(name string, row, char int) (string, error) {
	c := &b.chars[char]
	if s, ok := c.StateNamed(name); ok {
		return s.Symbol, nil
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		if i, ok := b.lookupSymbol(r); ok {
			return string(b.alphabet[i]), nil
		}
	}
	return "", b.errorf("'%s' is not a state of character '%s', for taxon %d, character %d", name, c.Name, row+1, char+1)
}

// decodeContinuous reads a number, or a parenthesised list of numbers when
// several ITEMS are given.
func (b *CharactersBlock) decodeContinuous(raw string, row, char int) (matrix.Cell, error) {
	fields := []string{raw}
	list := strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")")
	if list {
		fields = strings.Fields(raw[1 : len(raw)-1])
		if len(fields) == 0 {
			return matrix.Cell{}, b.errorf("empty list of values, for taxon %d, character %d", row+1, char+1)
		}
	}
	for _, f := range fields {
		if f == string(b.missing) {
			continue
		}
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			return matrix.Cell{}, b.errorf("'%s' is not a valid number, for taxon %d, character %d", f, row+1, char+1)
		}
	}
	state := raw
	if list {
		state = "(" + strings.Join(fields, " ") + ")"
	}
	return matrix.Cell{State: state, Kind: matrix.Single}, nil
}
