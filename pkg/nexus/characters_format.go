package nexus

import (
	"log/slog"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

// formatState tracks subcommand ordering within one FORMAT command.
type formatState struct {
	standardOnly bool // SYMBOLS, EQUATE, ITEMS or STATESFORMAT seen
	caseFixed    bool // MISSING, GAP, SYMBOLS or MATCHCHAR seen
}

var continuousItems = []string{"AVERAGE", "MIN", "MAX", "MEDIAN", "VARIANCE", "STDERROR", "SAMPLESIZE", "STATES"}

// handleFormat reads the FORMAT subcommands and then checks the combination.
func (b *CharactersBlock) handleFormat() error {
	var fs formatState
	for {
		tk, err := b.nextInCommand(0, "FORMAT")
		if err != nil {
			return err
		}
		if tk.IsPunct(';') {
			break
		}
		if err := b.handleFormatSubcommand(tk, &fs); err != nil {
			return err
		}
	}
	return b.checkFormat()
}

func (b *CharactersBlock) handleFormatSubcommand(tk tokenizer.Token, fs *formatState) error {
	switch {
	case tk.Equals("DATATYPE"):
		return b.formatDatatype(fs)
	case tk.Equals("RESPECTCASE"):
		if fs.caseFixed {
			return b.errorf("RESPECTCASE must precede MISSING, GAP, SYMBOLS and MATCHCHAR in the FORMAT command")
		}
		b.respectCase = true
	case tk.Equals("MISSING"):
		r, err := b.formatSpecialChar("MISSING", fs)
		if err != nil {
			return err
		}
		b.missing = r
	case tk.Equals("GAP"):
		r, err := b.formatSpecialChar("GAP", fs)
		if err != nil {
			return err
		}
		b.gap = r
	case tk.Equals("MATCHCHAR"):
		r, err := b.formatSpecialChar("MATCHCHAR", fs)
		if err != nil {
			return err
		}
		b.matchchar = r
	case tk.Equals("SYMBOLS"):
		return b.formatSymbols(fs)
	case tk.Equals("EQUATE"):
		return b.formatEquate(fs)
	case tk.Equals("LABELS"):
		b.labels = true
	case tk.Equals("NOLABELS"):
		b.labels = false
	case tk.Equals("TRANSPOSE"):
		v, err := b.formatOptionalYesNo("TRANSPOSE")
		if err != nil {
			return err
		}
		b.transposed = v
	case tk.Equals("INTERLEAVE"):
		v, err := b.formatOptionalYesNo("INTERLEAVE")
		if err != nil {
			return err
		}
		b.interleaved = v
	case tk.Equals("ITEMS"):
		return b.formatItems(fs)
	case tk.Equals("STATESFORMAT"):
		return b.formatStatesFormat(fs)
	case tk.Equals("TOKENS"):
		b.tokens = true
	case tk.Equals("NOTOKENS"):
		b.tokens = false
	default:
		return b.skipFormatSubcommand(tk)
	}
	b.logger.Debug("format", slog.String("subcommand", tk.Upper()))
	return nil
}

func (b *CharactersBlock) formatDatatype(fs *formatState) error {
	if err := b.demandEquals("after DATATYPE in FORMAT command"); err != nil {
		return err
	}
	tk, err := b.nextInCommand(0, "FORMAT")
	if err != nil {
		return err
	}
	d, ok := ParseDatatype(tk.Text)
	if !ok {
		return b.errorf("'%s' is not a valid DATATYPE", tk.Text)
	}
	if fs.standardOnly {
		if d != Standard || b.datatype != Standard {
			return b.errorf("DATATYPE must precede SYMBOLS, EQUATE, ITEMS and STATESFORMAT in the FORMAT command")
		}
	} else {
		b.setDatatype(d)
	}
	if d == Continuous {
		b.statesFormat = "INDIVIDUALS"
	}
	b.logger.Debug("format", slog.String("datatype", d.String()))
	return nil
}

// formatSpecialChar reads the single character value of MISSING, GAP or
// MATCHCHAR.
func (b *CharactersBlock) formatSpecialChar(name string, fs *formatState) (rune, error) {
	fs.caseFixed = true
	if err := b.demandEquals("after " + name + " in FORMAT command"); err != nil {
		return 0, err
	}
	tk, err := b.nextInCommand(0, "FORMAT")
	if err != nil {
		return 0, err
	}
	if utf8.RuneCountInString(tk.Text) != 1 {
		return 0, b.errorf("%s must be a single character, but found '%s' instead", name, tk.Text)
	}
	r, _ := utf8.DecodeRuneInString(tk.Text)
	if isBlank(r) || (tokenizer.IsPunctuation(r) && r != '+' && r != '-') {
		return 0, b.errorf("'%c' cannot be used as the %s symbol", r, name)
	}
	b.logger.Debug("format", slog.String(strings.ToLower(name), string(r)))
	return r, nil
}

func isBlank(r rune) bool {
	return tokenizer.IsWhitespace(r) || unicode.IsSpace(r)
}

func (b *CharactersBlock) formatSymbols(fs *formatState) error {
	if b.datatype == Continuous {
		return b.errorf("SYMBOLS is not allowed for CONTINUOUS data")
	}
	fs.standardOnly = true
	fs.caseFixed = true
	if err := b.demandEquals("after SYMBOLS in FORMAT command"); err != nil {
		return err
	}
	tk, err := b.nextInCommand(tokenizer.DoubleQuotedToken, "FORMAT")
	if err != nil {
		return err
	}
	if tk.IsPunct(';') {
		return b.errorf("expecting a list of symbols after SYMBOLS=, but found ';' instead")
	}

	var added []rune
	for _, r := range tk.Text {
		if isBlank(r) {
			continue
		}
		for _, prev := range added {
			if b.sameSymbol(prev, r) {
				return b.errorf("symbol '%c' is listed more than once in SYMBOLS", r)
			}
		}
		added = append(added, r)
	}

	reserved := b.datatype.reservedSymbols()
	if reserved == 0 {
		// STANDARD symbols replace the defaults.
		if len(added) > maxSymbols {
			return b.errorf("too many symbols: at most %d may be defined", maxSymbols)
		}
		b.alphabet = added
	} else {
		for _, r := range added {
			if _, ok := b.lookupSymbol(r); ok {
				return b.errorf("symbol '%c' is already a default symbol for %s data", r, b.datatype)
			}
		}
		if len(added) > maxSymbols-reserved {
			return b.errorf("too many symbols: at most %d may be added for %s data", maxSymbols-reserved, b.datatype)
		}
		b.alphabet = append(b.alphabet, added...)
	}
	b.logger.Debug("format", slog.String("symbols", string(b.alphabet)))
	return nil
}

// formatEquate reads EQUATE="sym=value sym=value ...".
func (b *CharactersBlock) formatEquate(fs *formatState) error {
	if b.datatype == Continuous {
		return b.errorf("EQUATE is not allowed for CONTINUOUS data")
	}
	fs.standardOnly = true
	if err := b.demandEquals("after EQUATE in FORMAT command"); err != nil {
		return err
	}
	tk, err := b.nextInCommand(tokenizer.DoubleQuotedToken, "FORMAT")
	if err != nil {
		return err
	}

	sub := tokenizer.New(tk.Text)
	for {
		if err := sub.Next(tokenizer.PreserveUnderscores); err != nil {
			return b.errorf("malformed EQUATE list: %s", err)
		}
		key := sub.Token()
		if key.EOF {
			break
		}
		if utf8.RuneCountInString(key.Text) != 1 {
			return b.errorf("EQUATE symbol '%s' must be a single character", key.Text)
		}
		sym, _ := utf8.DecodeRuneInString(key.Text)
		if err := b.checkEquateSymbol(sym); err != nil {
			return err
		}
		if err := sub.Next(0); err != nil {
			return b.errorf("malformed EQUATE list: %s", err)
		}
		if eq := sub.Token(); !eq.IsPunct('=') {
			return b.errorf("expecting '=' after EQUATE symbol '%c' but found '%s' instead", sym, eq.Text)
		}
		if err := sub.Next(tokenizer.ParentheticalToken | tokenizer.CurlyBracketedToken); err != nil {
			return b.errorf("malformed EQUATE list: %s", err)
		}
		value := sub.Token()
		if value.EOF || value.Text == "" {
			return b.errorf("EQUATE symbol '%c' has no value", sym)
		}
		b.addEquate(sym, value.Text)
		b.logger.Debug("equate", slog.String("symbol", string(sym)), slog.String("value", value.Text))
	}
	return nil
}

func (b *CharactersBlock) checkEquateSymbol(sym rune) error {
	switch {
	case sym == '^':
		return b.errorf("'^' cannot be used as an EQUATE symbol")
	case tokenizer.IsPunctuation(sym) && sym != '+' && sym != '-':
		return b.errorf("punctuation '%c' cannot be used as an EQUATE symbol", sym)
	case sym == b.missing || sym == b.gap || sym == b.matchchar:
		return b.errorf("the MISSING, GAP or MATCHCHAR symbol '%c' cannot be used as an EQUATE symbol", sym)
	}
	if _, ok := b.lookupSymbol(sym); ok {
		return b.errorf("state symbol '%c' cannot be used as an EQUATE symbol", sym)
	}
	return nil
}

// formatOptionalYesNo reads an optional "= YES" or "= NO" after a flag.
func (b *CharactersBlock) formatOptionalYesNo(name string) (bool, error) {
	peeked, err := b.tok.Peek(0)
	if err != nil {
		return false, err
	}
	if !peeked.IsPunct('=') {
		return true, nil
	}
	if _, err := b.next(0); err != nil {
		return false, err
	}
	tk, err := b.nextInCommand(0, "FORMAT")
	if err != nil {
		return false, err
	}
	switch {
	case tk.Equals("YES"):
		return true, nil
	case tk.Equals("NO"):
		return false, nil
	}
	return false, b.errorf("expecting YES or NO after %s=, but found '%s' instead", name, tk.Text)
}

func (b *CharactersBlock) formatItems(fs *formatState) error {
	fs.standardOnly = true
	if err := b.demandEquals("after ITEMS in FORMAT command"); err != nil {
		return err
	}
	tk, err := b.nextInCommand(tokenizer.ParentheticalToken, "FORMAT")
	if err != nil {
		return err
	}
	var items []string
	if strings.HasPrefix(tk.Text, "(") && !tk.Quoted {
		items = strings.Fields(strings.ToUpper(strings.Trim(tk.Text, "()")))
	} else {
		items = []string{tk.Upper()}
	}
	if b.datatype != Continuous {
		if len(items) != 1 || items[0] != "STATES" {
			return b.errorf("only ITEMS=STATES is supported for discrete data")
		}
	} else {
		for _, it := range items {
			if !slices.Contains(continuousItems, it) {
				return b.errorf("'%s' is not a recognised ITEMS value for CONTINUOUS data", it)
			}
		}
	}
	b.items = items
	b.logger.Debug("format", slog.Any("items", items))
	return nil
}

func (b *CharactersBlock) formatStatesFormat(fs *formatState) error {
	fs.standardOnly = true
	if err := b.demandEquals("after STATESFORMAT in FORMAT command"); err != nil {
		return err
	}
	tk, err := b.nextInCommand(0, "FORMAT")
	if err != nil {
		return err
	}
	value := tk.Upper()
	switch {
	case value == "STATESPRESENT":
	case value == "INDIVIDUALS" && b.datatype == Continuous:
	case b.datatype == Continuous:
		return b.errorf("STATESFORMAT for CONTINUOUS data must be STATESPRESENT or INDIVIDUALS, but found '%s'", tk.Text)
	default:
		return b.errorf("only STATESFORMAT=STATESPRESENT is supported for discrete data, but found '%s'", tk.Text)
	}
	b.statesFormat = value
	return nil
}

// skipFormatSubcommand logs an unknown subcommand and skips an "= value"
// that follows it.
func (b *CharactersBlock) skipFormatSubcommand(tk tokenizer.Token) error {
	b.logger.Info("skipping unknown FORMAT subcommand", slog.String("subcommand", tk.Upper()))
	peeked, err := b.tok.Peek(0)
	if err != nil {
		return err
	}
	if !peeked.IsPunct('=') {
		return nil
	}
	if _, err := b.next(0); err != nil {
		return err
	}
	_, err = b.nextInCommand(tokenizer.DoubleQuotedToken|tokenizer.ParentheticalToken, "FORMAT")
	return err
}

// checkFormat validates the FORMAT settings as a whole.
func (b *CharactersBlock) checkFormat() error {
	if b.datatype == Continuous && !b.tokens {
		return b.errorf("TOKENS must be specified for CONTINUOUS data")
	}
	if b.datatype.isNucleotide() && b.tokens {
		return b.errorf("TOKENS is not allowed for %s data", b.datatype)
	}
	if b.transposed && b.interleaved {
		return b.errorf("TRANSPOSE and INTERLEAVE cannot be combined")
	}
	special := []struct {
		name string
		r    rune
	}{{"MISSING", b.missing}, {"GAP", b.gap}, {"MATCHCHAR", b.matchchar}}
	for i, s := range special {
		if s.r == 0 {
			continue
		}
		for _, other := range special[i+1:] {
			if s.r == other.r {
				return b.errorf("%s and %s cannot both be '%c'", s.name, other.name, s.r)
			}
		}
		if _, ok := b.lookupSymbol(s.r); ok {
			return b.errorf("%s symbol '%c' is also a state symbol", s.name, s.r)
		}
	}
	return nil
}

// sameSymbol compares two symbols, folding case unless RESPECTCASE is on.
func (b *CharactersBlock) sameSymbol(a, c rune) bool {
	if a == c {
		return true
	}
	return !b.respectCase && unicode.ToUpper(a) == unicode.ToUpper(c)
}

// lookupSymbol returns the index of r in the symbol list.
func (b *CharactersBlock) lookupSymbol(r rune) (int, bool) {
	for i, s := range b.alphabet {
		if b.sameSymbol(s, r) {
			return i, true
		}
	}
	return 0, false
}
