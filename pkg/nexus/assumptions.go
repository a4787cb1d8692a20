package nexus

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

var defTypes = []string{
	"UNORD", "ORD", "IRREV", "IRREV.UP", "IRREV.DOWN",
	"DOLLO", "DOLLO.UP", "DOLLO.DOWN", "STRAT", "CHAINED",
}

// AssumptionsBlock reads the OPTIONS command and the named CHARSET, TAXSET
// and EXSET sets of an ASSUMPTIONS block. Other commands are skipped.
type AssumptionsBlock struct {
	blockBase

	taxa  *TaxaBlock
	chars *CharactersBlock

	defType      string
	polyTCount   string
	gapMode      string
	charSets     map[string]IndexSet
	taxSets      map[string]IndexSet
	exSets       map[string]IndexSet
	defaultExSet string
}

// NewAssumptionsBlock creates an ASSUMPTIONS block whose sets refer to the
// given taxa and characters.
func NewAssumptionsBlock(taxa *TaxaBlock, chars *CharactersBlock) *AssumptionsBlock {
	b := &AssumptionsBlock{
		blockBase: newBlockBase("ASSUMPTIONS"),
		taxa:      taxa,
		chars:     chars,
	}
	b.Reset()
	return b
}

// Reset restores the defaults and forgets every set.
func (b *AssumptionsBlock) Reset() {
	b.resetBase()
	b.defType = "UNORD"
	b.polyTCount = "MINSTEPS"
	b.gapMode = "MISSING"
	b.charSets = make(map[string]IndexSet)
	b.taxSets = make(map[string]IndexSet)
	b.exSets = make(map[string]IndexSet)
	b.defaultExSet = ""
}

func (b *AssumptionsBlock) DefType() string    { return b.defType }
func (b *AssumptionsBlock) PolyTCount() string { return b.polyTCount }
func (b *AssumptionsBlock) GapMode() string    { return b.gapMode }

// CharSet returns the 0-based characters of a named CHARSET.
func (b *AssumptionsBlock) CharSet(name string) (IndexSet, bool) {
	s, ok := b.charSets[setKey(name)]
	return s, ok
}

// TaxSet returns the 0-based taxon positions of a named TAXSET.
func (b *AssumptionsBlock) TaxSet(name string) (IndexSet, bool) {
	s, ok := b.taxSets[setKey(name)]
	return s, ok
}

// ExSet returns the 0-based characters of a named EXSET.
func (b *AssumptionsBlock) ExSet(name string) (IndexSet, bool) {
	s, ok := b.exSets[setKey(name)]
	return s, ok
}

// DefaultExSet names the EXSET that was marked with '*', if any.
func (b *AssumptionsBlock) DefaultExSet() string { return b.defaultExSet }

// CharSetNames returns the CHARSET names in sorted order.
func (b *AssumptionsBlock) CharSetNames() []string {
	names := make([]string, 0, len(b.charSets))
	for name := range b.charSets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func setKey(name string) string {
	return strings.ToUpper(name)
}

func (b *AssumptionsBlock) read() error {
	return b.readCommands(func(tk tokenizer.Token) (bool, error) {
		switch {
		case tk.Equals("OPTIONS"):
			return true, b.handleOptions()
		case tk.Equals("CHARSET"):
			return true, b.handleSet("CHARSET", b.charSets)
		case tk.Equals("TAXSET"):
			return true, b.handleSet("TAXSET", b.taxSets)
		case tk.Equals("EXSET"):
			return true, b.handleSet("EXSET", b.exSets)
		}
		// TYPESET, WTSET, USERTYPE, ANCSTATES and anything else.
		return false, nil
	})
}

// handleOptions reads DEFTYPE, POLYTCOUNT and GAPMODE.
func (b *AssumptionsBlock) handleOptions() error {
	for {
		tk, err := b.nextInCommand(0, "OPTIONS")
		if err != nil {
			return err
		}
		if tk.IsPunct(';') {
			return nil
		}
		name := tk.Upper()
		if err := b.demandEquals("after " + name + " in OPTIONS command"); err != nil {
			return err
		}
		val, err := b.nextInCommand(0, "OPTIONS")
		if err != nil {
			return err
		}
		value := val.Upper()
		switch name {
		case "DEFTYPE":
			if !slices.Contains(defTypes, value) {
				return b.errorf("'%s' is not a valid DEFTYPE", val.Text)
			}
			b.defType = value
		case "POLYTCOUNT":
			if value != "MINSTEPS" && value != "MAXSTEPS" {
				return b.errorf("POLYTCOUNT must be MINSTEPS or MAXSTEPS, but found '%s' instead", val.Text)
			}
			b.polyTCount = value
		case "GAPMODE":
			if value != "MISSING" && value != "NEWSTATE" {
				return b.errorf("GAPMODE must be MISSING or NEWSTATE, but found '%s' instead", val.Text)
			}
			b.gapMode = value
		default:
			b.logger.Info("skipping unknown OPTIONS subcommand", slog.String("subcommand", name))
			continue
		}
		b.logger.Debug("options", slog.String(name, value))
	}
}

// handleSet reads "[*] name [(STANDARD)] = set ;" into sets.
func (b *AssumptionsBlock) handleSet(command string, sets map[string]IndexSet) error {
	tk, err := b.nextInCommand(0, command)
	if err != nil {
		return err
	}
	isDefault := false
	if tk.IsPunct('*') {
		isDefault = true
		if tk, err = b.nextInCommand(0, command); err != nil {
			return err
		}
	}
	if tk.IsPunct(';') || tk.IsPunct('=') {
		return b.errorf("expecting a set name after %s, but found '%s' instead", command, tk.Text)
	}
	name := tk.Text

	// An optional (STANDARD) or (VECTOR) qualifier.
	peeked, err := b.tok.Peek(tokenizer.ParentheticalToken)
	if err != nil {
		return err
	}
	if !peeked.Quoted && strings.HasPrefix(peeked.Text, "(") {
		if _, err := b.next(tokenizer.ParentheticalToken); err != nil {
			return err
		}
		if !strings.EqualFold(strings.TrimSpace(strings.Trim(peeked.Text, "()")), "STANDARD") {
			return b.errorf("only the STANDARD format is supported for %s, but found '%s'", command, peeked.Text)
		}
	}
	if err := b.demandEquals("after the " + command + " name"); err != nil {
		return err
	}

	var limit int
	var resolve LabelResolver
	if command == "TAXSET" {
		limit, resolve = b.taxa.NumTaxa(), b.taxa.resolve
	} else {
		limit, resolve = b.chars.NCharTotal(), b.chars.resolveCharacter
	}
	if limit == 0 {
		return b.errorf("%s '%s' refers to an empty list; it must follow the block that defines it", command, name)
	}

	sr := NewSetReader(b.tok, limit, resolve)
	atSemicolon, err := sr.Run()
	if err != nil {
		return err
	}
	if !atSemicolon {
		return b.errorf("expecting ';' to terminate the %s command, but found ',' instead", command)
	}
	sets[setKey(name)] = sr.Set
	if isDefault && command == "EXSET" {
		b.defaultExSet = setKey(name)
	}
	b.logger.Debug("set", slog.String("command", command), slog.String("name", name),
		slog.Any("members", sr.Set.Sorted()))
	return nil
}
