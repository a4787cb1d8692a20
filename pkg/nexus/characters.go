package nexus

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spicery/nexus-reader/pkg/matrix"
	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

// CharactersBlock reads a CHARACTERS block into taxa, characters and a
// sparse cell grid.
type CharactersBlock struct {
	blockBase

	taxa    *TaxaBlock
	symbols *SymbolTable

	// Character IDs are never reused across blocks.
	nextCharID int

	// DIMENSIONS
	newTaxa    bool
	ntax       int
	ncharTotal int
	nchar      int

	// FORMAT
	datatype     Datatype
	respectCase  bool
	missing      rune
	gap          rune
	matchchar    rune
	alphabet     []rune
	equates      map[rune]string
	labels       bool
	transposed   bool
	interleaved  bool
	tokens       bool
	items        []string
	statesFormat string

	eliminated IndexSet
	charPos    map[int]int // original index -> active index; nil until built
	labelsRead bool
	chars      []matrix.Character
	taxonPos   map[int]int // matrix row -> TAXA block position
	rowTaxa    []matrix.Taxon
	cells      map[matrix.CellKey]matrix.Cell
}

// NewCharactersBlock creates a CHARACTERS block that resolves taxa against
// taxa and takes default symbols from symbols. A nil table means the
// built-in defaults.
func NewCharactersBlock(taxa *TaxaBlock, symbols *SymbolTable) *CharactersBlock {
	if symbols == nil {
		symbols = DefaultSymbolTable()
	}
	b := &CharactersBlock{
		blockBase: newBlockBase("CHARACTERS"),
		taxa:      taxa,
		symbols:   symbols,
	}
	b.Reset()
	return b
}

// Reset returns the block to its defaults. Every map and slice is freshly
// allocated so earlier snapshots keep their contents.
func (b *CharactersBlock) Reset() {
	b.resetBase()
	b.newTaxa = false
	b.ntax = 0
	b.ncharTotal = 0
	b.nchar = 0
	b.respectCase = false
	b.missing = '?'
	b.gap = 0
	b.matchchar = 0
	b.labels = true
	b.transposed = false
	b.interleaved = false
	b.tokens = false
	b.items = []string{"STATES"}
	b.statesFormat = "STATESPRESENT"
	b.setDatatype(Standard)
	b.eliminated = make(IndexSet)
	b.charPos = nil
	b.labelsRead = false
	b.chars = nil
	b.taxonPos = make(map[int]int)
	b.rowTaxa = nil
	b.cells = make(map[matrix.CellKey]matrix.Cell)
}

// setDatatype installs the datatype's default symbols and equates.
func (b *CharactersBlock) setDatatype(d Datatype) {
	b.datatype = d
	set := b.symbols.Lookup(d)
	b.alphabet = []rune(set.Symbols)
	b.equates = make(map[rune]string)
	for _, eq := range set.Equates {
		b.addEquate([]rune(eq.Symbol)[0], eq.Value)
	}
}

// addEquate registers an equate in its given, upper and lower case forms.
func (b *CharactersBlock) addEquate(sym rune, value string) {
	b.equates[sym] = value
	for _, r := range []rune{[]rune(strings.ToUpper(string(sym)))[0], []rune(strings.ToLower(string(sym)))[0]} {
		if _, ok := b.equates[r]; !ok {
			b.equates[r] = value
		}
	}
}

// Datatype returns the DATATYPE in effect.
func (b *CharactersBlock) Datatype() Datatype { return b.datatype }

// Symbols returns the active symbol list: datatype defaults plus SYMBOLS.
func (b *CharactersBlock) Symbols() string { return string(b.alphabet) }

// Equate returns the replacement text registered for sym.
func (b *CharactersBlock) Equate(sym rune) (string, bool) {
	v, ok := b.equates[sym]
	return v, ok
}

// Missing, Gap and MatchChar return the special symbols, or 0 if unset.
func (b *CharactersBlock) Missing() rune   { return b.missing }
func (b *CharactersBlock) Gap() rune       { return b.gap }
func (b *CharactersBlock) MatchChar() rune { return b.matchchar }

func (b *CharactersBlock) IsInterleaved() bool { return b.interleaved }
func (b *CharactersBlock) IsTransposed() bool  { return b.transposed }
func (b *CharactersBlock) IsTokens() bool      { return b.tokens }
func (b *CharactersBlock) RespectCase() bool   { return b.respectCase }

// NTax returns the number of matrix rows.
func (b *CharactersBlock) NTax() int { return b.ntax }

// NCharTotal returns the number of characters including eliminated ones.
func (b *CharactersBlock) NCharTotal() int { return b.ncharTotal }

// NChar returns the number of characters that are not eliminated.
func (b *CharactersBlock) NChar() int { return b.nchar }

// IsEliminated reports whether the 0-based original character i was
// eliminated.
func (b *CharactersBlock) IsEliminated(i int) bool { return b.eliminated[i] }

// CharPos maps a 0-based original character index to its index among the
// active characters. The bool is false for eliminated or out-of-range
// characters.
func (b *CharactersBlock) CharPos(i int) (int, bool) {
	if b.charPos == nil {
		if i < 0 || i >= b.ncharTotal || b.eliminated[i] {
			return 0, false
		}
		return i, true
	}
	pos, ok := b.charPos[i]
	return pos, ok
}

// TaxonPos returns the TAXA block position of a matrix row.
func (b *CharactersBlock) TaxonPos(row int) (int, bool) {
	pos, ok := b.taxonPos[row]
	return pos, ok
}

// Characters returns every character in original order, eliminated ones
// included and flagged.
func (b *CharactersBlock) Characters() []matrix.Character {
	out := make([]matrix.Character, len(b.chars))
	copy(out, b.chars)
	return out
}

// Taxa returns the taxa of the matrix rows, in row order.
func (b *CharactersBlock) Taxa() []matrix.Taxon {
	out := make([]matrix.Taxon, len(b.rowTaxa))
	copy(out, b.rowTaxa)
	return out
}

// Cells returns the sparse cell grid.
func (b *CharactersBlock) Cells() map[matrix.CellKey]matrix.Cell {
	return b.cells
}

// Cell returns the cell for a taxon and character ID.
func (b *CharactersBlock) Cell(taxonID, characterID int) (matrix.Cell, bool) {
	c, ok := b.cells[matrix.CellKey{TaxonID: taxonID, CharacterID: characterID}]
	return c, ok
}

// Matrix hands the parsed block over as a matrix value.
func (b *CharactersBlock) Matrix() *matrix.Matrix {
	cells := make(map[matrix.CellKey]matrix.Cell, len(b.cells))
	for k, c := range b.cells {
		cells[k] = c
	}
	chars := b.Characters()
	for i := range chars {
		chars[i].States = append([]matrix.State(nil), chars[i].States...)
	}
	return &matrix.Matrix{
		Title:      b.title,
		Datatype:   b.datatype.String(),
		Symbols:    string(b.alphabet),
		Taxa:       b.Taxa(),
		Characters: chars,
		Cells:      cells,
	}
}

func (b *CharactersBlock) read() error {
	return b.readCommands(func(tk tokenizer.Token) (bool, error) {
		switch {
		case tk.Equals("DIMENSIONS"):
			return true, b.handleDimensions()
		case tk.Equals("FORMAT"):
			return true, b.handleFormat()
		case tk.Equals("ELIMINATE"):
			return true, b.handleEliminate()
		case tk.Equals("TAXLABELS"):
			return true, b.handleTaxLabels()
		case tk.Equals("CHARLABELS"):
			return true, b.handleCharLabels()
		case tk.Equals("CHARSTATELABELS"):
			return true, b.handleCharStateLabels()
		case tk.Equals("STATELABELS"):
			return true, b.handleStateLabels()
		case tk.Equals("MATRIX"):
			return true, b.handleMatrix()
		}
		return false, nil
	})
}

// handleDimensions reads NEWTAXA, NTAX and NCHAR in any order.
func (b *CharactersBlock) handleDimensions() error {
	for {
		tk, err := b.nextInCommand(0, "DIMENSIONS")
		if err != nil {
			return err
		}
		switch {
		case tk.IsPunct(';'):
			return b.finishDimensions()
		case tk.Equals("NEWTAXA"):
			b.newTaxa = true
		case tk.Equals("NTAX"):
			if err := b.demandEquals("after NTAX in DIMENSIONS command"); err != nil {
				return err
			}
			if b.ntax, err = b.demandDimension("NTAX"); err != nil {
				return err
			}
		case tk.Equals("NCHAR"):
			if err := b.demandEquals("after NCHAR in DIMENSIONS command"); err != nil {
				return err
			}
			if b.ncharTotal, err = b.demandDimension("NCHAR"); err != nil {
				return err
			}
			b.nchar = b.ncharTotal
		default:
			return b.errorf("unexpected '%s' in DIMENSIONS command", tk.Text)
		}
	}
}

func (b *CharactersBlock) finishDimensions() error {
	if b.ncharTotal == 0 {
		return b.errorf("NCHAR must be specified in the DIMENSIONS command")
	}
	if b.newTaxa {
		if b.ntax == 0 {
			return b.errorf("NTAX must be specified when NEWTAXA is given")
		}
		b.taxa.Reset()
		b.logger.Debug("dimensions", slog.Bool("newtaxa", true), slog.Int("ntax", b.ntax),
			slog.Int("nchar", b.ncharTotal))
		return nil
	}
	have := b.taxa.NumTaxa()
	if b.ntax == 0 {
		b.ntax = have
	}
	if b.ntax > have {
		return b.errorf("NTAX (%d) exceeds the number of taxa in the TAXA block (%d); "+
			"either NEWTAXA is missing from DIMENSIONS or the TAXA block was forgotten", b.ntax, have)
	}
	b.logger.Debug("dimensions", slog.Int("ntax", b.ntax), slog.Int("nchar", b.ncharTotal))
	return nil
}

// handleEliminate reads the set of characters to eliminate.
func (b *CharactersBlock) handleEliminate() error {
	if b.ncharTotal == 0 {
		return b.errorf("NCHAR must be specified before ELIMINATE")
	}
	if b.labelsRead {
		return b.errorf("ELIMINATE must precede CHARLABELS, CHARSTATELABELS and STATELABELS")
	}
	if b.charPos != nil {
		return b.errorf("only one ELIMINATE command is allowed, and it must precede MATRIX")
	}
	sr := NewSetReader(b.tok, b.ncharTotal, b.resolveCharacter)
	atSemicolon, err := sr.Run()
	if err != nil {
		return err
	}
	if !atSemicolon {
		return b.errorf("expecting ';' to terminate the ELIMINATE command, but found ',' instead")
	}
	b.eliminated = sr.Set
	b.nchar = b.ncharTotal - len(b.eliminated)
	b.buildCharPos()
	b.logger.Debug("eliminate", slog.Any("characters", b.eliminated.Sorted()), slog.Int("nchar", b.nchar))
	return nil
}

// buildCharPos numbers the characters that were not eliminated.
func (b *CharactersBlock) buildCharPos() {
	b.charPos = make(map[int]int, b.nchar)
	k := 0
	for i := 0; i < b.ncharTotal; i++ {
		if b.eliminated[i] {
			continue
		}
		b.charPos[i] = k
		k++
	}
}

// resolveCharacter maps a character label to its 1-based number.
func (b *CharactersBlock) resolveCharacter(label string) (int, bool) {
	for i, c := range b.chars {
		if strings.EqualFold(c.Name, label) {
			return i + 1, true
		}
	}
	return 0, false
}

// handleTaxLabels registers taxa named inside the CHARACTERS block.
func (b *CharactersBlock) handleTaxLabels() error {
	if !b.newTaxa {
		return b.errorf("TAXLABELS may only appear in a CHARACTERS block if NEWTAXA was given in DIMENSIONS")
	}
	for {
		tk, err := b.nextInCommand(0, "TAXLABELS")
		if err != nil {
			return err
		}
		if tk.IsPunct(';') {
			return nil
		}
		if b.taxa.NumTaxa() >= b.ntax {
			return b.errorf("number of taxon labels exceeds NTAX (%d)", b.ntax)
		}
		if b.taxa.IsAlreadyDefined(tk.Text) {
			return b.errorf("taxon label '%s' was already defined", tk.Text)
		}
		b.taxa.AddTaxon(tk.Text)
	}
}

func (b *CharactersBlock) addCharacter(name string) {
	i := len(b.chars)
	b.chars = append(b.chars, matrix.Character{
		ID:         b.nextCharID,
		Name:       name,
		Enabled:    true,
		Eliminated: b.eliminated[i],
	})
	b.nextCharID++
}

func defaultCharacterName(n int) string {
	return fmt.Sprintf("Character %d", n)
}

// handleCharLabels reads one label per character, eliminated or not.
func (b *CharactersBlock) handleCharLabels() error {
	if b.ncharTotal == 0 {
		return b.errorf("NCHAR must be specified before CHARLABELS")
	}
	if len(b.chars) > 0 {
		return b.errorf("character labels have already been defined")
	}
	for {
		tk, err := b.nextInCommand(0, "CHARLABELS")
		if err != nil {
			return err
		}
		if tk.IsPunct(';') {
			break
		}
		if len(b.chars) >= b.ncharTotal {
			return b.errorf("number of character labels exceeds NCHAR (%d)", b.ncharTotal)
		}
		b.addCharacter(tk.Text)
	}
	b.labelsRead = true
	b.logger.Debug("charlabels", slog.Int("count", len(b.chars)))
	return nil
}

// handleCharStateLabels reads "n name / state state, n name ...;".
func (b *CharactersBlock) handleCharStateLabels() error {
	if b.ncharTotal == 0 {
		return b.errorf("NCHAR must be specified before CHARSTATELABELS")
	}
	if len(b.chars) > 0 {
		return b.errorf("character labels have already been defined")
	}
	b.labelsRead = true
	for {
		tk, err := b.nextInCommand(0, "CHARSTATELABELS")
		if err != nil {
			return err
		}
		if tk.IsPunct(';') {
			break
		}
		n, convErr := strconv.Atoi(tk.Text)
		if convErr != nil {
			return b.errorf("expecting a character number in CHARSTATELABELS, but found '%s' instead", tk.Text)
		}
		if n <= len(b.chars) || n > b.ncharTotal {
			return b.errorf("character number %d in CHARSTATELABELS is out of order or out of range (1-%d)", n, b.ncharTotal)
		}
		for len(b.chars) < n-1 {
			b.addCharacter(defaultCharacterName(len(b.chars) + 1))
		}

		tk, err = b.nextInCommand(0, "CHARSTATELABELS")
		if err != nil {
			return err
		}
		name := defaultCharacterName(n)
		if !tk.IsPunct('/') && !tk.IsPunct(',') && !tk.IsPunct(';') {
			name = tk.Text
			if tk, err = b.nextInCommand(0, "CHARSTATELABELS"); err != nil {
				return err
			}
		}
		b.addCharacter(name)

		if tk.IsPunct('/') {
			if tk, err = b.readStateLabels(n, "CHARSTATELABELS"); err != nil {
				return err
			}
		}
		if tk.IsPunct(';') {
			break
		}
		if !tk.IsPunct(',') {
			return b.errorf("expecting ',' or ';' in CHARSTATELABELS, but found '%s' instead", tk.Text)
		}
	}
	b.logger.Debug("charstatelabels", slog.Int("count", len(b.chars)))
	return nil
}

// readStateLabels attaches state labels to the 1-based character n up to
// the next ',' or ';', which it returns.
func (b *CharactersBlock) readStateLabels(n int, command string) (tokenizer.Token, error) {
	if b.datatype == Continuous {
		return tokenizer.Token{}, b.errorf("state labels are not allowed for CONTINUOUS data")
	}
	c := &b.chars[n-1]
	for {
		tk, err := b.nextInCommand(0, command)
		if err != nil {
			return tk, err
		}
		if tk.IsPunct(',') || tk.IsPunct(';') {
			return tk, nil
		}
		k := len(c.States)
		if k >= len(b.alphabet) {
			return tk, b.errorf("too many state labels for character %d: only %d symbols are defined", n, len(b.alphabet))
		}
		c.States = append(c.States, matrix.State{Symbol: string(b.alphabet[k]), Name: tk.Text})
	}
}

// handleStateLabels reads "n state state, n state ...;" once every
// character has a label.
func (b *CharactersBlock) handleStateLabels() error {
	if b.datatype == Continuous {
		return b.errorf("STATELABELS is not allowed for CONTINUOUS data")
	}
	if len(b.chars) != b.ncharTotal || b.ncharTotal == 0 {
		return b.errorf("STATELABELS requires CHARLABELS to define all %d characters first", b.ncharTotal)
	}
	b.labelsRead = true
	for {
		tk, err := b.nextInCommand(0, "STATELABELS")
		if err != nil {
			return err
		}
		if tk.IsPunct(';') {
			return nil
		}
		n, convErr := strconv.Atoi(tk.Text)
		if convErr != nil {
			return b.errorf("expecting a character number in STATELABELS, but found '%s' instead", tk.Text)
		}
		if n < 1 || n > b.ncharTotal {
			return b.errorf("character number %d in STATELABELS is out of range (1-%d)", n, b.ncharTotal)
		}
		b.chars[n-1].States = nil
		tk, err = b.readStateLabels(n, "STATELABELS")
		if err != nil {
			return err
		}
		if tk.IsPunct(';') {
			return nil
		}
	}
}
