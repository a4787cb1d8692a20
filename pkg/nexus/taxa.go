package nexus

import (
	"log/slog"
	"strings"

	"github.com/spicery/nexus-reader/pkg/matrix"
	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

// TaxaBlock reads a TAXA block and owns the ordered taxon registry that
// other blocks resolve labels against.
type TaxaBlock struct {
	blockBase

	ntax  int
	taxa  []matrix.Taxon
	index map[string]int // upper-cased label -> position

	// Taxon IDs survive resets so a re-registered label keeps its ID.
	ids    map[string]int
	nextID int
}

// NewTaxaBlock creates an empty TAXA block.
func NewTaxaBlock() *TaxaBlock {
	b := &TaxaBlock{
		blockBase: newBlockBase("TAXA"),
		ids:       make(map[string]int),
	}
	b.Reset()
	return b
}

// Reset discards every taxon. Allocates fresh storage so snapshots taken by
// the reader are unaffected.
func (b *TaxaBlock) Reset() {
	b.resetBase()
	b.ntax = 0
	b.taxa = nil
	b.index = make(map[string]int)
}

func taxonKey(label string) string {
	return strings.ToUpper(label)
}

// AddTaxon appends a taxon and returns the new number of taxa.
func (b *TaxaBlock) AddTaxon(label string) int {
	key := taxonKey(label)
	id, ok := b.ids[key]
	if !ok {
		id = b.nextID
		b.nextID++
		b.ids[key] = id
	}
	b.index[key] = len(b.taxa)
	b.taxa = append(b.taxa, matrix.Taxon{ID: id, Name: label, Enabled: true})
	return len(b.taxa)
}

// FindTaxon returns the 0-based position of a label. The bool is false when
// there is no such taxon.
func (b *TaxaBlock) FindTaxon(label string) (int, bool) {
	pos, ok := b.index[taxonKey(label)]
	return pos, ok
}

// IsAlreadyDefined reports whether label is registered.
func (b *TaxaBlock) IsAlreadyDefined(label string) bool {
	_, ok := b.index[taxonKey(label)]
	return ok
}

// NumTaxa returns the number of registered taxa.
func (b *TaxaBlock) NumTaxa() int {
	return len(b.taxa)
}

// TaxonID returns the ID of the taxon at pos.
func (b *TaxaBlock) TaxonID(pos int) int {
	return b.taxa[pos].ID
}

// TaxonLabel returns the label of the taxon at pos.
func (b *TaxaBlock) TaxonLabel(pos int) string {
	return b.taxa[pos].Name
}

// Taxa returns a copy of the taxon list in matrix row order.
func (b *TaxaBlock) Taxa() []matrix.Taxon {
	out := make([]matrix.Taxon, len(b.taxa))
	copy(out, b.taxa)
	return out
}

// resolve maps a 1-based taxon number or label to a 1-based number, for
// set expressions.
func (b *TaxaBlock) resolve(label string) (int, bool) {
	pos, ok := b.FindTaxon(label)
	return pos + 1, ok
}

func (b *TaxaBlock) read() error {
	return b.readCommands(func(tk tokenizer.Token) (bool, error) {
		switch {
		case tk.Equals("DIMENSIONS"):
			return true, b.handleDimensions()
		case tk.Equals("TAXLABELS"):
			return true, b.handleTaxLabels()
		}
		return false, nil
	})
}

// handleDimensions reads "DIMENSIONS NTAX = n ;".
func (b *TaxaBlock) handleDimensions() error {
	tk, err := b.nextInCommand(0, "DIMENSIONS")
	if err != nil {
		return err
	}
	if !tk.Equals("NTAX") {
		return b.errorf("expecting NTAX keyword in DIMENSIONS command, but found '%s' instead", tk.Text)
	}
	if err := b.demandEquals("after NTAX in DIMENSIONS command"); err != nil {
		return err
	}
	n, err := b.demandDimension("NTAX")
	if err != nil {
		return err
	}
	b.ntax = n
	b.logger.Debug("dimensions", slog.Int("ntax", n))
	return b.demandEndSemicolon("DIMENSIONS")
}

// handleTaxLabels reads exactly NTAX labels followed by ';'.
func (b *TaxaBlock) handleTaxLabels() error {
	if b.ntax == 0 {
		return b.errorf("NTAX must be specified before the TAXLABELS command")
	}
	if len(b.taxa) > 0 {
		return b.errorf("TAXLABELS was already given all %d labels of this block", b.ntax)
	}
	for i := 0; i < b.ntax; i++ {
		tk, err := b.nextInCommand(0, "TAXLABELS")
		if err != nil {
			return err
		}
		if tk.IsPunct(';') {
			return b.errorf("expecting a taxon label but found ';' after %d of %d labels", i, b.ntax)
		}
		if b.IsAlreadyDefined(tk.Text) {
			return b.errorf("taxon label '%s' was already defined", tk.Text)
		}
		b.AddTaxon(tk.Text)
	}
	b.logger.Debug("taxlabels", slog.Int("count", b.ntax))
	return b.demandEndSemicolon("TAXLABELS")
}
