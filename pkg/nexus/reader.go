// Package nexus reads NEXUS files: TAXA, CHARACTERS and ASSUMPTIONS blocks
// are parsed into taxa, characters and a sparse cell grid. Unknown blocks
// are skipped.
package nexus

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spicery/nexus-reader/pkg/matrix"
	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

// ErrorHandler receives the diagnostic that aborted a read.
type ErrorHandler func(err *tokenizer.Error)

// Reader drives block discovery over a NEXUS file and dispatches each
// BEGIN to the registered block with the same ID.
type Reader struct {
	blocks []Block
	used   map[string][]Block
	logger *slog.Logger

	// ErrorHandler, if set, is called with the diagnostic of a failed read.
	ErrorHandler ErrorHandler
}

// NewReader creates a reader with no blocks. A nil logger discards messages.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = discardLogger
	}
	return &Reader{
		used:   make(map[string][]Block),
		logger: logger,
	}
}

// Add registers a block. Blocks are searched in the order they were added.
func (r *Reader) Add(b Block) {
	r.blocks = append(r.blocks, b)
}

// Blocks returns the registered blocks.
func (r *Reader) Blocks() []Block {
	return r.blocks
}

// UsedBlocks returns a snapshot of every block with the given ID that was
// read successfully, in file order.
func (r *Reader) UsedBlocks(id string) []Block {
	return r.used[strings.ToUpper(id)]
}

// ReadFile reads and parses a whole NEXUS file.
func (r *Reader) ReadFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read NEXUS file '%s': %w", filename, err)
	}
	return r.Read(string(data))
}

// Read parses input. It stops at the first error, which is also passed to
// ErrorHandler.
func (r *Reader) Read(input string) error {
	r.used = make(map[string][]Block)
	tok := tokenizer.New(input)

	if err := tok.Next(0); err != nil {
		return r.report(err)
	}
	if tk := tok.Token(); !tk.Equals("#NEXUS") {
		return r.report(tok.Errorf("expecting '#NEXUS' to be the first token in the file, but found '%s' instead", tk.Text))
	}

	for {
		if err := tok.Next(tokenizer.SaveCommandComments); err != nil {
			return r.report(err)
		}
		r.logOutputComments(tok)
		tk := tok.Token()
		switch {
		case tk.EOF:
			return nil
		case tk.Equals("&LEAVE"):
			r.logger.Info("leaving file at &LEAVE", slog.Int("line", tk.Pos.Line))
			return nil
		case tk.Equals("&SHOWALL"):
			r.showAll()
		case tk.Equals("BEGIN"):
			if err := r.readBlock(tok); err != nil {
				return err
			}
		}
	}
}

func (r *Reader) readBlock(tok *tokenizer.Tokenizer) error {
	if err := tok.Next(0); err != nil {
		return r.report(err)
	}
	tk := tok.Token()
	if tk.EOF {
		return r.report(tok.Errorf("unexpected end of file after BEGIN"))
	}
	id := tk.Upper()

	b := r.find(id)
	switch {
	case b == nil:
		r.logger.Info("skipping unknown block", slog.String("block", id), slog.Int("line", tk.Pos.Line))
		return r.skipBlock(tok, id)
	case !b.IsEnabled():
		r.logger.Info("skipping disabled block", slog.String("block", id), slog.Int("line", tk.Pos.Line))
		return r.skipBlock(tok, id)
	}

	r.logger.Info("entering block", slog.String("block", id), slog.Int("line", tk.Pos.Line))
	base := b.base()
	base.attach(tok, r.logger)
	resetBlock(b)
	if err := readBlock(b); err != nil {
		resetBlock(b)
		base.errMsg = err.Error()
		return r.report(err)
	}
	r.used[id] = append(r.used[id], snapshot(b))
	r.logOutputComments(tok)
	r.logger.Info("exiting block", slog.String("block", id))
	return nil
}

// find returns the registered block with the given ID, or nil.
func (r *Reader) find(id string) Block {
	for _, b := range r.blocks {
		if strings.EqualFold(b.ID(), id) {
			return b
		}
	}
	return nil
}

// skipBlock skips to the END or ENDBLOCK of a block nobody reads.
func (r *Reader) skipBlock(tok *tokenizer.Tokenizer, id string) error {
	for {
		if err := tok.Next(0); err != nil {
			return r.report(err)
		}
		tk := tok.Token()
		if tk.EOF {
			return r.report(tok.Errorf("unexpected end of file while skipping the %s block", id))
		}
		if tk.Quoted || !(tk.Equals("END") || tk.Equals("ENDBLOCK")) {
			continue
		}
		if err := tok.Next(0); err != nil {
			return r.report(err)
		}
		if semi := tok.Token(); !semi.IsPunct(';') {
			return r.report(tok.Errorf("expecting ';' after %s, but found '%s' instead", tk.Upper(), semi.Text))
		}
		r.logOutputComments(tok)
		return nil
	}
}

// report passes a diagnostic to the error handler and returns it.
func (r *Reader) report(err error) error {
	var nexErr *tokenizer.Error
	if errors.As(err, &nexErr) {
		r.logger.Error("parse failed", slog.String("error", nexErr.Message),
			slog.Int("line", nexErr.Pos.Line), slog.Int("column", nexErr.Pos.Col))
		if r.ErrorHandler != nil {
			r.ErrorHandler(nexErr)
		}
	}
	return err
}

func (r *Reader) logOutputComments(tok *tokenizer.Tokenizer) {
	for _, c := range tok.OutputComments() {
		r.logger.Info("output comment", slog.String("text", c))
	}
}

func (r *Reader) showAll() {
	for _, b := range r.blocks {
		r.logger.Info("block", slog.String("id", b.ID()), slog.Bool("enabled", b.IsEnabled()),
			slog.Int("used", len(r.used[b.ID()])))
	}
}

func resetBlock(b Block) {
	switch blk := b.(type) {
	case *TaxaBlock:
		blk.Reset()
	case *CharactersBlock:
		blk.Reset()
	case *AssumptionsBlock:
		blk.Reset()
	}
}

func readBlock(b Block) error {
	switch blk := b.(type) {
	case *TaxaBlock:
		return blk.read()
	case *CharactersBlock:
		return blk.read()
	case *AssumptionsBlock:
		return blk.read()
	}
	return fmt.Errorf("unsupported block type %T", b)
}

// snapshot copies a block after a successful read. Reset allocates new
// storage, so the copy is unaffected by later reads of the same block.
func snapshot(b Block) Block {
	switch blk := b.(type) {
	case *TaxaBlock:
		c := *blk
		return &c
	case *CharactersBlock:
		c := *blk
		return &c
	case *AssumptionsBlock:
		c := *blk
		return &c
	}
	return b
}

// Config configures Parse.
type Config struct {
	// Symbols supplies the default symbols per DATATYPE. nil means the
	// built-in IUPAC tables.
	Symbols      *SymbolTable
	Logger       *slog.Logger
	ErrorHandler ErrorHandler
}

// Result is everything Parse extracted from a file.
type Result struct {
	Taxa        []matrix.Taxon
	Matrices    []*matrix.Matrix
	Assumptions []*AssumptionsBlock
}

// NewStandardReader creates a reader with TAXA, CHARACTERS and ASSUMPTIONS
// blocks wired together.
func NewStandardReader(cfg Config) *Reader {
	r := NewReader(cfg.Logger)
	r.ErrorHandler = cfg.ErrorHandler
	taxa := NewTaxaBlock()
	chars := NewCharactersBlock(taxa, cfg.Symbols)
	r.Add(taxa)
	r.Add(chars)
	r.Add(NewAssumptionsBlock(taxa, chars))
	return r
}

// Parse reads a NEXUS file held in memory with the standard blocks.
func Parse(input string, cfg Config) (*Result, error) {
	r := NewStandardReader(cfg)
	if err := r.Read(input); err != nil {
		return nil, err
	}
	return r.Result(), nil
}

// Result collects the matrices of every CHARACTERS block read. Taxa come
// from the live registry, so taxa introduced by NEWTAXA are included.
// Characters are marked ordered when an ASSUMPTIONS block sets DEFTYPE=ORD.
func (r *Reader) Result() *Result {
	res := &Result{}
	if taxa, ok := r.find("TAXA").(*TaxaBlock); ok && taxa.NumTaxa() > 0 {
		res.Taxa = taxa.Taxa()
	}
	ordered := false
	for _, b := range r.UsedBlocks("ASSUMPTIONS") {
		a := b.(*AssumptionsBlock)
		res.Assumptions = append(res.Assumptions, a)
		ordered = ordered || a.DefType() == "ORD"
	}
	for _, b := range r.UsedBlocks("CHARACTERS") {
		m := b.(*CharactersBlock).Matrix()
		if ordered {
			for i := range m.Characters {
				m.Characters[i].Ordered = true
			}
		}
		res.Matrices = append(res.Matrices, m)
	}
	return res
}
