package nexus

import (
	"log/slog"
	"strings"

	"github.com/spicery/nexus-reader/pkg/matrix"
	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

// handleMatrix reads the MATRIX command up to and including its ';'.
func (b *CharactersBlock) handleMatrix() error {
	if b.ncharTotal == 0 {
		return b.errorf("NCHAR must be specified before MATRIX")
	}
	if b.ntax == 0 {
		return b.errorf("MATRIX requires a TAXA block, or NEWTAXA with NTAX in DIMENSIONS")
	}
	registering := b.newTaxa && b.taxa.NumTaxa() == 0
	if b.newTaxa && !registering && b.taxa.NumTaxa() != b.ntax {
		return b.errorf("expecting %d taxon labels in TAXLABELS, but found %d", b.ntax, b.taxa.NumTaxa())
	}
	if registering && (!b.labels || b.transposed) {
		return b.errorf("the MATRIX must label its taxa when NEWTAXA is given without TAXLABELS")
	}

	if b.charPos == nil {
		b.buildCharPos()
	}
	for len(b.chars) < b.ncharTotal {
		b.addCharacter(defaultCharacterName(len(b.chars) + 1))
	}
	b.taxonPos = make(map[int]int)
	b.cells = make(map[matrix.CellKey]matrix.Cell)

	b.logger.Info("reading matrix",
		slog.Int("ntax", b.ntax),
		slog.Int("nchar", b.nchar),
		slog.Bool("interleave", b.interleaved),
		slog.Bool("transpose", b.transposed),
		slog.Bool("tokens", b.tokens))

	var err error
	if b.transposed {
		err = b.readTransposedMatrix()
	} else {
		err = b.readStandardMatrix(registering)
	}
	if err != nil {
		return err
	}

	all := b.taxa.Taxa()
	b.rowTaxa = make([]matrix.Taxon, b.ntax)
	for row := range b.rowTaxa {
		b.rowTaxa[row] = all[b.taxonPos[row]]
	}
	return nil
}

// cellOptions are the tokenizer options for reading one matrix entry.
func (b *CharactersBlock) cellOptions() tokenizer.Options {
	opts := tokenizer.ParentheticalToken | tokenizer.CurlyBracketedToken
	if !b.tokens {
		opts |= tokenizer.SingleCharacterToken
	}
	if b.interleaved {
		opts |= tokenizer.NewlineIsToken
	}
	return opts
}

func (b *CharactersBlock) labelOptions() tokenizer.Options {
	if b.interleaved {
		return tokenizer.NewlineIsToken
	}
	return 0
}

// readStandardMatrix reads taxa as rows, one interleave page at a time. A
// matrix that is not interleaved is a single page.
func (b *CharactersBlock) readStandardMatrix(registering bool) error {
	opts := b.cellOptions()
	firstChar := 0
	for page := 0; firstChar < b.ncharTotal; page++ {
		lastChar := b.ncharTotal
		for row := 0; row < b.ntax; row++ {
			if err := b.readRowLabel(page, row, registering); err != nil {
				return err
			}
			taxonID := b.taxa.TaxonID(b.taxonPos[row])

			j := firstChar
			lineEnded := false
			for j < lastChar {
				tk, err := b.nextInCommand(opts, "MATRIX")
				if err != nil {
					return err
				}
				if tk.EOL {
					if j == firstChar {
						continue
					}
					if row == 0 {
						lastChar = j
						lineEnded = true
						break
					}
					return b.interleaveWidthError()
				}
				if tk.IsPunct(';') {
					return b.errorf("unexpected end of MATRIX: taxon %d has only %d of %d characters", row+1, j, b.ncharTotal)
				}
				if err := b.storeCell(tk, opts, row, j, taxonID); err != nil {
					return err
				}
				j++
			}

			if b.interleaved && !lineEnded {
				if err := b.endInterleaveLine(row); err != nil {
					return err
				}
			}
		}
		b.logger.Debug("matrix page", slog.Int("page", page), slog.Int("first", firstChar+1), slog.Int("last", lastChar))
		firstChar = lastChar
	}
	return b.demandMatrixEnd()
}

// endInterleaveLine checks that a row which filled the page width ends its
// line there.
func (b *CharactersBlock) endInterleaveLine(row int) error {
	peeked, err := b.tok.Peek(tokenizer.NewlineIsToken)
	if err != nil {
		return err
	}
	if peeked.EOF || peeked.IsPunct(';') {
		return nil
	}
	if _, err := b.next(tokenizer.NewlineIsToken); err != nil {
		return err
	}
	switch {
	case peeked.EOL:
		return nil
	case row == 0:
		return b.errorf("too many characters for taxon %d: expecting %d", row+1, b.ncharTotal)
	}
	return b.interleaveWidthError()
}

func (b *CharactersBlock) interleaveWidthError() error {
	return b.errorf("each line within an interleave page must comprise the same number of characters")
}

// readRowLabel reads the taxon label at the start of a row and records or
// checks where the taxon lives in the TAXA block.
func (b *CharactersBlock) readRowLabel(page, row int, registering bool) error {
	if !b.labels {
		if page == 0 {
			b.taxonPos[row] = row
		}
		return nil
	}
	tk, err := b.nextLabel()
	if err != nil {
		return err
	}
	if tk.IsPunct(';') {
		return b.errorf("unexpected end of MATRIX: expecting the label of taxon %d", row+1)
	}
	label := tk.Text

	if page > 0 {
		pos, ok := b.taxa.FindTaxon(label)
		if !ok || pos != b.taxonPos[row] {
			return b.errorf("the order of taxa on interleave page %d differs from the first page: expecting '%s' but found '%s'",
				page+1, b.taxa.TaxonLabel(b.taxonPos[row]), label)
		}
		return nil
	}

	if registering {
		if b.taxa.IsAlreadyDefined(label) {
			return b.errorf("taxon '%s' is defined more than once in the MATRIX", label)
		}
		b.taxonPos[row] = b.taxa.AddTaxon(label) - 1
		return nil
	}

	pos, ok := b.taxa.FindTaxon(label)
	if !ok {
		return b.errorf("could not find taxon '%s' among the stored taxa", label)
	}
	for r := 0; r < row; r++ {
		if b.taxonPos[r] == pos {
			return b.errorf("taxon '%s' appears more than once in the MATRIX", label)
		}
	}
	if pos != row {
		return b.errorf("relative order of taxa must be the same in both the TAXA and CHARACTERS blocks: expecting '%s' but found '%s'",
			b.taxa.TaxonLabel(row), label)
	}
	b.taxonPos[row] = pos
	return nil
}

// nextLabel reads the next token in word mode, skipping line ends.
func (b *CharactersBlock) nextLabel() (tokenizer.Token, error) {
	for {
		tk, err := b.nextInCommand(b.labelOptions(), "MATRIX")
		if err != nil || !tk.EOL {
			return tk, err
		}
	}
}

func (b *CharactersBlock) demandMatrixEnd() error {
	tk, err := b.nextLabel()
	if err != nil {
		return err
	}
	if !tk.IsPunct(';') {
		return b.errorf("expecting ';' at the end of the MATRIX, but found '%s' instead; there are too many characters or taxa", tk.Text)
	}
	return nil
}

// storeCell decodes tk as the entry for row and the 0-based original
// character j. Entries of eliminated characters are read and dropped.
func (b *CharactersBlock) storeCell(tk tokenizer.Token, opts tokenizer.Options, row, j, taxonID int) error {
	text := tk.Text
	if b.tokens && b.datatype == Continuous {
		var err error
		if text, err = b.joinNumber(tk, opts); err != nil {
			return err
		}
	}
	if b.eliminated[j] {
		return nil
	}
	var cell matrix.Cell
	var err error
	switch {
	case b.tokens && b.datatype == Continuous:
		cell, err = b.decodeToken(text, row, j)
	case b.tokens:
		cell, err = b.decodeToken(tk.Text, row, j)
	default:
		cell, err = b.decodeState(tk.Text, row, j)
	}
	if err != nil {
		return err
	}
	b.cells[matrix.CellKey{TaxonID: taxonID, CharacterID: b.chars[j].ID}] = cell
	return nil
}

// joinNumber glues a signed or exponent number back together, since '+'
// and '-' are punctuation to the tokenizer.
func (b *CharactersBlock) joinNumber(tk tokenizer.Token, opts tokenizer.Options) (string, error) {
	text := tk.Text
	end := tk.Pos.Offset + len(tk.Text)
	for {
		peeked, err := b.tok.Peek(opts)
		if err != nil {
			return "", err
		}
		if peeked.EOF || peeked.EOL || peeked.Pos.Offset != end {
			return text, nil
		}
		glue := peeked.IsPunct('-') || peeked.IsPunct('+') ||
			strings.HasSuffix(text, "-") || strings.HasSuffix(text, "+")
		if !glue || peeked.IsPunct(';') {
			return text, nil
		}
		if _, err := b.next(opts); err != nil {
			return "", err
		}
		text += peeked.Text
		end = peeked.Pos.Offset + len(peeked.Text)
	}
}

// readTransposedMatrix reads characters as rows and taxa as columns.
func (b *CharactersBlock) readTransposedMatrix() error {
	opts := b.cellOptions()
	for row := 0; row < b.ntax; row++ {
		b.taxonPos[row] = row
	}
	for j := 0; j < b.ncharTotal; j++ {
		if b.labels {
			if err := b.readCharacterRowLabel(j); err != nil {
				return err
			}
		}
		for row := 0; row < b.ntax; row++ {
			tk, err := b.nextInCommand(opts, "MATRIX")
			if err != nil {
				return err
			}
			if tk.IsPunct(';') {
				return b.errorf("unexpected end of MATRIX: character %d has only %d of %d taxa", j+1, row, b.ntax)
			}
			if err := b.storeCell(tk, opts, row, j, b.taxa.TaxonID(row)); err != nil {
				return err
			}
		}
	}
	return b.demandMatrixEnd()
}

// readCharacterRowLabel names character j from a transposed row label, or
// checks the label against an earlier CHARLABELS.
func (b *CharactersBlock) readCharacterRowLabel(j int) error {
	tk, err := b.nextLabel()
	if err != nil {
		return err
	}
	if tk.IsPunct(';') {
		return b.errorf("unexpected end of MATRIX: expecting the label of character %d", j+1)
	}
	if !b.labelsRead {
		b.chars[j].Name = tk.Text
		return nil
	}
	if !strings.EqualFold(b.chars[j].Name, tk.Text) {
		return b.errorf("expecting character '%s' in the transposed MATRIX, but found '%s' instead", b.chars[j].Name, tk.Text)
	}
	return nil
}
