package nexus

import (
	"log/slog"
	"strconv"

	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

// Block is one of the block kinds the reader can dispatch to. The set is
// closed: *TaxaBlock, *CharactersBlock and *AssumptionsBlock.
type Block interface {
	ID() string
	Title() string
	BlockID() string
	IsEmpty() bool
	IsEnabled() bool
	Enable()
	Disable()
	LastError() string

	base() *blockBase
}

// blockBase carries the state and command handling shared by every block.
type blockBase struct {
	id      string
	enabled bool
	empty   bool
	title   string
	blockID string
	errMsg  string

	tok    *tokenizer.Tokenizer
	logger *slog.Logger
}

var discardLogger = slog.New(slog.DiscardHandler)

func newBlockBase(id string) blockBase {
	return blockBase{
		id:      id,
		enabled: true,
		empty:   true,
		logger:  discardLogger,
	}
}

func (b *blockBase) ID() string        { return b.id }
func (b *blockBase) Title() string     { return b.title }
func (b *blockBase) BlockID() string   { return b.blockID }
func (b *blockBase) IsEmpty() bool     { return b.empty }
func (b *blockBase) IsEnabled() bool   { return b.enabled }
func (b *blockBase) Enable()           { b.enabled = true }
func (b *blockBase) Disable()          { b.enabled = false }
func (b *blockBase) LastError() string { return b.errMsg }
func (b *blockBase) base() *blockBase  { return b }

// attach prepares the block to read from tok, logging to logger.
func (b *blockBase) attach(tok *tokenizer.Tokenizer, logger *slog.Logger) {
	b.tok = tok
	if logger == nil {
		logger = discardLogger
	}
	b.logger = logger.With(slog.String("block", b.id))
}

func (b *blockBase) resetBase() {
	b.empty = true
	b.title = ""
	b.blockID = ""
	b.errMsg = ""
}

// cmdResult tells a block's command loop what handleBasicBlockCommands did.
type cmdResult int

const (
	cmdUnrecognized cmdResult = iota
	cmdHandled
	cmdStop
)

// next reads the next token.
func (b *blockBase) next(opts tokenizer.Options) (tokenizer.Token, error) {
	if err := b.tok.Next(opts); err != nil {
		return tokenizer.Token{}, err
	}
	return b.tok.Token(), nil
}

// nextInCommand reads the next token, failing at the end of the file.
func (b *blockBase) nextInCommand(opts tokenizer.Options, command string) (tokenizer.Token, error) {
	tk, err := b.next(opts)
	if err != nil {
		return tk, err
	}
	if tk.EOF {
		return tk, b.errorf("unexpected end of file in %s command", command)
	}
	return tk, nil
}

func (b *blockBase) errorf(format string, args ...any) *tokenizer.Error {
	return b.tok.Errorf(format, args...)
}

// handleBasicBlockCommands recognises TITLE, BLOCKID, END and ENDBLOCK.
func (b *blockBase) handleBasicBlockCommands(tk tokenizer.Token) (cmdResult, error) {
	switch {
	case tk.Quoted:
		return cmdUnrecognized, nil
	case tk.Equals("END"), tk.Equals("ENDBLOCK"):
		if err := b.demandEndSemicolon(tk.Upper()); err != nil {
			return cmdStop, err
		}
		return cmdStop, nil
	case tk.Equals("TITLE"):
		text, err := b.readCommandText("TITLE")
		if err != nil {
			return cmdHandled, err
		}
		b.title = text
		b.logger.Debug("title", slog.String("title", text))
		return cmdHandled, nil
	case tk.Equals("BLOCKID"):
		text, err := b.readCommandText("BLOCKID")
		if err != nil {
			return cmdHandled, err
		}
		b.blockID = text
		return cmdHandled, nil
	}
	return cmdUnrecognized, nil
}

// readCommandText reads the single word argument of TITLE or BLOCKID.
func (b *blockBase) readCommandText(command string) (string, error) {
	tk, err := b.nextInCommand(0, command)
	if err != nil {
		return "", err
	}
	if tk.IsPunct(';') {
		return "", b.errorf("expecting a value after %s but found ';' instead", command)
	}
	if err := b.demandEndSemicolon(command); err != nil {
		return "", err
	}
	return tk.Text, nil
}

// demandEquals reads the next token and requires it to be '='.
func (b *blockBase) demandEquals(context string) error {
	tk, err := b.next(0)
	if err != nil {
		return err
	}
	if !tk.IsPunct('=') {
		return b.errorf("expecting '=' %s but found '%s' instead", context, tk.Text)
	}
	return nil
}

// demandEndSemicolon reads the next token and requires it to be ';'.
func (b *blockBase) demandEndSemicolon(command string) error {
	tk, err := b.next(0)
	if err != nil {
		return err
	}
	if !tk.IsPunct(';') {
		return b.errorf("expecting ';' to terminate the %s command, but found '%s' instead", command, tk.Text)
	}
	return nil
}

// demandPositiveInt reads the next token and requires an integer above 0.
func (b *blockBase) demandPositiveInt(context string) (int, error) {
	tk, err := b.next(0)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(tk.Text)
	if convErr != nil || n <= 0 {
		return 0, b.errorf("%s must be a number greater than 0, but found '%s' instead", context, tk.Text)
	}
	return n, nil
}

// MaxDimension is the largest NTAX or NCHAR accepted.
const MaxDimension = 1 << 22

// demandDimension reads NTAX or NCHAR, which must lie in 1..MaxDimension.
func (b *blockBase) demandDimension(name string) (int, error) {
	n, err := b.demandPositiveInt(name)
	if err != nil {
		return 0, err
	}
	if n > MaxDimension {
		return 0, b.errorf("%s must not exceed %d, but found %d", name, MaxDimension, n)
	}
	return n, nil
}

// skipCommand skips an unrecognised command up to and including its ';'.
func (b *blockBase) skipCommand(tk tokenizer.Token) error {
	command := tk.Upper()
	b.logger.Info("skipping unknown command", slog.String("command", command),
		slog.Int("line", tk.Pos.Line))
	for {
		tk, err := b.next(0)
		if err != nil {
			return err
		}
		if tk.EOF {
			return b.errorf("unexpected end of file while skipping the %s command", command)
		}
		if tk.IsPunct(';') {
			return nil
		}
	}
}

// readCommands runs a block's command loop until END or ENDBLOCK. handle
// returns false for commands the block does not know, which are skipped.
func (b *blockBase) readCommands(handle func(tk tokenizer.Token) (bool, error)) error {
	if err := b.demandEndSemicolon("BEGIN " + b.id); err != nil {
		return err
	}
	for {
		tk, err := b.next(0)
		if err != nil {
			return err
		}
		if tk.EOF {
			return b.errorf("unexpected end of file in %s block", b.id)
		}
		res, err := b.handleBasicBlockCommands(tk)
		if err != nil {
			return err
		}
		switch res {
		case cmdStop:
			b.empty = false
			return nil
		case cmdHandled:
			continue
		}
		known, err := handle(tk)
		if err != nil {
			return err
		}
		if !known {
			if err := b.skipCommand(tk); err != nil {
				return err
			}
		}
	}
}
