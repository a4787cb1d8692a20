package nexus

import (
	"strings"
	"testing"

	"github.com/spicery/nexus-reader/pkg/matrix"
)

const twoTaxa = `#NEXUS
BEGIN TAXA;
  DIMENSIONS NTAX=2;
  TAXLABELS A B;
END;
`

// readNexus runs a reader with TAXA, CHARACTERS and ASSUMPTIONS blocks.
func readNexus(input string) (*Reader, *TaxaBlock, *CharactersBlock, error) {
	r := NewReader(nil)
	taxa := NewTaxaBlock()
	chars := NewCharactersBlock(taxa, nil)
	r.Add(taxa)
	r.Add(chars)
	r.Add(NewAssumptionsBlock(taxa, chars))
	err := r.Read(input)
	return r, taxa, chars, err
}

func expectError(t *testing.T, err error, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected error containing '%s', got none", message)
	}
	if !strings.Contains(err.Error(), message) {
		t.Errorf("Expected error containing '%s', got '%s'", message, err.Error())
	}
}

func TestMinimalMatrix(t *testing.T) {
	input := twoTaxa + `BEGIN CHARACTERS;
  DIMENSIONS NCHAR=2;
  FORMAT DATATYPE=STANDARD SYMBOLS="01";
  MATRIX
    A 01
    B 10
  ;
END;`

	_, taxa, chars, err := readNexus(input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if taxa.NumTaxa() != 2 || taxa.TaxonID(0) != 0 || taxa.TaxonID(1) != 1 {
		t.Fatalf("Expected taxa A=0 and B=1")
	}
	characters := chars.Characters()
	if len(characters) != 2 {
		t.Fatalf("Expected 2 characters, got %d", len(characters))
	}

	expected := map[[2]int]string{
		{0, 0}: "0", {0, 1}: "1",
		{1, 0}: "1", {1, 1}: "0",
	}
	for key, state := range expected {
		cell, ok := chars.Cell(key[0], characters[key[1]].ID)
		if !ok {
			t.Errorf("Expected a cell for taxon %d, character %d", key[0], key[1])
			continue
		}
		if cell.State != state || cell.Kind != matrix.Single {
			t.Errorf("Expected cell %v to be single '%s', got %+v", key, state, cell)
		}
	}
	if chars.NChar() != 2 || chars.NCharTotal() != 2 || chars.NTax() != 2 {
		t.Errorf("Unexpected dimensions: nchar=%d total=%d ntax=%d", chars.NChar(), chars.NCharTotal(), chars.NTax())
	}
}

func TestCharactersDimensions(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"NTAX exceeds TAXA block", "DIMENSIONS NTAX=3 NCHAR=1;", "either NEWTAXA is missing from DIMENSIONS or the TAXA block was forgotten"},
		{"No NCHAR", "DIMENSIONS NTAX=2;", "NCHAR must be specified in the DIMENSIONS command"},
		{"NEWTAXA without NTAX", "DIMENSIONS NEWTAXA NCHAR=2;", "NTAX must be specified when NEWTAXA is given"},
		{"Unknown subcommand", "DIMENSIONS NSTATES=2;", "unexpected 'NSTATES' in DIMENSIONS command"},
		{"Bad NCHAR", "DIMENSIONS NCHAR=x;", "NCHAR must be a number greater than 0, but found 'x' instead"},
		{"Huge NCHAR", "DIMENSIONS NCHAR=2000000000;", "NCHAR must not exceed 4194304, but found 2000000000"},
		{"Huge NEWTAXA NTAX", "DIMENSIONS NEWTAXA NTAX=5000000 NCHAR=1;", "NTAX must not exceed 4194304, but found 5000000"},
		{"TAXLABELS without NEWTAXA", "DIMENSIONS NCHAR=1; TAXLABELS A;", "TAXLABELS may only appear in a CHARACTERS block if NEWTAXA was given"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := readNexus(twoTaxa + "BEGIN CHARACTERS; " + tt.body + " END;")
			expectError(t, err, tt.message)
		})
	}
}

func TestFormatErrors(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		message string
	}{
		{"RESPECTCASE late", `MISSING=? RESPECTCASE`, "RESPECTCASE must precede MISSING, GAP, SYMBOLS and MATCHCHAR"},
		{"DATATYPE late", `SYMBOLS="01" DATATYPE=DNA`, "DATATYPE must precede SYMBOLS, EQUATE, ITEMS and STATESFORMAT"},
		{"Unknown DATATYPE", `DATATYPE=MORPH`, "'MORPH' is not a valid DATATYPE"},
		{"DNA tokens", `DATATYPE=DNA TOKENS`, "TOKENS is not allowed for DNA data"},
		{"Continuous without tokens", `DATATYPE=CONTINUOUS`, "TOKENS must be specified for CONTINUOUS data"},
		{"Continuous symbols", `DATATYPE=CONTINUOUS TOKENS SYMBOLS="01"`, "SYMBOLS is not allowed for CONTINUOUS data"},
		{"Continuous equate", `DATATYPE=CONTINUOUS TOKENS EQUATE="X=1"`, "EQUATE is not allowed for CONTINUOUS data"},
		{"Punctuation missing", `MISSING=;`, "';' cannot be used as the MISSING symbol"},
		{"Long gap", `GAP=ab`, "GAP must be a single character"},
		{"Same special symbols", `GAP=?`, "MISSING and GAP cannot both be '?'"},
		{"Special symbol is a state", `SYMBOLS="0 1 ?"`, "MISSING symbol '?' is also a state symbol"},
		{"Duplicate symbol", `SYMBOLS="0 1 0"`, "symbol '0' is listed more than once in SYMBOLS"},
		{"Default DNA symbol", `DATATYPE=DNA SYMBOLS="a"`, "symbol 'a' is already a default symbol for DNA data"},
		{"Equate of a state", `EQUATE="0=1"`, "state symbol '0' cannot be used as an EQUATE symbol"},
		{"Equate caret", `EQUATE="^=1"`, "'^' cannot be used as an EQUATE symbol"},
		{"Equate punctuation", `EQUATE="*=1"`, "punctuation '*' cannot be used as an EQUATE symbol"},
		{"Equate missing", `EQUATE="?=1"`, "symbol '?' cannot be used as an EQUATE symbol"},
		{"Equate without value", `EQUATE="X="`, "EQUATE symbol 'X' has no value"},
		{"Transposed interleave", `TRANSPOSE INTERLEAVE`, "TRANSPOSE and INTERLEAVE cannot be combined"},
		{"Discrete items", `ITEMS=MIN`, "only ITEMS=STATES is supported for discrete data"},
		{"Discrete statesformat", `STATESFORMAT=INDIVIDUALS`, "only STATESFORMAT=STATESPRESENT is supported for discrete data"},
		{"Continuous items", `DATATYPE=CONTINUOUS TOKENS ITEMS=(MIN COLOUR)`, "'COLOUR' is not a recognised ITEMS value for CONTINUOUS data"},
		{"Interleave value", `INTERLEAVE=MAYBE`, "expecting YES or NO after INTERLEAVE=, but found 'MAYBE' instead"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := twoTaxa + "BEGIN CHARACTERS; DIMENSIONS NCHAR=1; FORMAT " + tt.format + "; END;"
			_, _, _, err := readNexus(input)
			expectError(t, err, tt.message)
		})
	}
}

func TestFormatSettings(t *testing.T) {
	input := twoTaxa + `BEGIN CHARACTERS;
  DIMENSIONS NCHAR=1;
  FORMAT DATATYPE=DNA RESPECTCASE MISSING=? GAP=- MATCHCHAR=. SYMBOLS="0 1"
    EQUATE="Q={AC} q=(GT)" NOLABELS INTERLEAVE=NO TRANSPOSE=YES FOO=bar NOTOKENS;
END;`
	_, _, chars, err := readNexus(input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if chars.Datatype() != DNA {
		t.Errorf("Expected DNA, got %s", chars.Datatype())
	}
	if chars.Symbols() != "ACGT01" {
		t.Errorf("Expected symbols 'ACGT01', got '%s'", chars.Symbols())
	}
	if !chars.RespectCase() || chars.IsInterleaved() || !chars.IsTransposed() || chars.IsTokens() {
		t.Errorf("Unexpected flags: respectcase=%v interleave=%v transpose=%v tokens=%v",
			chars.RespectCase(), chars.IsInterleaved(), chars.IsTransposed(), chars.IsTokens())
	}
	if chars.Missing() != '?' || chars.Gap() != '-' || chars.MatchChar() != '.' {
		t.Errorf("Unexpected special symbols %c %c %c", chars.Missing(), chars.Gap(), chars.MatchChar())
	}
	if v, ok := chars.Equate('Q'); !ok || v != "{AC}" {
		t.Errorf("Expected Q={AC}, got '%s'", v)
	}
	if v, ok := chars.Equate('q'); !ok || v != "(GT)" {
		t.Errorf("Expected q=(GT), got '%s'", v)
	}
	if v, ok := chars.Equate('n'); !ok || v != "{ACGT}" {
		t.Errorf("Expected the default equate n={ACGT}, got '%s'", v)
	}
}

func TestSymbolsAreDefaultsPlusAdditions(t *testing.T) {
	tests := []struct {
		datatype string
		symbols  string
		expected string
	}{
		{"STANDARD", "", "01"},
		{"STANDARD", "0 1 2", "012"},
		{"DNA", "", "ACGT"},
		{"DNA", "0", "ACGT0"},
		{"RNA", "", "ACGU"},
		{"PROTEIN", "", "ACDEFGHIKLMNPQRSTVWY*"},
		{"PROTEIN", "0 1", "ACDEFGHIKLMNPQRSTVWY*01"},
	}

	for _, tt := range tests {
		t.Run(tt.datatype+"/"+tt.symbols, func(t *testing.T) {
			format := "DATATYPE=" + tt.datatype
			if tt.symbols != "" {
				format += ` SYMBOLS="` + tt.symbols + `"`
			}
			input := twoTaxa + "BEGIN CHARACTERS; DIMENSIONS NCHAR=1; FORMAT " + format + "; END;"
			_, _, chars, err := readNexus(input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if chars.Symbols() != tt.expected {
				t.Errorf("Expected symbols '%s', got '%s'", tt.expected, chars.Symbols())
			}
		})
	}
}

func TestSymbolBudget(t *testing.T) {
	var many []rune
	for r := rune(0x4E00); len(many) < 56; r++ {
		many = append(many, r)
	}
	input := twoTaxa + "BEGIN CHARACTERS; DIMENSIONS NCHAR=1; FORMAT DATATYPE=PROTEIN SYMBOLS=\"" + string(many) + "\"; END;"
	_, _, _, err := readNexus(input)
	expectError(t, err, "too many symbols: at most 55 may be added for PROTEIN data")
}

func TestEliminate(t *testing.T) {
	input := twoTaxa + `BEGIN CHARACTERS;
  DIMENSIONS NCHAR=10;
  ELIMINATE 3-5;
  FORMAT SYMBOLS="01";
  MATRIX
    A 0101010101
    B 1010101010
  ;
END;`
	_, taxa, chars, err := readNexus(input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if chars.NChar() != 7 || chars.NCharTotal() != 10 {
		t.Fatalf("Expected nchar=7 of 10, got %d of %d", chars.NChar(), chars.NCharTotal())
	}

	active := []int{0, 1, 5, 6, 7, 8, 9}
	for want, i := range active {
		got, ok := chars.CharPos(i)
		if !ok || got != want {
			t.Errorf("Expected CharPos(%d) = %d, got %d (%v)", i, want, got, ok)
		}
	}
	for _, i := range []int{2, 3, 4} {
		if !chars.IsEliminated(i) {
			t.Errorf("Expected character %d to be eliminated", i)
		}
		if _, ok := chars.CharPos(i); ok {
			t.Errorf("Expected no position for eliminated character %d", i)
		}
	}

	characters := chars.Characters()
	if len(characters) != 10 || !characters[3].Eliminated || characters[5].Eliminated {
		t.Errorf("Expected eliminated characters to be kept as flagged placeholders")
	}
	if len(chars.Cells()) != 14 {
		t.Errorf("Expected 14 cells, got %d", len(chars.Cells()))
	}
	m := chars.Matrix()
	if got := strings.Join(m.Row(taxa.TaxonID(0)), ""); got != "0110101" {
		t.Errorf("Expected active row '0110101', got '%s'", got)
	}
}

func TestEliminateOrdering(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"After labels", "DIMENSIONS NCHAR=3; CHARLABELS a b c; ELIMINATE 1;", "ELIMINATE must precede CHARLABELS"},
		{"Twice", "DIMENSIONS NCHAR=3; ELIMINATE 1; ELIMINATE 2;", "only one ELIMINATE command is allowed"},
		{"Before NCHAR", "ELIMINATE 1;", "NCHAR must be specified before ELIMINATE"},
		{"Out of range", "DIMENSIONS NCHAR=3; ELIMINATE 2-4;", "set range 2-4 is invalid (1-3)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := readNexus(twoTaxa + "BEGIN CHARACTERS; " + tt.body + " END;")
			expectError(t, err, tt.message)
		})
	}
}

func TestCharLabels(t *testing.T) {
	input := twoTaxa + `BEGIN CHARACTERS;
  DIMENSIONS NCHAR=3;
  FORMAT SYMBOLS="012";
  CHARLABELS wings legs 'eye colour';
  STATELABELS 1 absent present, 3 red green blue;
  MATRIX A 012 B 210;
END;`
	_, _, chars, err := readNexus(input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	characters := chars.Characters()
	names := []string{"wings", "legs", "eye colour"}
	for i, name := range names {
		if characters[i].Name != name {
			t.Errorf("Expected character %d to be '%s', got '%s'", i, name, characters[i].Name)
		}
	}
	if len(characters[0].States) != 2 || characters[0].States[1].Name != "present" || characters[0].States[1].Symbol != "1" {
		t.Errorf("Unexpected states for wings: %+v", characters[0].States)
	}
	if len(characters[1].States) != 0 {
		t.Errorf("Expected no states for legs, got %+v", characters[1].States)
	}
	if s, ok := characters[2].StateNamed("BLUE"); !ok || s.Symbol != "2" {
		t.Errorf("Expected blue to be symbol 2, got %+v", s)
	}
	if characters[0].ID == characters[1].ID {
		t.Errorf("Expected distinct character IDs")
	}
}

func TestCharStateLabels(t *testing.T) {
	input := twoTaxa + `BEGIN CHARACTERS;
  DIMENSIONS NCHAR=4;
  FORMAT SYMBOLS="01";
  CHARSTATELABELS
    1 wings / absent present,
    3 / small large,
    4 tail;
  MATRIX A 0101 B 1010;
END;`
	_, _, chars, err := readNexus(input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	characters := chars.Characters()
	names := []string{"wings", "Character 2", "Character 3", "tail"}
	for i, name := range names {
		if characters[i].Name != name {
			t.Errorf("Expected character %d to be '%s', got '%s'", i, name, characters[i].Name)
		}
	}
	if len(characters[2].States) != 2 || characters[2].States[0].Name != "small" || characters[2].States[0].Symbol != "0" {
		t.Errorf("Unexpected states for character 3: %+v", characters[2].States)
	}
}

func TestLabelErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"Too many CHARLABELS", "DIMENSIONS NCHAR=2; CHARLABELS a b c;", "number of character labels exceeds NCHAR (2)"},
		{"CHARSTATELABELS out of order", "DIMENSIONS NCHAR=3; CHARSTATELABELS 2 b, 1 a;", "character number 1 in CHARSTATELABELS is out of order or out of range (1-3)"},
		{"CHARSTATELABELS out of range", "DIMENSIONS NCHAR=3; CHARSTATELABELS 4 d;", "character number 4 in CHARSTATELABELS is out of order or out of range"},
		{"CHARSTATELABELS not a number", "DIMENSIONS NCHAR=3; CHARSTATELABELS a;", "expecting a character number in CHARSTATELABELS, but found 'a' instead"},
		{"Too many state labels", "DIMENSIONS NCHAR=1; CHARSTATELABELS 1 a / x y z;", "too many state labels for character 1: only 2 symbols are defined"},
		{"STATELABELS without CHARLABELS", "DIMENSIONS NCHAR=2; STATELABELS 1 x y;", "STATELABELS requires CHARLABELS to define all 2 characters first"},
		{"STATELABELS for continuous", "DIMENSIONS NCHAR=1; FORMAT DATATYPE=CONTINUOUS TOKENS; CHARLABELS a; STATELABELS 1 x;", "STATELABELS is not allowed for CONTINUOUS data"},
		{"Labels twice", "DIMENSIONS NCHAR=1; CHARLABELS a; CHARLABELS b;", "character labels have already been defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := readNexus(twoTaxa + "BEGIN CHARACTERS; " + tt.body + " END;")
			expectError(t, err, tt.message)
		})
	}
}
