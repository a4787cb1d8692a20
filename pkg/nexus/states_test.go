package nexus

import (
	"testing"

	"github.com/spicery/nexus-reader/pkg/matrix"
	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

func newStateBlock(d Datatype) *CharactersBlock {
	b := NewCharactersBlock(NewTaxaBlock(), nil)
	b.attach(tokenizer.New(""), nil)
	b.setDatatype(d)
	if d == Standard {
		b.alphabet = []rune("0123")
	}
	b.gap = '-'
	return b
}

func TestDecodeState(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
		kind     matrix.CellKind
	}{
		{"0", "0", matrix.Single},
		{"?", "?", matrix.Missing},
		{"-", "-", matrix.Gap},
		{"(01)", "(01)", matrix.Polymorphic},
		{"{0 1}", "{01}", matrix.Uncertain},
		{"01", "(01)", matrix.Polymorphic},
		{"(0~3)", "(0123)", matrix.Polymorphic},
		{"{1,2}", "{12}", matrix.Uncertain},
		{"(30)", "(30)", matrix.Polymorphic},
		{"(00)", "(0)", matrix.Polymorphic},
	}

	b := newStateBlock(Standard)
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cell, err := b.decodeState(tt.raw, 0, 0)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if cell.State != tt.expected || cell.Kind != tt.kind {
				t.Errorf("Expected %s '%s', got %s '%s'", tt.kind, tt.expected, cell.Kind, cell.State)
			}
		})
	}
}

func TestDecodeStateErrors(t *testing.T) {
	tests := []struct {
		raw     string
		message string
	}{
		{"9", "state '9' not found in list of valid symbols, for taxon 1, character 1"},
		{"", "attempt to set state to Gap without using the Gap symbol"},
		{"()", "empty polymorphic or uncertain state"},
		{"(0?)", "the MISSING, GAP or MATCHCHAR symbol '?' cannot appear inside a polymorphic or uncertain state"},
		{"{1-}", "the MISSING, GAP or MATCHCHAR symbol '-' cannot appear"},
		{"(~1)", "a state range must not begin with '~'"},
		{"(0~)", "a state range must not end with '~'"},
		{"(3~1)", "state range 3~1 runs backwards"},
		{"(0~9)", "state '9' not found"},
	}

	b := newStateBlock(Standard)
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := b.decodeState(tt.raw, 0, 0)
			expectError(t, err, tt.message)
		})
	}
}

func TestDecodeNucleotides(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
		kind     matrix.CellKind
	}{
		{"a", "A", matrix.Single},
		{"T", "T", matrix.Single},
		{"n", "{ACGT}", matrix.Uncertain},
		{"R", "{AG}", matrix.Uncertain},
		{"(ag)", "(AG)", matrix.Polymorphic},
	}

	b := newStateBlock(DNA)
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cell, err := b.decodeState(tt.raw, 0, 0)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if cell.State != tt.expected || cell.Kind != tt.kind {
				t.Errorf("Expected %s '%s', got %s '%s'", tt.kind, tt.expected, cell.Kind, cell.State)
			}
		})
	}

	if _, err := b.decodeState("U", 0, 0); err == nil {
		t.Errorf("Expected U to be rejected for DNA")
	}
}

func TestRespectCase(t *testing.T) {
	b := newStateBlock(Standard)
	b.alphabet = []rune("aB")
	b.respectCase = true
	if _, err := b.decodeState("A", 0, 0); err == nil {
		t.Errorf("Expected 'A' to be rejected when case is respected")
	}
	b.respectCase = false
	cell, err := b.decodeState("A", 0, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cell.State != "a" {
		t.Errorf("Expected the stored symbol 'a', got '%s'", cell.State)
	}
}

func TestApplyEquates(t *testing.T) {
	b := newStateBlock(Standard)
	b.addEquate('x', "(01)")
	b.addEquate('y', "x")
	tests := []struct {
		raw      string
		expected string
	}{
		{"x", "(01)"},
		{"X", "(01)"},
		{"y", "x"},
		{"0", "0"},
	}
	for _, tt := range tests {
		if got := b.applyEquates(tt.raw); got != tt.expected {
			t.Errorf("Expected '%s' to become '%s', got '%s'", tt.raw, tt.expected, got)
		}
	}
}
