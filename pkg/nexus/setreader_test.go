package nexus

import (
	"reflect"
	"strings"
	"testing"

	"github.com/spicery/nexus-reader/pkg/tokenizer"
)

func testLabels(label string) (int, bool) {
	switch strings.ToUpper(label) {
	case "FIRST":
		return 1, true
	case "LAST":
		return 10, true
	}
	return 0, false
}

func TestSetReader(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    []int
		atSemicolon bool
	}{
		{"Single values", "1 4 10;", []int{0, 3, 9}, true},
		{"Range", "3-5;", []int{2, 3, 4}, true},
		{"Range to max", "8-.;", []int{7, 8, 9}, true},
		{"Modulus", "1-10\\3;", []int{0, 3, 6, 9}, true},
		{"All", "ALL;", []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, true},
		{"Labels", "first last;", []int{0, 9}, true},
		{"Label range", "first-3;", []int{0, 1, 2}, true},
		{"Comma terminated", "2 4, 6;", []int{1, 3}, false},
		{"Overlapping", "1-3 2-4;", []int{0, 1, 2, 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := NewSetReader(tokenizer.New(tt.input), 10, testLabels)
			atSemicolon, err := sr.Run()
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if atSemicolon != tt.atSemicolon {
				t.Errorf("Expected atSemicolon=%v, got %v", tt.atSemicolon, atSemicolon)
			}
			if got := sr.Set.Sorted(); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSetReaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"Zero", "0;", "set member 0 is out of range (1-10)"},
		{"Above max", "11;", "set member 11 is out of range (1-10)"},
		{"Backwards range", "5-3;", "set range 5-3 is invalid (1-10)"},
		{"Range past max", "5-12;", "set range 5-12 is invalid (1-10)"},
		{"Unknown label", "middle;", "'middle' is neither a number nor a known label"},
		{"Bad modulus", "1-5\\0;", "modulus must be a number greater than 0"},
		{"End of file", "1 2", "unexpected end of file in set expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := NewSetReader(tokenizer.New(tt.input), 10, testLabels)
			_, err := sr.Run()
			if err == nil {
				t.Fatalf("Expected error containing '%s', got none", tt.message)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.message, err.Error())
			}
		})
	}
}

func TestSetReaderWithoutLabels(t *testing.T) {
	sr := NewSetReader(tokenizer.New("first;"), 10, nil)
	if _, err := sr.Run(); err == nil {
		t.Errorf("Expected an error for a label without a resolver")
	}
}
