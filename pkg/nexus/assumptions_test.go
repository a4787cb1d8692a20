package nexus

import (
	"reflect"
	"testing"
)

const assumptionsMatrix = twoTaxa + `BEGIN CHARACTERS;
  DIMENSIONS NCHAR=4;
  FORMAT SYMBOLS="01";
  CHARLABELS a b c d;
  MATRIX A 0101 B 1010;
END;
`

func TestAssumptionsBlock(t *testing.T) {
	input := assumptionsMatrix + `BEGIN ASSUMPTIONS;
  OPTIONS DEFTYPE=ord POLYTCOUNT=MAXSTEPS GAPMODE=NEWSTATE;
  TYPESET * mine = ord: 1-4;
  CHARSET first (STANDARD) = 1-2;
  CHARSET labelled = b d;
  TAXSET pair = A-B;
  EXSET * dropped = 3 4;
END;`
	r, _, _, err := readNexus(input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	used := r.UsedBlocks("ASSUMPTIONS")
	if len(used) != 1 {
		t.Fatalf("Expected 1 ASSUMPTIONS block, got %d", len(used))
	}
	a := used[0].(*AssumptionsBlock)

	if a.DefType() != "ORD" || a.PolyTCount() != "MAXSTEPS" || a.GapMode() != "NEWSTATE" {
		t.Errorf("Unexpected options: %s %s %s", a.DefType(), a.PolyTCount(), a.GapMode())
	}

	sets := []struct {
		name     string
		get      func(string) (IndexSet, bool)
		expected []int
	}{
		{"first", a.CharSet, []int{0, 1}},
		{"LABELLED", a.CharSet, []int{1, 3}},
		{"pair", a.TaxSet, []int{0, 1}},
		{"dropped", a.ExSet, []int{2, 3}},
	}
	for _, tt := range sets {
		s, ok := tt.get(tt.name)
		if !ok {
			t.Errorf("Expected set '%s' to be defined", tt.name)
			continue
		}
		if got := s.Sorted(); !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("Set '%s': expected %v, got %v", tt.name, tt.expected, got)
		}
	}
	if a.DefaultExSet() != "DROPPED" {
		t.Errorf("Expected default EXSET 'DROPPED', got '%s'", a.DefaultExSet())
	}
	if names := a.CharSetNames(); !reflect.DeepEqual(names, []string{"FIRST", "LABELLED"}) {
		t.Errorf("Unexpected CHARSET names: %v", names)
	}

	res := r.Result()
	for _, c := range res.Matrices[0].Characters {
		if !c.Ordered {
			t.Errorf("Expected character '%s' to be ordered", c.Name)
		}
	}
}

func TestAssumptionsDefaults(t *testing.T) {
	a := NewAssumptionsBlock(NewTaxaBlock(), nil)
	if a.DefType() != "UNORD" || a.PolyTCount() != "MINSTEPS" || a.GapMode() != "MISSING" {
		t.Errorf("Unexpected defaults: %s %s %s", a.DefType(), a.PolyTCount(), a.GapMode())
	}
	if _, ok := a.CharSet("any"); ok {
		t.Errorf("Expected no sets in a new block")
	}
}

func TestAssumptionsErrors(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		body    string
		message string
	}{
		{"Bad DEFTYPE", assumptionsMatrix, "OPTIONS DEFTYPE=sideways;", "'sideways' is not a valid DEFTYPE"},
		{"Bad POLYTCOUNT", assumptionsMatrix, "OPTIONS POLYTCOUNT=often;", "POLYTCOUNT must be MINSTEPS or MAXSTEPS"},
		{"Bad GAPMODE", assumptionsMatrix, "OPTIONS GAPMODE=fifth;", "GAPMODE must be MISSING or NEWSTATE"},
		{"VECTOR format", assumptionsMatrix, "CHARSET v (VECTOR) = 1 0 1 0;", "only the STANDARD format is supported for CHARSET"},
		{"Comma", assumptionsMatrix, "CHARSET x = 1, 2;", "expecting ';' to terminate the CHARSET command, but found ',' instead"},
		{"Missing name", assumptionsMatrix, "CHARSET = 1;", "expecting a set name after CHARSET"},
		{"Unknown character", assumptionsMatrix, "CHARSET x = e;", "'e' is neither a number nor a known label"},
		{"No characters yet", twoTaxa, "CHARSET x = 1;", "CHARSET 'x' refers to an empty list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.prefix + "BEGIN ASSUMPTIONS;\n" + tt.body + "\nEND;"
			_, _, _, err := readNexus(input)
			expectError(t, err, tt.message)
		})
	}
}
