// Package matrix holds the taxon, character and cell values that a parsed
// CHARACTERS block is handed over as. Consumers treat them as read-only.
package matrix

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// CellKind classifies a matrix cell. Exactly one kind holds per cell.
type CellKind int

const (
	Single CellKind = iota
	Missing
	Gap
	MatchChar
	Polymorphic
	Uncertain
)

var cellKindNames = map[CellKind]string{
	Single:      "single",
	Missing:     "missing",
	Gap:         "gap",
	MatchChar:   "matchchar",
	Polymorphic: "polymorphic",
	Uncertain:   "uncertain",
}

func (k CellKind) String() string {
	if name, ok := cellKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseCellKind is the inverse of CellKind.String.
func ParseCellKind(s string) (CellKind, error) {
	for k, name := range cellKindNames {
		if name == s {
			return k, nil
		}
	}
	return Single, fmt.Errorf("unknown cell kind '%s'", s)
}

func (k CellKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Taxon is one row of the matrix.
type Taxon struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Notes   string `json:"notes,omitempty"`
	Enabled bool   `json:"enabled"`
}

// State is a named state of a character. Its index in the character's state
// list is the index of Symbol in the symbols list.
type State struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Notes  string `json:"notes,omitempty"`
}

// Character is one column of the matrix.
type Character struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Notes      string  `json:"notes,omitempty"`
	Enabled    bool    `json:"enabled"`
	Eliminated bool    `json:"eliminated,omitempty"`
	Ordered    bool    `json:"ordered,omitempty"`
	States     []State `json:"states,omitempty"`
}

// StateNamed returns the state whose name matches, ignoring case.
func (c *Character) StateNamed(name string) (State, bool) {
	for _, s := range c.States {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return State{}, false
}

// CellKey addresses a cell by taxon and character ID.
type CellKey struct {
	TaxonID     int
	CharacterID int
}

// Cell is one matrix entry. Polymorphic and uncertain cells carry every
// symbol in State, bracketed.
type Cell struct {
	State string   `json:"state"`
	Notes string   `json:"notes,omitempty"`
	Kind  CellKind `json:"kind"`
}

func (c Cell) IsMissing() bool     { return c.Kind == Missing }
func (c Cell) IsGap() bool         { return c.Kind == Gap }
func (c Cell) IsMatchChar() bool   { return c.Kind == MatchChar }
func (c Cell) IsPolymorphic() bool { return c.Kind == Polymorphic }
func (c Cell) IsUncertain() bool   { return c.Kind == Uncertain }

// Matrix is the complete result of one CHARACTERS block.
type Matrix struct {
	ID         string           `json:"id,omitempty"`
	Title      string           `json:"title,omitempty"`
	Datatype   string           `json:"datatype"`
	Symbols    string           `json:"symbols,omitempty"`
	Taxa       []Taxon          `json:"taxa"`
	Characters []Character      `json:"characters"`
	Cells      map[CellKey]Cell `json:"-"`
}

// Cell returns the cell for a taxon and character ID.
func (m *Matrix) Cell(taxonID, characterID int) (Cell, bool) {
	c, ok := m.Cells[CellKey{TaxonID: taxonID, CharacterID: characterID}]
	return c, ok
}

// SortedKeys returns the cell keys in taxon, then character order.
func (m *Matrix) SortedKeys() []CellKey {
	keys := make([]CellKey, 0, len(m.Cells))
	for k := range m.Cells {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b CellKey) int {
		if a.TaxonID != b.TaxonID {
			return a.TaxonID - b.TaxonID
		}
		return a.CharacterID - b.CharacterID
	})
	return keys
}

type cellRecord struct {
	Taxon     int      `json:"taxon"`
	Character int      `json:"character"`
	State     string   `json:"state"`
	Kind      CellKind `json:"kind"`
	Notes     string   `json:"notes,omitempty"`
}

// MarshalJSON writes the sparse cell grid as a sorted list.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	type plain Matrix
	cells := make([]cellRecord, 0, len(m.Cells))
	for _, k := range m.SortedKeys() {
		c := m.Cells[k]
		cells = append(cells, cellRecord{
			Taxon:     k.TaxonID,
			Character: k.CharacterID,
			State:     c.State,
			Kind:      c.Kind,
			Notes:     c.Notes,
		})
	}
	return json.Marshal(struct {
		*plain
		Cells []cellRecord `json:"cells"`
	}{(*plain)(m), cells})
}

// Row renders a taxon's cells in character order, one state per character.
func (m *Matrix) Row(taxonID int) []string {
	row := make([]string, 0, len(m.Characters))
	for _, c := range m.Characters {
		if c.Eliminated {
			continue
		}
		if cell, ok := m.Cell(taxonID, c.ID); ok {
			row = append(row, cell.State)
		} else {
			row = append(row, "")
		}
	}
	return row
}
