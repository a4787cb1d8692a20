package nexus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Datatype is the alphabet of a CHARACTERS block.
type Datatype int

const (
	Standard Datatype = iota
	DNA
	RNA
	Nucleotide
	Protein
	Continuous
)

var datatypeNames = []string{"STANDARD", "DNA", "RNA", "NUCLEOTIDE", "PROTEIN", "CONTINUOUS"}

func (d Datatype) String() string {
	if int(d) < len(datatypeNames) {
		return datatypeNames[d]
	}
	return "UNKNOWN"
}

// ParseDatatype looks a DATATYPE name up, ignoring case.
func ParseDatatype(s string) (Datatype, bool) {
	for i, name := range datatypeNames {
		if strings.EqualFold(name, s) {
			return Datatype(i), true
		}
	}
	return Standard, false
}

// maxSymbols is the total symbol budget of a CHARACTERS block.
const maxSymbols = 76

// reservedSymbols is how much of the budget the datatype's defaults take.
func (d Datatype) reservedSymbols() int {
	switch d {
	case DNA, RNA, Nucleotide:
		return 4
	case Protein:
		return 21
	default:
		return 0
	}
}

func (d Datatype) isNucleotide() bool {
	return d == DNA || d == RNA || d == Nucleotide
}

// SymbolsFile represents the structure of a YAML or TOML symbols file.
type SymbolsFile struct {
	Datatype []DatatypeRule `yaml:"datatype" toml:"datatype"`
}

// DatatypeRule gives the default symbols and equates of one datatype.
type DatatypeRule struct {
	Name    string       `yaml:"name" toml:"name"`
	Symbols string       `yaml:"symbols" toml:"symbols"`
	Equate  []EquateRule `yaml:"equate,omitempty" toml:"equate,omitempty"`
}

// EquateRule represents one symbol substitution, e.g. N = {ACGT}.
type EquateRule struct {
	Symbol string `yaml:"symbol" toml:"symbol"`
	Value  string `yaml:"value" toml:"value"`
}

// SymbolSet is the resolved default alphabet of a datatype.
type SymbolSet struct {
	Symbols string
	Equates []EquateRule
}

// SymbolTable holds the default symbol set for every datatype.
type SymbolTable struct {
	sets map[Datatype]SymbolSet
}

// Lookup returns the default symbols and equates for a datatype.
func (st *SymbolTable) Lookup(d Datatype) SymbolSet {
	return st.sets[d]
}

func iupacNucleotideEquates(t string) []EquateRule {
	return []EquateRule{
		{"R", "{AG}"},
		{"Y", "{C" + t + "}"},
		{"M", "{AC}"},
		{"K", "{G" + t + "}"},
		{"S", "{CG}"},
		{"W", "{A" + t + "}"},
		{"H", "{AC" + t + "}"},
		{"B", "{CG" + t + "}"},
		{"V", "{ACG}"},
		{"D", "{AG" + t + "}"},
		{"N", "{ACG" + t + "}"},
		{"X", "{ACG" + t + "}"},
	}
}

const proteinSymbols = "ACDEFGHIKLMNPQRSTVWY*"

// DefaultSymbolTable returns the built-in IUPAC symbol tables.
func DefaultSymbolTable() *SymbolTable {
	return &SymbolTable{sets: map[Datatype]SymbolSet{
		Standard:   {Symbols: "01"},
		DNA:        {Symbols: "ACGT", Equates: iupacNucleotideEquates("T")},
		RNA:        {Symbols: "ACGU", Equates: iupacNucleotideEquates("U")},
		Nucleotide: {Symbols: "ACGT", Equates: iupacNucleotideEquates("T")},
		Protein: {Symbols: proteinSymbols, Equates: []EquateRule{
			{"B", "{DN}"},
			{"Z", "{EQ}"},
			{"X", "{" + proteinSymbols + "}"},
		}},
		Continuous: {},
	}}
}

// File converts the table back into its file representation.
func (st *SymbolTable) File() *SymbolsFile {
	f := &SymbolsFile{}
	for i, name := range datatypeNames {
		set := st.sets[Datatype(i)]
		f.Datatype = append(f.Datatype, DatatypeRule{
			Name:    name,
			Symbols: set.Symbols,
			Equate:  set.Equates,
		})
	}
	return f
}

// LoadSymbolsFile loads a symbols file. The format is chosen by extension:
// .toml is TOML, anything else is YAML.
func LoadSymbolsFile(filename string) (*SymbolsFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols file '%s': %w", filename, err)
	}

	var file SymbolsFile
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML in symbols file '%s': %w", filename, err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML in symbols file '%s': %w", filename, err)
		}
	}
	return &file, nil
}

// ApplySymbolsToDefaults overlays the datatypes named in a symbols file on
// the built-in table. Returns an error if a rule is inconsistent.
func ApplySymbolsToDefaults(file *SymbolsFile) (*SymbolTable, error) {
	table := DefaultSymbolTable()

	for _, rule := range file.Datatype {
		d, ok := ParseDatatype(rule.Name)
		if !ok {
			return nil, fmt.Errorf("unknown datatype '%s' in symbols file", rule.Name)
		}
		symbols := strings.Join(strings.Fields(rule.Symbols), "")
		if utf8.RuneCountInString(symbols) > maxSymbols {
			return nil, fmt.Errorf("datatype %s defines more than %d symbols", d, maxSymbols)
		}
		seen := make(map[rune]bool)
		for _, r := range symbols {
			if seen[r] {
				return nil, fmt.Errorf("symbol '%c' is listed twice for datatype %s", r, d)
			}
			seen[r] = true
		}
		for _, eq := range rule.Equate {
			if utf8.RuneCountInString(eq.Symbol) != 1 {
				return nil, fmt.Errorf("equate symbol '%s' for datatype %s must be a single character", eq.Symbol, d)
			}
			r, _ := utf8.DecodeRuneInString(eq.Symbol)
			if seen[r] {
				return nil, fmt.Errorf("equate symbol '%s' for datatype %s is already a state symbol", eq.Symbol, d)
			}
			if eq.Value == "" {
				return nil, fmt.Errorf("equate symbol '%s' for datatype %s has no value", eq.Symbol, d)
			}
		}
		table.sets[d] = SymbolSet{Symbols: symbols, Equates: rule.Equate}
	}

	return table, nil
}
