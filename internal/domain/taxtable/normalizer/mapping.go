package normalizer

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/sniffer"
)

//go:embed mappings.yaml
var defaultMappings []byte

// SideSource names where the sales/purchases side of a record is read from.
type SideSource string

const (
	SourceColumn  SideSource = "column"
	SourceLabel   SideSource = "label"
	SourceSection SideSource = "section"
	SourceSheet   SideSource = "sheet"
	SourceAccount SideSource = "account"
)

// SideRules resolves the side of a record from its context.
type SideRules struct {
	Order     []SideSource  `yaml:"order"`
	Sales     []string      `yaml:"sales"`
	Purchases []string      `yaml:"purchases"`
	Default   taxtable.Side `yaml:"default"`
}

// Rule maps any label containing one of the phrases to a category.
type Rule struct {
	Any      []string             `yaml:"any"`
	Category taxtable.TaxCategory `yaml:"category"`
}

// Table is the classification table of one vendor.
type Table struct {
	Side   SideRules                       `yaml:"side"`
	Labels map[string]taxtable.TaxCategory `yaml:"labels"`
	Rules  []Rule                          `yaml:"rules"`
}

// Tables holds a table per vendor.
type Tables map[taxtable.Vendor]*Table

type tablesFile struct {
	Vendors map[string]*Table `yaml:"vendors"`
}

// DefaultTables returns the built-in tables.
func DefaultTables() Tables {
	t, err := LoadTables(bytes.NewReader(defaultMappings))
	if err != nil {
		panic(fmt.Sprintf("normalizer: embedded mappings: %v", err))
	}
	return t
}

// LoadTablesFile reads tables from a YAML file on disk.
func LoadTablesFile(path string) (Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping file: %w", err)
	}
	defer f.Close()
	return LoadTables(f)
}

// LoadTables decodes and validates mapping tables. Label keys and keywords are
// folded so lookups are insensitive to width and spacing.
func LoadTables(r io.Reader) (Tables, error) {
	var file tablesFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode mapping tables: %w", err)
	}
	if len(file.Vendors) == 0 {
		return nil, fmt.Errorf("mapping tables define no vendors")
	}

	tables := make(Tables, len(file.Vendors))
	for name, t := range file.Vendors {
		vendor, err := taxtable.ParseVendor(name)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("vendor %s: empty table", name)
		}
		if err := t.compile(); err != nil {
			return nil, fmt.Errorf("vendor %s: %w", name, err)
		}
		tables[vendor] = t
	}
	return tables, nil
}

// Merge returns a copy of t with the vendors of override replacing its own.
func (t Tables) Merge(override Tables) Tables {
	out := make(Tables, len(t)+len(override))
	for v, table := range t {
		out[v] = table
	}
	for v, table := range override {
		out[v] = table
	}
	return out
}

func (t *Table) compile() error {
	labels := make(map[string]taxtable.TaxCategory, len(t.Labels))
	for label, c := range t.Labels {
		if _, err := taxtable.ParseCategory(string(c)); err != nil {
			return fmt.Errorf("label %q: %w", label, err)
		}
		labels[sniffer.Fold(label)] = c
	}
	t.Labels = labels

	// aliased YAML nodes decode into shared slices, so rules are rebuilt
	rules := make([]Rule, 0, len(t.Rules))
	for i, r := range t.Rules {
		if _, err := taxtable.ParseCategory(string(r.Category)); err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
		if len(r.Any) == 0 {
			return fmt.Errorf("rule %d: no phrases", i+1)
		}
		rules = append(rules, Rule{Any: foldAll(r.Any), Category: r.Category})
	}
	t.Rules = rules

	for _, src := range t.Side.Order {
		switch src {
		case SourceColumn, SourceLabel, SourceSection, SourceSheet, SourceAccount:
		default:
			return fmt.Errorf("unknown side source %q", src)
		}
	}
	switch t.Side.Default {
	case "", taxtable.SideSales, taxtable.SidePurchases:
	default:
		return fmt.Errorf("unknown default side %q", t.Side.Default)
	}
	t.Side.Sales = foldAll(t.Side.Sales)
	t.Side.Purchases = foldAll(t.Side.Purchases)
	return nil
}

// Classify maps a raw tax label to a category. The second result is false when
// neither the label table nor any rule matched.
func (t *Table) Classify(label string) (taxtable.TaxCategory, bool) {
	key := sniffer.Fold(label)
	if key == "" {
		return taxtable.CategoryUnclassified, false
	}
	if c, ok := t.Labels[key]; ok {
		return c, true
	}
	for _, r := range t.Rules {
		if containsAny(key, r.Any) {
			return r.Category, true
		}
	}
	return taxtable.CategoryUnclassified, false
}

// sideOf returns the side whose keywords, and only whose keywords, appear in text.
func (s SideRules) sideOf(text string) (taxtable.Side, bool) {
	key := sniffer.Fold(text)
	if key == "" {
		return "", false
	}
	sales := containsAny(key, s.Sales)
	purchases := containsAny(key, s.Purchases)
	switch {
	case sales && !purchases:
		return taxtable.SideSales, true
	case purchases && !sales:
		return taxtable.SidePurchases, true
	}
	return "", false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func foldAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = sniffer.Fold(s)
	}
	return out
}
