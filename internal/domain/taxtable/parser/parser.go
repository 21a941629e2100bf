// Package parser turns uploaded vendor documents into raw line records.
// Documents are decoded once into grids of text cells (PDF pages or
// worksheets); each vendor parser then walks those grids with its own layout
// rules.
package parser

import (
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

// Parser extracts the raw line records of one vendor layout.
//
// Parse returns a *taxtable.ParseError only when the document as a whole does
// not match the layout. Malformed rows are reported as diagnostics and
// skipped; an empty record sequence is valid and carries a warning.
type Parser interface {
	Vendor() taxtable.Vendor
	Accepts(kind taxtable.DocumentKind) bool
	Parse(doc *Document) (taxtable.Outcome[[]taxtable.RawLineRecord], error)
}

// Registry holds one parser per vendor. Detection order comes from the
// sniffer signatures, not from the registry.
type Registry struct {
	parsers []Parser
}

// NewRegistry creates a registry; the first parser of a vendor wins.
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// DefaultRegistry returns the three built-in parsers.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewFreeeParser(),
		NewMoneyForwardParser(),
		NewYayoiParser(),
	)
}

// Get returns the parser for a vendor.
func (r *Registry) Get(v taxtable.Vendor) (Parser, bool) {
	for _, p := range r.parsers {
		if p.Vendor() == v {
			return p, true
		}
	}
	return nil, false
}
