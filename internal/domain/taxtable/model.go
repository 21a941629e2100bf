// Package taxtable holds the canonical types shared by the conversion
// pipeline: vendors, tax categories, raw line records, normalized tax items,
// aggregation results and the diagnostics threaded through every stage.
package taxtable

import (
	"fmt"
	"time"
)

// Vendor identifies one of the supported accounting export formats.
type Vendor string

const (
	VendorFreee        Vendor = "freee"
	VendorMoneyForward Vendor = "moneyforward"
	VendorYayoi        Vendor = "yayoi"
)

// Vendors lists every vendor in detection priority order.
var Vendors = []Vendor{VendorFreee, VendorMoneyForward, VendorYayoi}

// Label returns the display name shown to users.
func (v Vendor) Label() string {
	switch v {
	case VendorFreee:
		return "freee会計"
	case VendorMoneyForward:
		return "マネーフォワード クラウド会計"
	case VendorYayoi:
		return "弥生会計"
	default:
		return "不明"
	}
}

// ParseVendor resolves a vendor tag.
func ParseVendor(s string) (Vendor, error) {
	for _, v := range Vendors {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown vendor %q", s)
}

// DocumentKind is the container format of an uploaded file.
type DocumentKind string

const (
	KindPDF         DocumentKind = "pdf"
	KindSpreadsheet DocumentKind = "spreadsheet"
)

// Side is the transaction side of a line item.
type Side string

const (
	SideSales     Side = "sales"
	SidePurchases Side = "purchases"
)

// Label returns the Japanese name of the side.
func (s Side) Label() string {
	if s == SidePurchases {
		return "仕入"
	}
	return "売上"
}

// TaxCategory is the canonical consumption-tax classification of a line item.
type TaxCategory string

const (
	CategoryStandard     TaxCategory = "standard_10"
	CategoryReduced      TaxCategory = "reduced_8"
	CategoryZeroExempt   TaxCategory = "zero_exempt"
	CategoryNonTaxable   TaxCategory = "non_taxable"
	CategoryUnclassified TaxCategory = "unclassified"
)

// Categories lists every category in display order.
var Categories = []TaxCategory{
	CategoryStandard,
	CategoryReduced,
	CategoryZeroExempt,
	CategoryNonTaxable,
	CategoryUnclassified,
}

// Label returns the label used in previews and CSV output.
func (c TaxCategory) Label() string {
	switch c {
	case CategoryStandard:
		return "標準税率10%"
	case CategoryReduced:
		return "軽減税率8%"
	case CategoryZeroExempt:
		return "免税・非課税"
	case CategoryNonTaxable:
		return "不課税・対象外"
	default:
		return "分類不能"
	}
}

// Taxable reports whether amounts in the category are subject to tax by default.
func (c TaxCategory) Taxable() bool {
	return c == CategoryStandard || c == CategoryReduced || c == CategoryUnclassified
}

// ParseCategory resolves a category tag as written in mapping tables.
func ParseCategory(s string) (TaxCategory, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown tax category %q", s)
}

// SourceRef points at the place in the source document a value came from.
type SourceRef struct {
	Page  int    `json:"page,omitempty"`
	Sheet string `json:"sheet,omitempty"`
	Row   int    `json:"row,omitempty"`
}

func (r SourceRef) String() string {
	switch {
	case r.Sheet != "" && r.Row > 0:
		return fmt.Sprintf("シート「%s」%d行目", r.Sheet, r.Row)
	case r.Page > 0 && r.Row > 0:
		return fmt.Sprintf("%dページ %d行目", r.Page, r.Row)
	case r.Page > 0:
		return fmt.Sprintf("%dページ", r.Page)
	case r.Row > 0:
		return fmt.Sprintf("%d行目", r.Row)
	default:
		return ""
	}
}

// Field names used by the vendor parsers.
const (
	FieldAccount       = "account"
	FieldTaxLabel      = "tax_label"
	FieldAmount        = "amount"
	FieldTaxableAmount = "taxable_amount"
	FieldTaxAmount     = "tax_amount"
	FieldSide          = "side"
)

// Field is one named raw value of a line record.
type Field struct {
	Name  string
	Value string
}

// RawLineRecord is a row as it literally appears in a vendor document.
type RawLineRecord struct {
	Ref     SourceRef
	Fields  []Field
	Section string
}

// Get returns the value of the named field.
func (r RawLineRecord) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces or appends a field, keeping the original field order.
func (r *RawLineRecord) Set(name, value string) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			r.Fields[i].Value = value
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Value: value})
}

// TaxItem is the canonical, vendor-independent line item.
type TaxItem struct {
	AccountName   string      `json:"account_name"`
	Side          Side        `json:"side"`
	Category      TaxCategory `json:"tax_rate"`
	SourceLabel   string      `json:"source_label"`
	Amount        int64       `json:"amount"`
	TaxableAmount int64       `json:"taxable_amount"`
	Anomalous     bool        `json:"anomalous,omitempty"`
	Ref           SourceRef   `json:"ref"`
}

// CategoryTotal is the aggregate of one tax category on one side.
type CategoryTotal struct {
	Category      TaxCategory `json:"category"`
	Label         string      `json:"label"`
	Count         int         `json:"count"`
	TaxableAmount int64       `json:"taxable_amount"`
	Amount        int64       `json:"amount"`
	Accounts      []string    `json:"accounts,omitempty"`
}

// SideSummary groups the category totals of one transaction side.
type SideSummary struct {
	Side         Side            `json:"side"`
	Categories   []CategoryTotal `json:"categories"`
	Count        int             `json:"count"`
	TaxableTotal int64           `json:"taxable_total"`
	AmountTotal  int64           `json:"amount_total"`
}

// Category returns the total for c.
func (s SideSummary) Category(c TaxCategory) CategoryTotal {
	for _, ct := range s.Categories {
		if ct.Category == c {
			return ct
		}
	}
	return CategoryTotal{Category: c, Label: c.Label()}
}

// AggregationResult is derived from a TaxItem sequence and the diagnostics
// collected while producing it.
type AggregationResult struct {
	Sales     SideSummary  `json:"sales"`
	Purchases SideSummary  `json:"purchases"`
	Warnings  []Diagnostic `json:"warnings"`
	Errors    []Diagnostic `json:"errors"`
}

// Metadata is document-level information found in the source text.
type Metadata struct {
	CompanyName string `json:"company_name,omitempty"`
	PeriodStart string `json:"period_start,omitempty"`
	PeriodEnd   string `json:"period_end,omitempty"`
}

// ParsedResult is the outcome of one successful conversion.
type ParsedResult struct {
	Filename    string            `json:"filename"`
	Vendor      Vendor            `json:"vendor"`
	Items       []TaxItem         `json:"items"`
	Aggregation AggregationResult `json:"aggregation"`
	Metadata    Metadata          `json:"metadata"`
	ParsedAt    time.Time         `json:"parsed_at"`
}
