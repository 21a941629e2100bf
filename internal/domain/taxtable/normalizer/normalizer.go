// Package normalizer maps vendor-specific raw line records onto the canonical
// TaxItem model using per-vendor classification tables.
package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/pkg/money"
)

// NoAccount replaces an empty account name.
const NoAccount = "(勘定科目なし)"

// LargeAmount is the absolute amount above which a value is flagged for review.
const LargeAmount int64 = 1_000_000_000

// Normalizer converts raw records of any supported vendor.
type Normalizer struct {
	tables Tables
}

// New creates a normalizer over the given tables.
func New(tables Tables) *Normalizer {
	return &Normalizer{tables: tables}
}

// NewDefault creates a normalizer over the built-in tables.
func NewDefault() *Normalizer {
	return New(DefaultTables())
}

// Normalize converts records in order. Records whose amount or side cannot be
// determined are dropped with an error diagnostic; every other issue keeps
// the item and adds a warning.
//
// A non-numeric amount is therefore reported under errors rather than
// warnings: AggregationResult.Errors lists exactly the dropped rows, and both
// lists are shown to the user side by side in the preview and 処理情報.txt.
func (n *Normalizer) Normalize(vendor taxtable.Vendor, records []taxtable.RawLineRecord) (taxtable.Outcome[[]taxtable.TaxItem], error) {
	var out taxtable.Outcome[[]taxtable.TaxItem]
	table, ok := n.tables[vendor]
	if !ok {
		return out, fmt.Errorf("no mapping table for vendor %q", vendor)
	}

	out.Value = make([]taxtable.TaxItem, 0, len(records))
	for _, rec := range records {
		if item, ok := normalizeRecord(table, rec, &out.Diagnostics); ok {
			out.Value = append(out.Value, item)
		}
	}
	return out, nil
}

func normalizeRecord(t *Table, rec taxtable.RawLineRecord, diags *taxtable.Diagnostics) (taxtable.TaxItem, bool) {
	const stage = taxtable.StageNormalize
	ref := rec.Ref

	rawAmount, _ := rec.Get(taxtable.FieldAmount)
	amount, err := money.ParseYen(rawAmount)
	if err != nil {
		if errors.Is(err, money.ErrEmptyAmount) {
			diags.Error(stage, ref, taxtable.FieldAmount, "金額が空欄のため除外しました")
		} else {
			diags.Error(stage, ref, taxtable.FieldAmount, "金額「%s」を数値として読み取れないため除外しました", rawAmount)
		}
		return taxtable.TaxItem{}, false
	}

	account, _ := rec.Get(taxtable.FieldAccount)
	label, _ := rec.Get(taxtable.FieldTaxLabel)
	label = strings.TrimSpace(label)

	side, ok := t.resolveSide(rec, account, label)
	if !ok {
		diags.Error(stage, ref, taxtable.FieldSide, "売上・仕入の区分を判定できないため除外しました（勘定科目「%s」）", account)
		return taxtable.TaxItem{}, false
	}

	if strings.TrimSpace(account) == "" {
		account = NoAccount
		diags.Warn(stage, ref, taxtable.FieldAccount, "勘定科目が空欄です")
	}

	category, _ := t.Classify(label)
	if category == taxtable.CategoryUnclassified {
		if label == "" {
			diags.Warn(stage, ref, taxtable.FieldTaxLabel, "税区分が空欄のため分類不能として扱います")
		} else {
			diags.Warn(stage, ref, taxtable.FieldTaxLabel, "税区分「%s」を判別できないため分類不能として扱います", label)
		}
	}

	item := taxtable.TaxItem{
		AccountName: account,
		Side:        side,
		Category:    category,
		SourceLabel: label,
		Amount:      amount,
		Ref:         ref,
	}
	if category.Taxable() {
		item.TaxableAmount = amount
	}
	if raw, ok := rec.Get(taxtable.FieldTaxableAmount); ok && strings.TrimSpace(raw) != "" {
		if v, err := money.ParseYen(raw); err == nil {
			item.TaxableAmount = v
		} else {
			diags.Warn(stage, ref, taxtable.FieldTaxableAmount, "課税対象額「%s」を読み取れないため金額から算出しました", raw)
		}
	}

	if abs(item.TaxableAmount) > abs(item.Amount) {
		item.Anomalous = true
		diags.Warn(stage, ref, taxtable.FieldTaxableAmount, "課税対象額 %s が金額 %s を超えています",
			money.FormatYen(item.TaxableAmount), money.FormatYen(item.Amount))
	}
	if amount < 0 {
		diags.Warn(stage, ref, taxtable.FieldAmount, "マイナスの金額です（%s）", money.FormatYen(amount))
	}
	if abs(amount) > LargeAmount {
		diags.Warn(stage, ref, taxtable.FieldAmount, "金額が10億円を超えています（%s）。内容を確認してください", money.FormatYen(amount))
	}
	return item, true
}

// resolveSide walks the vendor's side sources in order.
func (t *Table) resolveSide(rec taxtable.RawLineRecord, account, label string) (taxtable.Side, bool) {
	for _, src := range t.Side.Order {
		var text string
		switch src {
		case SourceColumn:
			text, _ = rec.Get(taxtable.FieldSide)
			switch strings.ToLower(strings.TrimSpace(text)) {
			case string(taxtable.SideSales):
				return taxtable.SideSales, true
			case string(taxtable.SidePurchases):
				return taxtable.SidePurchases, true
			}
		case SourceLabel:
			text = label
		case SourceSection:
			text = rec.Section
		case SourceSheet:
			text = rec.Ref.Sheet
		case SourceAccount:
			text = account
		}
		if side, ok := t.Side.sideOf(text); ok {
			return side, true
		}
	}
	if t.Side.Default != "" {
		return t.Side.Default, true
	}
	return "", false
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
