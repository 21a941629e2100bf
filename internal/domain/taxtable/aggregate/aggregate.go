// Package aggregate groups normalized tax items by side and tax category.
package aggregate

import (
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/pkg/money"
)

// Aggregate sums items per side and category. Every category appears in each
// side summary, in display order, even when it has no items. Accounts are
// listed once each in order of first appearance. diags are carried into the
// result together with a warning for each side without data.
func Aggregate(items []taxtable.TaxItem, diags taxtable.Diagnostics) taxtable.AggregationResult {
	sales := newSide(taxtable.SideSales)
	purchases := newSide(taxtable.SidePurchases)

	for _, item := range items {
		switch item.Side {
		case taxtable.SideSales:
			sales.add(item)
		case taxtable.SidePurchases:
			purchases.add(item)
		}
	}

	all := append(taxtable.Diagnostics(nil), diags...)
	for _, s := range []*sideBuilder{sales, purchases} {
		if s.count == 0 {
			all.Warn(taxtable.StageAggregate, taxtable.SourceRef{}, "", "%sデータが見つかりませんでした", s.side.Label())
		}
	}

	return taxtable.AggregationResult{
		Sales:     sales.summary(),
		Purchases: purchases.summary(),
		Warnings:  all.Warnings(),
		Errors:    all.Errors(),
	}
}

type bucket struct {
	count    int
	taxable  *money.Money
	amount   *money.Money
	accounts []string
	seen     map[string]struct{}
}

type sideBuilder struct {
	side    taxtable.Side
	count   int
	buckets map[taxtable.TaxCategory]*bucket
}

func newSide(side taxtable.Side) *sideBuilder {
	s := &sideBuilder{side: side, buckets: make(map[taxtable.TaxCategory]*bucket, len(taxtable.Categories))}
	for _, c := range taxtable.Categories {
		s.buckets[c] = &bucket{taxable: money.Yen(0), amount: money.Yen(0), seen: map[string]struct{}{}}
	}
	return s
}

func (s *sideBuilder) add(item taxtable.TaxItem) {
	b, ok := s.buckets[item.Category]
	if !ok {
		b = s.buckets[taxtable.CategoryUnclassified]
	}
	s.count++
	b.count++
	b.taxable = b.taxable.Add(money.Yen(item.TaxableAmount))
	b.amount = b.amount.Add(money.Yen(item.Amount))
	if _, dup := b.seen[item.AccountName]; !dup {
		b.seen[item.AccountName] = struct{}{}
		b.accounts = append(b.accounts, item.AccountName)
	}
}

func (s *sideBuilder) summary() taxtable.SideSummary {
	out := taxtable.SideSummary{
		Side:       s.side,
		Categories: make([]taxtable.CategoryTotal, 0, len(taxtable.Categories)),
		Count:      s.count,
	}
	taxable, amount := money.Yen(0), money.Yen(0)
	for _, c := range taxtable.Categories {
		b := s.buckets[c]
		out.Categories = append(out.Categories, taxtable.CategoryTotal{
			Category:      c,
			Label:         c.Label(),
			Count:         b.count,
			TaxableAmount: b.taxable.Amount(),
			Amount:        b.amount.Amount(),
			Accounts:      b.accounts,
		})
		taxable = taxable.Add(b.taxable)
		amount = amount.Add(b.amount)
	}
	out.TaxableTotal = taxable.Amount()
	out.AmountTotal = amount.Amount()
	return out
}
