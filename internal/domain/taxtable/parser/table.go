package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/sniffer"
	"github.com/FACorreiaa/tax-table-converter/pkg/money"
)

// column describes one header a layout looks for.
type column struct {
	field    string
	keywords []string
	required bool
}

// header maps record field names to cell indexes.
type header struct {
	cols  map[string]int
	width int
}

func (h header) index(field string) (int, bool) {
	i, ok := h.cols[field]
	return i, ok
}

// matchHeader finds the columns of a header row. Every header cell is
// compared with the folded keywords; a keyword matches when its characters
// appear in order in the cell, and the closest cell wins. Each cell is
// assigned to at most one field, in the order the columns are listed.
// It returns false when a required column is missing.
func matchHeader(cells []string, columns []column) (header, bool) {
	folded := make([]string, len(cells))
	for i, c := range cells {
		folded[i] = sniffer.Fold(c)
	}

	h := header{cols: make(map[string]int), width: len(cells)}
	claimed := make(map[int]bool)
	for _, col := range columns {
		best, bestRank := -1, -1
		for _, kw := range col.keywords {
			kw = sniffer.Fold(kw)
			for i, cell := range folded {
				if claimed[i] || cell == "" || len([]rune(cell)) > 2*len([]rune(kw))+2 {
					continue
				}
				rank := fuzzy.RankMatch(kw, cell)
				if rank < 0 {
					continue
				}
				if best < 0 || rank < bestRank {
					best, bestRank = i, rank
				}
			}
		}
		if best < 0 {
			if col.required {
				return header{}, false
			}
			continue
		}
		claimed[best] = true
		h.cols[col.field] = best
	}
	return h, true
}

// cellsOf returns the row cells, splitting on whitespace when the text layer
// delivered the whole line as a single cell.
func cellsOf(row Row) []string {
	ne := nonEmpty(row.Cells)
	if len(ne) == 1 && len(strings.Fields(ne[0])) > 1 {
		return splitMerged(strings.Fields(ne[0]))
	}
	return row.Cells
}

// splitMerged rebuilds the cells of a merged line from the right: trailing
// amounts, then the tax label, and the remaining words as the account name
// so that names containing spaces survive. A label that starts with its rate
// ("課税売上 10%") takes the word before it. Lines without a trailing amount,
// such as headers, keep one cell per word.
func splitMerged(words []string) []string {
	end := len(words)
	for end > 0 && money.LooksLikeAmount(words[end-1]) {
		end--
	}
	if end == len(words) || end < 2 {
		return words
	}

	start := end - 1
	if start > 1 && startsWithDigit(words[start]) {
		start--
	}
	cells := []string{strings.Join(words[:start], " "), strings.Join(words[start:end], " ")}
	return append(cells, words[end:]...)
}

func startsWithDigit(s string) bool {
	for _, r := range sniffer.Fold(s) {
		return unicode.IsDigit(r)
	}
	return false
}

// isBlank reports whether every cell is empty.
func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var totalMarkers = []string{"合計", "小計", "総計", "総合計"}

// isTotalRow reports whether the row is a subtotal or total line that must
// not be counted as a line item.
func isTotalRow(cells []string) bool {
	first := ""
	for _, c := range cells {
		if f := sniffer.Fold(c); f != "" {
			first = f
			break
		}
	}
	if first == "" {
		return false
	}
	if first == "計" || strings.HasPrefix(first, "【合計") || strings.HasPrefix(first, "[合計") {
		return true
	}
	for _, m := range totalMarkers {
		if strings.HasPrefix(first, m) || strings.HasSuffix(first, m) {
			return true
		}
	}
	return false
}

var pageMarker = regexp.MustCompile(`^(?:-?\d+-?|\d+/\d+|\d+ページ|P\.?\d+(?:/\d+)?|PAGE\d+(?:/\d+)?)$`)

// isPageMarker reports whether the row is a page number such as "1 / 3" or
// "- 2 -".
func isPageMarker(cells []string) bool {
	return pageMarker.MatchString(sniffer.Fold(strings.Join(cells, "")))
}

// hasDigit reports whether any cell contains a digit, full-width included.
func hasDigit(cells []string) bool {
	for _, c := range cells {
		for _, r := range c {
			if unicode.IsDigit(r) {
				return true
			}
		}
	}
	return false
}

// sectionTitle returns the heading text when the row is a lone non-numeric
// cell such as "【売上】" or "仕入".
func sectionTitle(cells []string) (string, bool) {
	ne := nonEmpty(cells)
	if len(ne) != 1 || money.LooksLikeAmount(ne[0]) {
		return "", false
	}
	t := strings.TrimSpace(ne[0])
	if len([]rune(t)) > 30 {
		return "", false
	}
	return t, true
}

// splitPrinted aligns a printed table row with its header when the PDF text
// layer merged or split cells. The first cell is the account, trailing cells
// that look like amounts fill the numeric columns left to right, everything
// in between is the tax label.
func splitPrinted(cells []string, numeric int) (account, label string, amounts []string) {
	cells = nonEmpty(cells)
	if len(cells) < 3 {
		return "", "", nil
	}
	account = cells[0]
	rest := cells[1:]

	n := 0
	for n < numeric && n < len(rest)-1 && money.LooksLikeAmount(rest[len(rest)-1-n]) {
		n++
	}
	if n == 0 {
		// malformed amount: keep the last cell so the normalizer reports it
		n = 1
	}
	label = strings.Join(rest[:len(rest)-n], " ")
	amounts = rest[len(rest)-n:]
	return account, label, amounts
}

func newRecord(ref taxtable.SourceRef, section string) taxtable.RawLineRecord {
	return taxtable.RawLineRecord{Ref: ref, Section: section}
}
