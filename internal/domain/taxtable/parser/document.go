package parser

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

// Row is one visual row of a page or sheet, split into cells.
type Row struct {
	Ref   taxtable.SourceRef
	Cells []string
}

// Text joins the non-empty cells with single spaces.
func (r Row) Text() string {
	return strings.Join(nonEmpty(r.Cells), " ")
}

// Grid is one PDF page or one worksheet.
type Grid struct {
	Page  int
	Sheet string
	Rows  []Row
}

// Document is an uploaded file decoded into grids of text cells. Decoding
// happens once; every candidate parser reads the same Document.
type Document struct {
	Kind  taxtable.DocumentKind
	Grids []Grid
}

// Text returns the document text used for signature detection and metadata:
// sheet names followed by the first maxRows rows of every grid. maxRows <= 0
// means all rows.
func (d *Document) Text(maxRows int) string {
	var b strings.Builder
	for _, g := range d.Grids {
		if g.Sheet != "" {
			b.WriteString(g.Sheet)
			b.WriteByte('\n')
		}
		for i, r := range g.Rows {
			if maxRows > 0 && i >= maxRows {
				break
			}
			b.WriteString(r.Text())
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Empty reports whether the document has no text at all.
func (d *Document) Empty() bool {
	for _, g := range d.Grids {
		for _, r := range g.Rows {
			if len(nonEmpty(r.Cells)) > 0 {
				return false
			}
		}
	}
	return true
}

// LoadDocument decodes raw bytes of the given kind.
func LoadDocument(kind taxtable.DocumentKind, data []byte) (*Document, error) {
	var (
		grids []Grid
		err   error
	)
	switch kind {
	case taxtable.KindPDF:
		grids, err = readPDF(data)
	case taxtable.KindSpreadsheet:
		grids, err = readWorkbook(data)
	default:
		return nil, taxtable.NewParseError(taxtable.ErrUnsupportedExtension, "対応していないファイル形式です", nil)
	}
	if err != nil {
		return nil, taxtable.NewParseError(taxtable.ErrCorruptFile,
			"ファイルを読み込めませんでした。破損していないか、パスワードで保護されていないか確認してください", err)
	}
	return &Document{Kind: kind, Grids: grids}, nil
}

func readWorkbook(data []byte) ([]Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var grids []Grid
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		g := Grid{Sheet: sheet, Rows: make([]Row, 0, len(rows))}
		for i, cells := range rows {
			g.Rows = append(g.Rows, Row{
				Ref:   taxtable.SourceRef{Sheet: sheet, Row: i + 1},
				Cells: trimCells(cells),
			})
		}
		grids = append(grids, g)
	}
	return grids, nil
}

// glyph is one positioned piece of text on a PDF page.
type glyph struct {
	x, y, w, size float64
	s             string
}

func readPDF(data []byte) (grids []Grid, err error) {
	// the pdf package panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			grids, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	for n := 1; n <= r.NumPage(); n++ {
		p := r.Page(n)
		if p.V.IsNull() {
			continue
		}
		var glyphs []glyph
		for _, t := range p.Content().Text {
			glyphs = append(glyphs, glyph{x: t.X, y: t.Y, w: t.W, size: t.FontSize, s: t.S})
		}
		grids = append(grids, Grid{Page: n, Rows: layoutRows(n, glyphs)})
	}
	return grids, nil
}

// layoutRows rebuilds table rows from positioned glyphs. Glyphs on the same
// baseline form a row; a horizontal gap wider than cellGap font sizes starts
// a new cell, a smaller visible gap becomes a space.
func layoutRows(page int, glyphs []glyph) []Row {
	const (
		lineTolerance = 0.4
		cellGap       = 1.2
		wordGap       = 0.25
	)
	if len(glyphs) == 0 {
		return nil
	}

	// PDF y grows upwards: top of the page first
	sort.SliceStable(glyphs, func(i, j int) bool {
		if math.Abs(glyphs[i].y-glyphs[j].y) > 0.01 {
			return glyphs[i].y > glyphs[j].y
		}
		return glyphs[i].x < glyphs[j].x
	})

	var lines [][]glyph
	for _, g := range glyphs {
		if n := len(lines); n > 0 {
			last := lines[n-1]
			if math.Abs(last[0].y-g.y) <= lineTolerance*fontSize(last[0]) {
				lines[n-1] = append(last, g)
				continue
			}
		}
		lines = append(lines, []glyph{g})
	}

	rows := make([]Row, 0, len(lines))
	for i, line := range lines {
		sort.SliceStable(line, func(a, b int) bool { return line[a].x < line[b].x })

		var cells []string
		var cur strings.Builder
		for j, g := range line {
			if j > 0 {
				prev := line[j-1]
				advance := prev.w
				if advance <= 0 {
					advance = fontSize(prev) * float64(len([]rune(prev.s)))
				}
				gap := g.x - (prev.x + advance)
				switch {
				case gap > cellGap*fontSize(g):
					cells = append(cells, strings.TrimSpace(cur.String()))
					cur.Reset()
				case gap > wordGap*fontSize(g):
					cur.WriteByte(' ')
				}
			}
			cur.WriteString(g.s)
		}
		cells = append(cells, strings.TrimSpace(cur.String()))
		rows = append(rows, Row{
			Ref:   taxtable.SourceRef{Page: page, Row: i + 1},
			Cells: cells,
		})
	}
	return rows
}

func fontSize(g glyph) float64 {
	if g.size <= 0 {
		return 10
	}
	return g.size
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	// drop trailing empty cells so rows compare by content
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func nonEmpty(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}
