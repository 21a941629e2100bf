// Package sniffer decides which vendor layout an uploaded file belongs to.
// It validates the extension and matches known vendor phrases against the
// document text in a single Aho-Corasick pass.
package sniffer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/unicode/norm"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

var extensions = map[string]taxtable.DocumentKind{
	".pdf":  taxtable.KindPDF,
	".xlsx": taxtable.KindSpreadsheet,
	".xlsm": taxtable.KindSpreadsheet,
}

// CheckExtension maps a filename to the document kind it must contain.
func CheckExtension(filename string) (taxtable.DocumentKind, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if kind, ok := extensions[ext]; ok {
		return kind, nil
	}
	msg := fmt.Sprintf("対応していないファイル形式です（%s）。PDF または Excel（.xlsx）ファイルを選択してください", ext)
	if ext == ".xls" {
		msg = "旧形式の Excel ファイル（.xls）には対応していません。.xlsx 形式で保存し直してください"
	}
	if ext == "" {
		msg = "ファイルの拡張子がありません。PDF または Excel（.xlsx）ファイルを選択してください"
	}
	return "", taxtable.NewParseError(taxtable.ErrUnsupportedExtension, msg, nil)
}

// Signature describes the phrases that identify a vendor's export.
type Signature struct {
	Vendor taxtable.Vendor
	// Kinds lists the document kinds the vendor exports.
	Kinds []taxtable.DocumentKind
	// Phrases that identify the vendor; any one is enough.
	Phrases []string
	// Excludes cancel a match when present anywhere in the text.
	Excludes []string
}

// DefaultSignatures returns the built-in signatures in priority order.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Vendor:   taxtable.VendorFreee,
			Kinds:    []taxtable.DocumentKind{taxtable.KindPDF},
			Phrases:  []string{"freee", "消費税区分別表"},
			Excludes: []string{"勘定科目別税区分表"},
		},
		{
			Vendor:  taxtable.VendorMoneyForward,
			Kinds:   []taxtable.DocumentKind{taxtable.KindSpreadsheet},
			Phrases: []string{"マネーフォワード", "MoneyForward", "勘定科目別税区分集計表", "税区分集計"},
		},
		{
			Vendor:  taxtable.VendorYayoi,
			Kinds:   []taxtable.DocumentKind{taxtable.KindPDF},
			Phrases: []string{"弥生", "YAYOI", "勘定科目別税区分表", "請求書区分別"},
		},
	}
}

type phraseRef struct {
	sig     int
	exclude bool
}

// Detector matches vendor signatures against document text. It is safe for
// concurrent use.
type Detector struct {
	sigs []Signature
	// refs[i] lists every signature that owns pattern i; one phrase can be a
	// positive signal for one vendor and an exclusion for another.
	refs    [][]phraseRef
	mu      sync.Mutex // the matcher keeps per-call state
	matcher *ahocorasick.Matcher
}

// NewDetector builds one automaton over every phrase of every signature.
func NewDetector(sigs []Signature) *Detector {
	d := &Detector{sigs: sigs}
	index := make(map[string]int)
	var patterns []string
	add := func(phrase string, ref phraseRef) {
		p := Fold(phrase)
		i, ok := index[p]
		if !ok {
			i = len(patterns)
			index[p] = i
			patterns = append(patterns, p)
			d.refs = append(d.refs, nil)
		}
		d.refs[i] = append(d.refs[i], ref)
	}
	for i, sig := range sigs {
		for _, p := range sig.Phrases {
			add(p, phraseRef{sig: i})
		}
		for _, p := range sig.Excludes {
			add(p, phraseRef{sig: i, exclude: true})
		}
	}
	d.matcher = ahocorasick.NewStringMatcher(patterns)
	return d
}

// Detect returns, in priority order, the vendors whose signature matches
// text and who export documents of the given kind.
func (d *Detector) Detect(kind taxtable.DocumentKind, text string) []taxtable.Vendor {
	hit := make([]bool, len(d.sigs))
	excluded := make([]bool, len(d.sigs))
	d.mu.Lock()
	matches := d.matcher.Match([]byte(Fold(text)))
	d.mu.Unlock()

	for _, idx := range matches {
		for _, ref := range d.refs[idx] {
			if ref.exclude {
				excluded[ref.sig] = true
			} else {
				hit[ref.sig] = true
			}
		}
	}

	var out []taxtable.Vendor
	for i, sig := range d.sigs {
		if hit[i] && !excluded[i] && slices.Contains(sig.Kinds, kind) {
			out = append(out, sig.Vendor)
		}
	}
	return out
}

// Candidates returns every vendor exporting the given kind, in priority order.
func (d *Detector) Candidates(kind taxtable.DocumentKind) []taxtable.Vendor {
	var out []taxtable.Vendor
	for _, sig := range d.sigs {
		if slices.Contains(sig.Kinds, kind) {
			out = append(out, sig.Vendor)
		}
	}
	return out
}

// Fold normalizes text for matching: NFKC (full-width to half-width ASCII),
// upper case, no whitespace.
func Fold(s string) string {
	s = strings.ToUpper(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), "")
}

// Fingerprint returns the SHA-256 of the uploaded bytes, used to identify a
// source file in logs and processing info.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
