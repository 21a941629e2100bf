package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

var (
	datePattern   = `(令和|平成|R|H)?\s*(元|\d{1,4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`
	periodPattern = regexp.MustCompile(datePattern + `\s*[〜~\-至から]+\s*` + datePattern)
	companyRe     = regexp.MustCompile(`(?:株式会社|有限会社|合同会社|合名会社|合資会社|一般社団法人|一般財団法人|医療法人|社会福祉法人)\s*[^\s　]+|[^\s　]+(?:株式会社|有限会社|合同会社|合名会社|合資会社)`)
)

// eras maps a Japanese era to the Gregorian year before its first year.
var eras = map[string]int{
	"令和": 2018, "R": 2018,
	"平成": 1988, "H": 1988,
}

// ExtractMetadata looks for the company name and reporting period printed in
// the document header.
func ExtractMetadata(doc *Document) taxtable.Metadata {
	text := norm.NFKC.String(doc.Text(headerScanRows))
	var md taxtable.Metadata

	if m := periodPattern.FindStringSubmatch(text); m != nil {
		if start, ok := isoDate(m[1], m[2], m[3], m[4]); ok {
			if end, ok := isoDate(m[5], m[6], m[7], m[8]); ok {
				md.PeriodStart, md.PeriodEnd = start, end
			}
		}
	}
	if m := companyRe.FindString(text); m != "" {
		md.CompanyName = strings.TrimSpace(m)
	}
	return md
}

func isoDate(era, year, month, day string) (string, bool) {
	y := 1
	if year != "元" {
		v, err := strconv.Atoi(year)
		if err != nil {
			return "", false
		}
		y = v
	}
	if offset, ok := eras[era]; ok {
		y += offset
	} else if y < 1900 {
		return "", false
	}
	m, err1 := strconv.Atoi(month)
	d, err2 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || m < 1 || m > 12 || d < 1 || d > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), true
}
