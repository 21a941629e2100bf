package money

import (
	"github.com/brianvoe/gofakeit/v6"
)

// TestDataGenerator produces realistic yen amounts and Japanese bookkeeping
// vocabulary for tests.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(0)}
}

// NewTestDataGeneratorWithSeed creates a generator with a fixed seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// Amount returns a random yen amount in [min, max].
func (g *TestDataGenerator) Amount(min, max int64) int64 {
	if min > max {
		min, max = max, min
	}
	return min + int64(g.faker.IntRange(0, int(max-min)))
}

// PositiveAmount returns a random amount between 1 and 10,000,000 yen.
func (g *TestDataGenerator) PositiveAmount() int64 {
	return int64(g.faker.IntRange(1, 10_000_000))
}

// SignedAmount returns a random amount that is occasionally negative, as
// returns and discounts show up in real tables.
func (g *TestDataGenerator) SignedAmount() int64 {
	a := g.PositiveAmount()
	if g.faker.IntRange(0, 9) == 0 {
		return -a
	}
	return a
}

// SalesAccount returns a random revenue account name.
func (g *TestDataGenerator) SalesAccount() string {
	return g.faker.RandomString(salesAccounts)
}

// PurchaseAccount returns a random expense account name.
func (g *TestDataGenerator) PurchaseAccount() string {
	return g.faker.RandomString(purchaseAccounts)
}

// Bool returns a random boolean.
func (g *TestDataGenerator) Bool() bool {
	return g.faker.Bool()
}

// Pick returns a random element of options.
func (g *TestDataGenerator) Pick(options []string) string {
	return g.faker.RandomString(options)
}

// Printed renders an amount the way vendor documents print it: thousands
// separators, sometimes full-width digits, sometimes a triangle for negatives.
func (g *TestDataGenerator) Printed(amount int64) string {
	s := FormatYen(amount)[len("¥"):]
	if amount < 0 {
		s = FormatYen(-amount)[len("¥"):]
		if g.faker.Bool() {
			s = "△" + s
		} else {
			s = "-" + s
		}
	}
	if g.faker.IntRange(0, 3) == 0 {
		s = toFullWidth(s)
	}
	return s
}

func toFullWidth(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= '0' && r <= '9':
			out[i] = r - '0' + '０'
		case r == ',':
			out[i] = '，'
		}
	}
	return string(out)
}

var salesAccounts = []string{
	"売上高", "売上高（物販）", "売上高（サービス）", "受取手数料",
	"雑収入", "輸出売上高", "受取家賃", "受取利息",
}

var purchaseAccounts = []string{
	"仕入高", "外注費", "広告宣伝費", "旅費交通費", "通信費",
	"消耗品費", "水道光熱費", "地代家賃", "支払手数料", "会議費",
	"新聞図書費", "福利厚生費", "租税公課", "保険料",
}
