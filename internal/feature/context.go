// Package feature turns normalized document records into fixed-arity
// feature vectors. Extraction never fails for a well-formed record:
// missing or malformed fields are encoded as documented default values.
package feature

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kite/internal/domain"
)

// amountCap bounds parsed monetary amounts per document family.
const (
	amountCap       = 1_000_000.0
	moneyOrderCap   = 1_000.0 // US money orders max out at $1,000
	ratioCap        = 100.0
	balanceTol      = "10.00" // reconciliation tolerance in dollars
	totalTol        = "1.00"  // money order total tolerance
	largeTxnFloor   = 10_000.0
	offHoursStart   = 22
	offHoursEnd     = 6
	patternCountCap = 50.0
)

// Context wraps one record with typed accessors and lazily computed
// transaction statistics. One Context is built per extraction and
// discarded with the vector.
type Context struct {
	rec   *domain.Record
	stats *txnStats
}

// NewContext builds a raw-value reader over a record. The classifier
// uses it to pull concrete amounts into human-readable reasons.
func NewContext(rec *domain.Record) *Context {
	if rec == nil {
		rec = &domain.Record{}
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	return &Context{rec: rec}
}

func newContext(rec *domain.Record) *Context {
	return &Context{rec: rec}
}

// Str returns a trimmed string field, "" when absent or non-string.
func (c *Context) Str(field string) string {
	v, ok := c.rec.Fields[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Present reports whether a field is non-empty after trimming.
// Numeric and boolean values count as present.
func (c *Context) Present(field string) bool {
	v, ok := c.rec.Fields[field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// presenceFlag encodes field presence as 1.0 / 0.0.
func (c *Context) presenceFlag(field string) float64 {
	if c.Present(field) {
		return 1.0
	}
	return 0.0
}

// Money parses a monetary field into a decimal. Accepts float64, int,
// and strings with currency symbols and thousands separators.
// Malformed or absent values are treated as absent.
func (c *Context) Money(field string) (decimal.Decimal, bool) {
	v, ok := c.rec.Fields[field]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	return parseMoney(v)
}

// Amount returns a monetary field as a float64 clamped to [0, cap];
// unparseable or absent values map to 0.0.
func (c *Context) Amount(field string, cap float64) float64 {
	d, ok := c.Money(field)
	if !ok {
		return 0.0
	}
	f, _ := d.Float64()
	if f < 0 {
		return 0.0
	}
	if f > cap {
		return cap
	}
	return f
}

// Quality returns the upstream image-quality score clamped to [0, 1].
// Absent quality defaults to 1.0: quality penalties only apply when the
// OCR layer actually reported one.
func (c *Context) Quality() float64 {
	v, ok := c.rec.Fields["image_quality"]
	if !ok || v == nil {
		return 1.0
	}
	d, ok := parseMoney(v)
	if !ok {
		return 1.0
	}
	f, _ := d.Float64()
	if f < 0 {
		return 0.0
	}
	if f > 1 {
		return 1.0
	}
	return f
}

// Date parses a date field; returns zero time when absent or malformed.
func (c *Context) Date(field string) (time.Time, bool) {
	v, ok := c.rec.Fields[field]
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseDate(strings.TrimSpace(t))
	}
	return time.Time{}, false
}

// Stats returns the single-pass transaction statistics, computing them
// on first use.
func (c *Context) Stats() *txnStats {
	if c.stats == nil {
		c.stats = computeTxnStats(c.rec.Transactions)
	}
	return c.stats
}

// ratio computes num/den guarded against absent or zero denominators,
// capped to bound outliers.
func ratio(num, den, cap float64) float64 {
	if den == 0 {
		return 0.0
	}
	r := num / den
	if r < 0 {
		return 0.0
	}
	if r > cap {
		return cap
	}
	return r
}

// reconcile scores how well a reported amount matches an expected one:
// 1.0 within tolerance, degrading linearly with the difference relative
// to the expected magnitude, floored at 0.0.
func reconcile(reported, expected, tolerance decimal.Decimal) float64 {
	diff := reported.Sub(expected).Abs()
	if diff.Cmp(tolerance) <= 0 {
		return 1.0
	}
	mag := expected.Abs()
	if mag.Cmp(decimal.NewFromInt(1)) < 0 {
		mag = decimal.NewFromInt(1)
	}
	rel, _ := diff.Div(mag).Float64()
	score := 1.0 - rel
	if score < 0 {
		return 0.0
	}
	return score
}

// boundedCount clamps a raw count to the pattern-feature cap.
func boundedCount(n int, cap float64) float64 {
	f := float64(n)
	if f > cap {
		return cap
	}
	return f
}

func flag(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// parseMoney coerces a field value to a decimal amount.
func parseMoney(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)
		if s == "" {
			return decimal.Zero, false
		}
		neg := false
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			neg = true
			s = s[1 : len(s)-1]
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		if neg {
			d = d.Neg()
		}
		return d, true
	}
	return decimal.Zero, false
}

// centTolerance is the tolerance for exact-amount agreement checks.
func centTolerance() decimal.Decimal {
	return decimal.RequireFromString("0.01")
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// txnStats holds statement transaction statistics gathered in one pass.
type txnStats struct {
	Count      int
	Duplicates int
	RoundCount int
	OffHours   int
	LargeCount int

	CreditSum decimal.Decimal
	DebitSum  decimal.Decimal
	MaxAmount float64
	SumAmount float64

	LargestCredit float64
}

func computeTxnStats(txns []domain.TransactionLine) *txnStats {
	st := &txnStats{
		CreditSum: decimal.Zero,
		DebitSum:  decimal.Zero,
	}

	seen := make(map[string]struct{}, len(txns))
	for _, tx := range txns {
		st.Count++
		amt := decimal.NewFromFloat(tx.Amount)

		key := strings.ToLower(strings.TrimSpace(tx.Description)) + "|" + amt.String() + "|" + tx.Direction
		if _, dup := seen[key]; dup {
			st.Duplicates++
		} else {
			seen[key] = struct{}{}
		}

		abs := tx.Amount
		if abs < 0 {
			abs = -abs
		}
		if abs >= 1 && amt.Abs().Mod(decimal.NewFromInt(100)).IsZero() {
			st.RoundCount++
		}
		if !tx.Timestamp.IsZero() {
			h := tx.Timestamp.Hour()
			if h >= offHoursStart || h < offHoursEnd {
				st.OffHours++
			}
		}
		if abs >= largeTxnFloor {
			st.LargeCount++
		}

		switch tx.Direction {
		case domain.DirectionCredit:
			st.CreditSum = st.CreditSum.Add(amt.Abs())
			if abs > st.LargestCredit {
				st.LargestCredit = abs
			}
		case domain.DirectionDebit:
			st.DebitSum = st.DebitSum.Add(amt.Abs())
		}

		if abs > st.MaxAmount {
			st.MaxAmount = abs
		}
		st.SumAmount += abs
	}

	return st
}
