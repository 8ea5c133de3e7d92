package feature

import (
	"github.com/shopspring/decimal"
)

// moneyOrderSchema declares the 18-feature money order vector.
func moneyOrderSchema() []Feature {
	return []Feature{
		{Name: "has_serial_number", Extract: func(c *Context) float64 { return c.presenceFlag("serial_number") }},
		{Name: "has_date", Extract: func(c *Context) float64 { return c.presenceFlag("date") }},
		{Name: "has_payee", Extract: func(c *Context) float64 { return c.presenceFlag("payee") }},
		{Name: "has_purchaser", Extract: func(c *Context) float64 { return c.presenceFlag("purchaser") }},
		{Name: "has_issuer", Extract: func(c *Context) float64 { return c.presenceFlag("issuer") }},
		{Name: "has_purchaser_address", Extract: func(c *Context) float64 { return c.presenceFlag("purchaser_address") }},
		{Name: "has_payee_address", Extract: func(c *Context) float64 { return c.presenceFlag("payee_address") }},
		{Name: "has_signature", Extract: func(c *Context) float64 { return c.presenceFlag("signature") }},
		{Name: "has_amount_words", Extract: func(c *Context) float64 { return c.presenceFlag("amount_in_words") }},
		{Name: "amount", Extract: func(c *Context) float64 { return c.Amount("amount", moneyOrderCap) }},
		{Name: "fee", Extract: func(c *Context) float64 { return c.Amount("fee", moneyOrderCap) }},
		{Name: "fee_amount_ratio", Extract: func(c *Context) float64 {
			return ratio(c.Amount("fee", moneyOrderCap), c.Amount("amount", moneyOrderCap), ratioCap)
		}},
		{Name: "total_consistency", Extract: moneyOrderTotalConsistency},
		{Name: "amount_round_number", Extract: func(c *Context) float64 {
			amt, ok := c.Money("amount")
			return flag(ok && amt.IsPositive() && amt.Mod(decimal.NewFromInt(100)).IsZero())
		}},
		{Name: "amount_near_limit", Extract: func(c *Context) float64 {
			// Amounts pushed right up to the $1,000 ceiling are a known
			// structuring signal for money orders.
			return ratio(c.Amount("amount", moneyOrderCap), moneyOrderCap, 1.0)
		}},
		{Name: "serial_length_valid", Extract: func(c *Context) float64 {
			n := len(c.Str("serial_number"))
			return flag(n >= 9 && n <= 12)
		}},
		{Name: "date_parse_ok", Extract: func(c *Context) float64 {
			_, ok := c.Date("date")
			return flag(ok)
		}},
		{Name: "image_quality", Extract: func(c *Context) float64 { return c.Quality() }},
	}
}

// moneyOrderTotalConsistency reconciles reported total against
// amount + fee within a $1 tolerance.
func moneyOrderTotalConsistency(c *Context) float64 {
	total, ok := c.Money("total")
	if !ok {
		return 0.0
	}
	amount, ok := c.Money("amount")
	if !ok {
		return 0.0
	}
	fee, _ := c.Money("fee") // fee may legitimately be absent
	expected := amount.Add(fee)
	return reconcile(total, expected, decimal.RequireFromString(totalTol))
}
