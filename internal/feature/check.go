package feature

// checkSchema declares the 10-feature check vector.
func checkSchema() []Feature {
	return []Feature{
		{Name: "has_check_number", Extract: func(c *Context) float64 { return c.presenceFlag("check_number") }},
		{Name: "has_date", Extract: func(c *Context) float64 { return c.presenceFlag("date") }},
		{Name: "has_payee", Extract: func(c *Context) float64 { return c.presenceFlag("payee") }},
		{Name: "has_payer_name", Extract: func(c *Context) float64 { return c.presenceFlag("payer_name") }},
		{Name: "has_bank_name", Extract: func(c *Context) float64 { return c.presenceFlag("bank_name") }},
		{Name: "has_routing_number", Extract: func(c *Context) float64 { return c.presenceFlag("routing_number") }},
		{Name: "has_account_number", Extract: func(c *Context) float64 { return c.presenceFlag("account_number") }},
		{Name: "amount", Extract: func(c *Context) float64 { return c.Amount("amount", amountCap) }},
		{Name: "image_quality", Extract: func(c *Context) float64 { return c.Quality() }},
		{Name: "amount_words_match", Extract: checkAmountWordsMatch},
	}
}

// checkAmountWordsMatch scores agreement between the numeric amount and
// the upstream-normalized written amount ("amount_in_words_value" is the
// numeric value the OCR layer parsed out of the written line).
// Absent written amount is an extraction gap, encoded as 0.0.
func checkAmountWordsMatch(c *Context) float64 {
	numeric, ok := c.Money("amount")
	if !ok {
		return 0.0
	}
	written, ok := c.Money("amount_in_words_value")
	if !ok {
		return 0.0
	}
	if numeric.Sub(written).Abs().Cmp(centTolerance()) <= 0 {
		return 1.0
	}
	return 0.0
}
