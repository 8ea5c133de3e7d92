package feature

import (
	"github.com/shopspring/decimal"
)

// paystubCriticalFields are the fields whose absence feeds the
// missing_critical_count feature and the MISSING_CRITICAL_FIELDS rule.
var paystubCriticalFields = []string{"employer_name", "employee_name", "gross_pay", "net_pay"}

// paystubSchema declares the 30-feature paystub vector.
func paystubSchema() []Feature {
	return []Feature{
		{Name: "has_employer_name", Extract: func(c *Context) float64 { return c.presenceFlag("employer_name") }},
		{Name: "has_employer_address", Extract: func(c *Context) float64 { return c.presenceFlag("employer_address") }},
		{Name: "has_employee_name", Extract: func(c *Context) float64 { return c.presenceFlag("employee_name") }},
		{Name: "has_employee_address", Extract: func(c *Context) float64 { return c.presenceFlag("employee_address") }},
		{Name: "has_employee_id", Extract: func(c *Context) float64 { return c.presenceFlag("employee_id") }},
		{Name: "has_pay_period_start", Extract: func(c *Context) float64 { return c.presenceFlag("pay_period_start") }},
		{Name: "has_pay_period_end", Extract: func(c *Context) float64 { return c.presenceFlag("pay_period_end") }},
		{Name: "has_pay_date", Extract: func(c *Context) float64 { return c.presenceFlag("pay_date") }},
		{Name: "gross_pay", Extract: func(c *Context) float64 { return c.Amount("gross_pay", amountCap) }},
		{Name: "net_pay", Extract: func(c *Context) float64 { return c.Amount("net_pay", amountCap) }},
		{Name: "federal_tax", Extract: func(c *Context) float64 { return c.Amount("federal_tax", amountCap) }},
		{Name: "state_tax", Extract: func(c *Context) float64 { return c.Amount("state_tax", amountCap) }},
		{Name: "social_security", Extract: func(c *Context) float64 { return c.Amount("social_security", amountCap) }},
		{Name: "medicare", Extract: func(c *Context) float64 { return c.Amount("medicare", amountCap) }},
		{Name: "total_deductions", Extract: func(c *Context) float64 { return c.Amount("total_deductions", amountCap) }},
		{Name: "net_gross_ratio", Extract: func(c *Context) float64 {
			return ratio(c.Amount("net_pay", amountCap), c.Amount("gross_pay", amountCap), ratioCap)
		}},
		{Name: "tax_gross_ratio", Extract: paystubTaxGrossRatio},
		{Name: "deduction_consistency", Extract: paystubDeductionConsistency},
		{Name: "ytd_gross", Extract: func(c *Context) float64 { return c.Amount("ytd_gross", amountCap) }},
		{Name: "ytd_net", Extract: func(c *Context) float64 { return c.Amount("ytd_net", amountCap) }},
		{Name: "ytd_consistency", Extract: func(c *Context) float64 {
			ytd, ok := c.Money("ytd_gross")
			gross, gok := c.Money("gross_pay")
			if !ok || !gok {
				return 0.0
			}
			// A period's gross can never exceed the year-to-date gross.
			return flag(ytd.Cmp(gross) >= 0)
		}},
		{Name: "hourly_rate", Extract: func(c *Context) float64 { return c.Amount("hourly_rate", 10_000) }},
		{Name: "hours_worked", Extract: func(c *Context) float64 { return c.Amount("hours_worked", 744) }},
		{Name: "rate_hours_consistency", Extract: paystubRateHoursConsistency},
		{Name: "image_quality", Extract: func(c *Context) float64 { return c.Quality() }},
		{Name: "gross_round_number", Extract: func(c *Context) float64 {
			g, ok := c.Money("gross_pay")
			return flag(ok && g.IsPositive() && g.Mod(decimal.NewFromInt(100)).IsZero())
		}},
		{Name: "net_round_number", Extract: func(c *Context) float64 {
			n, ok := c.Money("net_pay")
			return flag(ok && n.IsPositive() && n.Mod(decimal.NewFromInt(100)).IsZero())
		}},
		{Name: "missing_critical_count", Extract: paystubMissingCritical},
		{Name: "zero_withholding", Extract: paystubZeroWithholding},
		{Name: "date_order_valid", Extract: paystubDateOrder},
	}
}

func paystubTaxGrossRatio(c *Context) float64 {
	taxes := c.Amount("federal_tax", amountCap) +
		c.Amount("state_tax", amountCap) +
		c.Amount("social_security", amountCap) +
		c.Amount("medicare", amountCap)
	return ratio(taxes, c.Amount("gross_pay", amountCap), ratioCap)
}

// paystubDeductionConsistency reconciles net against gross minus total
// deductions within the standard tolerance.
func paystubDeductionConsistency(c *Context) float64 {
	gross, gok := c.Money("gross_pay")
	net, nok := c.Money("net_pay")
	deductions, dok := c.Money("total_deductions")
	if !gok || !nok || !dok {
		return 0.0
	}
	expected := gross.Sub(deductions)
	return reconcile(net, expected, decimal.RequireFromString(balanceTol))
}

// paystubRateHoursConsistency reconciles gross against rate * hours,
// computed only when both inputs are present and positive.
func paystubRateHoursConsistency(c *Context) float64 {
	rate, rok := c.Money("hourly_rate")
	hours, hok := c.Money("hours_worked")
	gross, gok := c.Money("gross_pay")
	if !rok || !hok || !gok || !rate.IsPositive() || !hours.IsPositive() {
		return 0.0
	}
	return reconcile(gross, rate.Mul(hours), decimal.RequireFromString(balanceTol))
}

func paystubMissingCritical(c *Context) float64 {
	missing := 0
	for _, f := range paystubCriticalFields {
		if !c.Present(f) {
			missing++
		}
	}
	return float64(missing)
}

// paystubZeroWithholding flags a gross above the withholding floor with
// every tax field at zero.
func paystubZeroWithholding(c *Context) float64 {
	gross := c.Amount("gross_pay", amountCap)
	if gross < 600 { // below the reporting floor, zero withholding is plausible
		return 0.0
	}
	taxes := c.Amount("federal_tax", amountCap) +
		c.Amount("state_tax", amountCap) +
		c.Amount("social_security", amountCap) +
		c.Amount("medicare", amountCap)
	return flag(taxes == 0)
}

func paystubDateOrder(c *Context) float64 {
	start, sok := c.Date("pay_period_start")
	end, eok := c.Date("pay_period_end")
	pay, pok := c.Date("pay_date")
	if !sok || !eok || !pok {
		return 0.0
	}
	return flag(!start.After(end) && !end.After(pay))
}
