package feature

import (
	"github.com/shopspring/decimal"
)

// statementCriticalFields feed the MISSING_CRITICAL_FIELDS rule.
var statementCriticalFields = []string{"bank_name", "account_holder", "account_number", "ending_balance"}

// bankStatementSchema declares the 35-feature bank statement vector.
func bankStatementSchema() []Feature {
	return []Feature{
		{Name: "has_bank_name", Extract: func(c *Context) float64 { return c.presenceFlag("bank_name") }},
		{Name: "has_account_holder", Extract: func(c *Context) float64 { return c.presenceFlag("account_holder") }},
		{Name: "has_account_number", Extract: func(c *Context) float64 { return c.presenceFlag("account_number") }},
		{Name: "has_routing_number", Extract: func(c *Context) float64 { return c.presenceFlag("routing_number") }},
		{Name: "has_period_start", Extract: func(c *Context) float64 { return c.presenceFlag("statement_period_start") }},
		{Name: "has_period_end", Extract: func(c *Context) float64 { return c.presenceFlag("statement_period_end") }},
		{Name: "has_beginning_balance", Extract: func(c *Context) float64 { return c.presenceFlag("beginning_balance") }},
		{Name: "has_ending_balance", Extract: func(c *Context) float64 { return c.presenceFlag("ending_balance") }},
		{Name: "beginning_balance", Extract: func(c *Context) float64 { return c.Amount("beginning_balance", amountCap) }},
		{Name: "ending_balance", Extract: func(c *Context) float64 { return c.Amount("ending_balance", amountCap) }},
		{Name: "total_credits", Extract: func(c *Context) float64 { return c.Amount("total_credits", amountCap) }},
		{Name: "total_debits", Extract: func(c *Context) float64 { return c.Amount("total_debits", amountCap) }},
		{Name: "balance_consistency", Extract: statementBalanceConsistency},
		{Name: "credit_debit_ratio", Extract: func(c *Context) float64 {
			return ratio(c.Amount("total_credits", amountCap), c.Amount("total_debits", amountCap), ratioCap)
		}},
		{Name: "deposit_ratio", Extract: func(c *Context) float64 {
			credits := c.Amount("total_credits", amountCap)
			debits := c.Amount("total_debits", amountCap)
			return ratio(credits, credits+debits, 1.0)
		}},
		{Name: "transaction_count", Extract: func(c *Context) float64 { return boundedCount(c.Stats().Count, 500) }},
		{Name: "duplicate_txn_count", Extract: func(c *Context) float64 { return boundedCount(c.Stats().Duplicates, patternCountCap) }},
		{Name: "round_number_txn_count", Extract: func(c *Context) float64 { return boundedCount(c.Stats().RoundCount, patternCountCap) }},
		{Name: "off_hours_txn_count", Extract: func(c *Context) float64 { return boundedCount(c.Stats().OffHours, patternCountCap) }},
		{Name: "large_txn_count", Extract: func(c *Context) float64 { return boundedCount(c.Stats().LargeCount, patternCountCap) }},
		{Name: "avg_txn_amount", Extract: func(c *Context) float64 {
			st := c.Stats()
			if st.Count == 0 {
				return 0.0
			}
			avg := st.SumAmount / float64(st.Count)
			if avg > amountCap {
				return amountCap
			}
			return avg
		}},
		{Name: "max_txn_amount", Extract: func(c *Context) float64 {
			m := c.Stats().MaxAmount
			if m > amountCap {
				return amountCap
			}
			return m
		}},
		{Name: "txns_per_day", Extract: statementTxnsPerDay},
		{Name: "credits_match_txns", Extract: func(c *Context) float64 {
			return statementTotalsMatch(c, "total_credits", c.Stats().CreditSum)
		}},
		{Name: "debits_match_txns", Extract: func(c *Context) float64 {
			return statementTotalsMatch(c, "total_debits", c.Stats().DebitSum)
		}},
		{Name: "txns_in_period_ratio", Extract: statementTxnsInPeriod},
		{Name: "negative_ending_flag", Extract: func(c *Context) float64 {
			bal, ok := c.Money("ending_balance")
			return flag(ok && bal.IsNegative())
		}},
		{Name: "beginning_round_number", Extract: func(c *Context) float64 {
			b, ok := c.Money("beginning_balance")
			return flag(ok && b.IsPositive() && b.Mod(decimal.NewFromInt(100)).IsZero())
		}},
		{Name: "ending_round_number", Extract: func(c *Context) float64 {
			b, ok := c.Money("ending_balance")
			return flag(ok && b.IsPositive() && b.Mod(decimal.NewFromInt(100)).IsZero())
		}},
		{Name: "zero_txn_flag", Extract: func(c *Context) float64 {
			// Totals without any transaction lines behind them.
			return flag(c.Stats().Count == 0 &&
				(c.Amount("total_credits", amountCap) > 0 || c.Amount("total_debits", amountCap) > 0))
		}},
		{Name: "large_deposit_flag", Extract: func(c *Context) float64 {
			st := c.Stats()
			credits, _ := st.CreditSum.Float64()
			return flag(credits > 0 && st.LargestCredit > 0.8*credits)
		}},
		{Name: "statement_days", Extract: func(c *Context) float64 {
			start, sok := c.Date("statement_period_start")
			end, eok := c.Date("statement_period_end")
			if !sok || !eok || end.Before(start) {
				return 0.0
			}
			return boundedCount(int(end.Sub(start).Hours()/24), 90)
		}},
		{Name: "date_order_valid", Extract: func(c *Context) float64 {
			start, sok := c.Date("statement_period_start")
			end, eok := c.Date("statement_period_end")
			if !sok || !eok {
				return 0.0
			}
			return flag(!start.After(end))
		}},
		{Name: "missing_critical_count", Extract: func(c *Context) float64 {
			missing := 0
			for _, f := range statementCriticalFields {
				if !c.Present(f) {
					missing++
				}
			}
			return float64(missing)
		}},
		{Name: "image_quality", Extract: func(c *Context) float64 { return c.Quality() }},
	}
}

// statementBalanceConsistency reconciles the reported ending balance
// against beginning + credits - debits within a $10 tolerance.
func statementBalanceConsistency(c *Context) float64 {
	begin, bok := c.Money("beginning_balance")
	credits, cok := c.Money("total_credits")
	debits, dok := c.Money("total_debits")
	reported, rok := c.Money("ending_balance")
	if !bok || !cok || !dok || !rok {
		return 0.0
	}
	expected := begin.Add(credits).Sub(debits)
	return reconcile(reported, expected, decimal.RequireFromString(balanceTol))
}

// statementTotalsMatch reconciles a reported total against the summed
// transaction lines; 0.0 when there are no lines to check against.
func statementTotalsMatch(c *Context, field string, summed decimal.Decimal) float64 {
	if c.Stats().Count == 0 {
		return 0.0
	}
	reported, ok := c.Money(field)
	if !ok {
		return 0.0
	}
	return reconcile(reported, summed, decimal.RequireFromString(balanceTol))
}

func statementTxnsPerDay(c *Context) float64 {
	start, sok := c.Date("statement_period_start")
	end, eok := c.Date("statement_period_end")
	if !sok || !eok || end.Before(start) {
		return 0.0
	}
	days := end.Sub(start).Hours() / 24
	if days < 1 {
		days = 1
	}
	return ratio(float64(c.Stats().Count), days, ratioCap)
}

func statementTxnsInPeriod(c *Context) float64 {
	start, sok := c.Date("statement_period_start")
	end, eok := c.Date("statement_period_end")
	st := c.Stats()
	if !sok || !eok || st.Count == 0 {
		return 0.0
	}
	in := 0
	for _, tx := range c.rec.Transactions {
		if tx.Timestamp.IsZero() {
			continue
		}
		if !tx.Timestamp.Before(start) && !tx.Timestamp.After(end.AddDate(0, 0, 1)) {
			in++
		}
	}
	return float64(in) / float64(st.Count)
}
