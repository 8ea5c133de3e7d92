package classify

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kite/internal/domain"
)

// lowQuality is the image-quality floor below which tampering and
// fabrication rules consider the scan degraded.
const lowQuality = 0.5

func checkRules() []Rule {
	return []Rule{
		{Type: domain.FraudFabricatedDocument, Severity: SeverityFabricated, When: func(in *Input) (bool, string) {
			v := in.Vector
			idMissing := v.MustGet("has_payer_name") == 0 && v.MustGet("has_bank_name") == 0
			if idMissing && v.MustGet("image_quality") < lowQuality {
				return true, fmt.Sprintf("Core identity fields (payer, bank) are absent and image quality is %.2f", v.MustGet("image_quality"))
			}
			return false, ""
		}},
		{Type: domain.FraudAlteredDocument, Severity: SeverityAltered, When: func(in *Input) (bool, string) {
			v := in.Vector
			if v.MustGet("image_quality") < lowQuality && v.MustGet("amount_words_match") == 0 && in.Raw().Present("amount_in_words_value") {
				return true, fmt.Sprintf("Image quality %.2f with numeric amount disagreeing with the written amount", v.MustGet("image_quality"))
			}
			return false, ""
		}},
		{Type: domain.FraudAmountViolation, Severity: SeverityConsistency, When: func(in *Input) (bool, string) {
			raw := in.Raw()
			numeric, nok := raw.Money("amount")
			written, wok := raw.Money("amount_in_words_value")
			if nok && wok && in.Vector.MustGet("amount_words_match") == 0 {
				return true, fmt.Sprintf("Numeric amount $%s does not match written amount $%s",
					numeric.StringFixed(2), written.StringFixed(2))
			}
			return false, ""
		}},
		{Type: domain.FraudUnrealisticRatios, Severity: SeverityUnrealistic, When: func(in *Input) (bool, string) {
			if amt := in.Vector.MustGet("amount"); amt >= 100_000 {
				return true, fmt.Sprintf("Check amount $%.2f is implausibly large for a personal check", amt)
			}
			return false, ""
		}},
		{Type: domain.FraudMissingFields, Severity: SeverityMissingFields, When: func(in *Input) (bool, string) {
			return missingFieldsReason(in, []string{"check_number", "payee", "payer_name", "routing_number"})
		}},
	}
}

func moneyOrderRules() []Rule {
	return []Rule{
		{Type: domain.FraudFabricatedDocument, Severity: SeverityFabricated, When: func(in *Input) (bool, string) {
			v := in.Vector
			if v.MustGet("has_serial_number") == 0 && v.MustGet("has_issuer") == 0 && v.MustGet("image_quality") < lowQuality {
				return true, fmt.Sprintf("Serial number and issuer are absent and image quality is %.2f", v.MustGet("image_quality"))
			}
			return false, ""
		}},
		{Type: domain.FraudAmountViolation, Severity: SeverityConsistency, When: func(in *Input) (bool, string) {
			raw := in.Raw()
			total, tok := raw.Money("total")
			amount, aok := raw.Money("amount")
			if tok && aok && in.Vector.MustGet("total_consistency") < 0.9 {
				fee, _ := raw.Money("fee")
				return true, fmt.Sprintf("Reported total $%s does not reconcile with amount $%s plus fee $%s",
					total.StringFixed(2), amount.StringFixed(2), fee.StringFixed(2))
			}
			return false, ""
		}},
		{Type: domain.FraudSuspiciousPattern, Severity: SeveritySuspicious, When: func(in *Input) (bool, string) {
			v := in.Vector
			if v.MustGet("amount_near_limit") >= 0.99 && v.MustGet("amount_round_number") == 1 {
				return true, fmt.Sprintf("Round amount $%.2f at the money order ceiling suggests structuring", v.MustGet("amount"))
			}
			return false, ""
		}},
		{Type: domain.FraudUnrealisticRatios, Severity: SeverityUnrealistic, When: func(in *Input) (bool, string) {
			if r := in.Vector.MustGet("fee_amount_ratio"); r > 0.2 {
				return true, fmt.Sprintf("Fee is %.1f%% of the amount, far above issuer fee schedules", r*100)
			}
			return false, ""
		}},
		{Type: domain.FraudMissingFields, Severity: SeverityMissingFields, When: func(in *Input) (bool, string) {
			return missingFieldsReason(in, []string{"serial_number", "payee", "purchaser"})
		}},
	}
}

func paystubRules() []Rule {
	return []Rule{
		{Type: domain.FraudFabricatedDocument, Severity: SeverityFabricated, When: func(in *Input) (bool, string) {
			v := in.Vector
			if v.MustGet("has_employer_name") == 0 && v.MustGet("has_employee_name") == 0 && v.MustGet("image_quality") < lowQuality {
				return true, fmt.Sprintf("Employer and employee identity are absent and image quality is %.2f", v.MustGet("image_quality"))
			}
			return false, ""
		}},
		{Type: domain.FraudAlteredDocument, Severity: SeverityAltered, When: func(in *Input) (bool, string) {
			v := in.Vector
			if v.MustGet("image_quality") < lowQuality && v.MustGet("deduction_consistency") < 0.8 && in.Raw().Present("total_deductions") {
				return true, fmt.Sprintf("Image quality %.2f with net pay failing to reconcile against gross minus deductions", v.MustGet("image_quality"))
			}
			return false, ""
		}},
		{Type: domain.FraudAmountViolation, Severity: SeverityConsistency, When: func(in *Input) (bool, string) {
			raw := in.Raw()
			gross, gok := raw.Money("gross_pay")
			net, nok := raw.Money("net_pay")
			deductions, dok := raw.Money("total_deductions")
			if gok && nok && dok && in.Vector.MustGet("deduction_consistency") < 0.9 {
				return true, fmt.Sprintf("Net pay $%s does not reconcile with gross $%s minus deductions $%s (expected $%s)",
					net.StringFixed(2), gross.StringFixed(2), deductions.StringFixed(2), gross.Sub(deductions).StringFixed(2))
			}
			return false, ""
		}},
		{Type: domain.FraudUnrealisticRatios, Severity: SeverityUnrealistic, When: func(in *Input) (bool, string) {
			v := in.Vector
			if r := v.MustGet("net_gross_ratio"); r > 0.95 && r <= ratioSane {
				return true, fmt.Sprintf("Net pay represents %.1f%% of gross pay, leaving implausibly little withholding", r*100)
			}
			return false, ""
		}},
		{Type: domain.FraudUnrealisticRatios, Severity: SeverityUnrealistic, When: func(in *Input) (bool, string) {
			if r := in.Vector.MustGet("tax_gross_ratio"); r > 0.6 && r <= ratioSane {
				return true, fmt.Sprintf("Withholding is %.1f%% of gross pay, above any plausible tax burden", r*100)
			}
			return false, ""
		}},
		{Type: domain.FraudZeroWithholding, Severity: SeverityZeroWithholding, When: func(in *Input) (bool, string) {
			if in.Vector.MustGet("zero_withholding") == 1 {
				gross, _ := in.Raw().Money("gross_pay")
				return true, fmt.Sprintf("Gross pay $%s with zero tax withholding across all categories", gross.StringFixed(2))
			}
			return false, ""
		}},
		{Type: domain.FraudMissingFields, Severity: SeverityMissingFields, When: func(in *Input) (bool, string) {
			return missingFieldsReason(in, []string{"employer_name", "employee_name", "gross_pay", "net_pay"})
		}},
	}
}

func bankStatementRules() []Rule {
	return []Rule{
		{Type: domain.FraudFabricatedDocument, Severity: SeverityFabricated, When: func(in *Input) (bool, string) {
			v := in.Vector
			if v.MustGet("has_bank_name") == 0 && v.MustGet("has_account_holder") == 0 && v.MustGet("image_quality") < lowQuality {
				return true, fmt.Sprintf("Bank and account holder identity are absent and image quality is %.2f", v.MustGet("image_quality"))
			}
			return false, ""
		}},
		{Type: domain.FraudAlteredDocument, Severity: SeverityAltered, When: func(in *Input) (bool, string) {
			v := in.Vector
			if v.MustGet("image_quality") < lowQuality && v.MustGet("balance_consistency") < 0.8 && in.Raw().Present("ending_balance") {
				return true, fmt.Sprintf("Image quality %.2f with the ending balance failing reconciliation", v.MustGet("image_quality"))
			}
			return false, ""
		}},
		{Type: domain.FraudBalanceViolation, Severity: SeverityConsistency, When: func(in *Input) (bool, string) {
			raw := in.Raw()
			begin, bok := raw.Money("beginning_balance")
			credits, cok := raw.Money("total_credits")
			debits, dok := raw.Money("total_debits")
			reported, rok := raw.Money("ending_balance")
			if bok && cok && dok && rok && in.Vector.MustGet("balance_consistency") < 0.9 {
				expected := begin.Add(credits).Sub(debits)
				return true, fmt.Sprintf("Reported ending balance $%s does not reconcile with expected $%s (beginning $%s + credits $%s - debits $%s)",
					reported.StringFixed(2), expected.StringFixed(2), begin.StringFixed(2), credits.StringFixed(2), debits.StringFixed(2))
			}
			return false, ""
		}},
		{Type: domain.FraudSuspiciousPattern, Severity: SeveritySuspicious, When: func(in *Input) (bool, string) {
			if n := in.Vector.MustGet("duplicate_txn_count"); n >= 3 {
				return true, fmt.Sprintf("%d duplicate transactions (same description, amount, direction)", int(n))
			}
			return false, ""
		}},
		{Type: domain.FraudSuspiciousPattern, Severity: SeveritySuspicious, When: func(in *Input) (bool, string) {
			v := in.Vector
			count := v.MustGet("transaction_count")
			round := v.MustGet("round_number_txn_count")
			if count >= 10 && round/count > 0.5 {
				return true, fmt.Sprintf("%d of %d transactions are round hundred-dollar amounts", int(round), int(count))
			}
			return false, ""
		}},
		{Type: domain.FraudSuspiciousPattern, Severity: SeveritySuspicious, When: func(in *Input) (bool, string) {
			if n := in.Vector.MustGet("off_hours_txn_count"); n >= 10 {
				return true, fmt.Sprintf("%d transactions timestamped between 10pm and 6am", int(n))
			}
			return false, ""
		}},
		{Type: domain.FraudSuspiciousPattern, Severity: SeveritySuspicious, When: func(in *Input) (bool, string) {
			if in.Vector.MustGet("zero_txn_flag") == 1 {
				return true, "Statement reports credit/debit totals without any transaction lines"
			}
			return false, ""
		}},
		{Type: domain.FraudUnrealisticRatios, Severity: SeverityUnrealistic, When: func(in *Input) (bool, string) {
			if r := in.Vector.MustGet("credit_debit_ratio"); r >= 50 {
				return true, fmt.Sprintf("Credits are %.0fx debits over the statement period", r)
			}
			return false, ""
		}},
		{Type: domain.FraudMissingFields, Severity: SeverityMissingFields, When: func(in *Input) (bool, string) {
			return missingFieldsReason(in, []string{"bank_name", "account_holder", "account_number", "ending_balance"})
		}},
	}
}

// ratioSane guards ratio rules against the cap value used to bound
// outliers in extraction: a capped ratio means garbage input, which the
// consistency rules handle with better reasons.
const ratioSane = 99.0

// missingFieldsReason fires when any of the listed critical fields is
// absent, naming the missing ones.
func missingFieldsReason(in *Input, fields []string) (bool, string) {
	raw := in.Raw()
	var missing []string
	for _, f := range fields {
		if !raw.Present(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return false, ""
	}
	return true, fmt.Sprintf("Mandatory fields absent: %s", strings.Join(missing, ", "))
}
