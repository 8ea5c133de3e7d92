package scoring

import (
	"github.com/opensource-finance/kite/internal/domain"
)

// ScaleParam holds the fitted standard-scaling parameters for one
// feature column.
type ScaleParam struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// ModelArtifact is a fitted linear model exported from the offline
// training pipeline. Models emit raw scores on a 0-100 scale.
// Coefficients and scale parameters are keyed by feature name; a feature
// without an entry contributes nothing, and a feature without scale
// parameters is passed through unscaled.
type ModelArtifact struct {
	ID        string                `json:"id"`
	DocType   domain.DocType        `json:"docType"`
	Intercept float64               `json:"intercept"`
	Coef      map[string]float64    `json:"coef"`
	Scale     map[string]ScaleParam `json:"scale,omitempty"`
}

// Evaluate applies the fitted transform and linear model to a vector and
// returns the raw 0-100 score, clamped.
func (m *ModelArtifact) Evaluate(vec *domain.FeatureVector) float64 {
	score := m.Intercept
	for i, name := range vec.Names {
		coef, ok := m.Coef[name]
		if !ok {
			continue
		}
		x := vec.Values[i]
		if sp, ok := m.Scale[name]; ok && sp.Std > 0 {
			x = (x - sp.Mean) / sp.Std
		}
		score += coef * x
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// BuiltinArtifacts returns the shipped model artifacts. Deployments
// normally override these with freshly trained exports; the builtins
// keep the community tier scoring out of the box.
func BuiltinArtifacts() []*ModelArtifact {
	return []*ModelArtifact{
		checkRidgeV2(),
		moneyOrderRidgeV1(),
		paystubRidgeV3(),
		paystubGBRV3(),
		statementRidgeV2(),
		statementGBRV2(),
	}
}

func checkRidgeV2() *ModelArtifact {
	return &ModelArtifact{
		ID:        "check-ridge-v2",
		DocType:   domain.DocTypeCheck,
		Intercept: 52.0,
		Coef: map[string]float64{
			"has_check_number":   -7.5,
			"has_date":           -4.0,
			"has_payee":          -6.0,
			"has_payer_name":     -6.5,
			"has_bank_name":      -5.0,
			"has_routing_number": -5.5,
			"has_account_number": -5.0,
			"amount":             4.2,
			"image_quality":      -9.0,
			"amount_words_match": -8.0,
		},
		Scale: map[string]ScaleParam{
			"amount": {Mean: 1250.0, Std: 4800.0},
		},
	}
}

func moneyOrderRidgeV1() *ModelArtifact {
	return &ModelArtifact{
		ID:        "moneyorder-ridge-v1",
		DocType:   domain.DocTypeMoneyOrder,
		Intercept: 48.0,
		Coef: map[string]float64{
			"has_serial_number":     -6.0,
			"has_date":              -2.5,
			"has_payee":             -4.5,
			"has_purchaser":         -4.0,
			"has_issuer":            -4.0,
			"has_purchaser_address": -1.5,
			"has_payee_address":     -1.0,
			"has_signature":         -3.0,
			"has_amount_words":      -2.0,
			"amount":                1.8,
			"fee_amount_ratio":      2.2,
			"total_consistency":     -7.0,
			"amount_round_number":   3.5,
			"amount_near_limit":     6.5,
			"serial_length_valid":   -5.0,
			"date_parse_ok":         -2.0,
			"image_quality":         -7.5,
		},
		Scale: map[string]ScaleParam{
			"amount":           {Mean: 420.0, Std: 310.0},
			"fee_amount_ratio": {Mean: 0.02, Std: 0.05},
		},
	}
}

func paystubRidgeV3() *ModelArtifact {
	return &ModelArtifact{
		ID:        "paystub-ridge-v3",
		DocType:   domain.DocTypePaystub,
		Intercept: 45.0,
		Coef: map[string]float64{
			"has_employer_name":      -4.0,
			"has_employee_name":      -4.0,
			"has_pay_period_start":   -1.5,
			"has_pay_period_end":     -1.5,
			"has_pay_date":           -2.0,
			"gross_pay":              1.2,
			"net_gross_ratio":        5.5,
			"tax_gross_ratio":        -3.5,
			"deduction_consistency":  -8.5,
			"ytd_consistency":        -5.0,
			"rate_hours_consistency": -4.0,
			"image_quality":          -7.0,
			"gross_round_number":     2.8,
			"net_round_number":       2.4,
			"missing_critical_count": 9.5,
			"zero_withholding":       8.0,
			"date_order_valid":       -3.5,
		},
		Scale: map[string]ScaleParam{
			"gross_pay":       {Mean: 2850.0, Std: 2100.0},
			"net_gross_ratio": {Mean: 0.74, Std: 0.12},
			"tax_gross_ratio": {Mean: 0.22, Std: 0.09},
		},
	}
}

func paystubGBRV3() *ModelArtifact {
	return &ModelArtifact{
		ID:        "paystub-gbr-v3",
		DocType:   domain.DocTypePaystub,
		Intercept: 42.0,
		Coef: map[string]float64{
			"has_employer_name":      -3.0,
			"has_employer_address":   -1.5,
			"has_employee_name":      -3.0,
			"has_employee_address":   -1.0,
			"net_gross_ratio":        7.0,
			"tax_gross_ratio":        -4.5,
			"deduction_consistency":  -9.5,
			"ytd_consistency":        -4.0,
			"rate_hours_consistency": -5.0,
			"image_quality":          -6.0,
			"missing_critical_count": 11.0,
			"zero_withholding":       9.5,
			"date_order_valid":       -2.5,
		},
		Scale: map[string]ScaleParam{
			"net_gross_ratio": {Mean: 0.74, Std: 0.12},
			"tax_gross_ratio": {Mean: 0.22, Std: 0.09},
		},
	}
}

func statementRidgeV2() *ModelArtifact {
	return &ModelArtifact{
		ID:        "statement-ridge-v2",
		DocType:   domain.DocTypeBankStatement,
		Intercept: 44.0,
		Coef: map[string]float64{
			"has_bank_name":          -3.5,
			"has_account_holder":     -3.5,
			"has_account_number":     -3.0,
			"has_beginning_balance":  -2.0,
			"has_ending_balance":     -2.0,
			"balance_consistency":    -12.0,
			"credits_match_txns":     -5.0,
			"debits_match_txns":      -5.0,
			"duplicate_txn_count":    2.2,
			"round_number_txn_count": 1.4,
			"off_hours_txn_count":    1.2,
			"large_txn_count":        1.8,
			"zero_txn_flag":          6.5,
			"large_deposit_flag":     4.0,
			"negative_ending_flag":   3.0,
			"missing_critical_count": 8.5,
			"date_order_valid":       -3.0,
			"image_quality":          -6.5,
		},
		Scale: map[string]ScaleParam{
			"duplicate_txn_count":    {Mean: 0.4, Std: 1.6},
			"round_number_txn_count": {Mean: 2.1, Std: 3.2},
			"off_hours_txn_count":    {Mean: 1.2, Std: 2.5},
			"large_txn_count":        {Mean: 0.6, Std: 1.4},
		},
	}
}

func statementGBRV2() *ModelArtifact {
	return &ModelArtifact{
		ID:        "statement-gbr-v2",
		DocType:   domain.DocTypeBankStatement,
		Intercept: 40.0,
		Coef: map[string]float64{
			"balance_consistency":    -14.0,
			"credits_match_txns":     -6.0,
			"debits_match_txns":      -6.0,
			"deposit_ratio":          3.0,
			"duplicate_txn_count":    2.8,
			"round_number_txn_count": 1.8,
			"off_hours_txn_count":    1.5,
			"large_txn_count":        2.2,
			"txns_in_period_ratio":   -4.5,
			"zero_txn_flag":          8.0,
			"large_deposit_flag":     5.0,
			"missing_critical_count": 10.0,
			"image_quality":          -5.5,
		},
		Scale: map[string]ScaleParam{
			"duplicate_txn_count":    {Mean: 0.4, Std: 1.6},
			"round_number_txn_count": {Mean: 2.1, Std: 3.2},
			"off_hours_txn_count":    {Mean: 1.2, Std: 2.5},
			"large_txn_count":        {Mean: 0.6, Std: 1.4},
		},
	}
}
