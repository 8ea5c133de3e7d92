package classify

import (
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/feature"
)

func classifyRecord(t *testing.T, e *Engine, docType domain.DocType, rec *domain.Record) *domain.FraudFinding {
	t.Helper()
	vec, err := feature.NewExtractor().Extract(docType, rec)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	return e.Classify(&Input{Vector: vec, Record: rec})
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestClassifyCleanDocument(t *testing.T) {
	e := newTestEngine(t)

	rec := &domain.Record{Fields: map[string]any{
		"check_number":          "1042",
		"date":                  "2025-06-10",
		"payee":                 "Jordan Reyes",
		"payer_name":            "Acme Corp",
		"bank_name":             "First National",
		"routing_number":        "021000021",
		"account_number":        "123456789",
		"amount":                1250.00,
		"amount_in_words_value": 1250.00,
		"image_quality":         0.95,
	}}

	if finding := classifyRecord(t, e, domain.DocTypeCheck, rec); finding != nil {
		t.Errorf("Classify(clean check) = %+v, want nil", finding)
	}
}

func TestClassifyMostSevereWins(t *testing.T) {
	e := newTestEngine(t)

	// Missing identity with a degraded scan trips FABRICATED_DOCUMENT
	// (90) and MISSING_CRITICAL_FIELDS (40); only the former surfaces.
	rec := &domain.Record{Fields: map[string]any{
		"amount":        500.00,
		"image_quality": 0.3,
	}}

	finding := classifyRecord(t, e, domain.DocTypeCheck, rec)
	if finding == nil {
		t.Fatal("Classify() = nil, want a finding")
	}
	if finding.Type != domain.FraudFabricatedDocument {
		t.Errorf("finding.Type = %s, want FABRICATED_DOCUMENT", finding.Type)
	}
	if finding.Severity != SeverityFabricated {
		t.Errorf("finding.Severity = %d, want %d", finding.Severity, SeverityFabricated)
	}
}

func TestClassifyCheckAmountMismatch(t *testing.T) {
	e := newTestEngine(t)

	rec := &domain.Record{Fields: map[string]any{
		"check_number":          "1042",
		"payee":                 "Jordan Reyes",
		"payer_name":            "Acme Corp",
		"bank_name":             "First National",
		"routing_number":        "021000021",
		"amount":                250.00,
		"amount_in_words_value": 2500.00,
		"image_quality":         0.95,
	}}

	finding := classifyRecord(t, e, domain.DocTypeCheck, rec)
	if finding == nil {
		t.Fatal("Classify() = nil, want AMOUNT_CONSISTENCY_VIOLATION")
	}
	if finding.Type != domain.FraudAmountViolation {
		t.Fatalf("finding.Type = %s, want AMOUNT_CONSISTENCY_VIOLATION", finding.Type)
	}
	if len(finding.Reasons) != 1 {
		t.Fatalf("len(Reasons) = %d, want 1", len(finding.Reasons))
	}
	// Reasons carry the concrete amounts, not just a rule name.
	if !strings.Contains(finding.Reasons[0], "250.00") || !strings.Contains(finding.Reasons[0], "2500.00") {
		t.Errorf("reason %q missing concrete amounts", finding.Reasons[0])
	}
}

func TestClassifyPaystubZeroWithholding(t *testing.T) {
	e := newTestEngine(t)

	rec := &domain.Record{Fields: map[string]any{
		"employer_name":    "Acme Corp",
		"employee_name":    "Jordan Reyes",
		"gross_pay":        4000.00,
		"net_pay":          3200.00,
		"total_deductions": 800.00,
		"federal_tax":      0.0,
		"state_tax":        0.0,
		"image_quality":    0.95,
	}}

	finding := classifyRecord(t, e, domain.DocTypePaystub, rec)
	if finding == nil {
		t.Fatal("Classify() = nil, want ZERO_WITHHOLDING")
	}
	if finding.Type != domain.FraudZeroWithholding {
		t.Errorf("finding.Type = %s, want ZERO_WITHHOLDING", finding.Type)
	}
	if finding.Severity != SeverityZeroWithholding {
		t.Errorf("finding.Severity = %d, want %d", finding.Severity, SeverityZeroWithholding)
	}
}

func TestClassifyBankStatementBalanceViolation(t *testing.T) {
	e := newTestEngine(t)

	rec := &domain.Record{Fields: map[string]any{
		"bank_name":         "First National",
		"account_holder":    "Jordan Reyes",
		"account_number":    "123456789",
		"beginning_balance": 1000.00,
		"total_credits":     2500.00,
		"total_debits":      1800.00,
		"ending_balance":    9999.00,
		"image_quality":     0.95,
	}}

	finding := classifyRecord(t, e, domain.DocTypeBankStatement, rec)
	if finding == nil {
		t.Fatal("Classify() = nil, want BALANCE_CONSISTENCY_VIOLATION")
	}
	if finding.Type != domain.FraudBalanceViolation {
		t.Fatalf("finding.Type = %s, want BALANCE_CONSISTENCY_VIOLATION", finding.Type)
	}
	if !strings.Contains(finding.Reasons[0], "1700.00") {
		t.Errorf("reason %q missing the expected balance", finding.Reasons[0])
	}

	t.Run("reconciling statement is clean", func(t *testing.T) {
		rec := &domain.Record{
			Fields: map[string]any{
				"bank_name":         "First National",
				"account_holder":    "Jordan Reyes",
				"account_number":    "123456789",
				"beginning_balance": 12450.75,
				"total_credits":     12177.50,
				"total_debits":      8998.35,
				"ending_balance":    15629.90,
				"image_quality":     0.95,
			},
			Transactions: []domain.TransactionLine{
				{Description: "payroll deposit", Amount: 12177.50, Direction: domain.DirectionCredit, Timestamp: time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)},
				{Description: "rent", Amount: 8998.35, Direction: domain.DirectionDebit, Timestamp: time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC)},
			},
		}
		if finding := classifyRecord(t, e, domain.DocTypeBankStatement, rec); finding != nil {
			t.Errorf("Classify() = %+v, want nil for reconciling balance", finding)
		}
	})

	t.Run("reason cites reported and expected", func(t *testing.T) {
		rec := &domain.Record{Fields: map[string]any{
			"bank_name":         "First National",
			"account_holder":    "Jordan Reyes",
			"account_number":    "123456789",
			"beginning_balance": 12450.75,
			"total_credits":     12177.50,
			"total_debits":      8998.35,
			"ending_balance":    7500.00,
			"image_quality":     0.95,
		}}
		finding := classifyRecord(t, e, domain.DocTypeBankStatement, rec)
		if finding == nil || finding.Type != domain.FraudBalanceViolation {
			t.Fatalf("finding = %+v, want BALANCE_CONSISTENCY_VIOLATION", finding)
		}
		for _, want := range []string{"7500.00", "15629.90"} {
			if !strings.Contains(finding.Reasons[0], want) {
				t.Errorf("reason %q missing %s", finding.Reasons[0], want)
			}
		}
	})
}

func TestClassifyMoneyOrderStructuring(t *testing.T) {
	e := newTestEngine(t)

	rec := &domain.Record{Fields: map[string]any{
		"serial_number": "1234567890",
		"payee":         "Jordan Reyes",
		"purchaser":     "Sam Okafor",
		"issuer":        "USPS",
		"amount":        1000.00,
		"image_quality": 0.95,
	}}

	finding := classifyRecord(t, e, domain.DocTypeMoneyOrder, rec)
	if finding == nil {
		t.Fatal("Classify() = nil, want SUSPICIOUS_PATTERN")
	}
	if finding.Type != domain.FraudSuspiciousPattern {
		t.Errorf("finding.Type = %s, want SUSPICIOUS_PATTERN", finding.Type)
	}
}

func TestClassifyAccumulatesReasonsForOneType(t *testing.T) {
	e := newTestEngine(t)

	// Ten identical late-night debits fire both the duplicate-transaction
	// and off-hours SUSPICIOUS_PATTERN rules; reasons accumulate on the
	// single surfaced finding.
	txns := make([]domain.TransactionLine, 10)
	for i := range txns {
		txns[i] = domain.TransactionLine{
			Description: "transfer",
			Amount:      50.00,
			Direction:   domain.DirectionDebit,
			Timestamp:   time.Date(2025, 6, 10, 23, 30, 0, 0, time.UTC),
		}
	}
	rec := &domain.Record{
		Fields: map[string]any{
			"bank_name":      "First National",
			"account_holder": "Jordan Reyes",
			"account_number": "123456789",
			"ending_balance": 500.00,
			"image_quality":  0.95,
		},
		Transactions: txns,
	}

	finding := classifyRecord(t, e, domain.DocTypeBankStatement, rec)
	if finding == nil {
		t.Fatal("Classify() = nil, want SUSPICIOUS_PATTERN")
	}
	if finding.Type != domain.FraudSuspiciousPattern {
		t.Fatalf("finding.Type = %s, want SUSPICIOUS_PATTERN", finding.Type)
	}
	if len(finding.Reasons) != 2 {
		t.Errorf("len(Reasons) = %d, want 2 (duplicates + off hours)", len(finding.Reasons))
	}
}

func TestClassifyTieBreakByLoadOrder(t *testing.T) {
	e := newTestEngine(t)

	always := "features.image_quality >= 0.0"
	first := &domain.CustomRule{
		ID: "tie-a", Name: "tie a", Expression: always,
		FraudType: domain.FraudSuspiciousPattern, Severity: 95,
		Reason: "first loaded", Enabled: true,
	}
	second := &domain.CustomRule{
		ID: "tie-b", Name: "tie b", Expression: always,
		FraudType: domain.FraudUnrealisticRatios, Severity: 95,
		Reason: "second loaded", Enabled: true,
	}
	if err := e.CustomRules().Load(first); err != nil {
		t.Fatalf("Load(first) error = %v", err)
	}
	if err := e.CustomRules().Load(second); err != nil {
		t.Fatalf("Load(second) error = %v", err)
	}

	rec := &domain.Record{Fields: map[string]any{
		"check_number":          "1042",
		"payee":                 "Jordan Reyes",
		"payer_name":            "Acme Corp",
		"bank_name":             "First National",
		"routing_number":        "021000021",
		"amount":                100.00,
		"amount_in_words_value": 100.00,
	}}

	finding := classifyRecord(t, e, domain.DocTypeCheck, rec)
	if finding == nil {
		t.Fatal("Classify() = nil, want custom finding")
	}
	if finding.Type != domain.FraudSuspiciousPattern {
		t.Errorf("finding.Type = %s, want first-loaded SUSPICIOUS_PATTERN", finding.Type)
	}
	if finding.Severity != 95 {
		t.Errorf("finding.Severity = %d, want 95", finding.Severity)
	}
}
