package domain

import (
	"time"
)

// DocType identifies the kind of financial document under assessment.
type DocType string

const (
	DocTypeCheck         DocType = "check"
	DocTypeMoneyOrder    DocType = "money_order"
	DocTypePaystub       DocType = "paystub"
	DocTypeBankStatement DocType = "bank_statement"
)

// KnownDocTypes lists every supported document type.
func KnownDocTypes() []DocType {
	return []DocType{DocTypeCheck, DocTypeMoneyOrder, DocTypePaystub, DocTypeBankStatement}
}

// ValidDocType reports whether t is a supported document type.
func ValidDocType(t DocType) bool {
	switch t {
	case DocTypeCheck, DocTypeMoneyOrder, DocTypePaystub, DocTypeBankStatement:
		return true
	}
	return false
}

// Record is a normalized document record as produced by the upstream
// extraction pipeline. Fields map normalized field names to typed values
// (string, float64, int, bool). Kite never parses raw document text.
type Record struct {
	// Fields holds scalar document fields (e.g. "check_number", "gross_pay").
	Fields map[string]any `json:"fields"`

	// Transactions holds the transaction list for bank statements.
	// Empty for other document types.
	Transactions []TransactionLine `json:"transactions,omitempty"`
}

// TransactionLine is a single statement transaction.
type TransactionLine struct {
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Direction   string    `json:"direction"` // "credit" or "debit"
	Timestamp   time.Time `json:"timestamp"`
}

// Transaction directions.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Submission is a document submitted for assessment, as carried on the
// event bus and through the async worker.
type Submission struct {
	ID         string  `json:"id"`
	DocType    DocType `json:"docType"`
	EntityName string  `json:"entityName"`
	Record     *Record `json:"record"`

	TraceID    string    `json:"traceId,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}
