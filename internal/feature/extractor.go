package feature

import (
	"fmt"

	"github.com/opensource-finance/kite/internal/domain"
)

// Feature is one named column of a document type's schema.
type Feature struct {
	Name    string
	Extract func(c *Context) float64
}

// Extractor produces feature vectors from normalized records. The
// per-type schemas are fixed at construction; the declared arity and
// order are invariants the scorer's artifacts depend on.
type Extractor struct {
	schemas map[domain.DocType][]Feature
}

// NewExtractor creates an extractor with the built-in schemas:
// check 10, money order 18, paystub 30, bank statement 35 features.
func NewExtractor() *Extractor {
	return &Extractor{
		schemas: map[domain.DocType][]Feature{
			domain.DocTypeCheck:         checkSchema(),
			domain.DocTypeMoneyOrder:    moneyOrderSchema(),
			domain.DocTypePaystub:       paystubSchema(),
			domain.DocTypeBankStatement: bankStatementSchema(),
		},
	}
}

// Arity returns the declared feature count for a document type.
func (e *Extractor) Arity(docType domain.DocType) (int, error) {
	schema, ok := e.schemas[docType]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownDocType, docType)
	}
	return len(schema), nil
}

// FeatureNames returns the ordered feature names for a document type.
func (e *Extractor) FeatureNames(docType domain.DocType) ([]string, error) {
	schema, ok := e.schemas[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDocType, docType)
	}
	names := make([]string, len(schema))
	for i, f := range schema {
		names[i] = f.Name
	}
	return names, nil
}

// Extract builds the feature vector for a record. It is deterministic
// and never fails for a known document type: extraction gaps become
// default feature values, not errors.
func (e *Extractor) Extract(docType domain.DocType, rec *domain.Record) (*domain.FeatureVector, error) {
	schema, ok := e.schemas[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDocType, docType)
	}

	if rec == nil {
		rec = &domain.Record{}
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}

	c := newContext(rec)

	vec := &domain.FeatureVector{
		DocType: docType,
		Names:   make([]string, len(schema)),
		Values:  make([]float64, len(schema)),
	}
	for i, f := range schema {
		vec.Names[i] = f.Name
		vec.Values[i] = f.Extract(c)
	}
	return vec, nil
}
