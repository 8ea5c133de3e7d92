package domain

import "fmt"

// FeatureVector is an ordered, fixed-arity list of named numeric features
// for one document. The order matches the training order of the scoring
// models for the document type and must never change between releases
// without retraining.
type FeatureVector struct {
	DocType DocType   `json:"docType"`
	Names   []string  `json:"names"`
	Values  []float64 `json:"values"`
}

// Len returns the feature arity.
func (v *FeatureVector) Len() int {
	return len(v.Values)
}

// Get returns the value of a named feature.
func (v *FeatureVector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// MustGet returns the value of a named feature and panics if the feature
// is not part of the vector's schema. Only used by rule tables, which are
// declared against the same schema.
func (v *FeatureVector) MustGet(name string) float64 {
	val, ok := v.Get(name)
	if !ok {
		panic(fmt.Sprintf("feature %q not in %s schema", name, v.DocType))
	}
	return val
}

// AsMap returns the vector as a name -> value map. Used to build the CEL
// activation for operator-defined rules and the advisory context.
func (v *FeatureVector) AsMap() map[string]float64 {
	m := make(map[string]float64, len(v.Names))
	for i, n := range v.Names {
		m[n] = v.Values[i]
	}
	return m
}
