package foundry

import (
	"encoding/json"
	"strings"
)

// Filter is an ontology search predicate: a leaf equality test or a
// conjunction/disjunction of sub-filters. Building is pure and
// deterministic, and the JSON form is byte-stable for identical input,
// since serialized filters feed the gateway's cache key.
type Filter struct {
	Type    string
	Field   string
	Value   interface{}
	Clauses []*Filter
}

// leafJSON and nodeJSON pin the wire field order.
type leafJSON struct {
	Type  string      `json:"type"`
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

type nodeJSON struct {
	Type  string    `json:"type"`
	Value []*Filter `json:"value"`
}

// MarshalJSON emits the platform's filter wire shape: leaves as
// {type:"eq",field,value}, interior nodes as {type:"and"|"or",value:[...]}.
func (f *Filter) MarshalJSON() ([]byte, error) {
	if f.Type == "eq" {
		return json.Marshal(leafJSON{Type: f.Type, Field: f.Field, Value: f.Value})
	}
	return json.Marshal(nodeJSON{Type: f.Type, Value: f.Clauses})
}

// Eq returns an equality leaf.
func Eq(field string, value interface{}) *Filter {
	return &Filter{Type: "eq", Field: field, Value: value}
}

// And returns a conjunction. A single clause collapses to itself.
func And(clauses ...*Filter) *Filter {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return &Filter{Type: "and", Clauses: clauses}
}

// Or returns a disjunction. A single clause collapses to itself.
func Or(clauses ...*Filter) *Filter {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return &Filter{Type: "or", Clauses: clauses}
}

// nativeSubjectPrefixes are the Auth0-style prefixes marking an identity
// token as the platform's own canonical subject identifier.
var nativeSubjectPrefixes = []string{
	"auth0|",
	"google-oauth2|",
	"apple|",
	"samlp|",
}

// IsNativeSubject reports whether s is already in the platform-native
// identifier format (a recognized prefix followed by a non-empty remainder).
func IsNativeSubject(s string) bool {
	for _, p := range nativeSubjectPrefixes {
		if strings.HasPrefix(s, p) && len(s) > len(p) {
			return true
		}
	}
	return false
}

// identityFields are the field names under which the ontology has
// historically stored a patient's identity, in lookup order. The schema has
// drifted over time and is not consistent across object types, so a
// non-native identifier fans out across all of them.
var identityFields = []string{"userId", "user_id", "patientId", "atlasId"}

// PatientFilter builds the identity predicate for a resolved patient id.
// A platform-native id matches authoritatively on the canonical field; any
// other id is matched against every historical identity field.
func PatientFilter(resolvedID string) *Filter {
	if IsNativeSubject(resolvedID) {
		return Eq(identityFields[0], resolvedID)
	}
	clauses := make([]*Filter, 0, len(identityFields))
	for _, field := range identityFields {
		clauses = append(clauses, Eq(field, resolvedID))
	}
	return Or(clauses...)
}

// CategoryFilter builds a category predicate. When the caller-facing value
// does not map 1:1 onto the platform taxonomy the filter matches either the
// code field or the display field.
func CategoryFilter(category string) *Filter {
	return Or(
		Eq("category", category),
		Eq("categoryDisplay", category),
	)
}

// PatientCategoryFilter combines the identity predicate with an optional
// category predicate under an outer conjunction.
func PatientCategoryFilter(resolvedID, category string) *Filter {
	patient := PatientFilter(resolvedID)
	if category == "" {
		return patient
	}
	return And(patient, CategoryFilter(category))
}
