// Package dsl defines the JSON document a tenant writes to describe its
// private-input schema, public parameters, and ordered validation rules.
// Validation rules are a closed, tagged sum of six variants — expressed
// here as a discriminated union, not open-class polymorphism.
package dsl

import "encoding/json"

// RuleType tags which of the six validation rule variants a Rule carries.
type RuleType string

const (
	RuleSignatureCheck        RuleType = "signature_check"
	RuleRangeCheck            RuleType = "range_check"
	RuleAgeVerification       RuleType = "age_verification"
	RuleBlacklistCheck        RuleType = "blacklist_check"
	RuleArrayIntersectionCheck RuleType = "array_intersection_check"
	RuleCustom                RuleType = "custom"
)

// Rule is one validation rule, carrying only the fields relevant to its Type.
// Unused fields for a given variant are left zero; the parser enforces which
// fields are required per variant.
type Rule struct {
	Type RuleType `json:"type"`

	// signature_check
	Field           string   `json:"field,omitempty"`
	Algorithm       string   `json:"algorithm,omitempty"`
	PublicKeyParam  string   `json:"public_key_param,omitempty"`
	MessageFields   []string `json:"message_fields,omitempty"`

	// range_check
	Min      *float64 `json:"min,omitempty"`
	MinParam string   `json:"min_param,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	MaxParam string   `json:"max_param,omitempty"`

	// age_verification
	DOBField    string `json:"dob_field,omitempty"`
	MinAge      *int   `json:"min_age,omitempty"`
	MinAgeParam string `json:"min_age_param,omitempty"`

	// blacklist_check
	BlacklistParam string `json:"blacklist_param,omitempty"`

	// array_intersection_check
	ProhibitedParam string `json:"prohibited_param,omitempty"`

	// custom
	Code string `json:"code,omitempty"`
}

// FieldType is a DSL type vocabulary entry: {string, u32, u64, i32, i64,
// bool, bytes, array<T>}. An unrecognized string is preserved verbatim; the
// Code Generator is responsible for defaulting unknown types to text with a
// recorded warning.
type FieldType string

// ObjectSchema is a single named group of private inputs: a "type" tag
// (always "object" in the current vocabulary) plus its field-name → type
// map, e.g. {"type":"object","fields":{"date_of_birth":"string"}}.
type ObjectSchema struct {
	TypeName string               `json:"type"`
	Fields   map[string]FieldType `json:"fields"`
}

// InputSchema is either a single ObjectSchema, or a map of named
// ObjectSchemas — "object or named-object map". Exactly one of Object or
// Map is populated.
type InputSchema struct {
	Object *ObjectSchema
	Map    map[string]ObjectSchema
}

// MarshalJSON emits whichever of Object/Map is populated.
func (s InputSchema) MarshalJSON() ([]byte, error) {
	if s.Object != nil {
		return json.Marshal(s.Object)
	}
	return json.Marshal(s.Map)
}

// UnmarshalJSON mirrors an untagged-enum decode: try the single-object
// shape first (it must carry a non-empty "type"), and fall back to the
// named-object-map shape otherwise. An empty document defaults to an empty
// single object.
func (s *InputSchema) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		s.Object = &ObjectSchema{}
		return nil
	}

	var obj ObjectSchema
	if err := json.Unmarshal(data, &obj); err == nil && obj.TypeName != "" {
		s.Object = &obj
		return nil
	}

	var m map[string]ObjectSchema
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.Map = m
	return nil
}

// Document is the full DSL document a tenant submits.
type Document struct {
	UseCase         string               `json:"use_case"`
	Description     string               `json:"description"`
	Version         string               `json:"version"`
	PrivateInputs   InputSchema          `json:"private_inputs"`
	PublicParams    map[string]FieldType `json:"public_params"`
	ValidationRules []Rule               `json:"validation_rules"`
	Outputs         map[string]FieldType `json:"outputs"`
}
