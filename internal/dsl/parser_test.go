package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"zkgate/internal/dsl"
)

const ageDSL = `{
	"use_case": "age",
	"description": "age gate",
	"version": "1.0.0",
	"private_inputs": {"user": {"type": "object", "fields": {"date_of_birth": "string"}}},
	"public_params": {},
	"validation_rules": [
		{"type": "age_verification", "dob_field": "date_of_birth", "min_age": 18}
	],
	"outputs": {}
}`

func TestParseBytes_SimpleDSL(t *testing.T) {
	doc, err := dsl.ParseBytes([]byte(ageDSL))
	require.NoError(t, err)
	require.Equal(t, "age", doc.UseCase)
	require.Len(t, doc.ValidationRules, 1)
	require.Equal(t, dsl.RuleAgeVerification, doc.ValidationRules[0].Type)
	require.NotNil(t, doc.PrivateInputs.Map)
	require.Contains(t, doc.PrivateInputs.Map, "user")
	require.Equal(t, dsl.FieldType("string"), doc.PrivateInputs.Map["user"].Fields["date_of_birth"])
}

func TestValidate_EmptyUseCase(t *testing.T) {
	doc := dsl.Document{ValidationRules: []dsl.Rule{{Type: dsl.RuleCustom, Code: "x"}}}
	err := dsl.Validate(doc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "use_case")
}

func TestValidate_NoRules(t *testing.T) {
	doc := dsl.Document{UseCase: "x"}
	err := dsl.Validate(doc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation_rules")
}

func TestValidate_InvalidAlgorithm(t *testing.T) {
	doc := dsl.Document{
		UseCase: "x",
		ValidationRules: []dsl.Rule{{
			Type:           dsl.RuleSignatureCheck,
			Field:          "sig",
			Algorithm:      "md5",
			PublicKeyParam: "pk",
			MessageFields:  []string{"a"},
		}},
	}
	err := dsl.Validate(doc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "algorithm")
}

func TestValidate_RangeCheckRequiresExactlyOneMinAndMax(t *testing.T) {
	min := 1.0
	max := 2.0
	t.Run("missing both min", func(t *testing.T) {
		doc := dsl.Document{
			UseCase: "x",
			ValidationRules: []dsl.Rule{{Type: dsl.RuleRangeCheck, Field: "f", Max: &max}},
		}
		require.Error(t, dsl.Validate(doc))
	})
	t.Run("both min forms set", func(t *testing.T) {
		doc := dsl.Document{
			UseCase: "x",
			ValidationRules: []dsl.Rule{{Type: dsl.RuleRangeCheck, Field: "f", Min: &min, MinParam: "p", Max: &max}},
		}
		require.Error(t, dsl.Validate(doc))
	})
	t.Run("valid", func(t *testing.T) {
		doc := dsl.Document{
			UseCase: "x",
			ValidationRules: []dsl.Rule{{Type: dsl.RuleRangeCheck, Field: "f", Min: &min, Max: &max}},
		}
		require.NoError(t, dsl.Validate(doc))
	})
}

func TestValidate_BlacklistAndArrayIntersection(t *testing.T) {
	doc := dsl.Document{
		UseCase: "x",
		ValidationRules: []dsl.Rule{
			{Type: dsl.RuleBlacklistCheck, Field: "f", BlacklistParam: "bp"},
			{Type: dsl.RuleArrayIntersectionCheck, Field: "f2", ProhibitedParam: "pp"},
		},
	}
	require.NoError(t, dsl.Validate(doc))
}

func TestValidate_CustomRequiresCode(t *testing.T) {
	doc := dsl.Document{
		UseCase:         "x",
		ValidationRules: []dsl.Rule{{Type: dsl.RuleCustom}},
	}
	require.Error(t, dsl.Validate(doc))
}

func TestValidate_UnknownRuleType(t *testing.T) {
	doc := dsl.Document{
		UseCase:         "x",
		ValidationRules: []dsl.Rule{{Type: "nonsense"}},
	}
	require.Error(t, dsl.Validate(doc))
}
