package dsl

import (
	"encoding/json"
	"fmt"

	"zkgate/internal/apperrors"
)

var validAlgorithms = map[string]bool{
	"ed25519": true,
	"ecdsa":   true,
	"rsa":     true,
}

// ParseBytes parses a JSON DSL document and validates it, returning a
// path-qualified error on the first violation found.
func ParseBytes(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, apperrors.ErrInvalidArgument.Wrap(fmt.Errorf("parse DSL document: %w", err))
	}
	if err := Validate(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate enforces the DSL's structural and semantic constraints.
func Validate(doc Document) error {
	if doc.UseCase == "" {
		return invalid("use_case", "must not be empty")
	}
	if len(doc.ValidationRules) == 0 {
		return invalid("validation_rules", "must not be empty")
	}
	for i, rule := range doc.ValidationRules {
		if err := validateRule(i, rule); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(index int, rule Rule) error {
	path := fmt.Sprintf("validation_rules[%d]", index)

	switch rule.Type {
	case RuleSignatureCheck:
		if rule.Field == "" {
			return invalid(path+".field", "must not be empty")
		}
		if !validAlgorithms[rule.Algorithm] {
			return invalid(path+".algorithm", "must be one of ed25519, ecdsa, rsa")
		}
		if rule.PublicKeyParam == "" {
			return invalid(path+".public_key_param", "must not be empty")
		}
		if len(rule.MessageFields) == 0 {
			return invalid(path+".message_fields", "must not be empty")
		}

	case RuleRangeCheck:
		if rule.Field == "" {
			return invalid(path+".field", "must not be empty")
		}
		if err := exactlyOne(path, "min", rule.Min != nil, "min_param", rule.MinParam != ""); err != nil {
			return err
		}
		if err := exactlyOne(path, "max", rule.Max != nil, "max_param", rule.MaxParam != ""); err != nil {
			return err
		}

	case RuleAgeVerification:
		if rule.DOBField == "" {
			return invalid(path+".dob_field", "must not be empty")
		}
		if err := exactlyOne(path, "min_age", rule.MinAge != nil, "min_age_param", rule.MinAgeParam != ""); err != nil {
			return err
		}

	case RuleBlacklistCheck:
		if rule.Field == "" {
			return invalid(path+".field", "must not be empty")
		}
		if rule.BlacklistParam == "" {
			return invalid(path+".blacklist_param", "must not be empty")
		}

	case RuleArrayIntersectionCheck:
		if rule.Field == "" {
			return invalid(path+".field", "must not be empty")
		}
		if rule.ProhibitedParam == "" {
			return invalid(path+".prohibited_param", "must not be empty")
		}

	case RuleCustom:
		if rule.Code == "" {
			return invalid(path+".code", "must not be empty")
		}
		// Syntactic validity of the embedded fragment is not enforced here;
		// it is the tenant's risk.

	default:
		return invalid(path+".type", fmt.Sprintf("unknown rule type %q", rule.Type))
	}

	return nil
}

// exactlyOne enforces that exactly one of two mutually-exclusive fields is
// present, as range_check and age_verification both require.
func exactlyOne(path, nameA string, presentA bool, nameB string, presentB bool) error {
	if presentA == presentB {
		if presentA {
			return invalid(path, fmt.Sprintf("exactly one of %s or %s may be set, not both", nameA, nameB))
		}
		return invalid(path, fmt.Sprintf("exactly one of %s or %s must be set", nameA, nameB))
	}
	return nil
}

func invalid(path, reason string) error {
	return apperrors.ErrInvalidArgument.Wrap(fmt.Errorf("%s: %s", path, reason))
}
