package codegen

import (
	"fmt"
	"strings"

	"zkgate/internal/dsl"
)

// generateValidateAll renders the `validate_all` function body as the
// ordered concatenation of each rule's translation, in DSL order:
// short-circuit order can be user-visible, so the sequence in the DSL is
// the sequence here.
func generateValidateAll(rules []dsl.Rule) (string, error) {
	var blocks []string
	for i, rule := range rules {
		block, err := translateRule(i, rule)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, block)
	}


	var b strings.Builder
	b.WriteString("fn validate_all(private_inputs: &PrivateInputs, public_params: &PublicParams) -> bool {\n")
	for _, block := range blocks {
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString("    true\n")
	b.WriteString("}\n")
	return b.String(), nil
}

func translateRule(index int, rule dsl.Rule) (string, error) {
	field := ToSnakeCase(rule.Field)

	switch rule.Type {
	case dsl.RuleSignatureCheck:
		msgFields := make([]string, len(rule.MessageFields))
		for i, f := range rule.MessageFields {
			msgFields[i] = ToSnakeCase(f)
		}
		return fmt.Sprintf(
			"    // rule %d: signature_check\n"+
				"    if !verify_signature(\"%s\", &public_params.%s, &[%s]) {\n"+
				"        return false;\n"+
				"    }\n",
			index, rule.Algorithm, ToSnakeCase(rule.PublicKeyParam), quoteJoin(msgFields)), nil

	case dsl.RuleRangeCheck:
		min := paramOrLiteralFloat(rule.MinParam, rule.Min)
		max := paramOrLiteralFloat(rule.MaxParam, rule.Max)
		return fmt.Sprintf(
			"    // rule %d: range_check\n"+
				"    if (private_inputs.%s as f64) < %s || (private_inputs.%s as f64) > %s {\n"+
				"        return false;\n"+
				"    }\n",
			index, field, min, field, max), nil

	case dsl.RuleAgeVerification:
		dobField := ToSnakeCase(rule.DOBField)
		minAge := paramOrLiteralInt(rule.MinAgeParam, rule.MinAge)
		return fmt.Sprintf(
			"    // rule %d: age_verification\n"+
				"    let age = compute_age(&private_inputs.%s);\n"+
				"    if age < %s {\n"+
				"        return false;\n"+
				"    }\n",
			index, dobField, minAge), nil

	case dsl.RuleBlacklistCheck:
		return fmt.Sprintf(
			"    // rule %d: blacklist_check\n"+
				"    if public_params.%s.contains(&private_inputs.%s) {\n"+
				"        return false;\n"+
				"    }\n",
			index, ToSnakeCase(rule.BlacklistParam), field), nil

	case dsl.RuleArrayIntersectionCheck:
		return fmt.Sprintf(
			"    // rule %d: array_intersection_check\n"+
				"    if private_inputs.%s.iter().any(|v| public_params.%s.contains(v)) {\n"+
				"        return false;\n"+
				"    }\n",
			index, field, ToSnakeCase(rule.ProhibitedParam)), nil

	case dsl.RuleCustom:
		// The tenant's raw fragment is inlined verbatim. This is the
		// documented escape hatch and a known trust boundary: nothing here sandboxes or validates its contents.
		return fmt.Sprintf(
			"    // rule %d: custom\n"+
				"%s\n",
			index, rule.Code), nil

	default:
		return "", fmt.Errorf("validation_rules[%d]: unknown rule type %q", index, rule.Type)
	}
}

func quoteJoin(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = fmt.Sprintf("&private_inputs.%s", f)
	}
	return strings.Join(quoted, ", ")
}

func paramOrLiteralFloat(param string, literal *float64) string {
	if param != "" {
		return "public_params." + ToSnakeCase(param) + " as f64"
	}
	return fmt.Sprintf("%v", *literal)
}

func paramOrLiteralInt(param string, literal *int) string {
	if param != "" {
		return "public_params." + ToSnakeCase(param)
	}
	return fmt.Sprintf("%d", *literal)
}
