package codegen

import (
	"fmt"
	"sort"
	"strings"

	"zkgate/internal/dsl"
)

// rustTypeFor maps a DSL type string to the guest language's concrete type.
// An unrecognized string defaults to text and produces a warning that the
// caller must record rather than merely print; see DESIGN.md.
func rustTypeFor(t dsl.FieldType, warnings *[]string) string {
	s := string(t)
	if strings.HasPrefix(s, "array<") && strings.HasSuffix(s, ">") {
		inner := s[len("array<") : len(s)-1]
		return "Vec<" + rustTypeFor(dsl.FieldType(inner), warnings) + ">"
	}
	switch s {
	case "string":
		return "String"
	case "u32":
		return "u32"
	case "u64":
		return "u64"
	case "i32":
		return "i32"
	case "i64":
		return "i64"
	case "bool":
		return "bool"
	case "bytes":
		return "Vec<u8>"
	default:
		*warnings = append(*warnings, fmt.Sprintf("unknown DSL type %q defaulted to text", s))
		return "String"
	}
}

// generateStructFields renders `pub name: Type,` lines for a field map, in a
// deterministic (sorted) order, recording normalized identifiers in ids to
// detect cross-field collisions.
func generateStructFields(fields map[string]dsl.FieldType, ids *identifierSet, warnings *[]string) ([]structField, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]structField, 0, len(fields))
	for _, name := range names {
		normalized := ToSnakeCase(name)
		if err := ids.add(normalized, name); err != nil {
			return nil, err
		}
		out = append(out, structField{
			OriginalName: name,
			Name:         normalized,
			Type:         rustTypeFor(fields[name], warnings),
		})
	}
	return out, nil
}

type structField struct {
	OriginalName string
	Name         string
	Type         string
}

type generatedStruct struct {
	Name   string
	Fields []structField
}

// generateTypes produces the private-input, public-parameter, and output
// struct definitions. An Object schema yields one struct; a Map schema
// yields one wrapper struct whose fields are themselves named sub-structs.
func generateTypes(doc dsl.Document, ids *identifierSet, warnings *[]string) (privateStructs []generatedStruct, publicStruct generatedStruct, outputStruct generatedStruct, err error) {
	switch {
	case doc.PrivateInputs.Map != nil:
		groupNames := make([]string, 0, len(doc.PrivateInputs.Map))
		for name := range doc.PrivateInputs.Map {
			groupNames = append(groupNames, name)
		}
		sort.Strings(groupNames)

		wrapper := generatedStruct{Name: "PrivateInputs"}
		for _, group := range groupNames {
			structName := ToPascalCase(group)
			if err = ids.add(ToSnakeCase(structName), structName); err != nil {
				return
			}
			var fields []structField
			fields, err = generateStructFields(doc.PrivateInputs.Map[group].Fields, ids, warnings)
			if err != nil {
				return
			}
			privateStructs = append(privateStructs, generatedStruct{Name: structName, Fields: fields})
			wrapper.Fields = append(wrapper.Fields, structField{
				OriginalName: group,
				Name:         ToSnakeCase(group),
				Type:         structName,
			})
		}
		privateStructs = append(privateStructs, wrapper)

	default:
		var fields []structField
		if doc.PrivateInputs.Object != nil {
			fields, err = generateStructFields(doc.PrivateInputs.Object.Fields, ids, warnings)
			if err != nil {
				return
			}
		}
		privateStructs = append(privateStructs, generatedStruct{Name: "PrivateInputs", Fields: fields})
	}

	var publicFields []structField
	publicFields, err = generateStructFields(doc.PublicParams, ids, warnings)
	if err != nil {
		return
	}
	publicStruct = generatedStruct{Name: "PublicParams", Fields: publicFields}

	var outFields []structField
	outFields, err = generateStructFields(doc.Outputs, ids, warnings)
	if err != nil {
		return
	}
	outputStruct = generatedStruct{Name: "Outputs", Fields: outFields}

	return
}
