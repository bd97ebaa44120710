package chain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lyzr/agentchain/common/sdk"
)

// validateOutput checks a successful node output against the node's declared
// output schema. Two schema shapes are accepted: full JSON Schema (detected
// by $schema, type or properties keys) and the shorthand dict form
// {field: typename}. Failures come back as ValidationError.
func validateOutput(node *sdk.NodeConfig, output interface{}) error {
	schema := node.OutputSchema
	if len(schema) == 0 {
		return nil
	}
	if isJSONSchema(schema) {
		return validateJSONSchema(node.ID, schema, output)
	}
	return validateDictSchema(node.ID, schema, output)
}

func isJSONSchema(schema map[string]interface{}) bool {
	if _, ok := schema["$schema"]; ok {
		return true
	}
	if _, ok := schema["properties"]; ok {
		return true
	}
	if t, ok := schema["type"].(string); ok {
		switch t {
		case "object", "array", "string", "number", "integer", "boolean", "null":
			return true
		}
	}
	return false
}

func validateJSONSchema(nodeID string, schema map[string]interface{}, output interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(output),
	)
	if err != nil {
		return sdk.NewValidationError(nodeID, "schema validation failed: %v", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return sdk.NewValidationError(nodeID, "output does not match schema: %s", strings.Join(msgs, "; "))
}

// validateDictSchema checks the shorthand {field: typename} form. Recognized
// type names: string, number, int, bool, object, array, any.
func validateDictSchema(nodeID string, schema map[string]interface{}, output interface{}) error {
	out, ok := output.(map[string]interface{})
	if !ok {
		return sdk.NewValidationError(nodeID, "output is %T, expected an object", output)
	}
	var problems []string
	for field, want := range schema {
		typename, ok := want.(string)
		if !ok {
			// Nested shapes are not enforced in shorthand form.
			continue
		}
		value, present := out[field]
		if !present {
			problems = append(problems, fmt.Sprintf("missing field %q", field))
			continue
		}
		if !matchesType(value, typename) {
			problems = append(problems, fmt.Sprintf("field %q is %T, expected %s", field, value, typename))
		}
	}
	if len(problems) > 0 {
		return sdk.NewValidationError(nodeID, "output does not match schema: %s", strings.Join(problems, "; "))
	}
	return nil
}

func matchesType(value interface{}, typename string) bool {
	switch typename {
	case "any", "":
		return true
	case "string", "str":
		_, ok := value.(string)
		return ok
	case "bool", "boolean":
		_, ok := value.(bool)
		return ok
	case "number", "float":
		return isNumber(value)
	case "int", "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		case json.Number:
			_, err := v.Int64()
			return err == nil
		}
		return false
	case "object", "dict", "map":
		_, ok := value.(map[string]interface{})
		return ok
	case "array", "list":
		_, ok := value.([]interface{})
		return ok
	default:
		// Unknown typename: do not fail the node over a schema typo.
		return true
	}
}

func isNumber(value interface{}) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}
