// Package resolver implements dotted-path lookup and {{ path }} templating
// over an in-memory scope. Paths never go through an interpreter: a segment
// indexes a map by key or an array by integer index.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// Lookup resolves a dotted path against a value. The empty path and "."
// yield the whole value.
func Lookup(value interface{}, path string) (interface{}, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "." {
		return value, nil
	}

	doc, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value for path lookup: %w", err)
	}
	result := gjson.GetBytes(doc, path)
	if !result.Exists() {
		return nil, fmt.Errorf("path not found: %s", path)
	}
	return result.Value(), nil
}

// Render substitutes every {{ path }} placeholder in template with the value
// found in scope. Non-string values are rendered as JSON.
func Render(template string, scope map[string]interface{}) (string, error) {
	var firstErr error
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		value, err := Lookup(scope, path)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to resolve placeholder %s: %w", match, err)
			}
			return match
		}
		return stringify(value)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return rendered, nil
}

// ResolveValue recursively resolves placeholders in a value. A string that
// consists of exactly one placeholder resolves to the raw referenced value,
// preserving its type; strings with surrounding text are interpolated.
func ResolveValue(value interface{}, scope map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, scope)
	case map[string]interface{}:
		resolved := make(map[string]interface{}, len(v))
		for key, item := range v {
			out, err := ResolveValue(item, scope)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s: %w", key, err)
			}
			resolved[key] = out
		}
		return resolved, nil
	case []interface{}:
		resolved := make([]interface{}, len(v))
		for i, item := range v {
			out, err := ResolveValue(item, scope)
			if err != nil {
				return nil, err
			}
			resolved[i] = out
		}
		return resolved, nil
	default:
		// Primitives pass through
		return value, nil
	}
}

func resolveString(s string, scope map[string]interface{}) (interface{}, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Full-string placeholder: return the raw value
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		path := strings.TrimSpace(s[matches[0][2]:matches[0][3]])
		return Lookup(scope, path)
	}

	return Render(s, scope)
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		// Trim the trailing .0 JSON numbers pick up
		doc, _ := json.Marshal(v)
		return string(doc)
	default:
		doc, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(doc)
	}
}
