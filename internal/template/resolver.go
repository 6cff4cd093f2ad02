// Package template implements the {{...}} substitution engine, built
// around an exact node_outputs/inputs two-source model rather than a
// broader set of env/workflow/execution variable contexts.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var exprPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

var arrayIndexPattern = regexp.MustCompile(`^(.*)\[(\d+)\]$`)

// Resolve replaces every {{expr}} occurrence in template. node_outputs maps
// node id -> that node's stored output value; inputs is the workflow input
// map. Unresolved references are left as the literal "{{expr}}" substring
// and logged; this is never a fatal error.
func Resolve(template string, nodeOutputs map[string]interface{}, inputs map[string]interface{}) string {
	return exprPattern.ReplaceAllStringFunc(template, func(match string) string {
		sub := exprPattern.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		expr := strings.TrimSpace(sub[1])

		val, ok := resolveExpr(expr, nodeOutputs, inputs)
		if !ok {
			log.Warn().Str("expr", expr).Msg("unresolved template reference")
			return match
		}
		return stringify(val)
	})
}

// resolveExpr resolves one "source" or "source.field" expression, where
// field may carry a single trailing array index: field[N].
func resolveExpr(expr string, nodeOutputs, inputs map[string]interface{}) (interface{}, bool) {
	source, field, hasField := splitSourceField(expr)

	if source == "input" || source == "inputs" {
		if !hasField {
			return inputs, true
		}
		return resolveFieldWithIndex(inputs, field)
	}

	// node-output source
	out, exists := nodeOutputs[source]
	if !hasField {
		if exists {
			return primaryText(out), true
		}
		// fall back to looking it up as an input key
		// ("source (no dot) ... else looks up the inputs mapping").
		if v, ok := inputs[source]; ok {
			return v, true
		}
		return nil, false
	}

	if !exists {
		return nil, false
	}

	if field == "output" || field == "result" {
		return primaryText(out), true
	}
	return resolveFieldWithIndex(out, field)
}

// splitSourceField splits "a.b" into ("a","b",true) and "a" into
// ("a","",false). Only the first dot matters — nested dotted paths beyond
// one field are not supported.
func splitSourceField(expr string) (source, field string, hasField bool) {
	idx := strings.Index(expr, ".")
	if idx < 0 {
		return expr, "", false
	}
	return expr[:idx], expr[idx+1:], true
}

// resolveFieldWithIndex resolves "field" or "field[N]" (one-level array
// indexing only) against a mapping value.
func resolveFieldWithIndex(value interface{}, field string) (interface{}, bool) {
	fieldName := field
	var index = -1
	if m := arrayIndexPattern.FindStringSubmatch(field); m != nil {
		fieldName = m[1]
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, false
		}
		index = n
	}

	m, ok := asMap(value)
	if !ok {
		return nil, false
	}
	v, ok := m[fieldName]
	if !ok {
		return nil, false
	}

	if index < 0 {
		return v, true
	}
	return indexInto(v, index)
}

func indexInto(value interface{}, index int) (interface{}, bool) {
	switch arr := value.(type) {
	case []interface{}:
		if index < 0 || index >= len(arr) {
			return nil, false
		}
		return arr[index], true
	default:
		return nil, false
	}
}

func asMap(value interface{}) (map[string]interface{}, bool) {
	m, ok := value.(map[string]interface{})
	return m, ok
}

// primaryText extracts the "primary" textual representation of a value:
// strings pass through; mappings yield the first present of
// response/content/result/value (as the field's own string, else its JSON
// serialization — never the wrapping object); anything else is JSON
// serialized whole.
func primaryText(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		for _, key := range []string{"response", "content", "result", "value"} {
			inner, ok := v[key]
			if !ok {
				continue
			}
			if s, ok := inner.(string); ok {
				return s
			}
			return mustJSON(inner)
		}
		return mustJSON(v)
	default:
		return mustJSON(v)
	}
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return mustJSON(v)
}
