package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/internal/template"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// TransformExecutor implements the three modes of the
// "transform" node: template, jsonpath (via gojq), and script (a
// pipe-chain of small operations evaluated left to right).
type TransformExecutor struct{}

func (TransformExecutor) Execute(_ context.Context, _ string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	mode := exec.GetStringDefault(node.Config, "mode", "template")

	switch mode {
	case "template":
		tmpl := exec.GetStringDefault(node.Config, "template", "")
		return &models.NodeOutput{Value: template.Resolve(tmpl, ec.NodeOutputs, ec.Inputs)}, nil

	case "jsonpath":
		expr := exec.GetStringDefault(node.Config, "expression", ".")
		doc := map[string]interface{}{"inputs": ec.Inputs, "incoming": incoming}
		v, err := runJQ(expr, doc)
		if err != nil {
			return nil, err
		}
		return &models.NodeOutput{Value: v}, nil

	case "script":
		script := exec.GetStringDefault(node.Config, "script", "")
		doc := map[string]interface{}{"inputs": ec.Inputs, "incoming": incoming}
		v, err := runScript(script, doc)
		if err != nil {
			return nil, err
		}
		return &models.NodeOutput{Value: v}, nil

	default:
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("transform: unknown mode %q", mode))
	}
}

func runJQ(expr string, doc interface{}) (interface{}, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "parse jsonpath expression", err)
	}
	iter := query.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, apperr.Wrap(apperr.Validation, "evaluate jsonpath expression", err)
	}
	return v, nil
}

// runScript evaluates the transform node's pipe-chain script language: a
// base JSONPath expression followed by `| op` stages from {length,
// keys, values, first, last, flatten, sort, reverse, unique, to_string,
// from_json, join(sep), map(field), select(field=value), take(N),
// skip(N)}, each applied to the preceding value.
func runScript(script string, doc interface{}) (interface{}, error) {
	stages := strings.Split(script, "|")
	base := strings.TrimSpace(stages[0])
	if base == "" {
		base = "."
	}
	value, err := runJQ(base, doc)
	if err != nil {
		return nil, err
	}

	for _, stage := range stages[1:] {
		value, err = applyOp(strings.TrimSpace(stage), value)
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

func applyOp(op string, value interface{}) (interface{}, error) {
	name, arg, hasArg := splitOp(op)

	switch name {
	case "length":
		return opLength(value)
	case "keys":
		return opKeys(value)
	case "values":
		return opValues(value)
	case "first":
		return opIndex(value, 0)
	case "last":
		arr := asSlice(value)
		return opIndex(value, len(arr)-1)
	case "flatten":
		return opFlatten(value), nil
	case "sort":
		return opSort(value), nil
	case "reverse":
		return opReverse(value), nil
	case "unique":
		return opUnique(value), nil
	case "to_string":
		return toStringOp(value), nil
	case "from_json":
		var out interface{}
		s, _ := value.(string)
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, apperr.Wrap(apperr.Validation, "from_json", err)
		}
		return out, nil
	case "join":
		sep := ""
		if hasArg {
			sep = unquote(arg)
		}
		var parts []string
		for _, v := range asSlice(value) {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
		return strings.Join(parts, sep), nil
	case "map":
		field := unquote(arg)
		var out []interface{}
		for _, v := range asSlice(value) {
			if m, ok := v.(map[string]interface{}); ok {
				out = append(out, m[field])
			} else {
				out = append(out, nil)
			}
		}
		return out, nil
	case "select":
		field, want, ok := splitSelect(arg)
		if !ok {
			return value, nil
		}
		var out []interface{}
		for _, v := range asSlice(value) {
			if m, ok := v.(map[string]interface{}); ok {
				if fmt.Sprintf("%v", m[field]) == want {
					out = append(out, v)
				}
			}
		}
		return out, nil
	case "take":
		n, _ := strconv.Atoi(arg)
		arr := asSlice(value)
		if n > len(arr) {
			n = len(arr)
		}
		if n < 0 {
			n = 0
		}
		return arr[:n], nil
	case "skip":
		n, _ := strconv.Atoi(arg)
		arr := asSlice(value)
		if n > len(arr) {
			n = len(arr)
		}
		if n < 0 {
			n = 0
		}
		return arr[n:], nil
	default:
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("transform script: unknown operation %q", name))
	}
}

func splitOp(op string) (name, arg string, hasArg bool) {
	idx := strings.Index(op, "(")
	if idx < 0 || !strings.HasSuffix(op, ")") {
		return op, "", false
	}
	return op[:idx], op[idx+1 : len(op)-1], true
}

func splitSelect(arg string) (field, want string, ok bool) {
	idx := strings.Index(arg, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(arg[:idx]), unquote(strings.TrimSpace(arg[idx+1:])), true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func asSlice(value interface{}) []interface{} {
	if arr, ok := value.([]interface{}); ok {
		return arr
	}
	return nil
}

func opIndex(value interface{}, i int) (interface{}, error) {
	arr := asSlice(value)
	if i < 0 || i >= len(arr) {
		return nil, nil
	}
	return arr[i], nil
}

func opLength(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		return len(v), nil
	case map[string]interface{}:
		return len(v), nil
	case string:
		return len([]rune(v)), nil
	case nil:
		return 0, nil
	default:
		return nil, apperr.New(apperr.Validation, "length: unsupported value type")
	}
}

func opKeys(value interface{}) (interface{}, error) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil, apperr.New(apperr.Validation, "keys: value is not an object")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out, nil
}

func opValues(value interface{}) (interface{}, error) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil, apperr.New(apperr.Validation, "values: value is not an object")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out, nil
}

func opFlatten(value interface{}) interface{} {
	var out []interface{}
	for _, v := range asSlice(value) {
		if inner, ok := v.([]interface{}); ok {
			out = append(out, inner...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

func opSort(value interface{}) interface{} {
	arr := append([]interface{}{}, asSlice(value)...)
	sort.Slice(arr, func(i, j int) bool {
		return fmt.Sprintf("%v", arr[i]) < fmt.Sprintf("%v", arr[j])
	})
	return arr
}

func opReverse(value interface{}) interface{} {
	arr := asSlice(value)
	out := make([]interface{}, len(arr))
	for i, v := range arr {
		out[len(arr)-1-i] = v
	}
	return out
}

func opUnique(value interface{}) interface{} {
	seen := map[string]bool{}
	var out []interface{}
	for _, v := range asSlice(value) {
		key := fmt.Sprintf("%v", v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}

func toStringOp(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
