package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_InputsWholeMap(t *testing.T) {
	out := Resolve("{{inputs}}", nil, map[string]interface{}{"a": 1})
	assert.JSONEq(t, `{"a":1}`, out)
}

func TestResolve_InputsDottedField(t *testing.T) {
	out := Resolve("hello {{inputs.name}}", nil, map[string]interface{}{"name": "world"})
	assert.Equal(t, "hello world", out)
}

func TestResolve_NodeOutputBareSource(t *testing.T) {
	out := Resolve("{{step1}}", map[string]interface{}{"step1": "done"}, nil)
	assert.Equal(t, "done", out)
}

func TestResolve_NodeOutputFallsBackToInputsWhenNodeMissing(t *testing.T) {
	out := Resolve("{{x}}", map[string]interface{}{}, map[string]interface{}{"x": "fallback"})
	assert.Equal(t, "fallback", out)
}

func TestResolve_NodeOutputDottedFieldLookup(t *testing.T) {
	nodeOutputs := map[string]interface{}{
		"step1": map[string]interface{}{"count": float64(3)},
	}
	out := Resolve("{{step1.count}}", nodeOutputs, nil)
	assert.Equal(t, "3", out)
}

func TestResolve_NodeOutputResultKeywordExtractsPrimaryText(t *testing.T) {
	nodeOutputs := map[string]interface{}{
		"step1": map[string]interface{}{"response": "the answer"},
	}
	out := Resolve("{{step1.result}}", nodeOutputs, nil)
	assert.Equal(t, "the answer", out)
}

func TestResolve_ArrayIndexInField(t *testing.T) {
	nodeOutputs := map[string]interface{}{
		"step1": map[string]interface{}{"items": []interface{}{"a", "b", "c"}},
	}
	out := Resolve("{{step1.items[1]}}", nodeOutputs, nil)
	assert.Equal(t, "b", out)
}

func TestResolve_UnresolvedReferenceLeftLiteral(t *testing.T) {
	out := Resolve("{{missing.field}}", map[string]interface{}{}, map[string]interface{}{})
	assert.Equal(t, "{{missing.field}}", out)
}

func TestResolve_MultipleExpressionsInOneTemplate(t *testing.T) {
	nodeOutputs := map[string]interface{}{"step1": "A"}
	inputs := map[string]interface{}{"name": "B"}
	out := Resolve("{{step1}} and {{inputs.name}}", nodeOutputs, inputs)
	assert.Equal(t, "A and B", out)
}

func TestResolve_NonStringValueIsJSONSerialized(t *testing.T) {
	nodeOutputs := map[string]interface{}{"step1": map[string]interface{}{"count": float64(5)}}
	out := Resolve("{{step1}}", nodeOutputs, nil)
	assert.JSONEq(t, `{"count":5}`, out)
}
