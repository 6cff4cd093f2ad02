package builtin

import (
	"context"
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// ValidatorExecutor validates incoming against a JSON Schema, either
// failing the node or reporting errors in the output.
type ValidatorExecutor struct{}

func (ValidatorExecutor) Execute(_ context.Context, nodeID string, node *models.Node, incoming interface{}, _ *exec.Context) (*models.NodeOutput, error) {
	schemaCfg, _ := exec.GetMap(node.Config, "schema")
	failOnError := exec.GetBoolDefault(node.Config, "failOnError", true)

	schemaLoader := gojsonschema.NewGoLoader(schemaCfg)
	docLoader := gojsonschema.NewGoLoader(jsonRoundTrip(incoming))

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "validator "+nodeID+": evaluate schema", err)
	}

	if result.Valid() {
		return &models.NodeOutput{Value: map[string]interface{}{"valid": true, "data": incoming}}, nil
	}

	var errs []string
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}

	if failOnError {
		return nil, apperr.New(apperr.Validation, "validator "+nodeID+": "+errs[0])
	}
	return &models.NodeOutput{Value: map[string]interface{}{"valid": false, "errors": errs, "data": incoming}}, nil
}

// jsonRoundTrip normalizes incoming through JSON so gojsonschema sees
// plain maps/slices/scalars regardless of the concrete Go type supplied.
func jsonRoundTrip(v interface{}) interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
