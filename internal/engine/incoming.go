package engine

import (
	"strings"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// ResolveIncoming resolves the incoming values for a node: per
// edge into nodeID, select the source handle's field from the source
// node's stored output (with the branch-* unwrap carve-out), then either
// pass a lone default-handle value through unwrapped or build a
// handle-keyed mapping.
func ResolveIncoming(d *DAG, nodeID string, nodeOutputs map[string]interface{}) interface{} {
	edges := d.IncomingEdges[nodeID]
	return resolveFromEdges(len(edges), edges, nodeOutputs)
}

type resolvedIncoming struct {
	handle string
	value  interface{}
}

// resolveFromEdges builds nodeID's incoming value. totalEdges is the
// structural count of edges targeting the node — it decides whether the
// single-value flatten applies — independent of resolvable, the subset of
// those edges whose source has actually produced a value (and, on the
// conditional path, whose condition passed). A node with exactly one
// incoming edge still flattens to a bare value even while that edge's
// source hasn't resolved yet; a node with two incoming edges always builds
// a handle-keyed map, even if only one of them has resolved so far.
func resolveFromEdges(totalEdges int, resolvable []*models.Edge, nodeOutputs map[string]interface{}) interface{} {
	if totalEdges == 0 {
		return nil
	}

	var values []resolvedIncoming
	for _, e := range resolvable {
		sourceVal, ok := nodeOutputs[e.Source]
		if !ok {
			continue
		}
		handle := e.NormalizedSourceHandle()
		values = append(values, resolvedIncoming{handle: e.NormalizedTargetHandle(), value: selectHandleValue(sourceVal, handle)})
	}

	if len(values) == 0 {
		return nil
	}

	if totalEdges == 1 && len(values) == 1 && values[0].handle == models.DefaultTargetHandle {
		return values[0].value
	}

	out := map[string]interface{}{}
	for _, v := range values {
		out[v.handle] = v.value
	}
	return out
}

// selectHandleValue implements the per-edge handle selection rule.
func selectHandleValue(sourceVal interface{}, handle string) interface{} {
	m, isMap := sourceVal.(map[string]interface{})
	if !isMap {
		return sourceVal
	}

	if strings.HasPrefix(handle, "branch-") {
		if v, ok := m["value"]; ok {
			return v
		}
	}

	if v, ok := m[handle]; ok {
		return v
	}
	return sourceVal
}
