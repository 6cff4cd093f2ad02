// Package importer compiles a YAML-authored workflow graph into the JSON
// Graph the engine consumes, as a more human-friendly authoring surface
// than hand-written JSON.
package importer

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// YAMLGraph is the top-level YAML document shape.
type YAMLGraph struct {
	Name      string                 `yaml:"name"`
	Variables map[string]interface{} `yaml:"variables,omitempty"`
	Nodes     []YAMLNode             `yaml:"nodes"`
	Edges     []YAMLEdge             `yaml:"edges,omitempty"`
}

// YAMLNode mirrors models.Node in YAML.
type YAMLNode struct {
	ID     string                 `yaml:"id"`
	Type   string                 `yaml:"type"`
	Name   string                 `yaml:"name,omitempty"`
	Config map[string]interface{} `yaml:"config,omitempty"`
}

// YAMLEdge mirrors models.Edge in YAML.
type YAMLEdge struct {
	ID           string `yaml:"id,omitempty"`
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
	SourceHandle string `yaml:"source_handle,omitempty"`
	TargetHandle string `yaml:"target_handle,omitempty"`
	Condition    string `yaml:"condition,omitempty"`
}

// Import parses YAML bytes into a models.Graph, validating the result with
// the same rules the JSON path uses.
func Import(data []byte) (*models.Graph, error) {
	var doc YAMLGraph
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml workflow: %w", err)
	}

	g := &models.Graph{
		Name:      doc.Name,
		Variables: doc.Variables,
	}
	for _, n := range doc.Nodes {
		g.Nodes = append(g.Nodes, &models.Node{
			ID:     n.ID,
			Type:   models.NodeType(n.Type),
			Name:   n.Name,
			Config: n.Config,
		})
	}
	for _, e := range doc.Edges {
		g.Edges = append(g.Edges, &models.Edge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
			Condition:    e.Condition,
		})
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Export renders a Graph back to YAML, the inverse of Import, for
// round-trip authoring tools.
func Export(g *models.Graph) ([]byte, error) {
	doc := YAMLGraph{Name: g.Name, Variables: g.Variables}
	for _, n := range g.Nodes {
		doc.Nodes = append(doc.Nodes, YAMLNode{ID: n.ID, Type: string(n.Type), Name: n.Name, Config: n.Config})
	}
	for _, e := range g.Edges {
		doc.Edges = append(doc.Edges, YAMLEdge{
			ID: e.ID, Source: e.Source, Target: e.Target,
			SourceHandle: e.SourceHandle, TargetHandle: e.TargetHandle, Condition: e.Condition,
		})
	}
	return yaml.Marshal(doc)
}
