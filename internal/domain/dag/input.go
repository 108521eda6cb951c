package dag

import (
	"fmt"
	"strings"
	"time"
)

// API node types accepted by ValidateInput and FromInput.
const (
	InputContent = "content"
	InputCustom  = "custom"
)

// InputNode is the flat node shape accepted by the REST API.
type InputNode struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Label       string         `json:"label,omitempty"`
	ContentGUID string         `json:"contentGuid,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	ContentURL  string         `json:"contentUrl,omitempty"`
	Author      string         `json:"author,omitempty"`
	Description string         `json:"description,omitempty"`
	CustomType  string         `json:"customType,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// InputEdge is the edge shape accepted by the REST API.
type InputEdge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Input is a DAG definition submitted through the REST API.
type Input struct {
	Title string      `json:"title"`
	Nodes []InputNode `json:"nodes"`
	Edges []InputEdge `json:"edges"`
}

// ValidateInput checks the required fields of an API submission. Messages
// refer to nodes and edges by their position in the request.
func ValidateInput(in Input) []string {
	errs := []string{}
	if strings.TrimSpace(in.Title) == "" {
		errs = append(errs, "DAG title is required")
	}
	if len(in.Nodes) == 0 {
		errs = append(errs, "DAG must have at least one node")
	}

	ids := make(map[string]bool, len(in.Nodes))
	for i, n := range in.Nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Sprintf("Node %d missing required 'id' field", i))
		} else {
			ids[n.ID] = true
		}
		switch n.Type {
		case InputContent:
			if n.ContentGUID == "" {
				errs = append(errs, fmt.Sprintf("Content node %d missing required 'contentGuid' field", i))
			}
		case InputCustom:
			if n.CustomType == "" {
				errs = append(errs, fmt.Sprintf("Custom node %d missing required 'customType' field", i))
			}
		}
	}

	for i, e := range in.Edges {
		switch {
		case e.Source == "":
			errs = append(errs, fmt.Sprintf("Edge %d missing required 'source' field", i))
		case !ids[e.Source]:
			errs = append(errs, fmt.Sprintf("Edge %d references unknown source node: %s", i, e.Source))
		}
		switch {
		case e.Target == "":
			errs = append(errs, fmt.Sprintf("Edge %d missing required 'target' field", i))
		case !ids[e.Target]:
			errs = append(errs, fmt.Sprintf("Edge %d references unknown target node: %s", i, e.Target))
		}
	}
	return errs
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// FromInput converts an API submission to editor nodes and edges and lays
// the nodes out. Nodes that are not content nodes become custom nodes.
func FromInput(in Input) ([]Node, []Edge) {
	stamp := time.Now().UnixMilli()
	nodes := make([]Node, 0, len(in.Nodes))
	for i, n := range in.Nodes {
		id := orDefault(n.ID, fmt.Sprintf("node-%d-%d", stamp, i))
		if n.Type == InputContent {
			nodes = append(nodes, Node{
				ID:   id,
				Type: ContentNodeType,
				Data: NodeData{
					Label:       orDefault(n.Label, "Content Node"),
					ContentGUID: n.ContentGUID,
					ContentType: orDefault(n.ContentType, "unknown"),
					ContentURL:  n.ContentURL,
					Author:      orDefault(n.Author, "Unknown"),
					Description: n.Description,
				},
			})
			continue
		}
		customType := orDefault(n.CustomType, "webhook")
		config := n.Config
		if config == nil {
			config = map[string]any{}
		}
		nodes = append(nodes, Node{
			ID:   id,
			Type: CustomNodeType,
			Data: NodeData{
				Label:       orDefault(n.Label, "Custom Node"),
				NodeType:    customType,
				CustomType:  customType,
				Description: n.Description,
				Icon:        orDefault(n.Icon, "⚙️"),
				Config:      config,
			},
		})
	}

	edges := make([]Edge, 0, len(in.Edges))
	for i, e := range in.Edges {
		edges = append(edges, Edge{
			ID:     orDefault(e.ID, fmt.Sprintf("edge-%d", i)),
			Source: e.Source,
			Target: e.Target,
			Type:   DeletableEdge,
		})
	}
	return AutoLayout(nodes, edges), edges
}
