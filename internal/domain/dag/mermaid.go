package dag

import (
	"fmt"
	"strings"
)

var mermaidStyles = []string{
	"",
	"    %% Styling",
	"    classDef contentNode fill:#e1f5fe,stroke:#0277bd,stroke-width:2px,color:#000",
	"    classDef customNode fill:#fce4ec,stroke:#c2185b,stroke-width:2px,color:#000",
	"    classDef unknownNode fill:#f3e5f5,stroke:#7b1fa2,stroke-width:2px,color:#000",
}

func mermaidID(id string) string { return strings.ReplaceAll(id, "-", "_") }

// mermaidLabel keeps quotes from terminating the node text.
func mermaidLabel(s string) string { return strings.ReplaceAll(s, `"`, "#quot;") }

// Mermaid renders a top-down flowchart of the DAG. Batches with more than
// one node are drawn as a "Parallel" subgraph.
func Mermaid(nodes []Node, edges []Edge, batches [][]Node) string {
	lines := []string{"flowchart TD"}

	for _, n := range nodes {
		id := mermaidID(orDefault(n.ID, "unknown"))
		label := mermaidLabel(orDefault(n.Data.Label, "Unknown"))
		switch {
		case n.IsContent():
			lines = append(lines,
				fmt.Sprintf(`    %s["%s<br/><small>%s</small>"]`, id, label, orDefault(n.Data.ContentType, "content")),
				fmt.Sprintf("    class %s contentNode", id))
		case n.IsCustom():
			lines = append(lines,
				fmt.Sprintf(`    %s["%s %s<br/><small>%s</small>"]`, id, orDefault(n.Data.Icon, "⚙️"), label, n.Data.CustomType),
				fmt.Sprintf("    class %s customNode", id))
		default:
			lines = append(lines,
				fmt.Sprintf(`    %s["%s"]`, id, label),
				fmt.Sprintf("    class %s unknownNode", id))
		}
	}

	for _, e := range edges {
		if e.Source == "" || e.Target == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("    %s --> %s", mermaidID(e.Source), mermaidID(e.Target)))
	}

	for i, batch := range batches {
		if len(batch) < 2 {
			continue
		}
		lines = append(lines, fmt.Sprintf(`    subgraph batch%d ["Batch %d (Parallel)"]`, i+1, i+1))
		for _, n := range batch {
			lines = append(lines, "        "+mermaidID(n.ID))
		}
		lines = append(lines, "    end")
	}

	lines = append(lines, mermaidStyles...)
	return strings.Join(lines, "\n")
}
