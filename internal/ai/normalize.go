package ai

import (
	"fmt"
	"strings"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/graph"
	"diagram-sync/internal/layout"
)

// Parser 规范化后写入 Metadata.Parser 的名字
const Parser = "ai"

// Normalize converts the model's payload into the ParseResult shape the rule
// parsers produce: legal unique ids, adapter roles, laid out positions, no
// dangling edges and sequential message order.
func (p *ParsedDiagram) Normalize(a adapter.Adapter, spacing float64) graph.ParseResult {
	if p == nil {
		return graph.Failed(Parser, graph.FailureParse, "ai returned no diagram")
	}

	var warnings []string
	nodes := make([]graph.Node, 0, len(p.Nodes))
	idMap := make(map[string]string, len(p.Nodes))
	used := make(map[string]bool, len(p.Nodes))

	for _, pn := range p.Nodes {
		raw := strings.TrimSpace(pn.ID)
		if raw == "" {
			raw = pn.Label
		}
		if _, dup := idMap[raw]; dup {
			warnings = append(warnings, fmt.Sprintf("duplicate node %q ignored", raw))
			continue
		}
		id := adapter.SanitizeID(raw)
		for i := 2; used[id]; i++ {
			id = fmt.Sprintf("%s_%d", adapter.SanitizeID(raw), i)
		}
		used[id] = true
		idMap[raw] = id

		role := adapter.NodeRole(a, graph.NodeRole(strings.ToLower(strings.TrimSpace(pn.Type))))
		label := strings.TrimSpace(pn.Label)
		if label == "" {
			label = raw
		}
		n := graph.Node{ID: id, Type: role, Label: label, Data: graph.NodeData{Alias: id}}
		for _, s := range pn.Properties {
			if prop, ok := graph.ParseProperty(s); ok {
				n.Data.Properties = append(n.Data.Properties, prop)
			}
		}
		nodes = append(nodes, n)
	}

	edges := make([]graph.Edge, 0, len(p.Edges))
	ordered := a.DefaultEdgeRole() == graph.RoleMessage
	for _, pe := range p.Edges {
		from, ok1 := idMap[strings.TrimSpace(pe.Source)]
		to, ok2 := idMap[strings.TrimSpace(pe.Target)]
		if !ok1 || !ok2 {
			warnings = append(warnings, fmt.Sprintf("edge %s -> %s references an unknown node", pe.Source, pe.Target))
			continue
		}
		e := graph.Edge{
			ID:     fmt.Sprintf("ai-%d", len(edges)+1),
			Source: from,
			Target: to,
			Label:  strings.TrimSpace(pe.Label),
			Type:   a.DefaultEdgeRole(),
			Data:   graph.EdgeData{Cardinality: pe.Cardinality},
		}
		if ordered {
			e.Data.Order = len(edges) + 1
			e.Data.MessageType = graph.MessageSync
			if strings.EqualFold(pe.MessageType, string(graph.MessageAsync)) {
				e.Data.MessageType = graph.MessageAsync
			}
		}
		edges = append(edges, e)
	}

	if ordered {
		layout.Apply(nodes, layout.Row(len(nodes), spacing))
	} else {
		layout.Apply(nodes, layout.Grid(len(nodes), spacing))
	}

	res := graph.Succeeded(Parser, nodes, edges, warnings)
	res.Metadata.DiagramType = a.Type()
	return res
}
