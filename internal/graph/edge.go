package graph

// EdgeRole 边类型
type EdgeRole string

const (
	RoleRelationship EdgeRole = "relationship"
	RoleMessage      EdgeRole = "message"
	RoleConnection   EdgeRole = "connection"
)

// MessageType 消息同步/异步
type MessageType string

const (
	MessageSync  MessageType = "sync"
	MessageAsync MessageType = "async"
)

// Edge 图的边
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"` // Node.ID
	Target string   `json:"target"` // Node.ID
	Label  string   `json:"label,omitempty"`
	Type   EdgeRole `json:"type"`
	Data   EdgeData `json:"data"`
}

// EdgeData type-specific payload of an edge.
type EdgeData struct {
	// Order is the 1-based position of a sequence message. It is the only
	// source of truth for message ordering.
	Order       int         `json:"order,omitempty"`
	MessageType MessageType `json:"messageType,omitempty"`
	Arrow       string      `json:"arrow,omitempty"`
	Cardinality string      `json:"cardinality,omitempty"`
	Style       string      `json:"style,omitempty"` // solid, dotted, thick
	Sides       string      `json:"sides,omitempty"` // architecture anchors, source then target, e.g. "RL"
}

// CloneEdges copies an edge slice. Edges hold no reference types.
func CloneEdges(edges []Edge) []Edge {
	if edges == nil {
		return nil
	}
	return append([]Edge(nil), edges...)
}

// DanglingEdges 返回引用不存在节点的边
func DanglingEdges(nodes []Node, edges []Edge) []Edge {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	var out []Edge
	for _, e := range edges {
		if !ids[e.Source] || !ids[e.Target] {
			out = append(out, e)
		}
	}
	return out
}
