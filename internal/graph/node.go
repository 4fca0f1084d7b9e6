package graph

import "strings"

// NodeRole 节点在图中的角色
type NodeRole string

const (
	RoleEntity      NodeRole = "entity"
	RoleParticipant NodeRole = "participant"
	RoleComponent   NodeRole = "component"
	RoleDecision    NodeRole = "decision"
	RoleTerminal    NodeRole = "terminal"
	RoleDatabase    NodeRole = "database"
	RoleGeneric     NodeRole = "node"
)

// Position 画布坐标
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node 图节点
type Node struct {
	ID       string   `json:"id"`
	Type     NodeRole `json:"type"`
	Label    string   `json:"label"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// NodeData type-specific payload of a node. Only the fields meaningful to the
// node's diagram type are populated.
type NodeData struct {
	Properties []Property `json:"properties,omitempty"` // entity fields, in declaration order
	Color      string     `json:"color,omitempty"`
	Shape      string     `json:"shape,omitempty"` // flow bracket shape, e.g. "[]", "()", "{}"
	Alias      string     `json:"alias,omitempty"` // identifier used in the diagram text
	Kind       string     `json:"kind,omitempty"`  // architecture declaration: service, group, junction
	Icon       string     `json:"icon,omitempty"`
	Parent     string     `json:"parent,omitempty"` // enclosing architecture group, by Node.ID
}

// Property 实体字段
type Property struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Keys    []string `json:"keys,omitempty"` // PK, FK, UK
	Comment string   `json:"comment,omitempty"`
}

// HasKey reports whether the field carries the given key marker.
func (p Property) HasKey(key string) bool {
	for _, k := range p.Keys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// String renders the field the way an entity block declares it.
func (p Property) String() string {
	var sb strings.Builder
	sb.WriteString(p.Type)
	sb.WriteString(" ")
	sb.WriteString(p.Name)
	if len(p.Keys) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(p.Keys, ", "))
	}
	if p.Comment != "" {
		sb.WriteString(` "`)
		sb.WriteString(p.Comment)
		sb.WriteString(`"`)
	}
	return sb.String()
}

// ParseProperty 解析字段声明，如 `int id PK "primary id"`
func ParseProperty(s string) (Property, bool) {
	s = strings.TrimSpace(s)
	var p Property
	if i := strings.Index(s, `"`); i >= 0 {
		p.Comment = strings.Trim(strings.TrimSpace(s[i:]), `"`)
		s = strings.TrimSpace(s[:i])
	}
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) < 2 {
		return Property{}, false
	}
	p.Type = fields[0]
	p.Name = fields[1]
	for _, f := range fields[2:] {
		switch strings.ToUpper(f) {
		case "PK", "FK", "UK":
			p.Keys = append(p.Keys, strings.ToUpper(f))
		}
	}
	return p, true
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := n
	if n.Data.Properties != nil {
		c.Data.Properties = make([]Property, len(n.Data.Properties))
		for i, p := range n.Data.Properties {
			p.Keys = append([]string(nil), p.Keys...)
			c.Data.Properties[i] = p
		}
	}
	return c
}

// CloneNodes deep-copies a node slice.
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
