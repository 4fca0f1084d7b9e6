package adapter

import (
	"fmt"
	"regexp"
	"strings"

	"diagram-sync/internal/graph"
)

const architectureKeyword = "architecture-beta"

// architecture declaration kinds
const (
	archService  = "service"
	archGroup    = "group"
	archJunction = "junction"
)

var (
	// service db(database)[Database] in api
	archNodeRe = regexp.MustCompile(`^(service|group|junction)\s+([A-Za-z0-9_]+)\s*(?:\(([\w:.-]*)\))?\s*(?:\[([^\]]*)\])?(?:\s+in\s+([A-Za-z0-9_]+))?$`)
	// db:L -- R:server, subnet{group}:B --> T:gateway
	archEdgeRe = regexp.MustCompile(`^([A-Za-z0-9_]+)(?:\{group\})?:([LRTB])\s*(<-->|<--|-->|--)\s*([LRTB]):([A-Za-z0-9_]+)(?:\{group\})?$`)
	archIconRe = regexp.MustCompile(`^[\w:.-]+$`)
	archSideRe = regexp.MustCompile(`^[LRTB]{2}$`)
	archArrows = map[string]bool{"--": true, "-->": true, "<--": true, "<-->": true}
)

// storage icons map to the database role
var archStorageIcons = map[string]bool{"database": true, "disk": true}

// archLine parses a service/group/junction declaration or an anchored edge.
func (b *flowBuilder) archLine(l string) bool {
	if m := archNodeRe.FindStringSubmatch(l); m != nil {
		kind, id, icon, parent := m[1], m[2], m[3], m[5]
		label := strings.Trim(strings.TrimSpace(m[4]), `"`)
		if label == "" {
			label = id
		}
		role := graph.RoleComponent
		switch {
		case kind != archService:
			role = graph.RoleGeneric
		case archStorageIcons[icon]:
			role = graph.RoleDatabase
		}
		b.declare(graph.Node{
			ID:    id,
			Type:  role,
			Label: label,
			Data:  graph.NodeData{Alias: id, Kind: kind, Icon: icon, Parent: parent},
		})
		return true
	}

	m := archEdgeRe.FindStringSubmatch(l)
	if m == nil {
		return false
	}
	from, to := m[1], m[5]
	b.node(flowRef{id: from})
	b.node(flowRef{id: to})
	b.edges = append(b.edges, graph.Edge{
		ID:     fmt.Sprintf("e%d", len(b.edges)+1),
		Source: from,
		Target: to,
		Type:   graph.RoleConnection,
		Data:   graph.EdgeData{Arrow: m[3], Style: "solid", Sides: m[2] + m[4]},
	})
	return true
}

// declare installs n, replacing a placeholder created by an earlier edge.
func (b *flowBuilder) declare(n graph.Node) {
	if i, ok := b.index[n.ID]; ok {
		b.nodes[i] = n
		return
	}
	b.index[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
}

func archKind(n graph.Node) string {
	switch n.Data.Kind {
	case archGroup, archJunction:
		return n.Data.Kind
	}
	return archService
}

// generateArchitecture emits groups first so every `in` clause refers to a
// group declared above it. Edge labels have no architecture syntax and are
// dropped.
func generateArchitecture(nodes []graph.Node, edges []graph.Edge, opts GenerateOptions) string {
	var sb strings.Builder
	in := opts.indent()

	sb.WriteString(architectureKeyword + "\n")
	if len(nodes) == 0 {
		sb.WriteString(in + "service start(server)[Start]")
		return sb.String()
	}

	ordered := make([]graph.Node, 0, len(nodes))
	for _, n := range nodes {
		if archKind(n) == archGroup {
			ordered = append(ordered, n)
		}
	}
	for _, n := range nodes {
		if archKind(n) != archGroup {
			ordered = append(ordered, n)
		}
	}

	ids := newIdentifiers()
	kinds := make(map[string]string, len(ordered))
	for _, n := range ordered {
		ids.assign(n.ID, n.ID, n.Data.Alias, n.Label)
		kinds[n.ID] = archKind(n)
	}

	for _, n := range ordered {
		id, _ := ids.lookup(n.ID)
		kind := kinds[n.ID]
		line := in + kind + " " + id
		if kind != archJunction {
			label := SanitizeLabel(n.Label, `[](){}"`)
			if label == "" {
				label = id
			}
			line += fmt.Sprintf("(%s)[%s]", archIcon(n, kind), label)
		}
		if parent, ok := ids.lookup(n.Data.Parent); ok && kinds[n.Data.Parent] == archGroup && n.Data.Parent != n.ID {
			line += " in " + parent
		}
		sb.WriteString(line + "\n")
	}

	for _, e := range edges {
		from, ok1 := ids.lookup(e.Source)
		to, ok2 := ids.lookup(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		sides := e.Data.Sides
		if !archSideRe.MatchString(sides) {
			sides = "RL"
		}
		arrow := e.Data.Arrow
		if !archArrows[arrow] {
			arrow = "-->"
		}
		sb.WriteString(fmt.Sprintf("%s%s%s:%c %s %c:%s%s\n", in,
			from, groupSuffix(kinds[e.Source]), sides[0], arrow, sides[1], to, groupSuffix(kinds[e.Target])))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func archIcon(n graph.Node, kind string) string {
	if archIconRe.MatchString(n.Data.Icon) {
		return n.Data.Icon
	}
	switch {
	case kind == archGroup:
		return "cloud"
	case n.Type == graph.RoleDatabase:
		return "database"
	}
	return "server"
}

func groupSuffix(kind string) string {
	if kind == archGroup {
		return "{group}"
	}
	return ""
}
