package adapter

import (
	"fmt"
	"regexp"
	"strings"

	"diagram-sync/internal/graph"
	"diagram-sync/internal/layout"
)

const (
	erKeyword            = "erDiagram"
	defaultCardinality   = "||--o{"
	defaultRelationLabel = "relates to"
)

var (
	entityOpenRe = regexp.MustCompile(`^([A-Za-z_][\w-]*)\s*(?:\[\s*"?([^"\]]*)"?\s*\])?\s*\{(.*)$`)
	entityBareRe = regexp.MustCompile(`^([A-Za-z_][\w-]*)\s*(?:\[\s*"?([^"\]]*)"?\s*\])?$`)
	relationRe   = regexp.MustCompile(`^([A-Za-z_][\w-]*)\s*((?:\|o|\|\||\}o|\}\|)(?:--|\.\.)(?:o\||\|\||o\{|\|\{))\s*([A-Za-z_][\w-]*)\s*(?::\s*(.*))?$`)
	fieldTypeRe  = regexp.MustCompile(`[^A-Za-z0-9_()\[\]-]`)
)

// ERAdapter 实体关系图适配器
type ERAdapter struct {
	Spacing float64
}

// NewERAdapter 创建 ER 适配器
func NewERAdapter(spacing float64) *ERAdapter {
	return &ERAdapter{Spacing: spacing}
}

func (a *ERAdapter) Type() string                    { return erKeyword }
func (a *ERAdapter) DefaultNodeRole() graph.NodeRole { return graph.RoleEntity }
func (a *ERAdapter) DefaultEdgeRole() graph.EdgeRole { return graph.RoleRelationship }
func (a *ERAdapter) NodeRoles() []graph.NodeRole     { return []graph.NodeRole{graph.RoleEntity} }

func (a *ERAdapter) ColorPalette() []string {
	return []string{"#4F46E5", "#0EA5E9", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6"}
}

// erBuilder accumulates entities in order of first appearance.
type erBuilder struct {
	nodes    []graph.Node
	index    map[string]int
	declared map[string]bool
	edges    []graph.Edge
	warnings []string
}

func (b *erBuilder) entity(name, label string) *graph.Node {
	if i, ok := b.index[name]; ok {
		if label != "" {
			b.nodes[i].Label = label
		}
		return &b.nodes[i]
	}
	if label == "" {
		label = name
	}
	b.index[name] = len(b.nodes)
	b.nodes = append(b.nodes, graph.Node{
		ID:    name,
		Type:  graph.RoleEntity,
		Label: label,
		Data:  graph.NodeData{Alias: name},
	})
	return &b.nodes[len(b.nodes)-1]
}

func (b *erBuilder) field(entity, decl string) {
	decl = strings.TrimSpace(decl)
	if decl == "" {
		return
	}
	p, ok := graph.ParseProperty(decl)
	if !ok {
		b.warnings = append(b.warnings, fmt.Sprintf("entity %s: ignored field %q", entity, decl))
		return
	}
	n := b.entity(entity, "")
	n.Data.Properties = append(n.Data.Properties, p)
}

// Parse 解析 erDiagram 文本
func (a *ERAdapter) Parse(text string) graph.ParseResult {
	_, lines, ok := splitDiagram(text, erKeyword)
	if !ok {
		return graph.Failed(erKeyword, graph.FailureNoDeclaration, "missing erDiagram declaration")
	}

	b := &erBuilder{index: make(map[string]int), declared: make(map[string]bool)}
	current := ""
	for _, line := range lines {
		if current != "" {
			body, closed := line, false
			if i := strings.Index(line, "}"); i >= 0 {
				body, closed = line[:i], true
			}
			for _, decl := range strings.Split(body, ";") {
				b.field(current, decl)
			}
			if closed {
				current = ""
			}
			continue
		}

		if m := relationRe.FindStringSubmatch(line); m != nil {
			b.entity(m[1], "")
			b.entity(m[3], "")
			b.edges = append(b.edges, graph.Edge{
				ID:     fmt.Sprintf("rel-%d", len(b.edges)+1),
				Source: m[1],
				Target: m[3],
				Label:  strings.Trim(strings.TrimSpace(m[4]), `"`),
				Type:   graph.RoleRelationship,
				Data:   graph.EdgeData{Cardinality: m[2]},
			})
			continue
		}

		if m := entityOpenRe.FindStringSubmatch(line); m != nil {
			if b.declared[m[1]] {
				b.warnings = append(b.warnings, fmt.Sprintf("entity %s declared more than once; fields merged", m[1]))
			}
			b.entity(m[1], strings.TrimSpace(m[2]))
			b.declared[m[1]] = true
			rest := m[3]
			if i := strings.Index(rest, "}"); i >= 0 {
				for _, decl := range strings.Split(rest[:i], ";") {
					b.field(m[1], decl)
				}
				continue
			}
			for _, decl := range strings.Split(rest, ";") {
				b.field(m[1], decl)
			}
			current = m[1]
			continue
		}

		if m := entityBareRe.FindStringSubmatch(line); m != nil {
			b.entity(m[1], strings.TrimSpace(m[2]))
			b.declared[m[1]] = true
			continue
		}

		b.warnings = append(b.warnings, fmt.Sprintf("unrecognized line %q", line))
	}
	if current != "" {
		b.warnings = append(b.warnings, fmt.Sprintf("entity %s: block is not closed", current))
	}

	for _, n := range b.nodes {
		if !b.declared[n.ID] {
			b.warnings = append(b.warnings, fmt.Sprintf("entity %s is referenced but never declared", n.ID))
		}
		if len(n.Data.Properties) == 0 {
			b.warnings = append(b.warnings, fmt.Sprintf("entity %s has no fields", n.ID))
		}
	}

	layout.Apply(b.nodes, layout.Grid(len(b.nodes), a.Spacing))
	res := graph.Succeeded(erKeyword, b.nodes, b.edges, b.warnings)
	res.Metadata.DiagramType = erKeyword
	return res
}

// Generate 生成 erDiagram 文本
func (a *ERAdapter) Generate(nodes []graph.Node, edges []graph.Edge, opts GenerateOptions) string {
	var sb strings.Builder
	in := opts.indent()

	sb.WriteString(erKeyword + "\n")
	if len(nodes) == 0 {
		sb.WriteString(in + "ENTITY {\n")
		sb.WriteString(in + in + "int id PK\n")
		sb.WriteString(in + "}\n")
		return strings.TrimRight(sb.String(), "\n")
	}

	ids := newIdentifiers()
	for _, n := range nodes {
		name := ids.assign(n.ID, n.Data.Alias, n.Label, n.ID)
		label := SanitizeLabel(n.Label, `"[]{}`)
		if label != "" && label != name {
			sb.WriteString(fmt.Sprintf("%s%s[\"%s\"] {\n", in, name, label))
		} else {
			sb.WriteString(fmt.Sprintf("%s%s {\n", in, name))
		}

		props := n.Data.Properties
		if len(props) == 0 {
			props = []graph.Property{{Type: "int", Name: "id", Keys: []string{"PK"}}}
		}
		for _, p := range props {
			sb.WriteString(in + in + erField(p) + "\n")
		}
		sb.WriteString(in + "}\n")
	}

	for _, e := range edges {
		from, ok1 := ids.lookup(e.Source)
		to, ok2 := ids.lookup(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		card := e.Data.Cardinality
		if !relationRe.MatchString("A " + card + " B") {
			card = defaultCardinality
		}
		label := SanitizeLabel(e.Label, `"`)
		if label == "" {
			label = defaultRelationLabel
		}
		sb.WriteString(fmt.Sprintf("%s%s %s %s : \"%s\"\n", in, from, card, to, label))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// erField normalizes a field so it survives a parse.
func erField(p graph.Property) string {
	out := graph.Property{
		Type:    fieldTypeRe.ReplaceAllString(p.Type, ""),
		Name:    SanitizeID(p.Name),
		Comment: SanitizeLabel(p.Comment, `"{}`),
	}
	if out.Type == "" {
		out.Type = "string"
	}
	for _, k := range p.Keys {
		switch k = strings.ToUpper(strings.TrimSpace(k)); k {
		case "PK", "FK", "UK":
			out.Keys = append(out.Keys, k)
		}
	}
	return out.String()
}

// Validate 校验 erDiagram 文本
func (a *ERAdapter) Validate(text string) graph.ValidationResult {
	_, lines, ok := splitDiagram(text, erKeyword)
	if !ok {
		return graph.NewValidation([]string{"missing erDiagram declaration"})
	}

	var errs []string
	structural := make([]string, 0, len(lines))
	declared := false
	for _, l := range lines {
		if relationRe.MatchString(l) {
			declared = true
			continue
		}
		if entityOpenRe.MatchString(l) {
			declared = true
		}
		structural = append(structural, l)
	}
	if !declared {
		errs = append(errs, "no entity or relationship found")
	}
	errs = append(errs, unbalanced(structural, "{}[]")...)
	return graph.NewValidation(errs)
}
