package adapter

import (
	"fmt"
	"regexp"
	"strings"

	"diagram-sync/internal/graph"
	"diagram-sync/internal/layout"
)

var (
	genericNodeRe  = regexp.MustCompile(`([A-Za-z0-9_]+)\s*[\[\(\{]+\s*"?([^\]\)\}"]*)"?\s*[\]\)\}]+`)
	genericArrowRe = regexp.MustCompile(`\s*(<\|--|--\|>|-\.->|\.\.>|==>|-->|->|--|\.\.)\s*(?:\|([^|]*)\|)?\s*`)
	genericEndRe   = regexp.MustCompile(`^(\[\*\]|[A-Za-z0-9_]+)`)
	genericTailRe  = regexp.MustCompile(`(\[\*\]|[A-Za-z0-9_]+)\s*(?:[\[\(\{]+[^\]\)\}]*[\]\)\}]+)?$`)
)

// terminalID stands in for the [*] pseudo-state of state diagrams.
const terminalID = "terminal"

// GenericAdapter 未建模图类型的兜底适配器
type GenericAdapter struct {
	Keyword string
	Spacing float64
}

// NewGenericAdapter 创建兜底适配器
func NewGenericAdapter(keyword string, spacing float64) *GenericAdapter {
	if keyword == "" {
		keyword = "graph"
	}
	return &GenericAdapter{Keyword: keyword, Spacing: spacing}
}

func (a *GenericAdapter) Type() string                    { return a.Keyword }
func (a *GenericAdapter) DefaultNodeRole() graph.NodeRole { return graph.RoleGeneric }
func (a *GenericAdapter) DefaultEdgeRole() graph.EdgeRole { return graph.RoleConnection }
func (a *GenericAdapter) NodeRoles() []graph.NodeRole {
	return []graph.NodeRole{graph.RoleGeneric, graph.RoleTerminal}
}

func (a *GenericAdapter) ColorPalette() []string {
	return []string{"#64748B", "#0EA5E9", "#22C55E", "#F97316"}
}

// Parse 宽松提取括号节点和箭头边；提取不到节点时返回失败
func (a *GenericAdapter) Parse(text string) graph.ParseResult {
	_, lines, ok := splitDiagram(text, a.Keyword)
	if !ok {
		return graph.Failed("generic", graph.FailureNoDeclaration, fmt.Sprintf("missing %s declaration", a.Keyword))
	}

	ex := newExtraction()
	ex.lines(lines)
	layout.Apply(ex.nodes, layout.Grid(len(ex.nodes), a.Spacing))

	res := graph.Succeeded("generic", ex.nodes, ex.edges, ex.warnings)
	res.Metadata.DiagramType = a.Keyword
	return res
}

// Generate 生成 `id[label]` 节点和 `a --> b : label` 边
func (a *GenericAdapter) Generate(nodes []graph.Node, edges []graph.Edge, opts GenerateOptions) string {
	var sb strings.Builder
	in := opts.indent()

	sb.WriteString(a.Keyword + "\n")
	if len(nodes) == 0 {
		sb.WriteString(in + "node[Node]")
		return sb.String()
	}

	ids := newIdentifiers()
	for _, n := range nodes {
		id := ids.assign(n.ID, n.ID, n.Data.Alias, n.Label)
		label := SanitizeLabel(n.Label, `[](){}"|:`)
		if label == "" {
			label = id
		}
		sb.WriteString(fmt.Sprintf("%s%s[%s]\n", in, id, label))
	}
	for _, e := range edges {
		from, ok1 := ids.lookup(e.Source)
		to, ok2 := ids.lookup(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		line := fmt.Sprintf("%s%s --> %s", in, from, to)
		if label := SanitizeLabel(e.Label, `[](){}"|:`); label != "" {
			line += " : " + label
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Validate 关键字 + 至少一个节点或边 + 括号平衡
func (a *GenericAdapter) Validate(text string) graph.ValidationResult {
	_, lines, ok := splitDiagram(text, a.Keyword)
	if !ok {
		return graph.NewValidation([]string{fmt.Sprintf("missing %s declaration", a.Keyword)})
	}
	var errs []string
	found := false
	for _, l := range lines {
		if genericNodeRe.MatchString(l) || genericArrowRe.MatchString(l) {
			found = true
			break
		}
	}
	if !found {
		errs = append(errs, "no node or connection found")
	}
	errs = append(errs, unbalanced(lines, "[](){}")...)
	return graph.NewValidation(errs)
}

// extraction is the permissive routine shared by the generic adapter and the
// flow adapter's fallback path.
type extraction struct {
	nodes    []graph.Node
	index    map[string]int
	edges    []graph.Edge
	warnings []string
}

func newExtraction() *extraction {
	return &extraction{index: make(map[string]int)}
}

func (ex *extraction) node(id, label string) string {
	role := graph.RoleGeneric
	if id == "[*]" {
		id, label, role = terminalID, "*", graph.RoleTerminal
	}
	if i, ok := ex.index[id]; ok {
		if label != "" && ex.nodes[i].Label == ex.nodes[i].ID {
			ex.nodes[i].Label = label
		}
		return id
	}
	if label == "" {
		label = id
	}
	ex.index[id] = len(ex.nodes)
	ex.nodes = append(ex.nodes, graph.Node{ID: id, Type: role, Label: label, Data: graph.NodeData{Alias: id}})
	return id
}

func (ex *extraction) lines(lines []string) {
	for _, l := range lines {
		ex.line(l)
	}
}

// line reports whether anything was extracted from l.
func (ex *extraction) line(l string) bool {
	found := false
	for _, m := range genericNodeRe.FindAllStringSubmatch(l, -1) {
		ex.node(m[1], strings.TrimSpace(m[2]))
		found = true
	}

	loc := genericArrowRe.FindStringSubmatchIndex(l)
	if loc == nil {
		return found
	}
	left, right := l[:loc[0]], l[loc[1]:]
	label := ""
	if loc[4] >= 0 {
		label = strings.TrimSpace(l[loc[4]:loc[5]])
	}
	if i := strings.Index(right, ":"); i >= 0 {
		if label == "" {
			label = strings.TrimSpace(right[i+1:])
		}
		right = right[:i]
	}

	src := genericTailRe.FindStringSubmatch(strings.TrimSpace(left))
	dst := genericEndRe.FindStringSubmatch(strings.TrimSpace(right))
	if src == nil || dst == nil {
		return found
	}
	from := ex.node(src[1], "")
	to := ex.node(dst[1], "")
	ex.edges = append(ex.edges, graph.Edge{
		ID:     fmt.Sprintf("e%d", len(ex.edges)+1),
		Source: from,
		Target: to,
		Label:  label,
		Type:   graph.RoleConnection,
		Data:   graph.EdgeData{Arrow: strings.TrimSpace(l[loc[2]:loc[3]]), Style: "solid"},
	})
	return true
}
