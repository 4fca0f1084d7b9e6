package adapter

import (
	"fmt"
	"regexp"
	"strings"

	"diagram-sync/internal/graph"
	"diagram-sync/internal/layout"
)

const (
	flowKeyword      = "flowchart"
	defaultDirection = "TD"
)

// flowDirectives open lines Parse skips; node ids equal to one of them are
// renamed on generation.
var flowDirectives = []string{"subgraph", "end", "classDef", "class", "style", "linkStyle", "click", "direction"}

var (
	flowArrowRe   = regexp.MustCompile(`\s*(-\.->|-\.-|==>|===|-->|---)\s*(?:\|([^|]*)\|)?\s*`)
	flowTextArrow = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`\s--\s+([^|]+?)\s+-->\s*`), " -->|$1| "},
		{regexp.MustCompile(`\s-\.\s+([^|]+?)\s+\.->\s*`), " -.->|$1| "},
		{regexp.MustCompile(`\s==\s+([^|]+?)\s+==>\s*`), " ==>|$1| "},
	}
	flowRefRe     = regexp.MustCompile(`^([A-Za-z0-9_]+)\s*(.*?)(?::::[\w-]+)?$`)
	flowSkipRe    = regexp.MustCompile(`^(` + strings.Join(flowDirectives, "|") + `)\b`)
	flowDirection = map[string]bool{"TD": true, "TB": true, "LR": true, "RL": true, "BT": true}
	flowArrows    = map[string]bool{"-->": true, "---": true, "-.->": true, "-.-": true, "==>": true, "===": true}
)

// flowShapes longer delimiters first
var flowShapes = []struct {
	open, close string
	role        graph.NodeRole
}{
	{"((", "))", graph.RoleTerminal},
	{"([", "])", graph.RoleTerminal},
	{"[(", ")]", graph.RoleDatabase},
	{"[[", "]]", graph.RoleComponent},
	{"{{", "}}", graph.RoleComponent},
	{"[", "]", graph.RoleComponent},
	{"(", ")", graph.RoleTerminal},
	{"{", "}", graph.RoleDecision},
}

var roleShape = map[graph.NodeRole]string{
	graph.RoleComponent: "[]",
	graph.RoleDecision:  "{}",
	graph.RoleTerminal:  "()",
	graph.RoleDatabase:  "[()]",
}

// FlowAdapter 流程图/架构图适配器。两种声明都能解析，生成时按 Keyword 输出
type FlowAdapter struct {
	Keyword string // flowchart or architecture-beta
	Spacing float64
}

// NewFlowAdapter 创建流程图适配器
func NewFlowAdapter(spacing float64) *FlowAdapter {
	return &FlowAdapter{Keyword: flowKeyword, Spacing: spacing}
}

// NewArchitectureAdapter 创建生成 architecture-beta 文本的适配器
func NewArchitectureAdapter(spacing float64) *FlowAdapter {
	return &FlowAdapter{Keyword: architectureKeyword, Spacing: spacing}
}

func (a *FlowAdapter) Type() string {
	if a.Keyword == "" {
		return flowKeyword
	}
	return a.Keyword
}

func (a *FlowAdapter) architecture() bool { return a.Type() == architectureKeyword }

func (a *FlowAdapter) DefaultNodeRole() graph.NodeRole { return graph.RoleComponent }
func (a *FlowAdapter) DefaultEdgeRole() graph.EdgeRole { return graph.RoleConnection }

// NodeRoles 形状对应的角色，外加通用提取产生的 node
func (a *FlowAdapter) NodeRoles() []graph.NodeRole {
	return []graph.NodeRole{graph.RoleComponent, graph.RoleDecision, graph.RoleTerminal, graph.RoleDatabase, graph.RoleGeneric}
}

func (a *FlowAdapter) ColorPalette() []string {
	return []string{"#0F766E", "#1D4ED8", "#B45309", "#BE123C", "#4338CA", "#15803D"}
}

type flowRef struct {
	id, label, shape string
	role             graph.NodeRole
}

// parseFlowRef parses `id`, `id[Label]`, `id(Label)`, `id{Label}` and the
// double-delimited variants.
func parseFlowRef(s string) (flowRef, bool) {
	m := flowRefRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return flowRef{}, false
	}
	ref := flowRef{id: m[1]}
	rest := strings.TrimSpace(m[2])
	if rest == "" {
		return ref, true
	}
	for _, sh := range flowShapes {
		if len(rest) >= len(sh.open)+len(sh.close) && strings.HasPrefix(rest, sh.open) && strings.HasSuffix(rest, sh.close) {
			ref.label = strings.Trim(strings.TrimSpace(rest[len(sh.open):len(rest)-len(sh.close)]), `"`)
			ref.shape = sh.open + sh.close
			ref.role = sh.role
			return ref, true
		}
	}
	return flowRef{}, false
}

type flowBuilder struct {
	nodes    []graph.Node
	index    map[string]int
	edges    []graph.Edge
	warnings []string
}

func (b *flowBuilder) node(ref flowRef) {
	if i, ok := b.index[ref.id]; ok {
		n := &b.nodes[i]
		if ref.shape != "" && n.Data.Shape == "" {
			n.Label, n.Data.Shape, n.Type = ref.label, ref.shape, ref.role
		}
		return
	}
	n := graph.Node{ID: ref.id, Type: graph.RoleComponent, Label: ref.id, Data: graph.NodeData{Alias: ref.id}}
	if ref.shape != "" {
		n.Label, n.Data.Shape, n.Type = ref.label, ref.shape, ref.role
	}
	b.index[ref.id] = len(b.nodes)
	b.nodes = append(b.nodes, n)
}

func (b *flowBuilder) edge(from, to, label, arrow string) {
	b.edges = append(b.edges, graph.Edge{
		ID:     fmt.Sprintf("e%d", len(b.edges)+1),
		Source: from,
		Target: to,
		Label:  label,
		Type:   graph.RoleConnection,
		Data:   graph.EdgeData{Arrow: arrow, Style: flowStyle(arrow)},
	})
}

func flowStyle(arrow string) string {
	switch {
	case strings.Contains(arrow, "."):
		return "dotted"
	case strings.HasPrefix(arrow, "="):
		return "thick"
	default:
		return "solid"
	}
}

// line parses a node declaration or an arrow chain; false means the line
// holds a construct this adapter does not model.
func (b *flowBuilder) line(l string) bool {
	for _, t := range flowTextArrow {
		l = t.re.ReplaceAllString(l, t.repl)
	}
	arrows := flowArrowRe.FindAllStringSubmatchIndex(l, -1)

	var segments [][]flowRef
	prev := 0
	for _, loc := range append(arrows, []int{len(l), len(l)}) {
		var group []flowRef
		for _, part := range strings.Split(l[prev:loc[0]], "&") {
			ref, ok := parseFlowRef(part)
			if !ok {
				return false
			}
			group = append(group, ref)
		}
		segments = append(segments, group)
		prev = loc[1]
	}

	for _, group := range segments {
		for _, ref := range group {
			b.node(ref)
		}
	}
	for i, loc := range arrows {
		arrow := l[loc[2]:loc[3]]
		label := ""
		if loc[4] >= 0 {
			label = strings.TrimSpace(l[loc[4]:loc[5]])
		}
		for _, from := range segments[i] {
			for _, to := range segments[i+1] {
				b.edge(from.id, to.id, label, arrow)
			}
		}
	}
	return true
}

// Parse 解析 flowchart/graph/architecture 文本；无法识别的行交给通用提取
func (a *FlowAdapter) Parse(text string) graph.ParseResult {
	header, lines, arch, ok := splitFlow(text)
	if !ok {
		return graph.Failed(a.Type(), graph.FailureNoDeclaration, "missing flowchart or architecture declaration")
	}
	direction := ""
	if !arch {
		direction = defaultDirection
		if len(header) > 0 && flowDirection[strings.ToUpper(header[0])] {
			direction = strings.ToUpper(header[0])
		}
	}

	b := &flowBuilder{index: make(map[string]int)}
	var unknown []string
	for _, l := range lines {
		l = strings.TrimSuffix(l, ";")
		if arch && b.archLine(l) {
			continue
		}
		if flowSkipRe.MatchString(l) {
			continue
		}
		if !b.line(l) {
			unknown = append(unknown, l)
		}
	}

	if len(unknown) > 0 {
		ex := newExtraction()
		extracted := 0
		for _, l := range unknown {
			if ex.line(l) {
				extracted++
			} else {
				b.warnings = append(b.warnings, fmt.Sprintf("unrecognized line %q", l))
			}
		}
		for _, n := range ex.nodes {
			b.node(flowRef{id: n.ID, label: n.Label, shape: "[]", role: graph.RoleComponent})
		}
		for _, e := range ex.edges {
			b.edge(e.Source, e.Target, e.Label, "-->")
		}
		if extracted > 0 {
			b.warnings = append(b.warnings, fmt.Sprintf("%d line(s) parsed with generic extraction", extracted))
		}
	}

	layout.Apply(b.nodes, layout.Grid(len(b.nodes), a.Spacing))
	res := graph.Succeeded(a.Type(), b.nodes, b.edges, b.warnings)
	res.Metadata.DiagramType = a.Type()
	res.Metadata.Direction = direction
	return res
}

// splitFlow accepts either declaration family and reports which one matched.
func splitFlow(text string) (header, lines []string, arch, ok bool) {
	if header, lines, ok = splitDiagram(text, architectureKeyword, "architecture"); ok {
		return header, lines, true, true
	}
	header, lines, ok = splitDiagram(text, flowKeyword, "graph")
	return header, lines, false, ok
}

// Generate 生成 flowchart 文本，architecture 适配器生成 architecture-beta 文本
func (a *FlowAdapter) Generate(nodes []graph.Node, edges []graph.Edge, opts GenerateOptions) string {
	if a.architecture() {
		return generateArchitecture(nodes, edges, opts)
	}
	var sb strings.Builder
	in := opts.indent()

	direction := strings.ToUpper(opts.Direction)
	if !flowDirection[direction] {
		direction = defaultDirection
	}
	sb.WriteString(flowKeyword + " " + direction + "\n")
	if len(nodes) == 0 {
		sb.WriteString(in + "start[Start]")
		return sb.String()
	}

	ids := newIdentifiers().reserve(flowDirectives...)
	for _, n := range nodes {
		id := ids.assign(n.ID, n.ID, n.Data.Alias, n.Label)
		label := flowLabel(n.Label)
		if label == "" {
			label = id
		}
		shape := n.Data.Shape
		if !knownShape(shape) {
			shape = roleShape[n.Type]
			if shape == "" {
				shape = "[]"
			}
		}
		half := len(shape) / 2
		sb.WriteString(fmt.Sprintf("%s%s%s%s%s\n", in, id, shape[:half], label, shape[half:]))
	}

	for _, e := range edges {
		from, ok1 := ids.lookup(e.Source)
		to, ok2 := ids.lookup(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		arrow := e.Data.Arrow
		if !flowArrows[arrow] {
			arrow = styleArrow(e.Data.Style)
		}
		if label := flowLabel(e.Label); label != "" {
			sb.WriteString(fmt.Sprintf("%s%s %s|%s| %s\n", in, from, arrow, label, to))
		} else {
			sb.WriteString(fmt.Sprintf("%s%s %s %s\n", in, from, arrow, to))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// flowLabel strips delimiters and defuses arrow tokens inside labels.
func flowLabel(s string) string {
	s = SanitizeLabel(s, `[](){}|"`)
	for _, r := range []struct{ from, to string }{{"--", "-"}, {"==", "="}, {"-.", "-"}} {
		for strings.Contains(s, r.from) {
			s = strings.ReplaceAll(s, r.from, r.to)
		}
	}
	return s
}

func knownShape(shape string) bool {
	for _, sh := range flowShapes {
		if shape == sh.open+sh.close {
			return true
		}
	}
	return false
}

func styleArrow(style string) string {
	switch style {
	case "dotted":
		return "-.->"
	case "thick":
		return "==>"
	default:
		return "-->"
	}
}

// Validate 关键字 + 至少一个节点声明或连线 + 括号平衡
func (a *FlowAdapter) Validate(text string) graph.ValidationResult {
	_, lines, arch, ok := splitFlow(text)
	if !ok {
		return graph.NewValidation([]string{"missing flowchart or architecture declaration"})
	}
	var errs []string
	found := false
	for _, l := range lines {
		if flowArrowRe.MatchString(l) || genericNodeRe.MatchString(l) ||
			arch && (archNodeRe.MatchString(l) || archEdgeRe.MatchString(l)) {
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
