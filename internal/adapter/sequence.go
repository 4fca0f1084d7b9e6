package adapter

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"diagram-sync/internal/graph"
	"diagram-sync/internal/layout"
)

const sequenceKeyword = "sequenceDiagram"

var (
	participantRe = regexp.MustCompile(`^(participant|actor)\s+(.+?)(?:\s+as\s+(.+))?$`)
	messageRe     = regexp.MustCompile(`^([^\s:+-][^:]*?)\s*(-->>|->>|--x|-x|--\)|-\)|-->|->)\s*([+-]?)\s*([^:]+?)\s*(?::\s*(.*))?$`)
	blockOpenRe   = regexp.MustCompile(`^(loop|alt|opt|par|critical|break|rect|box)\b`)
	// statements that carry no participants or messages
	sequenceIgnoredRe = regexp.MustCompile(`^(autonumber|activate|deactivate|note|else|and|option|end|title|create|destroy|links?)\b`)
)

// SequenceAdapter 时序图适配器
type SequenceAdapter struct {
	Spacing float64
}

// NewSequenceAdapter 创建时序图适配器
func NewSequenceAdapter(spacing float64) *SequenceAdapter {
	return &SequenceAdapter{Spacing: spacing}
}

func (a *SequenceAdapter) Type() string                    { return sequenceKeyword }
func (a *SequenceAdapter) DefaultNodeRole() graph.NodeRole { return graph.RoleParticipant }
func (a *SequenceAdapter) DefaultEdgeRole() graph.EdgeRole { return graph.RoleMessage }
func (a *SequenceAdapter) NodeRoles() []graph.NodeRole     { return []graph.NodeRole{graph.RoleParticipant} }

func (a *SequenceAdapter) ColorPalette() []string {
	return []string{"#2563EB", "#16A34A", "#DB2777", "#EA580C", "#7C3AED", "#0891B2"}
}

// messageTypeOf derives sync/async from the arrow token.
func messageTypeOf(arrow string) graph.MessageType {
	if strings.HasPrefix(arrow, "--") || strings.HasSuffix(arrow, ")") {
		return graph.MessageAsync
	}
	return graph.MessageSync
}

type participants struct {
	nodes   []graph.Node
	byAlias map[string]int
	palette []string
}

// register adds a participant on first appearance; later explicit
// declarations may refine its label.
func (p *participants) register(alias, label, kind string) {
	if i, ok := p.byAlias[alias]; ok {
		if label != "" {
			p.nodes[i].Label = label
		}
		return
	}
	if label == "" {
		label = alias
	}
	n := graph.Node{
		ID:    SanitizeID(alias),
		Type:  graph.RoleParticipant,
		Label: label,
		Data: graph.NodeData{
			Alias: alias,
			Color: p.palette[len(p.nodes)%len(p.palette)],
		},
	}
	if kind == "actor" {
		n.Data.Shape = "actor"
	}
	for i := 2; p.hasID(n.ID); i++ {
		n.ID = fmt.Sprintf("%s_%d", SanitizeID(alias), i)
	}
	p.byAlias[alias] = len(p.nodes)
	p.nodes = append(p.nodes, n)
}

func (p *participants) hasID(id string) bool {
	for _, n := range p.nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func (p *participants) id(alias string) string {
	return p.nodes[p.byAlias[alias]].ID
}

// Parse runs two passes: explicit participant declarations first, then
// messages in source order with declaration-by-use.
func (a *SequenceAdapter) Parse(text string) graph.ParseResult {
	_, lines, ok := splitDiagram(text, sequenceKeyword)
	if !ok {
		return graph.Failed(sequenceKeyword, graph.FailureNoDeclaration, "missing sequenceDiagram declaration")
	}

	ps := &participants{byAlias: make(map[string]int), palette: a.ColorPalette()}
	var warnings []string

	// 第一遍：显式声明的参与者
	for _, line := range lines {
		if m := participantRe.FindStringSubmatch(line); m != nil {
			ps.register(strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), m[1])
		}
	}

	// 第二遍：消息
	var edges []graph.Edge
	for _, line := range lines {
		if participantRe.MatchString(line) {
			continue
		}
		m := messageRe.FindStringSubmatch(line)
		if m == nil {
			if !blockOpenRe.MatchString(line) && !sequenceIgnoredRe.MatchString(strings.ToLower(line)) {
				warnings = append(warnings, fmt.Sprintf("unrecognized line %q", line))
			}
			continue
		}
		from, arrow, to, label := strings.TrimSpace(m[1]), m[2], strings.TrimSpace(m[4]), strings.TrimSpace(m[5])
		ps.register(from, "", "participant")
		ps.register(to, "", "participant")

		order := len(edges) + 1
		edges = append(edges, graph.Edge{
			ID:     fmt.Sprintf("msg-%d", order),
			Source: ps.id(from),
			Target: ps.id(to),
			Label:  label,
			Type:   graph.RoleMessage,
			Data: graph.EdgeData{
				Order:       order,
				MessageType: messageTypeOf(arrow),
				Arrow:       arrow,
			},
		})
	}

	layout.Apply(ps.nodes, layout.Row(len(ps.nodes), a.Spacing))
	res := graph.Succeeded(sequenceKeyword, ps.nodes, edges, warnings)
	res.Metadata.DiagramType = sequenceKeyword
	return res
}

// Generate rebuilds participant declarations, then re-emits messages sorted
// by Data.Order. Array position of the edges is irrelevant.
func (a *SequenceAdapter) Generate(nodes []graph.Node, edges []graph.Edge, opts GenerateOptions) string {
	var sb strings.Builder
	in := opts.indent()

	sb.WriteString(sequenceKeyword + "\n")
	if len(nodes) == 0 {
		sb.WriteString(in + "participant User\n")
		sb.WriteString(in + "participant System\n")
		sb.WriteString(in + "User->>System: Request")
		return sb.String()
	}

	ids := newIdentifiers()
	for _, n := range nodes {
		alias := ids.assign(n.ID, n.Data.Alias, n.ID, n.Label)
		kind := "participant"
		if n.Data.Shape == "actor" {
			kind = "actor"
		}
		label := SanitizeLabel(n.Label, ":;#")
		if label != "" && label != alias {
			sb.WriteString(fmt.Sprintf("%s%s %s as %s\n", in, kind, alias, label))
		} else {
			sb.WriteString(fmt.Sprintf("%s%s %s\n", in, kind, alias))
		}
	}

	ordered := graph.CloneEdges(edges)
	sort.SliceStable(ordered, func(i, j int) bool {
		return orderKey(ordered[i]) < orderKey(ordered[j])
	})
	for _, e := range ordered {
		from, ok1 := ids.lookup(e.Source)
		to, ok2 := ids.lookup(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		line := fmt.Sprintf("%s%s%s%s: %s", in, from, messageArrow(e.Data), to, SanitizeLabel(e.Label, ";#"))
		sb.WriteString(strings.TrimRight(line, " ") + "\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// orderKey places messages without an explicit order after ordered ones.
func orderKey(e graph.Edge) int {
	if e.Data.Order <= 0 {
		return math.MaxInt
	}
	return e.Data.Order
}

// messageArrow keeps the original arrow when it still agrees with the message type.
func messageArrow(d graph.EdgeData) string {
	mt := d.MessageType
	if mt == "" {
		mt = graph.MessageSync
	}
	if d.Arrow != "" && messageRe.MatchString("A"+d.Arrow+"B: x") && messageTypeOf(d.Arrow) == mt {
		return d.Arrow
	}
	if mt == graph.MessageAsync {
		return "-->>"
	}
	return "->>"
}

// Validate 需要关键字和至少一条消息
func (a *SequenceAdapter) Validate(text string) graph.ValidationResult {
	_, lines, ok := splitDiagram(text, sequenceKeyword)
	if !ok {
		return graph.NewValidation([]string{"missing sequenceDiagram declaration"})
	}

	var errs []string
	messages, depth := 0, 0
	for _, l := range lines {
		switch {
		case participantRe.MatchString(l):
		case messageRe.MatchString(l):
			messages++
		case blockOpenRe.MatchString(l):
			depth++
		case l == "end":
			depth--
		}
	}
	if messages == 0 {
		errs = append(errs, "no message found")
	}
	if depth != 0 {
		errs = append(errs, "unbalanced block: every loop/alt/opt/par needs a matching end")
	}
	return graph.NewValidation(errs)
}
