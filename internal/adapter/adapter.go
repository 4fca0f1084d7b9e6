// Package adapter implements per-diagram-type parse / generate / validate
// behind one contract.
package adapter

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"diagram-sync/internal/graph"
)

// Adapter 图类型适配器接口
type Adapter interface {
	// Type 适配器绑定的图类型关键字
	Type() string

	// Parse 将已清洗的文本解析为节点和边
	Parse(text string) graph.ParseResult

	// Generate 由节点和边生成规范文本；对任何图（包括空图）都返回有效文本
	Generate(nodes []graph.Node, edges []graph.Edge, opts GenerateOptions) string

	// Validate 轻量结构校验
	Validate(text string) graph.ValidationResult

	// DefaultNodeRole 新节点默认角色
	DefaultNodeRole() graph.NodeRole

	// NodeRoles 该图类型允许的节点角色，包含 DefaultNodeRole
	NodeRoles() []graph.NodeRole

	// DefaultEdgeRole 新边默认角色
	DefaultEdgeRole() graph.EdgeRole

	// ColorPalette UI 配色
	ColorPalette() []string
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Direction string // flow direction: TD, TB, LR, RL, BT
	Indent    string
}

func (o GenerateOptions) indent() string {
	if o.Indent == "" {
		return "    "
	}
	return o.Indent
}

// AllowsRole reports whether role is one of a's declared node roles.
func AllowsRole(a Adapter, role graph.NodeRole) bool {
	for _, r := range a.NodeRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// NodeRole returns role when a declares it and a's default role otherwise.
func NodeRole(a Adapter, role graph.NodeRole) graph.NodeRole {
	if AllowsRole(a, role) {
		return role
	}
	return a.DefaultNodeRole()
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s can be used verbatim as a diagram identifier.
func IsIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// SanitizeID maps s onto the identifier alphabet [A-Za-z0-9_].
func SanitizeID(s string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range s {
		ok := r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
		if ok {
			sb.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}
	id := strings.Trim(sb.String(), "_")
	if id == "" {
		return "node"
	}
	if id[0] >= '0' && id[0] <= '9' {
		id = "n_" + id
	}
	return id
}

// SanitizeLabel removes newlines and any rune of delimiters from a label.
func SanitizeLabel(s, delimiters string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if strings.ContainsRune(delimiters, r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// identifiers hands out unique textual identifiers for node ids.
type identifiers struct {
	used     map[string]bool
	byID     map[string]string
	reserved map[string]bool
}

func newIdentifiers() *identifiers {
	return &identifiers{used: make(map[string]bool), byID: make(map[string]string)}
}

// assign picks the first legal candidate, falling back to SanitizeID of the
// last one, and suffixes it until unique.
func (ids *identifiers) assign(nodeID string, candidates ...string) string {
	if v, ok := ids.byID[nodeID]; ok {
		return v
	}
	base := ""
	for _, c := range candidates {
		if IsIdentifier(c) {
			base = c
			break
		}
	}
	if base == "" {
		for _, c := range candidates {
			if strings.TrimSpace(c) != "" {
				base = SanitizeID(c)
				break
			}
		}
	}
	if base == "" {
		base = "node"
	}
	if ids.reserved[base] {
		base += "_node"
	}
	id := base
	for i := 2; ids.used[id]; i++ {
		id = base + "_" + strconv.Itoa(i)
	}
	ids.used[id] = true
	ids.byID[nodeID] = id
	return id
}

// reserve marks words that must not be emitted as identifiers; a candidate
// equal to one of them gets a "_node" suffix.
func (ids *identifiers) reserve(words ...string) *identifiers {
	if ids.reserved == nil {
		ids.reserved = make(map[string]bool, len(words))
	}
	for _, w := range words {
		ids.reserved[w] = true
	}
	return ids
}

func (ids *identifiers) lookup(nodeID string) (string, bool) {
	v, ok := ids.byID[nodeID]
	return v, ok
}

// splitDiagram locates the header line that starts with one of keywords and
// returns its remaining fields plus the trimmed body lines. Blank lines and
// %% comments are dropped.
func splitDiagram(text string, keywords ...string) ([]string, []string, bool) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") {
			continue
		}
		fields := strings.Fields(strings.TrimSuffix(trimmed, ";"))
		if len(fields) == 0 {
			// 只有分号
			return nil, nil, false
		}
		for _, kw := range keywords {
			if fields[0] == kw {
				return fields[1:], bodyLines(lines[i+1:]), true
			}
		}
		return nil, nil, false
	}
	return nil, nil, false
}

func bodyLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "%%") {
			continue
		}
		out = append(out, t)
	}
	return out
}

// unbalanced reports bracket pairs that do not balance, ignoring quoted text.
func unbalanced(lines []string, pairs string) []string {
	var errs []string
	for i := 0; i+1 < len(pairs); i += 2 {
		opening, closing := rune(pairs[i]), rune(pairs[i+1])
		depth := 0
		negative := false
		for _, l := range lines {
			inQuote := false
			for _, r := range l {
				switch {
				case r == '"':
					inQuote = !inQuote
				case inQuote:
				case r == opening:
					depth++
				case r == closing:
					depth--
					if depth < 0 {
						negative = true
					}
				}
			}
		}
		if depth != 0 || negative {
			errs = append(errs, "unbalanced "+string(opening)+string(closing)+" delimiters")
		}
	}
	return errs
}
