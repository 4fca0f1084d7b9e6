package renderer

import (
	"fmt"
	"sort"
	"strings"

	"diagram-sync/internal/analyzer"
	"diagram-sync/internal/graph"
)

// MarkdownRenderer 图文档 Markdown 报告渲染器
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render 渲染为 Markdown 格式；suggestions 可以为空
func (m *MarkdownRenderer) Render(doc graph.Document, suggestions []analyzer.Suggestion) string {
	var sb strings.Builder

	sb.WriteString("# 图文档\n\n")
	sb.WriteString(fmt.Sprintf("- 类型: `%s`\n", doc.DiagramType))
	sb.WriteString(fmt.Sprintf("- 节点: %d\n", len(doc.Nodes)))
	sb.WriteString(fmt.Sprintf("- 连线: %d\n\n", len(doc.Edges)))

	m.renderNodes(&sb, doc.Nodes)
	m.renderEdges(&sb, doc)
	m.renderSuggestions(&sb, suggestions)

	if len(doc.ParseDiagnostics) > 0 {
		sb.WriteString("## 诊断\n\n")
		for _, d := range doc.ParseDiagnostics {
			sb.WriteString(fmt.Sprintf("- %s\n", d))
		}
		sb.WriteString("\n")
	}

	if strings.TrimSpace(doc.RawText) != "" {
		sb.WriteString("## 源文本\n\n")
		sb.WriteString("```mermaid\n")
		sb.WriteString(strings.TrimRight(doc.RawText, "\n"))
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

// renderNodes 节点表；实体额外输出字段表
func (m *MarkdownRenderer) renderNodes(sb *strings.Builder, nodes []graph.Node) {
	if len(nodes) == 0 {
		return
	}
	sb.WriteString("## 节点\n\n")
	sb.WriteString("| ID | 标签 | 类型 | 位置 |\n")
	sb.WriteString("|----|------|------|------|\n")
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | (%.0f, %.0f) |\n",
			cell(n.ID), cell(n.Label), n.Type, n.Position.X, n.Position.Y))
	}
	sb.WriteString("\n")

	for _, n := range nodes {
		if len(n.Data.Properties) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", n.Label))
		sb.WriteString("| 字段 | 类型 | 键 | 说明 |\n")
		sb.WriteString("|------|------|----|------|\n")
		for _, p := range n.Data.Properties {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				cell(p.Name), cell(p.Type), strings.Join(p.Keys, ", "), cell(p.Comment)))
		}
		sb.WriteString("\n")
	}
}

// renderEdges 连线表，消息按顺序号排列
func (m *MarkdownRenderer) renderEdges(sb *strings.Builder, doc graph.Document) {
	if len(doc.Edges) == 0 {
		return
	}
	labels := make(map[string]string, len(doc.Nodes))
	for _, n := range doc.Nodes {
		labels[n.ID] = n.Label
	}
	name := func(id string) string {
		if l, ok := labels[id]; ok && l != "" {
			return l
		}
		return id
	}

	edges := graph.CloneEdges(doc.Edges)
	sort.SliceStable(edges, func(i, j int) bool {
		oi, oj := edges[i].Data.Order, edges[j].Data.Order
		return oi > 0 && (oj == 0 || oi < oj)
	})

	sb.WriteString("## 连线\n\n")
	sb.WriteString("| 起点 | 终点 | 标签 | 类型 | 详情 |\n")
	sb.WriteString("|------|------|------|------|------|\n")
	for _, e := range edges {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			cell(name(e.Source)), cell(name(e.Target)), cell(e.Label), e.Type, edgeDetail(e)))
	}
	sb.WriteString("\n")
}

func edgeDetail(e graph.Edge) string {
	switch e.Type {
	case graph.RoleMessage:
		return fmt.Sprintf("#%d %s", e.Data.Order, e.Data.MessageType)
	case graph.RoleRelationship:
		return "`" + e.Data.Cardinality + "`"
	default:
		return e.Data.Style
	}
}

// renderSuggestions 推断关系及证据
func (m *MarkdownRenderer) renderSuggestions(sb *strings.Builder, suggestions []analyzer.Suggestion) {
	if len(suggestions) == 0 {
		return
	}
	sb.WriteString("## 推断关系\n\n")
	for _, s := range suggestions {
		sb.WriteString(fmt.Sprintf("- **推断外键** `%s` → `%s` (置信度: %.2f)\n",
			s.Field, s.Edge.Source, s.Confidence))
		if len(s.Evidence) > 0 {
			sb.WriteString("  - 证据:\n")
			for _, ev := range s.Evidence {
				sb.WriteString(fmt.Sprintf("    - %s (%.2f): %s\n", ev.Type, ev.Score, ev.Description))
			}
		}
	}
	sb.WriteString("\n")
}

// cell 转义表格单元格
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
