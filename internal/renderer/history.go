package renderer

import (
	"fmt"
	"strings"
	"time"

	"diagram-sync/internal/store"
)

// HistoryRenderer 版本历史渲染器
type HistoryRenderer struct {
	// Location 时间显示的时区，nil 时使用 UTC
	Location *time.Location
}

// NewHistoryRenderer 创建渲染器
func NewHistoryRenderer() *HistoryRenderer {
	return &HistoryRenderer{}
}

// Render 渲染版本列表；withContent 为 true 时附带每个版本的文本
func (h *HistoryRenderer) Render(artifactID string, versions []store.Version, withContent bool) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# 版本历史: %s\n\n", artifactID))
	if len(versions) == 0 {
		sb.WriteString("暂无版本\n")
		return sb.String()
	}

	sb.WriteString("| 版本 | 时间 | 类型 | 节点 | 连线 | 哈希 |\n")
	sb.WriteString("|------|------|------|------|------|------|\n")
	for _, v := range versions {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | `%s` |\n",
			v.Number,
			h.when(v.CreatedAt),
			orDash(v.Metadata["diagramType"]),
			orDash(v.Metadata["nodes"]),
			orDash(v.Metadata["edges"]),
			short(v.Hash),
		))
	}
	sb.WriteString("\n")

	if !withContent {
		return sb.String()
	}
	for _, v := range versions {
		sb.WriteString(fmt.Sprintf("## v%d\n\n", v.Number))
		sb.WriteString("```mermaid\n")
		sb.WriteString(strings.TrimRight(v.Content, "\n"))
		sb.WriteString("\n```\n\n")
	}
	return sb.String()
}

func (h *HistoryRenderer) when(t time.Time) string {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
