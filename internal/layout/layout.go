// Package layout computes default canvas positions for nodes that have none.
package layout

import (
	"math"

	"diagram-sync/internal/graph"
)

const (
	// Offset 画布边距
	Offset = 50.0
	// DefaultSpacing 默认节点间距
	DefaultSpacing = 200.0
)

// Grid arranges count points on a square-ish grid with
// columns = ceil(sqrt(count)).
func Grid(count int, spacing float64) []graph.Position {
	if count <= 0 {
		return []graph.Position{}
	}
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	cols := int(math.Ceil(math.Sqrt(float64(count))))
	out := make([]graph.Position, count)
	for i := range out {
		out[i] = graph.Position{
			X: float64(i%cols)*spacing + Offset,
			Y: float64(i/cols)*spacing + Offset,
		}
	}
	return out
}

// Row 单行水平布局（时序图参与者）
func Row(count int, spacing float64) []graph.Position {
	if count <= 0 {
		return []graph.Position{}
	}
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	out := make([]graph.Position, count)
	for i := range out {
		out[i] = graph.Position{X: float64(i)*spacing + Offset, Y: Offset}
	}
	return out
}

// Apply 为节点填充位置，按顺序使用 positions
func Apply(nodes []graph.Node, positions []graph.Position) {
	for i := range nodes {
		if i < len(positions) {
			nodes[i].Position = positions[i]
		}
	}
}
