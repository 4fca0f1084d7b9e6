package layout

import (
	"testing"

	"diagram-sync/internal/graph"

	"github.com/stretchr/testify/assert"
)

func TestGrid(t *testing.T) {
	tests := []struct {
		count    int
		spacing  float64
		expected []graph.Position
	}{
		{0, 100, []graph.Position{}},
		{1, 100, []graph.Position{{X: 50, Y: 50}}},
		{3, 100, []graph.Position{{X: 50, Y: 50}, {X: 150, Y: 50}, {X: 50, Y: 150}}},
		{5, 10, []graph.Position{{X: 50, Y: 50}, {X: 60, Y: 50}, {X: 70, Y: 50}, {X: 50, Y: 60}, {X: 60, Y: 60}}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Grid(tt.count, tt.spacing))
	}
}

func TestGridIsDeterministic(t *testing.T) {
	assert.Equal(t, Grid(17, 120), Grid(17, 120))
	assert.Equal(t, Grid(4, 0), Grid(4, DefaultSpacing))
}

func TestRow(t *testing.T) {
	pos := Row(3, 150)

	assert.Equal(t, []graph.Position{{X: 50, Y: 50}, {X: 200, Y: 50}, {X: 350, Y: 50}}, pos)
}

func TestApply(t *testing.T) {
	nodes := []graph.Node{{ID: "a"}, {ID: "b"}}

	Apply(nodes, Row(1, 100))

	assert.Equal(t, graph.Position{X: 50, Y: 50}, nodes[0].Position)
	assert.Equal(t, graph.Position{}, nodes[1].Position)
}
