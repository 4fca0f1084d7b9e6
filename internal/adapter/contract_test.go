package adapter

import (
	"testing"

	"diagram-sync/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allAdapters() []Adapter {
	return []Adapter{
		NewERAdapter(100),
		NewSequenceAdapter(100),
		NewFlowAdapter(100),
		NewArchitectureAdapter(100),
		NewGenericAdapter("stateDiagram-v2", 100),
		NewGenericAdapter("classDiagram", 100),
	}
}

// sampleGraph mixes legal and illegal identifiers, an unlabeled node, a
// delimiter in a label and a dangling edge.
func sampleGraph(a Adapter) ([]graph.Node, []graph.Edge) {
	nodes := []graph.Node{
		{ID: "n1", Label: "Customer", Type: a.DefaultNodeRole()},
		{ID: "n-2", Label: "Order Service", Type: a.DefaultNodeRole()},
		{ID: "3", Type: a.DefaultNodeRole()},
	}
	edges := []graph.Edge{
		{ID: "a", Source: "n1", Target: "n-2", Label: "places", Type: a.DefaultEdgeRole(), Data: graph.EdgeData{Order: 2}},
		{ID: "b", Source: "n-2", Target: "3", Label: "ships [fast]", Type: a.DefaultEdgeRole(), Data: graph.EdgeData{Order: 1, MessageType: graph.MessageAsync}},
		{ID: "c", Source: "n1", Target: "gone", Type: a.DefaultEdgeRole()},
	}
	return nodes, edges
}

func TestAdapterGenerateIsTotal(t *testing.T) {
	for _, a := range allAdapters() {
		t.Run(a.Type(), func(t *testing.T) {
			for _, text := range []string{
				a.Generate(nil, nil, GenerateOptions{}),
				a.Generate([]graph.Node{}, []graph.Edge{}, GenerateOptions{}),
			} {
				require.NotEmpty(t, text)
				v := a.Validate(text)
				assert.True(t, v.Valid, "%s: %v", text, v.Errors)
				assert.True(t, a.Parse(text).Success, text)
			}
		})
	}
}

func TestAdapterParseSignalsFailure(t *testing.T) {
	for _, a := range allAdapters() {
		t.Run(a.Type(), func(t *testing.T) {
			for _, text := range []string{"random prose with no diagram keyword", "", ";", "  ;\n;;"} {
				res := a.Parse(text)
				assert.False(t, res.Success)
				assert.NotNil(t, res.Nodes)
				assert.Empty(t, res.Nodes)
				assert.Empty(t, res.Edges)
				assert.Equal(t, graph.FailureNoDeclaration, res.Metadata.Failure)
				assert.False(t, a.Validate(text).Valid, "%q", text)
			}
		})
	}
}

func TestAdapterRoundTripReachesFixedPoint(t *testing.T) {
	for _, a := range allAdapters() {
		t.Run(a.Type(), func(t *testing.T) {
			nodes, edges := sampleGraph(a)

			t1 := a.Generate(nodes, edges, GenerateOptions{})
			assert.True(t, a.Validate(t1).Valid, t1)

			r1 := a.Parse(t1)
			require.True(t, r1.Success, t1)
			require.Len(t, r1.Nodes, 3)
			require.Len(t, r1.Edges, 2)

			t2 := a.Generate(r1.Nodes, r1.Edges, GenerateOptions{Direction: r1.Metadata.Direction})
			r2 := a.Parse(t2)
			require.True(t, r2.Success, t2)
			t3 := a.Generate(r2.Nodes, r2.Edges, GenerateOptions{Direction: r2.Metadata.Direction})

			assert.Equal(t, t2, t3)
			// 由解析得到的图，第一次生成即为不动点
			assert.Equal(t, t1, t2)
		})
	}
}

func TestAdapterNodeRoles(t *testing.T) {
	for _, a := range allAdapters() {
		assert.Contains(t, a.NodeRoles(), a.DefaultNodeRole(), a.Type())
		assert.Equal(t, a.DefaultNodeRole(), NodeRole(a, "no-such-role"), a.Type())

		// 解析出的节点角色都在声明范围内
		nodes, edges := sampleGraph(a)
		res := a.Parse(a.Generate(nodes, edges, GenerateOptions{}))
		for _, n := range res.Nodes {
			assert.True(t, AllowsRole(a, n.Type), "%s: %s", a.Type(), n.Type)
		}
	}
	assert.False(t, AllowsRole(NewSequenceAdapter(100), graph.RoleEntity))
	assert.True(t, AllowsRole(NewFlowAdapter(100), graph.RoleDecision))
}

func TestAdapterGenerateDoesNotMutateInput(t *testing.T) {
	for _, a := range allAdapters() {
		nodes, edges := sampleGraph(a)
		wantNodes, wantEdges := graph.CloneNodes(nodes), graph.CloneEdges(edges)

		a.Generate(nodes, edges, GenerateOptions{})

		assert.Equal(t, wantNodes, nodes, a.Type())
		assert.Equal(t, wantEdges, edges, a.Type())
	}
}
