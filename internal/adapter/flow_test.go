package adapter

import (
	"testing"

	"diagram-sync/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowParse(t *testing.T) {
	text := `flowchart LR
    A[Start] --> B{Is valid?}
    B -->|yes| C([Done])
    B -- no --> D[(Errors DB)]
    C -.-> E
    D ==> E & F
    classDef red fill:#f00
    subgraph backend
    end
    weird line here`

	res := NewFlowAdapter(100).Parse(text)

	require.True(t, res.Success)
	assert.Equal(t, "LR", res.Metadata.Direction)
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, nodeIDs(res.Nodes))

	assert.Equal(t, graph.RoleComponent, res.Nodes[0].Type)
	assert.Equal(t, "Start", res.Nodes[0].Label)
	assert.Equal(t, graph.RoleDecision, res.Nodes[1].Type)
	assert.Equal(t, "Is valid?", res.Nodes[1].Label)
	assert.Equal(t, graph.RoleTerminal, res.Nodes[2].Type)
	assert.Equal(t, "([])", res.Nodes[2].Data.Shape)
	assert.Equal(t, graph.RoleDatabase, res.Nodes[3].Type)
	assert.Equal(t, "Errors DB", res.Nodes[3].Label)
	assert.Equal(t, "E", res.Nodes[4].Label)

	require.Len(t, res.Edges, 6)
	assert.Equal(t, "yes", res.Edges[1].Label)
	assert.Equal(t, "no", res.Edges[2].Label)
	assert.Equal(t, "D", res.Edges[2].Target)
	assert.Equal(t, "dotted", res.Edges[3].Data.Style)
	assert.Equal(t, "thick", res.Edges[4].Data.Style)
	assert.Equal(t, "F", res.Edges[5].Target)

	assert.Equal(t, []string{`unrecognized line "weird line here"`}, res.Metadata.Warnings)
}

func TestFlowParseFallsBackToGenericExtraction(t *testing.T) {
	res := NewFlowAdapter(100).Parse("graph\nA --> B\nX -> Y : label")

	require.True(t, res.Success)
	assert.Equal(t, "TD", res.Metadata.Direction)
	assert.Equal(t, []string{"A", "B", "X", "Y"}, nodeIDs(res.Nodes))
	require.Len(t, res.Edges, 2)
	assert.Equal(t, "label", res.Edges[1].Label)
	assert.Equal(t, "X", res.Edges[1].Source)
	assert.Contains(t, res.Metadata.Warnings, "1 line(s) parsed with generic extraction")
}

func TestFlowGenerate(t *testing.T) {
	nodes := []graph.Node{
		{ID: "start", Label: "Begin", Type: graph.RoleTerminal},
		{ID: "check", Label: "OK?", Type: graph.RoleDecision},
		{ID: "db", Label: "Store [v2]", Type: graph.RoleDatabase},
		{ID: "x y", Type: graph.RoleComponent},
	}
	edges := []graph.Edge{
		{ID: "1", Source: "start", Target: "check", Label: "go"},
		{ID: "2", Source: "check", Target: "db", Data: graph.EdgeData{Style: "dotted"}},
		{ID: "3", Source: "check", Target: "x y", Data: graph.EdgeData{Arrow: "==>"}},
		{ID: "4", Source: "check", Target: "nowhere"},
	}

	text := NewFlowAdapter(100).Generate(nodes, edges, GenerateOptions{Direction: "lr"})

	expected := `flowchart LR
    start(Begin)
    check{OK?}
    db[(Store v2)]
    x_y[x_y]
    start -->|go| check
    check -.-> db
    check ==> x_y`
	assert.Equal(t, expected, text)
}

func TestFlowLabelDefusesArrows(t *testing.T) {
	assert.Equal(t, "a -> b", flowLabel("a --> b"))
	assert.Equal(t, "x => y", flowLabel("x ==> y"))
	assert.Equal(t, "call fn", flowLabel("call (fn)"))
}

func TestFlowValidate(t *testing.T) {
	a := NewFlowAdapter(100)

	assert.True(t, a.Validate("graph TD\nA --> B").Valid)
	assert.True(t, a.Validate("flowchart\nA[alone]").Valid)
	assert.False(t, a.Validate("flowchart TD\nA[open --> B").Valid)
	assert.False(t, a.Validate("flowchart TD").Valid)
	assert.False(t, a.Validate("sequenceDiagram\nA->>B: x").Valid)
}

func TestFlowGenerateRenamesDirectiveIDs(t *testing.T) {
	a := NewFlowAdapter(100)
	nodes := []graph.Node{
		{ID: "start", Label: "Start", Type: graph.RoleTerminal},
		{ID: "end", Label: "End", Type: graph.RoleTerminal},
		{ID: "style", Type: graph.RoleComponent},
	}
	edges := []graph.Edge{
		{ID: "1", Source: "start", Target: "end"},
		{ID: "2", Source: "end", Target: "style"},
	}

	text := a.Generate(nodes, edges, GenerateOptions{})

	assert.Equal(t, "flowchart TD\n    start(Start)\n    end_node(End)\n    style_node[style_node]\n    start --> end_node\n    end_node --> style_node", text)
	res := a.Parse(text)
	require.True(t, res.Success)
	assert.Equal(t, []string{"start", "end_node", "style_node"}, nodeIDs(res.Nodes))
	assert.Len(t, res.Edges, 2)
	assert.Equal(t, text, a.Generate(res.Nodes, res.Edges, GenerateOptions{Direction: res.Metadata.Direction}))
}

func TestArchitectureParse(t *testing.T) {
	text := `architecture-beta
    group api(cloud)[API]
    service db(database)[Database] in api
    service server(server)[Server] in api
    junction hub
    db:L -- R:server
    server:B --> T:hub
    api{group}:R <--> L:edge
    web[Web] --> server`

	res := NewArchitectureAdapter(100).Parse(text)

	require.True(t, res.Success, res.Metadata.Warnings)
	assert.Equal(t, "architecture-beta", res.Metadata.DiagramType)
	assert.Empty(t, res.Metadata.Direction)
	assert.Equal(t, []string{"api", "db", "server", "hub", "edge", "web"}, nodeIDs(res.Nodes))

	assert.Equal(t, "group", res.Nodes[0].Data.Kind)
	assert.Equal(t, graph.RoleGeneric, res.Nodes[0].Type)
	assert.Equal(t, graph.RoleDatabase, res.Nodes[1].Type)
	assert.Equal(t, "Database", res.Nodes[1].Label)
	assert.Equal(t, "api", res.Nodes[1].Data.Parent)
	assert.Equal(t, "server", res.Nodes[2].Data.Icon)
	assert.Equal(t, graph.RoleComponent, res.Nodes[2].Type)
	assert.Equal(t, "junction", res.Nodes[3].Data.Kind)

	require.Len(t, res.Edges, 4)
	assert.Equal(t, "db", res.Edges[0].Source)
	assert.Equal(t, "LR", res.Edges[0].Data.Sides)
	assert.Equal(t, "--", res.Edges[0].Data.Arrow)
	assert.Equal(t, "BT", res.Edges[1].Data.Sides)
	assert.Equal(t, "<-->", res.Edges[2].Data.Arrow)
	assert.Equal(t, "web", res.Edges[3].Source)
	assert.Empty(t, res.Metadata.Warnings)
}

func TestFlowAdapterAcceptsArchitectureHeader(t *testing.T) {
	for _, text := range []string{
		"architecture-beta\n    service db(database)[Database]",
		"architecture\n    api[API] --> db[(DB)]",
	} {
		for _, a := range []*FlowAdapter{NewFlowAdapter(100), NewArchitectureAdapter(100)} {
			res := a.Parse(text)
			assert.True(t, res.Success, "%s: %q", a.Type(), text)
			assert.NotEmpty(t, res.Nodes)
			assert.True(t, a.Validate(text).Valid, "%s: %q", a.Type(), text)
		}
	}
}

func TestArchitectureGenerate(t *testing.T) {
	nodes := []graph.Node{
		{ID: "db", Label: "Main DB", Type: graph.RoleDatabase, Data: graph.NodeData{Parent: "grp"}},
		{ID: "grp", Label: "Backend", Data: graph.NodeData{Kind: "group"}},
		{ID: "hub", Data: graph.NodeData{Kind: "junction"}},
		{ID: "svc-1", Label: "Orders (v2)", Type: graph.RoleComponent, Data: graph.NodeData{Icon: "logos:go"}},
	}
	edges := []graph.Edge{
		{ID: "1", Source: "svc-1", Target: "db", Label: "reads"},
		{ID: "2", Source: "db", Target: "hub", Data: graph.EdgeData{Sides: "BT", Arrow: "--"}},
		{ID: "3", Source: "grp", Target: "svc-1", Data: graph.EdgeData{Sides: "xx"}},
		{ID: "4", Source: "db", Target: "gone"},
	}
	a := NewArchitectureAdapter(100)

	text := a.Generate(nodes, edges, GenerateOptions{Direction: "LR"})

	expected := `architecture-beta
    group grp(cloud)[Backend]
    service db(database)[Main DB] in grp
    junction hub
    service svc_1(logos:go)[Orders v2]
    svc_1:R --> L:db
    db:B -- T:hub
    grp{group}:R --> L:svc_1`
	assert.Equal(t, expected, text)

	res := a.Parse(text)
	require.True(t, res.Success)
	assert.Empty(t, res.Metadata.Warnings)
	assert.Equal(t, text, a.Generate(res.Nodes, res.Edges, GenerateOptions{}))
}
