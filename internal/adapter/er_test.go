package adapter

import (
	"testing"

	"diagram-sync/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestERParseOneLineEntity(t *testing.T) {
	a := NewERAdapter(100)

	res := a.Parse("erDiagram\nUSER{int id PK}")

	require.True(t, res.Success)
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, "USER", res.Nodes[0].ID)
	assert.Equal(t, graph.RoleEntity, res.Nodes[0].Type)
	assert.Equal(t, []graph.Property{{Type: "int", Name: "id", Keys: []string{"PK"}}}, res.Nodes[0].Data.Properties)
	assert.Empty(t, res.Edges)
	assert.Equal(t, graph.Position{X: 50, Y: 50}, res.Nodes[0].Position)
}

func TestERParseBlocksAndRelationships(t *testing.T) {
	text := `erDiagram
    CUSTOMER ||--o{ ORDER : places
    CUSTOMER {
        string name
        string email UK "login"
    }
    ORDER["Purchase Order"] {
        int id PK
        int customer_id FK
    }
    ORDER ||--|{ LINE_ITEM : "contains"`

	res := NewERAdapter(100).Parse(text)

	require.True(t, res.Success)
	require.Len(t, res.Nodes, 3)
	assert.Equal(t, "CUSTOMER", res.Nodes[0].ID)
	assert.Equal(t, "ORDER", res.Nodes[1].ID)
	assert.Equal(t, "Purchase Order", res.Nodes[1].Label)
	assert.Equal(t, "LINE_ITEM", res.Nodes[2].ID)
	assert.Equal(t, "login", res.Nodes[0].Data.Properties[1].Comment)

	require.Len(t, res.Edges, 2)
	assert.Equal(t, graph.Edge{
		ID: "rel-1", Source: "CUSTOMER", Target: "ORDER", Label: "places",
		Type: graph.RoleRelationship, Data: graph.EdgeData{Cardinality: "||--o{"},
	}, res.Edges[0])
	assert.Equal(t, "contains", res.Edges[1].Label)
	assert.Equal(t, "||--|{", res.Edges[1].Data.Cardinality)

	assert.Contains(t, res.Metadata.Warnings, "entity LINE_ITEM is referenced but never declared")
	assert.Contains(t, res.Metadata.Warnings, "entity LINE_ITEM has no fields")
	assert.Len(t, res.Metadata.Warnings, 2)
	assert.Equal(t, 3, res.Metadata.NodeCount)
	assert.Equal(t, 2, res.Metadata.EdgeCount)
}

func TestERParseUnclosedBlockWarns(t *testing.T) {
	res := NewERAdapter(100).Parse("erDiagram\nA {\nint id PK")

	require.True(t, res.Success)
	assert.Contains(t, res.Metadata.Warnings, "entity A: block is not closed")
}

func TestERGenerateSingleEntity(t *testing.T) {
	nodes := []graph.Node{{
		ID:    "order-1",
		Type:  graph.RoleEntity,
		Label: "Order",
		Data: graph.NodeData{Properties: []graph.Property{
			mustProperty(t, "int id PK"),
			mustProperty(t, "string status"),
		}},
	}}

	text := NewERAdapter(100).Generate(nodes, nil, GenerateOptions{})

	assert.Equal(t, "erDiagram\n    Order {\n        int id PK\n        string status\n    }", text)
}

func TestERGenerateDefaultsAndDanglingEdges(t *testing.T) {
	nodes := []graph.Node{
		{ID: "a", Label: "Customer Account"},
		{ID: "b", Label: "Invoice"},
	}
	edges := []graph.Edge{
		{ID: "1", Source: "a", Target: "b"},
		{ID: "2", Source: "a", Target: "ghost", Label: "haunts"},
	}

	text := NewERAdapter(100).Generate(nodes, edges, GenerateOptions{})

	expected := `erDiagram
    a["Customer Account"] {
        int id PK
    }
    Invoice {
        int id PK
    }
    a ||--o{ Invoice : "relates to"`
	assert.Equal(t, expected, text)
}

func TestERValidate(t *testing.T) {
	a := NewERAdapter(100)

	assert.True(t, a.Validate("erDiagram\nUSER{int id PK}").Valid)
	assert.True(t, a.Validate("erDiagram\nA ||--o{ B : has").Valid)

	v := a.Validate("erDiagram\nA {\nint id\n")
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors, "unbalanced {} delimiters")

	v = a.Validate("flowchart TD\nA-->B")
	assert.False(t, v.Valid)
	assert.Equal(t, []string{"missing erDiagram declaration"}, v.Errors)

	assert.False(t, a.Validate("erDiagram").Valid)
}

func mustProperty(t *testing.T, s string) graph.Property {
	t.Helper()
	p, ok := graph.ParseProperty(s)
	require.True(t, ok)
	return p
}
