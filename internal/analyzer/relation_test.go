package analyzer

import (
	"testing"

	"diagram-sync/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateNameSimilarity(t *testing.T) {
	r := NewRelationshipInferer()

	tests := []struct {
		name1    string
		name2    string
		expected float64
	}{
		{"user_id", "USERid", 1.0},
		{"UserID", "UserId", 1.0},
		{"owner_user_id", "userid", 0.8},
		{"orderid", "ordrid", 0.857},
		{"DepartmentID", "DepID", 0},
		{"", "id", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name1+"_"+tt.name2, func(t *testing.T) {
			assert.InDelta(t, tt.expected, r.calculateNameSimilarity(tt.name1, tt.name2), 0.01)
		})
	}
}

func TestIsTypeCompatible(t *testing.T) {
	r := NewRelationshipInferer()

	tests := []struct {
		type1    string
		type2    string
		expected bool
	}{
		{"varchar", "varchar", true},
		{"varchar", "nvarchar", true},
		{"int", "bigint", true},
		{"varchar", "int", false},
		{"text", "string", true},
		{"uuid", "string", true},
		{"float", "int", false},
	}

	for _, tt := range tests {
		t.Run(tt.type1+"_"+tt.type2, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.isTypeCompatible(tt.type1, tt.type2))
		})
	}
}

func entity(id string, fields ...string) graph.Node {
	n := graph.Node{ID: id, Label: id, Type: graph.RoleEntity}
	for _, f := range fields {
		p, _ := graph.ParseProperty(f)
		n.Data.Properties = append(n.Data.Properties, p)
	}
	return n
}

func TestInferRelationships(t *testing.T) {
	nodes := []graph.Node{
		entity("USER", "int id PK", "string email"),
		entity("ORDER", "int id PK", "int user_id FK", "string status"),
		entity("PRODUCT", "int id PK"),
		entity("LINE", "int order_id", "int product_id", "int qty"),
	}
	edges := []graph.Edge{{ID: "rel-1", Source: "ORDER", Target: "LINE"}}

	got := NewRelationshipInferer().Infer(nodes, edges)

	require.Len(t, got, 2)

	assert.Equal(t, "inferred-1", got[0].Edge.ID)
	assert.Equal(t, "USER", got[0].Edge.Source)
	assert.Equal(t, "ORDER", got[0].Edge.Target)
	assert.Equal(t, "user_id", got[0].Edge.Label)
	assert.Equal(t, "||--o{", got[0].Edge.Data.Cardinality)
	assert.Equal(t, "ORDER.user_id", got[0].Field)
	assert.InDelta(t, 1.0, got[0].Confidence, 0.001)
	assert.Len(t, got[0].Evidence, 3)

	assert.Equal(t, "PRODUCT", got[1].Edge.Source)
	assert.Equal(t, "LINE", got[1].Edge.Target)
	assert.InDelta(t, 0.9, got[1].Confidence, 0.001)
	assert.Len(t, got[1].Evidence, 2)
}

func TestInferSkipsConnectedEntities(t *testing.T) {
	nodes := []graph.Node{
		entity("USER", "int id PK"),
		entity("ORDER", "int id PK", "int user_id FK"),
	}
	edges := []graph.Edge{{ID: "rel-1", Source: "USER", Target: "ORDER"}}

	assert.Empty(t, NewRelationshipInferer().Infer(nodes, edges))
}
