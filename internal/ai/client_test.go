package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dashScopeServer answers every request with content as the first choice.
func dashScopeServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen-test", body["model"])

		resp := map[string]interface{}{
			"output": map[string]interface{}{
				"choices": []interface{}{
					map[string]interface{}{"message": map[string]string{"content": content}},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseDiagramFencedJSON(t *testing.T) {
	content := "Sure:\n```json\n{\"nodes\":[{\"id\":\"A\",\"label\":\"Alice\"},{\"id\":\"B\"}],\"edges\":[{\"source\":\"A\",\"target\":\"B\",\"label\":\"hi\"}]}\n```"
	srv := dashScopeServer(t, content)

	c := NewDashScopeClient("test-key", srv.URL, "qwen-test")
	parsed, err := c.ParseDiagram(context.Background(), "sequenceDiagram\nA hi B", "sequenceDiagram")

	require.NoError(t, err)
	require.Len(t, parsed.Nodes, 2)
	assert.Equal(t, "Alice", parsed.Nodes[0].Label)
	require.Len(t, parsed.Edges, 1)
	assert.Equal(t, "hi", parsed.Edges[0].Label)
}

func TestImproveDiagram(t *testing.T) {
	srv := dashScopeServer(t, `{"text":"flowchart TD\n    A --> B","changes":["added direction"]}`)

	c := NewDashScopeClient("test-key", srv.URL, "qwen-test")
	imp, err := c.ImproveDiagram(context.Background(), "flowchart\nA-->B", "flowchart")

	require.NoError(t, err)
	assert.Equal(t, "flowchart TD\n    A --> B", imp.Text)
	assert.Equal(t, []string{"added direction"}, imp.Changes)
}

func TestCallAPIErrors(t *testing.T) {
	t.Run("empty content", func(t *testing.T) {
		srv := dashScopeServer(t, "  ")
		_, err := NewDashScopeClient("test-key", srv.URL, "qwen-test").ParseDiagram(context.Background(), "x", "graph")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewDashScopeClient("k", srv.URL, "").ImproveDiagram(context.Background(), "x", "graph")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("not json", func(t *testing.T) {
		srv := dashScopeServer(t, "I cannot help with that")
		_, err := NewDashScopeClient("test-key", srv.URL, "qwen-test").ParseDiagram(context.Background(), "x", "graph")
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := dashScopeServer(t, "{}")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewDashScopeClient("test-key", srv.URL, "qwen-test").ParseDiagram(ctx, "x", "graph")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: [1,2] done", `[1,2]`},
		{"no json", "no json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractJSON(tt.in))
	}
}

func TestNormalizeSequence(t *testing.T) {
	p := &ParsedDiagram{
		Nodes: []ParsedNode{
			{ID: "Web App", Label: "Web App", Type: "participant"},
			{ID: "api", Type: "robot"},
			{ID: "api"},
		},
		Edges: []ParsedEdge{
			{Source: "Web App", Target: "api", Label: "GET /users"},
			{Source: "api", Target: "Web App", Label: "200", MessageType: "ASYNC"},
			{Source: "api", Target: "db"},
		},
	}

	res := p.Normalize(adapter.NewSequenceAdapter(100), 100)

	require.True(t, res.Success)
	assert.Equal(t, Parser, res.Metadata.Parser)
	assert.Equal(t, "sequenceDiagram", res.Metadata.DiagramType)
	require.Len(t, res.Nodes, 2)
	assert.Equal(t, "Web_App", res.Nodes[0].ID)
	assert.Equal(t, graph.RoleParticipant, res.Nodes[1].Type)
	assert.Equal(t, "api", res.Nodes[1].Label)
	assert.Equal(t, graph.Position{X: 150, Y: 50}, res.Nodes[1].Position)

	require.Len(t, res.Edges, 2)
	assert.Equal(t, 1, res.Edges[0].Data.Order)
	assert.Equal(t, graph.MessageSync, res.Edges[0].Data.MessageType)
	assert.Equal(t, 2, res.Edges[1].Data.Order)
	assert.Equal(t, graph.MessageAsync, res.Edges[1].Data.MessageType)
	assert.Len(t, res.Metadata.Warnings, 2)

	text := adapter.NewSequenceAdapter(100).Generate(res.Nodes, res.Edges, adapter.GenerateOptions{})
	assert.True(t, adapter.NewSequenceAdapter(100).Validate(text).Valid, text)
}

func TestNormalizeEntityProperties(t *testing.T) {
	p := &ParsedDiagram{Nodes: []ParsedNode{{ID: "USER", Type: "entity", Properties: []string{"int id PK", "???"}}}}

	res := p.Normalize(adapter.NewERAdapter(100), 100)

	require.True(t, res.Success)
	require.Len(t, res.Nodes[0].Data.Properties, 1)
	assert.Equal(t, "id", res.Nodes[0].Data.Properties[0].Name)
	assert.Empty(t, res.Edges)
}

func TestNormalizeMapsRolesToAdapter(t *testing.T) {
	p := &ParsedDiagram{Nodes: []ParsedNode{
		{ID: "USER", Type: "entity"},
		{ID: "db", Type: "Database"},
	}}

	seq := p.Normalize(adapter.NewSequenceAdapter(100), 100)
	require.True(t, seq.Success)
	for _, n := range seq.Nodes {
		assert.Equal(t, graph.RoleParticipant, n.Type, n.ID)
	}

	flow := p.Normalize(adapter.NewFlowAdapter(100), 100)
	require.True(t, flow.Success)
	assert.Equal(t, graph.RoleComponent, flow.Nodes[0].Type)
	assert.Equal(t, graph.RoleDatabase, flow.Nodes[1].Type)
}

func TestNormalizeEmpty(t *testing.T) {
	res := (&ParsedDiagram{}).Normalize(adapter.NewFlowAdapter(100), 100)
	assert.False(t, res.Success)
	assert.Empty(t, res.Nodes)

	var nilDiagram *ParsedDiagram
	assert.False(t, nilDiagram.Normalize(adapter.NewFlowAdapter(100), 100).Success)
}
