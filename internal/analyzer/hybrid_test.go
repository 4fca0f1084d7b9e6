package analyzer

import (
	"context"
	"errors"
	"testing"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/ai"
	"diagram-sync/internal/graph"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAI struct {
	parsed   *ai.ParsedDiagram
	err      error
	calls    int
	lastType string
}

func (f *fakeAI) ParseDiagram(ctx context.Context, text, diagramType string) (*ai.ParsedDiagram, error) {
	f.calls++
	f.lastType = diagramType
	return f.parsed, f.err
}

func (f *fakeAI) ImproveDiagram(ctx context.Context, text, diagramType string) (*ai.Improvement, error) {
	return &ai.Improvement{Text: text}, nil
}

func newAnalyzer(client ai.Client) *HybridAnalyzer {
	return NewHybridAnalyzer(adapter.DefaultRegistry(100), client, 100, zerolog.Nop())
}

func TestAnalyzeRuleBasedFirst(t *testing.T) {
	fake := &fakeAI{}
	an := newAnalyzer(fake).Analyze(context.Background(),
		"Here is the diagram:\n```mermaid\nerDiagram\nUSER{int id PK}\n```",
		Options{AllowAI: true})

	require.True(t, an.Result.Success)
	assert.Equal(t, 0, fake.calls)
	assert.Equal(t, "erDiagram", an.Adapter.Type())
	assert.Equal(t, "erDiagram\nUSER{int id PK}", an.Clean.Text)
	assert.True(t, an.Validation.Valid)
	assert.NotEmpty(t, an.Diagnostics())
}

func TestAnalyzeNoDeclaration(t *testing.T) {
	fake := &fakeAI{parsed: &ai.ParsedDiagram{Nodes: []ai.ParsedNode{{ID: "x"}}}}
	an := newAnalyzer(fake).Analyze(context.Background(), "random prose with no diagram keyword", Options{AllowAI: true})

	assert.False(t, an.Result.Success)
	assert.Empty(t, an.Result.Nodes)
	assert.Equal(t, graph.FailureNoDeclaration, an.Result.Metadata.Failure)
	assert.False(t, an.Validation.Valid)
	assert.Equal(t, 0, fake.calls)
	assert.NotNil(t, an.Adapter)
}

func TestAnalyzeAIFallback(t *testing.T) {
	pie := "pie\n\"Dogs\" : 386\n\"Cats\" : 85"

	t.Run("opted out", func(t *testing.T) {
		fake := &fakeAI{}
		an := newAnalyzer(fake).Analyze(context.Background(), pie, Options{})
		assert.False(t, an.Result.Success)
		assert.Equal(t, graph.FailureParse, an.Result.Metadata.Failure)
		assert.Equal(t, 0, fake.calls)
	})

	t.Run("no client", func(t *testing.T) {
		an := newAnalyzer(nil).Analyze(context.Background(), pie, Options{AllowAI: true})
		assert.False(t, an.Result.Success)
	})

	t.Run("recovered", func(t *testing.T) {
		fake := &fakeAI{parsed: &ai.ParsedDiagram{
			Nodes: []ai.ParsedNode{{ID: "Dogs"}, {ID: "Cats"}},
		}}
		an := newAnalyzer(fake).Analyze(context.Background(), pie, Options{AllowAI: true})

		require.True(t, an.Result.Success)
		assert.Equal(t, 1, fake.calls)
		assert.Equal(t, "pie", fake.lastType)
		assert.Equal(t, ai.Parser, an.Result.Metadata.Parser)
		assert.Len(t, an.Result.Nodes, 2)
	})

	t.Run("ai error", func(t *testing.T) {
		fake := &fakeAI{err: errors.New("timeout")}
		an := newAnalyzer(fake).Analyze(context.Background(), pie, Options{AllowAI: true})

		assert.False(t, an.Result.Success)
		assert.Empty(t, an.Result.Nodes)
		assert.Contains(t, an.Result.Metadata.Warnings, "ai-assisted parse failed: timeout")
	})

	t.Run("ai empty", func(t *testing.T) {
		fake := &fakeAI{parsed: &ai.ParsedDiagram{}}
		an := newAnalyzer(fake).Analyze(context.Background(), pie, Options{AllowAI: true})

		assert.False(t, an.Result.Success)
		assert.Contains(t, an.Result.Metadata.Warnings, "ai-assisted parse extracted no nodes")
	})
}
