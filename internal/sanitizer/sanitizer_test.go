package sanitizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanStripsProseAndFences(t *testing.T) {
	raw := "Here is the diagram:\n```mermaid\nerDiagram\nUSER{int id PK}\n```"

	res, err := Clean(raw)

	require.NoError(t, err)
	assert.Equal(t, "erDiagram\nUSER{int id PK}", res.Text)
	assert.Equal(t, "erDiagram", res.DiagramType)
	assert.Equal(t, 3, res.RemovedLineCount)
}

func TestCleanDropsTrailingExplanationAfterFence(t *testing.T) {
	raw := "```\nsequenceDiagram\nA->>B: Hello\n```\n\nThis shows a greeting.\nMore words here."

	res, err := Clean(raw)

	require.NoError(t, err)
	assert.Equal(t, "sequenceDiagram\nA->>B: Hello", res.Text)
	assert.Equal(t, 4, res.RemovedLineCount)
}

func TestCleanLineHeuristics(t *testing.T) {
	raw := "flowchart TD\n" +
		"A[Start] --> B[End]\n" +
		"1. The start node begins the flow\n" +
		"Note: generated automatically\n" +
		"saved to /home/user/diagram.mmd\n" +
		"<answer>\n" +
		"B --> C[<b>Done</b>]\n" +
		"C --> D[line<br/>break]\n" +
		"I've added a final step."

	res, err := Clean(raw)

	require.NoError(t, err)
	assert.Equal(t, "flowchart TD\nA[Start] --> B[End]\nB --> C[Done]\nC --> D[line<br/>break]", res.Text)
	assert.Equal(t, 5, res.RemovedLineCount)
	assert.NotEmpty(t, res.Diagnostics)
}

func TestCleanKeepsHTTPPaths(t *testing.T) {
	raw := "sequenceDiagram\nClient->>API: GET /api/users/42"

	res, err := Clean(raw)

	require.NoError(t, err)
	assert.Equal(t, raw, res.Text)
	assert.Zero(t, res.RemovedLineCount)
}

func TestCleanCollapsesBlankRuns(t *testing.T) {
	raw := "erDiagram\nA {\nint id\n}\n\n\n\n\nB {\nint id\n}\n\nC {\nint id\n}"

	res, err := Clean(raw)

	require.NoError(t, err)
	assert.Equal(t, "erDiagram\nA {\nint id\n}\n\nB {\nint id\n}\n\nC {\nint id\n}", res.Text)
}

func TestCleanWithoutDeclaration(t *testing.T) {
	for _, raw := range []string{"", "random prose with no diagram keyword", "sequnceDiagram\nA->>B: hi"} {
		t.Run(raw, func(t *testing.T) {
			res, err := Clean(raw)

			assert.ErrorIs(t, err, ErrNoDiagramDeclaration)
			assert.Empty(t, res.DiagramType)
			assert.NotEmpty(t, res.Diagnostics)
		})
	}
}

func TestCleanSuggestsNearKeyword(t *testing.T) {
	res, err := Clean("sequnceDiagram\nA->>B: hi")

	assert.ErrorIs(t, err, ErrNoDiagramDeclaration)
	assert.Contains(t, res.Diagnostics[len(res.Diagnostics)-1], `"sequenceDiagram"`)
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"Here is the diagram:\n```mermaid\nerDiagram\nUSER{int id PK}\n```",
		"```\nsequenceDiagram\nA->>B: Hello\n```\nThis shows a greeting.",
		"Based on your request:\n\n\ngraph LR\n  A --> B\n\n\n\n  B --> C\n2. second point\n<x>",
		"just words\n\n\n\nmore words",
		"",
		"stateDiagram-v2\n[*] --> Idle\n   \nIdle --> Busy",
		"erDiagram\nUSER{int id PK}\n<p>Note: the USER table is the root.</p>",
		"graph TD\nA --> B\n<<b>x>\n<i>1. first</i>\n<b>## Heading</b>",
		"prose\n<b>graph</b> TD\nA --> B<br/>C",
	}

	for _, in := range inputs {
		first, _ := Clean(in)
		second, _ := Clean(first.Text)
		assert.Equal(t, first.Text, second.Text, "input %q", in)
		assert.Equal(t, first.DiagramType, second.DiagramType)
	}
}

func TestCleanStripsTagsBeforeProseChecks(t *testing.T) {
	res, err := Clean("erDiagram\nUSER{int id PK}\n<p>Note: the USER table is the root.</p>\n<b>ORDER</b>{int id PK}")

	assert.NoError(t, err)
	assert.Equal(t, "erDiagram\nUSER{int id PK}\nORDER{int id PK}", res.Text)
	assert.Equal(t, 1, res.RemovedLineCount)

	res, err = Clean("graph TD\nA --> B\n<<b>x>")
	assert.NoError(t, err)
	assert.Equal(t, "graph TD\nA --> B", res.Text)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		text     string
		expected string
		found    bool
	}{
		{"erDiagram\nA {}", "erDiagram", true},
		{"prose\n  graph TD\nA-->B", "graph", true},
		{"stateDiagram-v2\n[*] --> A", "stateDiagram-v2", true},
		{"graphics are nice", "", false},
		{"flowchart LR", "flowchart", true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			kw, ok := Detect(tt.text)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, kw)
		})
	}
}
