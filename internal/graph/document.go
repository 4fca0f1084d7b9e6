package graph

// FailureKind 失败类别
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureNoDeclaration FailureKind = "no-diagram-declaration"
	FailureParse         FailureKind = "parse-failure"
)

// Message returns the user-facing message for the failure class.
func (k FailureKind) Message() string {
	switch k {
	case FailureNoDeclaration:
		return "No diagram declaration was found in the text. Try regenerating the diagram."
	case FailureParse:
		return "The diagram text could not be understood. Edit the text or try AI-assisted parsing."
	default:
		return ""
	}
}

// Document 一个图实例
type Document struct {
	DiagramType      string   `json:"diagramType"`
	RawText          string   `json:"rawText"`
	Nodes            []Node   `json:"nodes"`
	Edges            []Edge   `json:"edges"`
	ParseDiagnostics []string `json:"parseDiagnostics,omitempty"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	c := d
	c.Nodes = CloneNodes(d.Nodes)
	c.Edges = CloneEdges(d.Edges)
	c.ParseDiagnostics = append([]string(nil), d.ParseDiagnostics...)
	return c
}

// Metadata 解析元信息
type Metadata struct {
	Parser      string      `json:"parser"`
	DiagramType string      `json:"diagramType,omitempty"`
	Direction   string      `json:"direction,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
	NodeCount   int         `json:"nodeCount"`
	EdgeCount   int         `json:"edgeCount"`
	Failure     FailureKind `json:"failure,omitempty"`
}

// ParseResult 文本解析结果
type ParseResult struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Metadata Metadata `json:"metadata"`
	Success  bool     `json:"success"`
}

// Failed builds an unsuccessful result. It never carries nodes.
func Failed(parser string, kind FailureKind, warnings ...string) ParseResult {
	return ParseResult{
		Nodes: []Node{},
		Edges: []Edge{},
		Metadata: Metadata{
			Parser:   parser,
			Warnings: warnings,
			Failure:  kind,
		},
	}
}

// Succeeded builds a result from extracted nodes and edges. An empty node
// set is reported as a parse failure.
func Succeeded(parser string, nodes []Node, edges []Edge, warnings []string) ParseResult {
	if len(nodes) == 0 {
		return Failed(parser, FailureParse, append(warnings, "no nodes extracted")...)
	}
	if edges == nil {
		edges = []Edge{}
	}
	return ParseResult{
		Nodes: nodes,
		Edges: edges,
		Metadata: Metadata{
			Parser:    parser,
			Warnings:  warnings,
			NodeCount: len(nodes),
			EdgeCount: len(edges),
		},
		Success: true,
	}
}

// ValidationResult 结构校验结果
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// NewValidation 根据错误列表构建校验结果
func NewValidation(errs []string) ValidationResult {
	if errs == nil {
		errs = []string{}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
