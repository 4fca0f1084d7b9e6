// Package analyzer runs the two-path parse: sanitize, rule-based adapter
// parse, and an opt-in AI-assisted parse when the rules extract nothing.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/ai"
	"diagram-sync/internal/graph"
	"diagram-sync/internal/sanitizer"

	"github.com/rs/zerolog"
)

// Options 单次分析选项
type Options struct {
	// DiagramType 文档声明的类型；文本自身的声明优先
	DiagramType string
	// AllowAI 规则解析零节点时是否调用 AI
	AllowAI bool
}

// Analysis 一次分析的全部产物
type Analysis struct {
	Clean      sanitizer.Result
	Adapter    adapter.Adapter
	Result     graph.ParseResult
	Validation graph.ValidationResult
}

// Diagnostics merges sanitizer diagnostics with parser warnings.
func (a *Analysis) Diagnostics() []string {
	out := make([]string, 0, len(a.Clean.Diagnostics)+len(a.Result.Metadata.Warnings))
	out = append(out, a.Clean.Diagnostics...)
	out = append(out, a.Result.Metadata.Warnings...)
	return out
}

// HybridAnalyzer 混合分析器（规则 + AI）
type HybridAnalyzer struct {
	registry *adapter.Registry
	aiClient ai.Client
	spacing  float64
	log      zerolog.Logger
}

// NewHybridAnalyzer 创建混合分析器，aiClient 可以为 nil
func NewHybridAnalyzer(registry *adapter.Registry, aiClient ai.Client, spacing float64, log zerolog.Logger) *HybridAnalyzer {
	return &HybridAnalyzer{
		registry: registry,
		aiClient: aiClient,
		spacing:  spacing,
		log:      log,
	}
}

// Registry 使用的适配器注册表
func (h *HybridAnalyzer) Registry() *adapter.Registry {
	return h.registry
}

// Analyze never returns a nil analysis; failures are reported through
// Result.Success and Result.Metadata.Failure.
func (h *HybridAnalyzer) Analyze(ctx context.Context, raw string, opts Options) *Analysis {
	clean, err := sanitizer.Clean(raw)
	diagramType := clean.DiagramType
	if diagramType == "" {
		diagramType = opts.DiagramType
	}
	an := &Analysis{Clean: clean, Adapter: h.registry.Resolve(diagramType)}

	if errors.Is(err, sanitizer.ErrNoDiagramDeclaration) {
		an.Result = graph.Failed("sanitizer", graph.FailureNoDeclaration)
		an.Validation = graph.NewValidation([]string{err.Error()})
		h.log.Debug().Int("removed", clean.RemovedLineCount).Msg("no diagram declaration")
		return an
	}

	an.Validation = an.Adapter.Validate(clean.Text)
	an.Result = an.Adapter.Parse(clean.Text)
	h.log.Debug().
		Str("type", an.Adapter.Type()).
		Bool("success", an.Result.Success).
		Int("nodes", len(an.Result.Nodes)).
		Int("edges", len(an.Result.Edges)).
		Msg("rule-based parse")

	if an.Result.Success || !opts.AllowAI || h.aiClient == nil {
		return an
	}

	parsed, err := h.aiClient.ParseDiagram(ctx, clean.Text, an.Adapter.Type())
	if err != nil {
		h.log.Warn().Err(err).Str("type", an.Adapter.Type()).Msg("ai-assisted parse failed")
		an.Result.Metadata.Warnings = append(an.Result.Metadata.Warnings, fmt.Sprintf("ai-assisted parse failed: %v", err))
		return an
	}
	res := parsed.Normalize(an.Adapter, h.spacing)
	if !res.Success {
		an.Result.Metadata.Warnings = append(an.Result.Metadata.Warnings, "ai-assisted parse extracted no nodes")
		return an
	}
	h.log.Info().Str("type", an.Adapter.Type()).Int("nodes", len(res.Nodes)).Msg("ai-assisted parse recovered diagram")
	an.Result = res
	return an
}
