package adapter

import (
	"sort"
	"strings"
	"sync"

	"diagram-sync/internal/layout"
	"diagram-sync/internal/sanitizer"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// maxTypoDistance 图类型名容忍的编辑距离
const maxTypoDistance = 2

var typoOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Registry 图类型 -> 适配器
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter // normalized type -> adapter
	spacing  float64
}

// NewRegistry 创建空注册表
func NewRegistry(spacing float64) *Registry {
	if spacing <= 0 {
		spacing = layout.DefaultSpacing
	}
	return &Registry{adapters: make(map[string]Adapter), spacing: spacing}
}

// DefaultRegistry registers the ER, sequence, flow and architecture adapters.
// Every other type resolves to a generic adapter.
func DefaultRegistry(spacing float64) *Registry {
	r := NewRegistry(spacing)
	r.Register(NewERAdapter(r.spacing))
	r.Register(NewSequenceAdapter(r.spacing))
	r.Register(NewFlowAdapter(r.spacing), "graph")
	r.Register(NewArchitectureAdapter(r.spacing), "architecture")
	return r
}

// Register 注册适配器，aliases 为额外的类型名
func (r *Registry) Register(a Adapter, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[normalizeType(a.Type())] = a
	for _, alias := range aliases {
		r.adapters[normalizeType(alias)] = a
	}
}

// Lookup 精确查找（忽略大小写和分隔符）
func (r *Registry) Lookup(diagramType string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[normalizeType(diagramType)]
	return a, ok
}

// Resolve returns the adapter for diagramType. Misspelled names within a
// small edit distance resolve to the nearest registered type; anything else
// gets a generic adapter bound to the nearest declared keyword or to the
// name itself.
func (r *Registry) Resolve(diagramType string) Adapter {
	if a, ok := r.Lookup(diagramType); ok {
		return a
	}
	norm := normalizeType(diagramType)

	r.mu.RLock()
	best, bestDist := Adapter(nil), maxTypoDistance+1
	for name, a := range r.adapters {
		if d := typoDistance(norm, name); d < bestDist {
			best, bestDist = a, d
		}
	}
	r.mu.RUnlock()
	if best != nil && norm != "" {
		return best
	}

	keyword, bestDist := strings.TrimSpace(diagramType), maxTypoDistance+1
	for _, kw := range sanitizer.Keywords {
		if d := typoDistance(norm, normalizeType(kw)); d < bestDist {
			keyword, bestDist = kw, d
		}
	}
	return NewGenericAdapter(keyword, r.spacing)
}

// Types 已注册的类型名
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, a := range r.adapters {
		if !seen[a.Type()] {
			seen[a.Type()] = true
			out = append(out, a.Type())
		}
	}
	sort.Strings(out)
	return out
}

func typoDistance(a, b string) int {
	if a == "" || b == "" {
		return maxTypoDistance + 1
	}
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), typoOptions)
}

func normalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}
