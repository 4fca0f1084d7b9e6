package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"diagram-sync/internal/graph"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// MinConfidence 建议关系的最低置信度
const MinConfidence = 0.5

// Evidence 一条推断证据
type Evidence struct {
	Type        string  `json:"type"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// Suggestion 推断出的、文本中尚未声明的关系
type Suggestion struct {
	Edge       graph.Edge `json:"edge"`
	Field      string     `json:"field"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
}

// RelationshipInferer 根据外键字段命名推断实体间关系
type RelationshipInferer struct{}

// NewRelationshipInferer 创建推断器
func NewRelationshipInferer() *RelationshipInferer {
	return &RelationshipInferer{}
}

// Infer compares every non-PK field with the primary keys of the other
// entities and suggests a one-to-many relationship for each good match that
// the diagram does not already connect.
func (r *RelationshipInferer) Infer(nodes []graph.Node, edges []graph.Edge) []Suggestion {
	connected := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		connected[[2]string{e.Source, e.Target}] = true
		connected[[2]string{e.Target, e.Source}] = true
	}

	var out []Suggestion
	for _, from := range nodes {
		for _, field := range from.Data.Properties {
			if field.HasKey("PK") && !field.HasKey("FK") {
				continue
			}
			var best *Suggestion
			for _, to := range nodes {
				if to.ID == from.ID || connected[[2]string{from.ID, to.ID}] {
					continue
				}
				for _, pk := range to.Data.Properties {
					if !pk.HasKey("PK") {
						continue
					}
					s := r.calculateRelationship(from, field, to, pk)
					if s != nil && (best == nil || s.Confidence > best.Confidence) {
						best = s
					}
				}
			}
			if best != nil {
				connected[[2]string{best.Edge.Source, best.Edge.Target}] = true
				connected[[2]string{best.Edge.Target, best.Edge.Source}] = true
				out = append(out, *best)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	for i := range out {
		out[i].Edge.ID = fmt.Sprintf("inferred-%d", i+1)
	}
	return out
}

// calculateRelationship 计算字段与目标主键之间的关系
func (r *RelationshipInferer) calculateRelationship(from graph.Node, field graph.Property, to graph.Node, pk graph.Property) *Suggestion {
	var evidences []Evidence
	total := 0.0

	// 1. 命名相似度 (权重 0.6)：字段名对比 "实体名+主键名"
	nameScore := 0.0
	for _, candidate := range []string{to.ID + pk.Name, to.Label + pk.Name, to.ID + "id", to.Label + "id"} {
		if s := r.calculateNameSimilarity(field.Name, candidate); s > nameScore {
			nameScore = s
		}
	}
	if nameScore == 0 {
		return nil
	}
	evidences = append(evidences, Evidence{
		Type:        "naming_similarity",
		Score:       nameScore,
		Description: fmt.Sprintf("%s ~ %s.%s (%.2f)", field.Name, to.ID, pk.Name, nameScore),
	})
	total += nameScore * 0.6

	// 2. 类型兼容 (权重 0.3)
	if r.isTypeCompatible(field.Type, pk.Type) {
		evidences = append(evidences, Evidence{
			Type:        "type_match",
			Score:       1,
			Description: fmt.Sprintf("%s ~ %s", field.Type, pk.Type),
		})
		total += 0.3
	}

	// 3. 显式 FK 标记 (权重 0.1)
	if field.HasKey("FK") {
		evidences = append(evidences, Evidence{Type: "fk_marker", Score: 1, Description: field.Name + " is marked FK"})
		total += 0.1
	}

	if total < MinConfidence {
		return nil
	}

	return &Suggestion{
		Edge: graph.Edge{
			Source: to.ID,
			Target: from.ID,
			Label:  field.Name,
			Type:   graph.RoleRelationship,
			Data:   graph.EdgeData{Cardinality: "||--o{"},
		},
		Field:      from.ID + "." + field.Name,
		Confidence: math.Round(total*100) / 100,
		Evidence:   evidences,
	}
}

// calculateNameSimilarity 计算命名相似度，忽略大小写和分隔符
func (r *RelationshipInferer) calculateNameSimilarity(name1, name2 string) float64 {
	n1 := normalizeName(name1)
	n2 := normalizeName(name2)
	if n1 == "" || n2 == "" {
		return 0
	}

	// 完全匹配
	if n1 == n2 {
		return 1.0
	}

	// 包含关系
	if strings.HasSuffix(n1, n2) || strings.HasSuffix(n2, n1) {
		return 0.8
	}

	// Levenshtein 距离
	maxLen := math.Max(float64(len(n1)), float64(len(n2)))
	distance := levenshtein.DistanceForStrings([]rune(n1), []rune(n2), levenshtein.DefaultOptions)
	similarity := 1.0 - float64(distance)/maxLen
	if similarity > 0.7 {
		return similarity
	}
	return 0
}

// isTypeCompatible 判断类型是否兼容
func (r *RelationshipInferer) isTypeCompatible(type1, type2 string) bool {
	t1 := strings.ToLower(type1)
	t2 := strings.ToLower(type2)
	if t1 == t2 {
		return true
	}

	// 字符串类型组
	stringTypes := map[string]bool{
		"varchar": true, "nvarchar": true, "char": true, "nchar": true, "text": true, "string": true, "uuid": true,
	}
	if stringTypes[t1] && stringTypes[t2] {
		return true
	}

	// 整数类型组
	intTypes := map[string]bool{
		"int": true, "integer": true, "bigint": true, "smallint": true, "tinyint": true, "long": true,
	}
	return intTypes[t1] && intTypes[t2]
}

func normalizeName(s string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
}
