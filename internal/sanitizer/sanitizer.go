// Package sanitizer extracts a diagram block from untrusted, possibly
// prose-contaminated text.
package sanitizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// ErrNoDiagramDeclaration 文本中没有任何图类型关键字
var ErrNoDiagramDeclaration = errors.New("no-diagram-declaration")

// Keywords declared diagram types, in lookup priority order.
var Keywords = []string{
	"erDiagram",
	"sequenceDiagram",
	"flowchart",
	"graph",
	"stateDiagram-v2",
	"stateDiagram",
	"classDiagram",
	"architecture-beta",
	"architecture",
	"gantt",
	"journey",
	"mindmap",
	"timeline",
	"gitGraph",
	"pie",
}

// Result 清洗结果
type Result struct {
	Text             string   `json:"text"`
	RemovedLineCount int      `json:"removedLineCount"`
	DiagramType      string   `json:"diagramType,omitempty"`
	Diagnostics      []string `json:"diagnostics,omitempty"`
}

var (
	fenceRe    = regexp.MustCompile("^\\s*(```|~~~)")
	numberedRe = regexp.MustCompile(`^\s*\d+[.)]\s+\S`)
	headingRe  = regexp.MustCompile(`^\s*#{1,6}\s`)
	pathRe     = regexp.MustCompile(`(^|[\s"'(])/(home|Users|usr|etc|var|tmp|opt|root|mnt|private|srv|bin)/[\w./-]*|(^|[\s"'(])[A-Za-z]:\\[\w.\\-]+`)
	tagRe      = regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9-]*(\s[^<>]*)?/?>`)
	brTagRe    = regexp.MustCompile(`(?i)^<br\s*/?>$`)
)

// discourse markers that open an explanatory sentence
var proseMarkers = []string{
	"here is", "here's", "here are",
	"this ", "this:", "these ",
	"based on", "note:", "notes:", "note that",
	"i've", "i have", "i'll", "i will",
	"below is", "above is", "the above", "the diagram",
	"explanation:", "in this diagram", "let me", "sure,", "sure!",
	"feel free", "hope this",
}

// Clean strips prose, markdown fences and structural noise from raw diagram
// text. When no diagram keyword is found the best-effort text is returned
// together with ErrNoDiagramDeclaration; callers must not parse it.
func Clean(raw string) (Result, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	res := Result{}

	start, keyword := findDeclaration(lines)
	inFence := false
	if start >= 0 {
		// 关键字之前的内容全部丢弃
		for _, l := range lines[:start] {
			if fenceRe.MatchString(l) {
				inFence = !inFence
			}
			if strings.TrimSpace(l) != "" {
				res.RemovedLineCount++
			}
		}
		if start > 0 {
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("discarded %d line(s) before %q", start, keyword))
		}
		lines = lines[start:]
		res.DiagramType = keyword
	}

	var kept []string
	bodyStarted := start >= 0
	for i, line := range lines {
		if fenceRe.MatchString(line) {
			res.RemovedLineCount++
			if inFence {
				// the fence that opened before the keyword closes the diagram
				rest := countNonBlank(lines[i+1:])
				if rest > 0 {
					res.RemovedLineCount += rest
					res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("discarded %d line(s) after closing fence", rest))
				}
				break
			}
			continue
		}

		cleaned, drop, reason := filterLine(line, bodyStarted && i > 0)
		if drop {
			res.RemovedLineCount++
			res.Diagnostics = append(res.Diagnostics, reason)
			continue
		}
		kept = append(kept, cleaned)
	}

	res.Text = strings.Trim(strings.Join(collapseBlankRuns(kept), "\n"), "\n")
	if start < 0 {
		res.Diagnostics = append(res.Diagnostics, missingDeclarationHint(res.Text))
		return res, ErrNoDiagramDeclaration
	}
	return res, nil
}

// filterLine strips markup and then applies the prose heuristics to what
// remains, so a line left behind by a first pass is judged the same way on
// the next.
func filterLine(line string, inBody bool) (string, bool, string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false, ""
	}
	line = stripTags(line)
	if strings.TrimSpace(line) == "" || fenceRe.MatchString(line) {
		return "", true, fmt.Sprintf("removed markup line %q", abbreviate(trimmed))
	}

	lower := strings.ToLower(strings.TrimSpace(line))
	for _, m := range proseMarkers {
		if strings.HasPrefix(lower, m) {
			return "", true, fmt.Sprintf("removed prose line %q", abbreviate(trimmed))
		}
	}
	if inBody && numberedRe.MatchString(line) {
		return "", true, fmt.Sprintf("removed list line %q", abbreviate(trimmed))
	}
	if headingRe.MatchString(line) {
		return "", true, fmt.Sprintf("removed heading %q", abbreviate(trimmed))
	}
	if pathRe.MatchString(line) {
		return "", true, fmt.Sprintf("removed file path line %q", abbreviate(trimmed))
	}
	return strings.TrimRight(line, " \t"), false, ""
}

// stripTags removes HTML-like tags except <br>, repeating until nested
// fragments such as "<<b>x>" are gone.
func stripTags(line string) string {
	for tagRe.MatchString(line) {
		next := tagRe.ReplaceAllStringFunc(line, func(tag string) string {
			if brTagRe.MatchString(tag) {
				return tag
			}
			return ""
		})
		if next == line {
			break
		}
		line = next
	}
	return line
}

// collapseBlankRuns reduces runs of three or more blank lines to one.
func collapseBlankRuns(lines []string) []string {
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); {
		if strings.TrimSpace(lines[i]) != "" {
			out = append(out, lines[i])
			i++
			continue
		}
		j := i
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		run := j - i
		if run >= 3 {
			run = 1
		}
		for k := 0; k < run; k++ {
			out = append(out, "")
		}
		i = j
	}
	return out
}

// Detect 返回文本中第一个图类型关键字
func Detect(text string) (string, bool) {
	i, kw := findDeclaration(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
	return kw, i >= 0
}

// findDeclaration returns the index of the first line that opens with a
// declared keyword. Among keywords sharing a prefix the longest match wins.
func findDeclaration(lines []string) (int, string) {
	for i, line := range lines {
		trimmed := strings.TrimSpace(stripTags(line))
		best := ""
		for _, kw := range Keywords {
			if !strings.HasPrefix(trimmed, kw) {
				continue
			}
			rest := trimmed[len(kw):]
			if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != ';' {
				continue
			}
			if len(kw) > len(best) {
				best = kw
			}
		}
		if best != "" {
			return i, best
		}
	}
	return -1, ""
}

// missingDeclarationHint suggests the nearest keyword when the text starts
// with a misspelled declaration.
func missingDeclarationHint(text string) string {
	first := ""
	for _, l := range strings.Split(text, "\n") {
		if f := strings.Fields(l); len(f) > 0 {
			first = f[0]
			break
		}
	}
	if first != "" {
		for _, kw := range Keywords {
			d := levenshtein.DistanceForStrings([]rune(strings.ToLower(first)), []rune(strings.ToLower(kw)), levenshtein.DefaultOptions)
			if d > 0 && d <= 2 {
				return fmt.Sprintf("no diagram keyword found; did you mean %q instead of %q?", kw, first)
			}
		}
	}
	return "no diagram keyword found"
}

func countNonBlank(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

func abbreviate(s string) string {
	const max = 40
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
