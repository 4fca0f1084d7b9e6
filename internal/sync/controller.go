// Package diagramsync keeps a diagram's text and graph consistent under
// rapid, overlapping edits from both sides.
package diagramsync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/ai"
	"diagram-sync/internal/analyzer"
	"diagram-sync/internal/graph"
	"diagram-sync/internal/layout"
	"diagram-sync/internal/store"

	"github.com/rs/zerolog"
)

var (
	// ErrStale 结果返回时文档已被编辑或切换，结果被丢弃
	ErrStale       = errors.New("stale result discarded")
	ErrNoPersister = errors.New("no persistence configured")
	ErrNoAI        = errors.New("ai assistance is not configured")
	ErrNoDocument  = errors.New("no document loaded")
	ErrClosed      = errors.New("controller closed")
)

// DefaultDebounce 默认防抖间隔
const DefaultDebounce = 300 * time.Millisecond

// State 控制器状态
type State string

const (
	StateIdle                  State = "idle"
	StateSyncingTextToGraph    State = "syncing-text-to-graph"
	StateGeneratingGraphToText State = "generating-graph-to-text"
	StateError                 State = "error"
)

type pendingOp int

const (
	pendingNone pendingOp = iota
	pendingText
	pendingGraph
)

// Persister 持久化协作者，store.Store 满足该接口
type Persister interface {
	SaveVersion(ctx context.Context, a store.Artifact) (*store.Version, error)
}

// Snapshot 控制器状态的深拷贝
type Snapshot struct {
	DocumentID  string            `json:"documentId"`
	DiagramType string            `json:"diagramType"`
	Text        string            `json:"text"`
	Nodes       []graph.Node      `json:"nodes"`
	Edges       []graph.Edge      `json:"edges"`
	State       State             `json:"state"`
	Failure     graph.FailureKind `json:"failure,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
	Generation  uint64            `json:"generation"`
	Seq         uint64            `json:"seq"` // increases with every published snapshot
}

// Document 快照对应的文档
func (s Snapshot) Document() graph.Document {
	return graph.Document{
		DiagramType:      s.DiagramType,
		RawText:          s.Text,
		Nodes:            graph.CloneNodes(s.Nodes),
		Edges:            graph.CloneEdges(s.Edges),
		ParseDiagnostics: append([]string(nil), s.Diagnostics...),
	}
}

// SaveOutcome 异步保存结果
type SaveOutcome struct {
	Version *store.Version
	Content string
	Err     error
}

// Listener 每次状态转换完成后收到快照，按 Seq 递增顺序调用。
// Listener 内不得同步调用会发布快照的控制器方法。
type Listener func(Snapshot)

// Options 控制器依赖
type Options struct {
	Analyzer  *analyzer.HybridAnalyzer
	AI        ai.Client
	Persister Persister
	Debounce  time.Duration
	Spacing   float64
	Logger    zerolog.Logger
}

// Controller is the editor-side state machine. Edits update the live state
// immediately; a single debounced task per controller then derives the other
// side from whatever the live state is when the task runs.
type Controller struct {
	analyzer  *analyzer.HybridAnalyzer
	ai        ai.Client
	persister Persister
	debounce  time.Duration
	spacing   float64
	log       zerolog.Logger

	mu          sync.Mutex
	docID       string
	epoch       uint64 // bumped on every document switch
	generation  uint64 // bumped on every edit
	adapter     adapter.Adapter
	diagramType string
	direction   string
	text        string
	nodes       []graph.Node
	edges       []graph.Edge
	state       State
	failure     graph.FailureKind
	reason      string
	diagnostics []string

	timer     *time.Timer
	pending   pendingOp
	listeners map[int]Listener
	nextID    int
	closed    bool
	seq       uint64

	notifyMu  sync.Mutex // serializes listener calls
	delivered uint64     // seq of the newest snapshot handed to listeners
}

// New 创建控制器
func New(opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Spacing <= 0 {
		opts.Spacing = layout.DefaultSpacing
	}
	if opts.Analyzer == nil {
		opts.Analyzer = analyzer.NewHybridAnalyzer(adapter.DefaultRegistry(opts.Spacing), opts.AI, opts.Spacing, opts.Logger)
	}
	return &Controller{
		analyzer:  opts.Analyzer,
		ai:        opts.AI,
		persister: opts.Persister,
		debounce:  opts.Debounce,
		spacing:   opts.Spacing,
		log:       opts.Logger,
		state:     StateIdle,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l and returns a function removing it.
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Snapshot 当前状态
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		DocumentID:  c.docID,
		DiagramType: c.diagramType,
		Text:        c.text,
		Nodes:       graph.CloneNodes(c.nodes),
		Edges:       graph.CloneEdges(c.edges),
		State:       c.state,
		Failure:     c.failure,
		Reason:      c.reason,
		Diagnostics: append([]string(nil), c.diagnostics...),
		Generation:  c.generation,
		Seq:         c.seq,
	}
	if s.Nodes == nil {
		s.Nodes = []graph.Node{}
	}
	if s.Edges == nil {
		s.Edges = []graph.Edge{}
	}
	return s
}

// SwitchDocument replaces the current document. Pending work and in-flight
// AI calls for the previous document are discarded. The initial parse runs
// synchronously.
func (c *Controller) SwitchDocument(ctx context.Context, docID, diagramType, rawText string) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	c.cancelPendingLocked()
	c.epoch++
	c.generation++
	c.docID = docID
	c.diagramType = diagramType
	c.adapter = c.analyzer.Registry().Resolve(diagramType)
	c.direction = ""
	c.text = rawText
	c.nodes, c.edges = nil, nil
	c.diagnostics = nil
	c.state = StateSyncingTextToGraph
	epoch, gen := c.epoch, c.generation
	c.mu.Unlock()

	an := c.analyzer.Analyze(ctx, rawText, analyzer.Options{DiagramType: diagramType})

	c.mu.Lock()
	if epoch != c.epoch || gen != c.generation {
		c.mu.Unlock()
		return c.Snapshot(), ErrStale
	}
	if an.Clean.DiagramType != "" {
		c.text = an.Clean.Text
	}
	if c.diagramType == "" || an.Result.Success {
		c.diagramType = an.Adapter.Type()
	}
	c.applyAnalysisLocked(an)
	c.log.Info().Str("doc", docID).Str("type", c.diagramType).Str("state", string(c.state)).Msg("document loaded")
	return c.finishLocked(), nil
}

// SetText records a text edit and schedules text->graph sync.
func (c *Controller) SetText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	c.text = text
	c.scheduleLocked(pendingText)
	return nil
}

// HandleEvent applies a graph edit and schedules graph->text generation.
// Rejected events leave the graph untouched.
func (c *Controller) HandleEvent(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	ed := &editor{nodes: c.nodes, edges: c.edges, adapter: c.adapter, spacing: c.spacing}
	if err := ed.apply(ev); err != nil {
		return err
	}
	c.nodes, c.edges = ed.nodes, ed.edges
	c.scheduleLocked(pendingGraph)
	return nil
}

// ReplaceGraph swaps in a whole graph, e.g. after a bulk canvas edit.
// Edges referencing missing nodes are rejected.
func (c *Controller) ReplaceGraph(nodes []graph.Node, edges []graph.Edge) error {
	if dangling := graph.DanglingEdges(nodes, edges); len(dangling) > 0 {
		return fmt.Errorf("%w: edge %s references a missing node", ErrUnknownNode, dangling[0].ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	c.nodes, c.edges = graph.CloneNodes(nodes), graph.CloneEdges(edges)
	for i := range c.nodes {
		c.nodes[i].Type = adapter.NodeRole(c.adapter, c.nodes[i].Type)
	}
	c.scheduleLocked(pendingGraph)
	return nil
}

func (c *Controller) editableLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.adapter == nil {
		return ErrNoDocument
	}
	return nil
}

// scheduleLocked bumps the edit generation and replaces any pending task:
// last edit wins, for the timer and for the direction.
func (c *Controller) scheduleLocked(op pendingOp) {
	c.generation++
	c.pending = op
	if c.timer != nil {
		c.timer.Stop()
	}
	gen := c.generation
	c.timer = time.AfterFunc(c.debounce, func() { c.run(gen) })
}

func (c *Controller) cancelPendingLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = pendingNone
}

// Flush runs the pending task, if any, immediately.
func (c *Controller) Flush() {
	c.mu.Lock()
	if c.pending == pendingNone {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	gen := c.generation
	c.mu.Unlock()
	c.run(gen)
}

// flushGraphLocked runs a waiting graph->text task so c.text reflects the
// latest graph. c.mu is held on entry and on return.
func (c *Controller) flushGraphLocked() {
	for c.pending == pendingGraph && !c.closed {
		c.mu.Unlock()
		c.Flush()
		c.mu.Lock()
	}
}

// Pending reports whether a debounced task is waiting to run.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != pendingNone
}

// run executes the debounced task scheduled for generation gen. It reads the
// live state when it starts and drops its result if another edit landed
// while it worked.
func (c *Controller) run(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation || c.pending == pendingNone {
		c.mu.Unlock()
		return
	}
	op := c.pending
	c.pending = pendingNone
	c.timer = nil
	epoch := c.epoch

	switch op {
	case pendingText:
		c.state = StateSyncingTextToGraph
		text, diagramType := c.text, c.diagramType
		c.mu.Unlock()

		an := c.analyzer.Analyze(context.Background(), text, analyzer.Options{DiagramType: diagramType})

		c.mu.Lock()
		if c.staleLocked(gen, epoch) {
			c.mu.Unlock()
			return
		}
		if an.Result.Success {
			c.diagramType = an.Adapter.Type()
		}
		c.applyAnalysisLocked(an)

	case pendingGraph:
		c.state = StateGeneratingGraphToText
		nodes, edges := graph.CloneNodes(c.nodes), graph.CloneEdges(c.edges)
		a, direction := c.adapter, c.direction
		c.mu.Unlock()

		text := a.Generate(nodes, edges, adapter.GenerateOptions{Direction: direction})

		c.mu.Lock()
		if c.staleLocked(gen, epoch) {
			c.mu.Unlock()
			return
		}
		if text != c.text {
			// AI calls started against the old text are now stale
			c.generation++
		}
		c.text = text
		c.state = StateIdle
		c.failure, c.reason = graph.FailureNone, ""
		c.diagnostics = nil
		c.log.Debug().Str("doc", c.docID).Int("nodes", len(nodes)).Int("edges", len(edges)).Msg("graph -> text")
	}
	c.finishLocked()
}

func (c *Controller) staleLocked(gen, epoch uint64) bool {
	if gen == c.generation && epoch == c.epoch && !c.closed {
		return false
	}
	c.log.Debug().Uint64("gen", gen).Uint64("latest", c.generation).Msg("discarding stale sync result")
	return true
}

// applyAnalysisLocked installs a parse outcome. Failures keep the last good
// graph so the canvas does not go blank while the user is mid-edit.
func (c *Controller) applyAnalysisLocked(an *analyzer.Analysis) {
	c.diagnostics = an.Diagnostics()
	if !an.Result.Success {
		c.failure = an.Result.Metadata.Failure
		if c.failure == graph.FailureNone {
			c.failure = graph.FailureParse
		}
		c.state = StateError
		c.reason = c.failure.Message()
		c.log.Warn().Str("doc", c.docID).Str("failure", string(c.failure)).Msg("text -> graph failed")
		return
	}
	c.nodes = preservePositions(c.nodes, an.Result.Nodes)
	c.edges = an.Result.Edges
	c.adapter = an.Adapter
	c.direction = an.Result.Metadata.Direction
	c.state = StateIdle
	c.failure, c.reason = graph.FailureNone, ""
	c.log.Debug().Str("doc", c.docID).Int("nodes", len(c.nodes)).Int("edges", len(c.edges)).Msg("text -> graph")
}

// finishLocked publishes a new snapshot, unlocks c and notifies listeners.
// Listeners are called one at a time in seq order; a snapshot overtaken by a
// newer one on another goroutine is not delivered.
func (c *Controller) finishLocked() Snapshot {
	c.seq++
	snap := c.snapshotLocked()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Seq <= c.delivered {
		return snap
	}
	c.delivered = snap.Seq
	for _, l := range listeners {
		l(snap)
	}
	return snap
}

// preservePositions carries canvas positions over to re-parsed nodes whose
// ids survived.
func preservePositions(old, fresh []graph.Node) []graph.Node {
	if len(old) == 0 {
		return fresh
	}
	pos := make(map[string]graph.Position, len(old))
	for _, n := range old {
		pos[n.ID] = n.Position
	}
	for i := range fresh {
		if p, ok := pos[fresh[i].ID]; ok {
			fresh[i].Position = p
		}
	}
	return fresh
}

// Save generates text from the latest graph right away and persists it in
// the background. A pending text edit is synced first so the graph is
// current. The in-memory graph is never rolled back on failure.
func (c *Controller) Save(ctx context.Context) <-chan SaveOutcome {
	out := make(chan SaveOutcome, 1)

	c.mu.Lock()
	if c.pending == pendingText {
		c.mu.Unlock()
		c.Flush()
		c.mu.Lock()
	}
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		out <- SaveOutcome{Err: err}
		close(out)
		return out
	}
	nodes, edges := graph.CloneNodes(c.nodes), graph.CloneEdges(c.edges)
	a, direction := c.adapter, c.direction
	docID, diagramType, gen := c.docID, c.diagramType, c.generation
	c.mu.Unlock()

	content := a.Generate(nodes, edges, adapter.GenerateOptions{Direction: direction})
	if c.persister == nil {
		out <- SaveOutcome{Content: content, Err: ErrNoPersister}
		close(out)
		return out
	}

	artifact := store.Artifact{
		ArtifactID: docID,
		Content:    content,
		Metadata: map[string]string{
			"diagramType": diagramType,
			"nodes":       strconv.Itoa(len(nodes)),
			"edges":       strconv.Itoa(len(edges)),
			"generation":  strconv.FormatUint(gen, 10),
		},
	}
	go func() {
		defer close(out)
		v, err := c.persister.SaveVersion(ctx, artifact)
		if err != nil {
			c.log.Warn().Err(err).Str("doc", docID).Msg("save failed")
		} else {
			c.log.Info().Str("doc", docID).Str("version", v.ID).Int("number", v.Number).Msg("saved")
		}
		out <- SaveOutcome{Version: v, Content: content, Err: err}
	}()
	return out
}

// AssistParse re-parses the current text with AI assistance allowed. A
// waiting graph edit is written to the text first. The result is discarded
// with ErrStale if the text was edited or the document switched while the
// call was in flight.
func (c *Controller) AssistParse(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	c.flushGraphLocked()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return Snapshot{}, err
	}
	gen, epoch := c.generation, c.epoch
	text, diagramType := c.text, c.diagramType
	c.mu.Unlock()

	an := c.analyzer.Analyze(ctx, text, analyzer.Options{DiagramType: diagramType, AllowAI: true})

	c.mu.Lock()
	if c.staleLocked(gen, epoch) {
		c.mu.Unlock()
		return c.Snapshot(), ErrStale
	}
	c.cancelPendingLocked()
	if an.Result.Success {
		c.diagramType = an.Adapter.Type()
	}
	c.applyAnalysisLocked(an)
	return c.finishLocked(), nil
}

// Improve asks the AI collaborator to improve the current text, after any
// waiting graph edit has been written to it. A changed text is applied as a
// text edit; an unchanged one is a valid outcome with no effect.
func (c *Controller) Improve(ctx context.Context) (*ai.Improvement, error) {
	if c.ai == nil {
		return nil, ErrNoAI
	}
	c.mu.Lock()
	c.flushGraphLocked()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	gen, epoch := c.generation, c.epoch
	text, diagramType := c.text, c.diagramType
	c.mu.Unlock()

	imp, err := c.ai.ImproveDiagram(ctx, text, diagramType)
	if err != nil {
		return nil, fmt.Errorf("improve diagram: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen, epoch) {
		return nil, ErrStale
	}
	if strings.TrimSpace(imp.Text) == "" || strings.TrimSpace(imp.Text) == strings.TrimSpace(text) {
		imp.Text = text
		imp.Changes = nil
		return imp, nil
	}
	c.text = imp.Text
	c.scheduleLocked(pendingText)
	c.log.Info().Str("doc", c.docID).Int("changes", len(imp.Changes)).Msg("applied ai improvement")
	return imp, nil
}

// Close stops pending work; later edits fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked()
	c.closed = true
	c.listeners = make(map[int]Listener)
}
