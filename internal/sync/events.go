package diagramsync

import (
	"errors"
	"fmt"
	"sort"

	"diagram-sync/internal/adapter"
	"diagram-sync/internal/graph"
	"diagram-sync/internal/layout"
)

var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrUnknownEdge   = errors.New("unknown edge")
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrInvalidEvent  = errors.New("invalid graph event")
)

// EventKind 画布发出的图编辑事件
type EventKind string

const (
	NodeMoved     EventKind = "node-moved"
	NodeAdded     EventKind = "node-added"
	NodeRemoved   EventKind = "node-removed"
	NodeRelabeled EventKind = "node-relabeled"
	EdgeConnected EventKind = "edge-connected"
	EdgeRelabeled EventKind = "edge-relabeled"
	EdgeRemoved   EventKind = "edge-removed"
)

// Event 一次图编辑
type Event struct {
	Kind     EventKind      `json:"kind"`
	NodeID   string         `json:"nodeId,omitempty"`
	EdgeID   string         `json:"edgeId,omitempty"`
	Position graph.Position `json:"position"`
	Label    string         `json:"label,omitempty"`
	Node     *graph.Node    `json:"node,omitempty"`
	Edge     *graph.Edge    `json:"edge,omitempty"`
}

// editor applies events to a graph owned by the caller.
type editor struct {
	nodes   []graph.Node
	edges   []graph.Edge
	adapter adapter.Adapter
	spacing float64
}

func (ed *editor) nodeIndex(id string) int {
	for i, n := range ed.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (ed *editor) edgeIndex(id string) int {
	for i, e := range ed.edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (ed *editor) apply(ev Event) error {
	switch ev.Kind {
	case NodeMoved:
		i := ed.nodeIndex(ev.NodeID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownNode, ev.NodeID)
		}
		ed.nodes[i].Position = ev.Position

	case NodeRelabeled:
		i := ed.nodeIndex(ev.NodeID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownNode, ev.NodeID)
		}
		ed.nodes[i].Label = ev.Label

	case NodeAdded:
		if ev.Node == nil {
			return fmt.Errorf("%w: node-added without node", ErrInvalidEvent)
		}
		return ed.addNode(ev.Node.Clone())

	case NodeRemoved:
		i := ed.nodeIndex(ev.NodeID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownNode, ev.NodeID)
		}
		ed.nodes = append(ed.nodes[:i], ed.nodes[i+1:]...)
		kept := ed.edges[:0]
		for _, e := range ed.edges {
			if e.Source != ev.NodeID && e.Target != ev.NodeID {
				kept = append(kept, e)
			}
		}
		ed.edges = kept
		ed.renumber()

	case EdgeConnected:
		if ev.Edge == nil {
			return fmt.Errorf("%w: edge-connected without edge", ErrInvalidEvent)
		}
		return ed.connect(*ev.Edge)

	case EdgeRelabeled:
		i := ed.edgeIndex(ev.EdgeID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownEdge, ev.EdgeID)
		}
		ed.edges[i].Label = ev.Label

	case EdgeRemoved:
		i := ed.edgeIndex(ev.EdgeID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownEdge, ev.EdgeID)
		}
		ed.edges = append(ed.edges[:i], ed.edges[i+1:]...)
		ed.renumber()

	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidEvent, ev.Kind)
	}
	return nil
}

func (ed *editor) addNode(n graph.Node) error {
	if n.ID == "" {
		n.ID = ed.freeID("node", func(id string) bool { return ed.nodeIndex(id) >= 0 })
	} else if ed.nodeIndex(n.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	n.Type = adapter.NodeRole(ed.adapter, n.Type)
	if n.Label == "" {
		n.Label = n.ID
	}
	if n.Position == (graph.Position{}) {
		grid := layout.Grid(len(ed.nodes)+1, ed.spacing)
		n.Position = grid[len(ed.nodes)]
	}
	ed.nodes = append(ed.nodes, n)
	return nil
}

func (ed *editor) connect(e graph.Edge) error {
	if ed.nodeIndex(e.Source) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownNode, e.Source)
	}
	if ed.nodeIndex(e.Target) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownNode, e.Target)
	}
	if e.ID == "" || ed.edgeIndex(e.ID) >= 0 {
		e.ID = ed.freeID("edge", func(id string) bool { return ed.edgeIndex(id) >= 0 })
	}
	if e.Type == "" {
		e.Type = ed.adapter.DefaultEdgeRole()
	}
	if ed.ordered() {
		if e.Data.MessageType == "" {
			e.Data.MessageType = graph.MessageSync
		}
		// 新消息追加到末尾
		e.Data.Order = len(ed.edges) + 1
	}
	ed.edges = append(ed.edges, e)
	ed.renumber()
	return nil
}

func (ed *editor) ordered() bool {
	return ed.adapter.DefaultEdgeRole() == graph.RoleMessage
}

// renumber keeps message orders contiguous (1..n) without changing their
// relative sequence.
func (ed *editor) renumber() {
	if !ed.ordered() {
		return
	}
	idx := make([]int, len(ed.edges))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return orderOf(ed.edges[idx[a]]) < orderOf(ed.edges[idx[b]])
	})
	for rank, i := range idx {
		ed.edges[i].Data.Order = rank + 1
	}
}

func orderOf(e graph.Edge) int {
	if e.Data.Order <= 0 {
		return int(^uint(0) >> 1)
	}
	return e.Data.Order
}

func (ed *editor) freeID(prefix string, taken func(string) bool) string {
	for i := 1; ; i++ {
		id := fmt.Sprintf("%s-%d", prefix, i)
		if !taken(id) {
			return id
		}
	}
}
