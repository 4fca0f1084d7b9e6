package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"diagram-sync/internal/graph"
	"diagram-sync/internal/store"
	diagramsync "diagram-sync/internal/sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// 客户端消息类型
const (
	msgSwitch  = "switch"
	msgText    = "text"
	msgEvent   = "event"
	msgGraph   = "graph"
	msgFlush   = "flush"
	msgSave    = "save"
	msgAssist  = "assist"
	msgImprove = "improve"
)

// 服务端消息类型
const (
	msgSnapshot = "snapshot"
	msgSaved    = "saved"
	msgImproved = "improved"
	msgError    = "error"
)

// Inbound 客户端发来的消息
type Inbound struct {
	Kind        string             `json:"kind"`
	DocumentID  string             `json:"documentId,omitempty"`
	DiagramType string             `json:"diagramType,omitempty"`
	Text        string             `json:"text,omitempty"`
	Event       *diagramsync.Event `json:"event,omitempty"`
	Nodes       []graph.Node       `json:"nodes,omitempty"`
	Edges       []graph.Edge       `json:"edges,omitempty"`
}

// Outbound 推送给客户端的消息
type Outbound struct {
	Kind     string                `json:"kind"`
	Snapshot *diagramsync.Snapshot `json:"snapshot,omitempty"`
	Version  *store.Version        `json:"version,omitempty"`
	Content  string                `json:"content,omitempty"`
	Changes  []string              `json:"changes,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// session is one websocket connection driving its own controller. All
// writes go through a single writer goroutine.
type session struct {
	conn   *websocket.Conn
	ctrl   *diagramsync.Controller
	out    chan Outbound
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// handleSession WebSocket 编辑会话
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	opts := diagramsync.Options{
		Analyzer: a.analyzer,
		AI:       a.opts.AI,
		Debounce: a.opts.Debounce,
		Spacing:  a.opts.Spacing,
		Logger:   a.log,
	}
	if a.opts.Store != nil {
		opts.Persister = a.opts.Store
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:   conn,
		ctrl:   diagramsync.New(opts),
		out:    make(chan Outbound, 16),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		log:    a.log.With().Str("remote", r.RemoteAddr).Logger(),
	}
	s.run()
}

func (s *session) run() {
	defer s.conn.Close()

	writerDone := make(chan struct{})
	go s.writer(writerDone)

	unsubscribe := s.ctrl.Subscribe(func(snap diagramsync.Snapshot) {
		s.send(Outbound{Kind: msgSnapshot, Snapshot: &snap})
	})
	s.log.Info().Msg("editor session opened")

	for {
		var msg Inbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("read")
			}
			break
		}
		if err := s.dispatch(msg); err != nil {
			s.send(Outbound{Kind: msgError, Error: err.Error()})
		}
	}

	unsubscribe()
	s.cancel()
	s.ctrl.Close()
	close(s.done)
	<-writerDone
	s.log.Info().Msg("editor session closed")
}

func (s *session) writer(finished chan<- struct{}) {
	defer close(finished)
	for {
		select {
		case m := <-s.out:
			if err := s.conn.WriteJSON(m); err != nil {
				s.log.Debug().Err(err).Msg("write")
				s.cancel()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) send(m Outbound) {
	select {
	case s.out <- m:
	case <-s.done:
	case <-s.ctx.Done():
	}
}

// dispatch applies one client message. Snapshots reach the client through
// the controller listener; slow operations answer asynchronously.
func (s *session) dispatch(msg Inbound) error {
	switch msg.Kind {
	case msgSwitch:
		if msg.DocumentID == "" {
			return errors.New("switch requires documentId")
		}
		_, err := s.ctrl.SwitchDocument(s.ctx, msg.DocumentID, msg.DiagramType, msg.Text)
		return err

	case msgText:
		return s.ctrl.SetText(msg.Text)

	case msgEvent:
		if msg.Event == nil {
			return errors.New("event message without event")
		}
		return s.ctrl.HandleEvent(*msg.Event)

	case msgGraph:
		return s.ctrl.ReplaceGraph(msg.Nodes, msg.Edges)

	case msgFlush:
		s.ctrl.Flush()
		return nil

	case msgSave:
		saved := s.ctrl.Save(s.ctx)
		go func() {
			o := <-saved
			if o.Err != nil {
				s.send(Outbound{Kind: msgError, Content: o.Content, Error: "save failed: " + o.Err.Error()})
				return
			}
			s.send(Outbound{Kind: msgSaved, Version: o.Version, Content: o.Content})
		}()
		return nil

	case msgAssist:
		go func() {
			if _, err := s.ctrl.AssistParse(s.ctx); err != nil {
				s.send(Outbound{Kind: msgError, Error: "assist: " + err.Error()})
			}
		}()
		return nil

	case msgImprove:
		go func() {
			imp, err := s.ctrl.Improve(s.ctx)
			if err != nil {
				s.send(Outbound{Kind: msgError, Error: "improve: " + err.Error()})
				return
			}
			s.send(Outbound{Kind: msgImproved, Content: imp.Text, Changes: imp.Changes})
		}()
		return nil

	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}
}
