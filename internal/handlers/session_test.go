package handlers

import (
	"strings"
	"testing"
	"time"

	"diagram-sync/internal/graph"
	"diagram-sync/internal/store"
	diagramsync "diagram-sync/internal/sync"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialSession(t *testing.T, st store.Store) *websocket.Conn {
	t.Helper()
	srv := newTestAPI(t, st)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Outbound) bool) Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var m Outbound
		require.NoError(t, conn.ReadJSON(&m))
		if match(m) {
			return m
		}
	}
}

func isKind(kind string) func(Outbound) bool {
	return func(m Outbound) bool { return m.Kind == kind }
}

func TestSessionEditAndSave(t *testing.T) {
	mem := store.NewMemoryStore()
	conn := dialSession(t, mem)

	require.NoError(t, conn.WriteJSON(Inbound{Kind: msgSwitch, DocumentID: "doc-1", DiagramType: "flowchart", Text: "flowchart TD\n    A[Start] --> B[End]"}))
	m := readUntil(t, conn, isKind(msgSnapshot))
	require.NotNil(t, m.Snapshot)
	assert.Equal(t, diagramsync.StateIdle, m.Snapshot.State)
	assert.Len(t, m.Snapshot.Nodes, 2)

	require.NoError(t, conn.WriteJSON(Inbound{Kind: msgEvent, Event: &diagramsync.Event{Kind: diagramsync.NodeRelabeled, NodeID: "A", Label: "Begin"}}))
	m = readUntil(t, conn, func(m Outbound) bool {
		return m.Kind == msgSnapshot && strings.Contains(m.Snapshot.Text, "A[Begin]")
	})
	assert.Equal(t, "flowchart TD\n    A[Begin]\n    B[End]\n    A --> B", m.Snapshot.Text)

	require.NoError(t, conn.WriteJSON(Inbound{Kind: msgSave}))
	m = readUntil(t, conn, isKind(msgSaved))
	require.NotNil(t, m.Version)
	assert.Equal(t, 1, m.Version.Number)
	assert.Equal(t, "doc-1", m.Version.ArtifactID)
	assert.Nil(t, m.Snapshot)
}

func TestSessionTextFailure(t *testing.T) {
	conn := dialSession(t, nil)

	require.NoError(t, conn.WriteJSON(Inbound{Kind: msgSwitch, DocumentID: "d", Text: "sequenceDiagram\n    A->>B: hi"}))
	readUntil(t, conn, isKind(msgSnapshot))

	require.NoError(t, conn.WriteJSON(Inbound{Kind: msgText, Text: "the model refused"}))
	m := readUntil(t, conn, func(m Outbound) bool {
		return m.Kind == msgSnapshot && m.Snapshot.State == diagramsync.StateError
	})
	assert.Equal(t, graph.FailureNoDeclaration, m.Snapshot.Failure)
	assert.Len(t, m.Snapshot.Nodes, 2)
}

func TestSessionErrors(t *testing.T) {
	conn := dialSession(t, nil)

	require.NoError(t, conn.WriteJSON(Inbound{Kind: msgText, Text: "flowchart\n    A"}))
	m := readUntil(t, conn, isKind(msgError))
	assert.Contains(t, m.Error, diagramsync.ErrNoDocument.Error())

	require.NoError(t, conn.WriteJSON(Inbound{Kind: "dance"}))
	m = readUntil(t, conn, isKind(msgError))
	assert.Contains(t, m.Error, `unknown message kind "dance"`)

	require.NoError(t, conn.WriteJSON(Inbound{Kind: msgSwitch, DocumentID: "d", Text: "flowchart\n    A"}))
	readUntil(t, conn, isKind(msgSnapshot))

	require.NoError(t, conn.WriteJSON(Inbound{Kind: msgSave}))
	m = readUntil(t, conn, isKind(msgError))
	assert.Contains(t, m.Error, "save failed")
	assert.NotEmpty(t, m.Content)

	require.NoError(t, conn.WriteJSON(Inbound{Kind: msgImprove}))
	m = readUntil(t, conn, isKind(msgError))
	assert.Contains(t, m.Error, diagramsync.ErrNoAI.Error())
}
