package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeWithWriter(t *testing.T) {
	var buf bytes.Buffer
	data, err := New().FromWriter(&buf).Level("debug").Make()
	require.NoError(t, err)

	data.Logger.Debug().Str("doc", "d1").Msg("synced")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "d1", entry["doc"])
	assert.Equal(t, "synced", entry["message"])
	assert.Contains(t, entry, "time")
	assert.NoError(t, data.Close())
}

func TestMakeDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	data, err := New().FromWriter(&buf).Level("loud").Make()
	require.NoError(t, err)

	data.Logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	data.Logger.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestMakeFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	data, err := New().FromPath(path).Make()
	require.NoError(t, err)

	data.Logger.Warn().Msg("save failed")
	require.NoError(t, data.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "save failed")
}

func TestMakeBadPath(t *testing.T) {
	_, err := New().FromPath(filepath.Join(t.TempDir(), "missing", "x.log")).Make()
	assert.Error(t, err)
}
