package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestJSONFormatCarriesProject(t *testing.T) {
	var buf bytes.Buffer
	l := New(zapcore.AddSync(&buf), Config{Level: "debug", Format: "json"})

	l.Debugw("resolved", "groups", 3)
	require.NoError(t, l.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "comicdl", entry["project"])
	assert.Equal(t, "resolved", entry["msg"])
	assert.EqualValues(t, 3, entry["groups"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(zapcore.AddSync(&buf), Config{Level: "warn", Format: "json"})

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestLogIfError(t *testing.T) {
	var buf bytes.Buffer
	l := New(zapcore.AddSync(&buf), Config{Format: "json"})

	assert.NoError(t, LogIfError(l, nil, "nothing"))
	assert.Zero(t, buf.Len())

	err := errors.New("disk full")
	assert.Equal(t, err, LogIfError(l, err, "checkpoint failed", "task", 7))
	assert.Contains(t, buf.String(), "disk full")
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "comicdl.log")
	l, closeFn, err := Open(Config{File: path})
	require.NoError(t, err)

	l.Info("hello")
	closeFn()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello")
}
