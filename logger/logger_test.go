package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelSilent, ParseLevel("off"))
	assert.Equal(t, LogLevelError, ParseLevel("ERROR"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelInfo, ParseLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger()
	l.SetOutput(&buf)
	l.SetLevel(LogLevelWarn)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "WARN")
}

func TestWithFieldsKeepsParent(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger()
	l.SetOutput(&buf)

	child := l.WithFields(map[string]any{"request_id": "r-1"})
	child.Info("child")
	l.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "r-1")
	assert.NotContains(t, lines[1], "r-1")
}

func TestJSONSQL(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger()
	l.SetOutput(&buf)
	l.SetFormat(LogFormatJSON)

	l.SQL("SELECT 1", 3*time.Millisecond, 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "SQL", line["msg"])
	assert.Equal(t, "SELECT 1", line["sql"])
	assert.Equal(t, "3ms", line["duration"])
}

func TestNop(t *testing.T) {
	var buf bytes.Buffer
	l := Nop()
	l.SetOutput(&buf)
	l.Error("nothing")
	l.SQL("SELECT 1", time.Millisecond)
	assert.Empty(t, buf.String())
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jormx.log")
	l := New(Config{Level: "debug", File: path, MaxSize: 1})
	l.SetOutput(&bytes.Buffer{})
	l.Debug("to file %s", "ok")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file ok")
}
