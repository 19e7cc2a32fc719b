package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, v bool) *bytes.Buffer {
	t.Helper()
	color.NoColor = true
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(v)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestQuietModeHidesDebugAndInfo(t *testing.T) {
	buf := capture(t, false)

	Debug("debug %d", 1)
	Info("info %d", 2)
	Section("ingest")

	assert.Empty(t, buf.String())
}

func TestWarnAndErrorAlwaysPrint(t *testing.T) {
	buf := capture(t, false)

	Warn("slow backend %s", "ollama")
	Error("store down: %v", "refused")

	out := buf.String()
	assert.Contains(t, out, "[WARN] slow backend ollama")
	assert.Contains(t, out, "[ERROR] store down: refused")
}

func TestVerboseMode(t *testing.T) {
	buf := capture(t, true)
	assert.True(t, IsVerbose())

	Debug("chunk %d", 3)
	Info("ingested %s", "doc")
	Section("Retrieval")

	out := buf.String()
	assert.Contains(t, out, "[DEBUG] chunk 3")
	assert.Contains(t, out, "[INFO] ingested doc")
	assert.Contains(t, out, "=== Retrieval ===")
}
