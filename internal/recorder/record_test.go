package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	rec := Record{
		RunID:            "run-abc",
		TraceID:          "trace-1",
		Timestamp:        time.Now().UTC().Truncate(time.Second),
		Model:            "gpt-4o-mini",
		Provider:         "openai",
		Endpoint:         "/v1/chat/completions",
		RequestVaultRef:  "vault://air-runs/run-abc/request.json",
		ResponseVaultRef: "vault://air-runs/run-abc/response.json",
		RequestChecksum:  "sha256:aaa",
		ResponseChecksum: "sha256:bbb",
		Tokens:           Tokens{Prompt: 10, Completion: 20, Total: 30},
		DurationMS:       1234,
		Status:           "success",
	}
	require.NoError(t, w.Write(rec))

	path := filepath.Join(dir, "run-abc.air.json")
	_, err = os.Stat(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Version, loaded.Version)
	assert.Equal(t, "run-abc", loaded.RunID)
	assert.Equal(t, "gpt-4o-mini", loaded.Model)
	assert.Equal(t, 30, loaded.Tokens.Total)
	assert.Equal(t, int64(1234), loaded.DurationMS)
	assert.Equal(t, "success", loaded.Status)
	assert.Empty(t, loaded.Error)
}

func TestWriterLoadByRunID(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	require.NoError(t, w.Write(Record{RunID: "run-x", Model: "gpt-4o", Status: "error", Error: "upstream 502"}))

	loaded, err := w.Load("run-x")
	require.NoError(t, err)
	assert.Equal(t, "run-x", loaded.RunID)
	assert.Equal(t, "upstream 502", loaded.Error)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.air.json"))
	assert.Error(t, err)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.air.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteStampsVersion(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	// A caller-supplied version is always replaced with the current one.
	require.NoError(t, w.Write(Record{RunID: "run-v", Version: "0.0.1"}))

	loaded, err := w.Load("run-v")
	require.NoError(t, err)
	assert.Equal(t, Version, loaded.Version)
}

func TestNewWriterCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "records")
	_, err := NewWriter(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
