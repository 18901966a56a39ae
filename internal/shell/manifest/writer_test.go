package manifest

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/deployer/internal/core/deployment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*Writer, string, string) {
	t.Helper()
	dir := t.TempDir()
	addressPath := filepath.Join(dir, "out", "addresses.json")
	blockPath := filepath.Join(dir, "out", "upload-block-numbers.json")
	return NewWriter(addressPath, blockPath, slog.New(slog.NewTextHandler(io.Discard, nil))), addressPath, blockPath
}

func readJSON(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestWriteAddresses_CreatesFile(t *testing.T) {
	w, addressPath, _ := newTestWriter(t)

	require.NoError(t, w.WriteAddresses("4", map[string]string{"Controller": "0x01"}))

	data, err := os.ReadFile(addressPath)
	require.NoError(t, err)
	assert.Equal(t, "{\n \"4\": {\n  \"Controller\": \"0x01\"\n }\n}", string(data))
}

func TestWriteAddresses_KeepsOtherNetworks(t *testing.T) {
	w, addressPath, _ := newTestWriter(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(addressPath), 0o755))
	require.NoError(t, os.WriteFile(addressPath, []byte(`{"1": {"Controller": "0xaa"}}`), 0o644))

	require.NoError(t, w.WriteAddresses("4", map[string]string{"Controller": "0xbb"}))
	require.NoError(t, w.WriteAddresses("4", map[string]string{"Controller": "0xcc"}))

	doc := readJSON(t, addressPath)
	assert.JSONEq(t, `{"Controller": "0xaa"}`, string(doc["1"]))
	assert.JSONEq(t, `{"Controller": "0xcc"}`, string(doc["4"]))
}

func TestWriteBlockNumber(t *testing.T) {
	w, _, blockPath := newTestWriter(t)

	require.NoError(t, w.WriteBlockNumber("4", 100))
	require.NoError(t, w.WriteBlockNumber("1", 7))

	data, err := os.ReadFile(blockPath)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"1\": 7,\n  \"4\": 100\n}", string(data))
}

func TestWrite_InvalidExistingManifest(t *testing.T) {
	w, addressPath, _ := newTestWriter(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(addressPath), 0o755))
	require.NoError(t, os.WriteFile(addressPath, []byte(`[1, 2]`), 0o644))

	err := w.WriteAddresses("4", map[string]string{})
	assert.ErrorIs(t, err, deployment.ErrInvalidManifest)

	data, err := os.ReadFile(addressPath)
	require.NoError(t, err)
	assert.Equal(t, "[1, 2]", string(data), "invalid manifest left untouched")
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	w, addressPath, _ := newTestWriter(t)
	require.NoError(t, w.WriteAddresses("4", map[string]string{"Controller": "0x01"}))

	entries, err := os.ReadDir(filepath.Dir(addressPath))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "addresses.json", entries[0].Name())
}
