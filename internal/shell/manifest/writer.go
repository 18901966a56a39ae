// Package manifest persists the address and block-number manifests. Each
// write reads the existing file, replaces this network's entry and writes
// the result atomically.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/artpar/deployer/internal/core/deployment"
)

// Writer writes both manifests.
type Writer struct {
	addressPath string
	blockPath   string
	logger      *slog.Logger

	mu sync.Mutex
}

// NewWriter creates a writer for the given manifest paths.
func NewWriter(addressPath, blockPath string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		addressPath: addressPath,
		blockPath:   blockPath,
		logger:      logger.With("component", "manifest_writer"),
	}
}

// WriteAddresses records mapping under networkID in the address manifest.
func (w *Writer) WriteAddresses(networkID string, mapping map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, err := readExisting(w.addressPath)
	if err != nil {
		return err
	}
	merged, err := deployment.MergeAddressManifest(existing, networkID, mapping)
	if err != nil {
		return fmt.Errorf("merge %s: %w", w.addressPath, err)
	}
	if err := writeAtomic(w.addressPath, merged); err != nil {
		return err
	}
	w.logger.Info("wrote address manifest", "path", w.addressPath, "network", networkID, "entries", len(mapping))
	return nil
}

// WriteBlockNumber records block under networkID in the block manifest.
func (w *Writer) WriteBlockNumber(networkID string, block uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, err := readExisting(w.blockPath)
	if err != nil {
		return err
	}
	merged, err := deployment.MergeBlockManifest(existing, networkID, block)
	if err != nil {
		return fmt.Errorf("merge %s: %w", w.blockPath, err)
	}
	if err := writeAtomic(w.blockPath, merged); err != nil {
		return err
	}
	w.logger.Info("wrote block manifest", "path", w.blockPath, "network", networkID, "block", block)
	return nil
}

// readExisting returns the current contents, or nil when the file does not
// exist yet.
func readExisting(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeAtomic writes to a temp file in the target directory, then renames.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
