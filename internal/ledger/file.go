package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"rental-service/internal/models"
)

// FileDriver persists the ledger as a single JSON document on disk.
// Writes go to a temp file in the same directory followed by rename, so a
// reader never observes a partially written document. The mutex serializes
// the version-check/rename pair; cross-process writers are outside the
// store's protocol (single-writer discipline).
type FileDriver struct {
	mu   sync.Mutex
	path string
}

// NewFileDriver creates a file driver. The document is created empty on
// first Load if the file does not exist yet.
func NewFileDriver(path string) (*FileDriver, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &FileDriver{path: path}, nil
}

// Load reads and decodes the current document.
func (d *FileDriver) Load(ctx context.Context) (*models.Ledger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read()
}

func (d *FileDriver) read() (*models.Ledger, error) {
	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return models.NewLedger(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	doc := models.NewLedger()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode ledger file: %w", err)
	}
	return doc, nil
}

// Save atomically replaces the document if the on-disk version token still
// matches expected.
func (d *FileDriver) Save(ctx context.Context, expected int64, doc *models.Ledger) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, err := d.read()
	if err != nil {
		return err
	}
	if current.Version != expected {
		return ErrConflict
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp ledger file: %w", err)
	}

	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}
