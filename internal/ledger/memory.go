package ledger

import (
	"context"
	"sync"

	"rental-service/internal/models"
)

// MemoryDriver keeps the ledger in process memory. Used in tests and as
// a throwaway local mode; it still honors the full CAS contract.
type MemoryDriver struct {
	mu  sync.Mutex
	doc *models.Ledger
}

// NewMemoryDriver creates an in-memory driver holding an empty ledger.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{doc: models.NewLedger()}
}

// Load returns a deep copy of the current document.
func (d *MemoryDriver) Load(ctx context.Context) (*models.Ledger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Clone(), nil
}

// Save replaces the document if the version token still matches.
func (d *MemoryDriver) Save(ctx context.Context, expected int64, doc *models.Ledger) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.doc.Version != expected {
		return ErrConflict
	}
	d.doc = doc.Clone()
	return nil
}
