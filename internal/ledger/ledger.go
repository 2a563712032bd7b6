package ledger

import (
	"context"
	"errors"
	"fmt"

	"rental-service/internal/models"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

// ErrConflict is returned by a driver when the durable version token moved
// between Load and Save. Callers retry the whole transaction.
var ErrConflict = errors.New("ledger version conflict")

// Driver persists the ledger document. Load returns a private deep copy of
// the latest committed document; Save atomically replaces it if and only
// if the durable version still equals expected, otherwise ErrConflict.
// Any other Save/Load error is a storage fault and the prior committed
// document must remain intact.
type Driver interface {
	Load(ctx context.Context) (*models.Ledger, error)
	Save(ctx context.Context, expected int64, doc *models.Ledger) error
}

// Store wraps a Driver with the transaction protocol.
type Store struct {
	driver Driver
	logger *zap.Logger
}

// NewStore creates a ledger store on top of a driver.
func NewStore(driver Driver) *Store {
	return &Store{
		driver: driver,
		logger: util.GetLogger(),
	}
}

// Tx is a mutable snapshot of the ledger. It is single-goroutine; the
// concurrency discipline lives entirely in Commit's version comparison.
type Tx struct {
	store   *Store
	doc     *models.Ledger
	base    int64
	settled bool
}

// Begin loads a snapshot of the latest committed ledger.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	doc, err := s.driver.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return &Tx{store: s, doc: doc, base: doc.Version}, nil
}

// Doc returns the transaction's mutable snapshot.
func (tx *Tx) Doc() *models.Ledger {
	return tx.doc
}

// Commit bumps the version token and durably persists the snapshot.
// Returns ErrConflict (wrapped) if another transaction committed since
// Begin; the snapshot is then dead and the caller must start over.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.settled {
		return errors.New("transaction already settled")
	}
	tx.settled = true

	tx.doc.Version = tx.base + 1
	if err := tx.store.driver.Save(ctx, tx.base, tx.doc); err != nil {
		if errors.Is(err, ErrConflict) {
			util.LedgerCommitConflicts.Inc()
			return err
		}
		return fmt.Errorf("failed to persist ledger: %w", err)
	}

	util.LedgerCommitsTotal.Inc()
	tx.store.logger.Debug("Ledger committed", zap.Int64("version", tx.doc.Version))
	return nil
}

// Abort discards the snapshot. Safe to call any number of times, including
// after Commit; an aborted transaction has no observable effect.
func (tx *Tx) Abort() {
	tx.settled = true
}
