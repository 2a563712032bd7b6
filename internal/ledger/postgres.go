package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rental-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresDriver persists the ledger as one versioned JSONB row. The
// compare-and-swap runs as UPDATE ... WHERE version = expected; zero rows
// affected means another transaction committed first.
type PostgresDriver struct {
	db *sqlx.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_documents (
	id         INT PRIMARY KEY,
	version    BIGINT NOT NULL,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// The document is a singleton row.
const ledgerRowID = 1

// NewPostgresDriver connects to the database and ensures the schema.
func NewPostgresDriver(databaseURL string) (*PostgresDriver, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(ledgerSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger schema: %w", err)
	}

	return &PostgresDriver{db: db}, nil
}

// Close closes the database connection.
func (d *PostgresDriver) Close() error {
	return d.db.Close()
}

// Load reads the singleton document row.
func (d *PostgresDriver) Load(ctx context.Context) (*models.Ledger, error) {
	var row struct {
		Version int64  `db:"version"`
		Doc     []byte `db:"doc"`
	}
	err := d.db.GetContext(ctx, &row,
		"SELECT version, doc FROM ledger_documents WHERE id = $1", ledgerRowID)
	if err == sql.ErrNoRows {
		return models.NewLedger(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger row: %w", err)
	}

	doc := models.NewLedger()
	if err := json.Unmarshal(row.Doc, doc); err != nil {
		return nil, fmt.Errorf("failed to decode ledger row: %w", err)
	}
	doc.Version = row.Version
	return doc, nil
}

// Save replaces the singleton row if its version still matches expected.
func (d *PostgresDriver) Save(ctx context.Context, expected int64, doc *models.Ledger) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if expected == 0 {
		// First commit races on the insert instead of the update.
		res, err := d.db.ExecContext(ctx,
			`INSERT INTO ledger_documents (id, version, doc) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE
			 SET version = EXCLUDED.version, doc = EXCLUDED.doc, updated_at = NOW()
			 WHERE ledger_documents.version = 0`,
			ledgerRowID, doc.Version, data)
		if err != nil {
			return fmt.Errorf("failed to insert ledger row: %w", err)
		}
		return checkAffected(res)
	}

	res, err := d.db.ExecContext(ctx,
		`UPDATE ledger_documents SET version = $1, doc = $2, updated_at = NOW()
		 WHERE id = $3 AND version = $4`,
		doc.Version, data, ledgerRowID, expected)
	if err != nil {
		return fmt.Errorf("failed to update ledger row: %w", err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
