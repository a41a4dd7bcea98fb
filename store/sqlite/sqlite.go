/*
Package sqlite provides a SQLite-backed implementation of inventory.TxStore.

KEY TABLES:
  materials:    Catalog rows plus the denormalized stock counter
  projects:     Cost buckets
  transactions: Append-only ledger of stock movements

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on transactions in this package
  - Triggers abort any UPDATE or DELETE that reaches the transactions table
  - CHECK (stock >= 0) backs up the guarded AdjustStock update

INDEXES:
  - idx_transactions_project_created:  project report and filtered listing (hot path)
  - idx_transactions_material_created: stock audit
  - idx_transactions_created:          system-wide listing

CONCURRENCY:
  The pool is limited to one connection and transactions begin IMMEDIATE,
  so a withdraw's stock read, ledger append and counter update are
  serialized against every other writer, including other processes
  sharing the file.

USAGE:
  store, err := sqlite.New("./data/materials.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  mutator := inventory.NewStockMutator(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). The postgres store uses goose with
  versioned migrations instead.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/materials-ledger/inventory"
)

// timeLayout is fixed-width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements inventory.TxStore using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

var _ inventory.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS materials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		material_id INTEGER NOT NULL REFERENCES materials(id),
		project_id INTEGER REFERENCES projects(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		tx_type TEXT NOT NULL CHECK (tx_type IN ('RECEIVE', 'WITHDRAW', 'RETURN')),
		notes TEXT,
		created_at TEXT NOT NULL,
		CHECK ((tx_type = 'RECEIVE') = (project_id IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_project_created
		ON transactions(project_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_material_created
		ON transactions(material_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_created
		ON transactions(created_at DESC, id DESC);

	CREATE TRIGGER IF NOT EXISTS transactions_no_update
		BEFORE UPDATE ON transactions
		BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END;
	CREATE TRIGGER IF NOT EXISTS transactions_no_delete
		BEFORE DELETE ON transactions
		BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE (inventory.Store interface)
// =============================================================================

func (s *Store) CreateMaterial(ctx context.Context, m inventory.Material) (inventory.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q(s.db).createMaterial(ctx, m)
}

func (s *Store) ListMaterials(ctx context.Context) ([]inventory.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q(s.db).listMaterials(ctx)
}

func (s *Store) GetMaterial(ctx context.Context, id inventory.MaterialID) (inventory.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q(s.db).getMaterial(ctx, id)
}

func (s *Store) CreateProject(ctx context.Context, p inventory.Project) (inventory.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q(s.db).createProject(ctx, p)
}

func (s *Store) ListProjects(ctx context.Context) ([]inventory.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q(s.db).listProjects(ctx)
}

func (s *Store) GetProject(ctx context.Context, id inventory.ProjectID) (inventory.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q(s.db).getProject(ctx, id)
}

// AppendTransaction adds a transaction to the ledger.
func (s *Store) AppendTransaction(ctx context.Context, tx inventory.Transaction) (inventory.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q(s.db).appendTransaction(ctx, tx)
}

func (s *Store) AdjustStock(ctx context.Context, id inventory.MaterialID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q(s.db).adjustStock(ctx, id, delta)
}

func (s *Store) ListTransactions(ctx context.Context, filter inventory.TransactionFilter) ([]inventory.TransactionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q(s.db).listTransactions(ctx, filter)
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries: s.q(sqlTx)}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore runs every call on the open *sql.Tx; the parent lock is already held.
type txStore struct {
	queries
}

func (ts *txStore) CreateMaterial(ctx context.Context, m inventory.Material) (inventory.Material, error) {
	return ts.createMaterial(ctx, m)
}

func (ts *txStore) ListMaterials(ctx context.Context) ([]inventory.Material, error) {
	return ts.listMaterials(ctx)
}

func (ts *txStore) GetMaterial(ctx context.Context, id inventory.MaterialID) (inventory.Material, error) {
	return ts.getMaterial(ctx, id)
}

func (ts *txStore) CreateProject(ctx context.Context, p inventory.Project) (inventory.Project, error) {
	return ts.createProject(ctx, p)
}

func (ts *txStore) ListProjects(ctx context.Context) ([]inventory.Project, error) {
	return ts.listProjects(ctx)
}

func (ts *txStore) GetProject(ctx context.Context, id inventory.ProjectID) (inventory.Project, error) {
	return ts.getProject(ctx, id)
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx inventory.Transaction) (inventory.Transaction, error) {
	return ts.appendTransaction(ctx, tx)
}

func (ts *txStore) AdjustStock(ctx context.Context, id inventory.MaterialID, delta int64) (int64, error) {
	return ts.adjustStock(ctx, id, delta)
}

func (ts *txStore) ListTransactions(ctx context.Context, filter inventory.TransactionFilter) ([]inventory.TransactionEntry, error) {
	return ts.listTransactions(ctx, filter)
}

// =============================================================================
// QUERIES - shared by Store and txStore
// =============================================================================

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db  queryer
	now func() time.Time
}

func (s *Store) q(db queryer) queries {
	return queries{db: db, now: s.now}
}

const materialColumns = `id, name, description, unit, unit_price, stock, created_at, updated_at`

func (q queries) createMaterial(ctx context.Context, m inventory.Material) (inventory.Material, error) {
	now := formatTime(q.now())
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO materials (name, description, unit, unit_price, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, m.Name, m.Description, m.Unit, m.UnitPrice.String(), now, now)
	if err != nil {
		return inventory.Material{}, fmt.Errorf("failed to insert material: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Material{}, fmt.Errorf("failed to read material id: %w", err)
	}
	return q.getMaterial(ctx, inventory.MaterialID(id))
}

func (q queries) listMaterials(ctx context.Context) ([]inventory.Material, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT "+materialColumns+" FROM materials ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	defer rows.Close()

	materials := make([]inventory.Material, 0)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (q queries) getMaterial(ctx context.Context, id inventory.MaterialID) (inventory.Material, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+materialColumns+" FROM materials WHERE id = ?", id)
	m, err := scanMaterial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Material{}, inventory.MaterialNotFound(id)
	}
	return m, err
}

func (q queries) createProject(ctx context.Context, p inventory.Project) (inventory.Project, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO projects (name, description, created_at) VALUES (?, ?, ?)
	`, p.Name, p.Description, formatTime(q.now()))
	if err != nil {
		return inventory.Project{}, fmt.Errorf("failed to insert project: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Project{}, fmt.Errorf("failed to read project id: %w", err)
	}
	return q.getProject(ctx, inventory.ProjectID(id))
}

func (q queries) listProjects(ctx context.Context) ([]inventory.Project, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT id, name, description, created_at FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]inventory.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (q queries) getProject(ctx context.Context, id inventory.ProjectID) (inventory.Project, error) {
	row := q.db.QueryRowContext(ctx, "SELECT id, name, description, created_at FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Project{}, inventory.ProjectNotFound(id)
	}
	return p, err
}

func (q queries) appendTransaction(ctx context.Context, tx inventory.Transaction) (inventory.Transaction, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = q.now()
	}
	tx.CreatedAt = tx.CreatedAt.UTC()

	var projectID sql.NullInt64
	if tx.ProjectID != nil {
		projectID = sql.NullInt64{Int64: int64(*tx.ProjectID), Valid: true}
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO transactions (material_id, project_id, quantity, tx_type, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tx.MaterialID, projectID, tx.Quantity, string(tx.Type), nullString(tx.Notes), formatTime(tx.CreatedAt))
	if err != nil {
		return inventory.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Transaction{}, fmt.Errorf("failed to read transaction id: %w", err)
	}
	tx.ID = inventory.TransactionID(id)
	return tx, nil
}

func (q queries) adjustStock(ctx context.Context, id inventory.MaterialID, delta int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE materials SET stock = stock + ?, updated_at = ?
		WHERE id = ? AND stock + ? >= 0
	`, delta, formatTime(q.now()), id, delta)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to adjust stock: %w", err)
	}

	var stock int64
	err = q.db.QueryRowContext(ctx, "SELECT stock FROM materials WHERE id = ?", id).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, inventory.MaterialNotFound(id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}

	if affected == 0 {
		return 0, &inventory.InsufficientStockError{MaterialID: id, Available: stock, Requested: -delta}
	}
	return stock, nil
}

func (q queries) listTransactions(ctx context.Context, filter inventory.TransactionFilter) ([]inventory.TransactionEntry, error) {
	query := `
		SELECT t.id, t.material_id, t.project_id, t.quantity, t.tx_type, t.notes, t.created_at,
		       m.id, m.name, m.description, m.unit, m.unit_price, m.stock, m.created_at, m.updated_at,
		       p.id, p.name, p.description, p.created_at
		FROM transactions t
		JOIN materials m ON m.id = t.material_id
		LEFT JOIN projects p ON p.id = t.project_id
	`

	var conds []string
	var args []any
	if filter.ProjectID != nil {
		conds = append(conds, "t.project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.MaterialID != nil {
		conds = append(conds, "t.material_id = ?")
		args = append(args, *filter.MaterialID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.created_at DESC, t.id DESC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	entries := make([]inventory.TransactionEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row scanner) (inventory.Material, error) {
	var (
		m                    inventory.Material
		price                string
		createdAt, updatedAt string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Unit, &price, &m.Stock, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, err
	}
	if err != nil {
		return m, fmt.Errorf("failed to scan material: %w", err)
	}

	if m.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return m, fmt.Errorf("material %d has malformed price %q: %w", m.ID, price, err)
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return m, nil
}

func scanProject(row scanner) (inventory.Project, error) {
	var (
		p         inventory.Project
		createdAt string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("failed to scan project: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func scanEntry(rows *sql.Rows) (inventory.TransactionEntry, error) {
	var (
		e                        inventory.TransactionEntry
		projectID                sql.NullInt64
		txType                   string
		notes                    sql.NullString
		txCreated                string
		price                    string
		matCreated, matUpdated   string
		pID                      sql.NullInt64
		pName, pDesc, pCreatedAt sql.NullString
	)

	err := rows.Scan(
		&e.ID, &e.MaterialID, &projectID, &e.Quantity, &txType, &notes, &txCreated,
		&e.Material.ID, &e.Material.Name, &e.Material.Description, &e.Material.Unit,
		&price, &e.Material.Stock, &matCreated, &matUpdated,
		&pID, &pName, &pDesc, &pCreatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan transaction: %w", err)
	}

	e.Type = inventory.TxType(txType)
	e.Notes = notes.String
	e.CreatedAt = parseTime(txCreated)
	if e.Material.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return e, fmt.Errorf("material %d has malformed price %q: %w", e.Material.ID, price, err)
	}
	e.Material.CreatedAt = parseTime(matCreated)
	e.Material.UpdatedAt = parseTime(matUpdated)

	if projectID.Valid {
		pid := inventory.ProjectID(projectID.Int64)
		e.ProjectID = &pid
		e.Project = &inventory.Project{
			ID:          inventory.ProjectID(pID.Int64),
			Name:        pName.String,
			Description: pDesc.String,
			CreatedAt:   parseTime(pCreatedAt.String),
		}
	}
	return e, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
