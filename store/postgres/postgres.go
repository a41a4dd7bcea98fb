/*
Package postgres provides a PostgreSQL-backed implementation of inventory.TxStore.

CONNECTION:
  A pgxpool.Pool is the process-wide handle. It is created by New, passed
  to the services explicitly, and released by Close on shutdown.

MIGRATIONS:
  Versioned SQL files under migrations/ are embedded in the binary and
  applied with goose on New(). goose needs a *sql.DB, which is borrowed
  from the pool through pgx's stdlib adapter.

ROW LOCKING:
  Inside WithTx, GetMaterial reads with SELECT ... FOR UPDATE. A withdraw
  holds the material row from its stock check until commit, so concurrent
  withdrawals of the same material queue instead of racing.
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/materials-ledger/inventory"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements inventory.TxStore on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ inventory.TxStore = (*Store)(nil)

// New connects to dsn, applies pending migrations and returns the store.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the pool for tests and maintenance tooling.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// =============================================================================
// STORE (inventory.Store interface)
// =============================================================================

func (s *Store) CreateMaterial(ctx context.Context, m inventory.Material) (inventory.Material, error) {
	return s.q().createMaterial(ctx, m)
}

func (s *Store) ListMaterials(ctx context.Context) ([]inventory.Material, error) {
	return s.q().listMaterials(ctx)
}

func (s *Store) GetMaterial(ctx context.Context, id inventory.MaterialID) (inventory.Material, error) {
	return s.q().getMaterial(ctx, id)
}

func (s *Store) CreateProject(ctx context.Context, p inventory.Project) (inventory.Project, error) {
	return s.q().createProject(ctx, p)
}

func (s *Store) ListProjects(ctx context.Context) ([]inventory.Project, error) {
	return s.q().listProjects(ctx)
}

func (s *Store) GetProject(ctx context.Context, id inventory.ProjectID) (inventory.Project, error) {
	return s.q().getProject(ctx, id)
}

func (s *Store) AppendTransaction(ctx context.Context, tx inventory.Transaction) (inventory.Transaction, error) {
	return s.q().appendTransaction(ctx, tx)
}

func (s *Store) AdjustStock(ctx context.Context, id inventory.MaterialID, delta int64) (int64, error) {
	return s.q().adjustStock(ctx, id, delta)
}

func (s *Store) ListTransactions(ctx context.Context, filter inventory.TransactionFilter) ([]inventory.TransactionEntry, error) {
	return s.q().listTransactions(ctx, filter)
}

func (s *Store) q() queries { return queries{db: s.pool} }

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes fn inside a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txStore{queries: queries{db: tx, lockRows: true}}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

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
// QUERIES
// =============================================================================

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db       querier
	lockRows bool
}

const materialColumns = `id, name, description, unit, unit_price::text, stock, created_at, updated_at`

func (q queries) createMaterial(ctx context.Context, m inventory.Material) (inventory.Material, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO materials (name, description, unit, unit_price, stock)
		VALUES ($1, $2, $3, $4::numeric, 0)
		RETURNING `+materialColumns,
		m.Name, m.Description, m.Unit, m.UnitPrice.String())

	out, err := scanMaterial(row)
	if err != nil {
		return inventory.Material{}, fmt.Errorf("insert material: %w", err)
	}
	return out, nil
}

func (q queries) listMaterials(ctx context.Context) ([]inventory.Material, error) {
	rows, err := q.db.Query(ctx, "SELECT "+materialColumns+" FROM materials ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	out := make([]inventory.Material, 0)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q queries) getMaterial(ctx context.Context, id inventory.MaterialID) (inventory.Material, error) {
	query := "SELECT " + materialColumns + " FROM materials WHERE id = $1"
	if q.lockRows {
		query += " FOR UPDATE"
	}

	m, err := scanMaterial(q.db.QueryRow(ctx, query, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Material{}, inventory.MaterialNotFound(id)
	}
	return m, err
}

func (q queries) createProject(ctx context.Context, p inventory.Project) (inventory.Project, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO projects (name, description) VALUES ($1, $2)
		RETURNING id, name, description, created_at
	`, p.Name, p.Description)

	out, err := scanProject(row)
	if err != nil {
		return inventory.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return out, nil
}

func (q queries) listProjects(ctx context.Context) ([]inventory.Project, error) {
	rows, err := q.db.Query(ctx, "SELECT id, name, description, created_at FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := make([]inventory.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q queries) getProject(ctx context.Context, id inventory.ProjectID) (inventory.Project, error) {
	p, err := scanProject(q.db.QueryRow(ctx,
		"SELECT id, name, description, created_at FROM projects WHERE id = $1", int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Project{}, inventory.ProjectNotFound(id)
	}
	return p, err
}

func (q queries) appendTransaction(ctx context.Context, tx inventory.Transaction) (inventory.Transaction, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	var projectID *int64
	if tx.ProjectID != nil {
		pid := int64(*tx.ProjectID)
		projectID = &pid
	}
	var notes *string
	if tx.Notes != "" {
		notes = &tx.Notes
	}

	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO transactions (material_id, project_id, quantity, tx_type, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, int64(tx.MaterialID), projectID, tx.Quantity, string(tx.Type), notes, tx.CreatedAt.UTC()).
		Scan(&id, &tx.CreatedAt)
	if err != nil {
		return inventory.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}

	tx.ID = inventory.TransactionID(id)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func (q queries) adjustStock(ctx context.Context, id inventory.MaterialID, delta int64) (int64, error) {
	var stock int64
	err := q.db.QueryRow(ctx, `
		UPDATE materials SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock
	`, int64(id), delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}

	// Nothing updated: either the material is missing or the guard refused.
	err = q.db.QueryRow(ctx, "SELECT stock FROM materials WHERE id = $1", int64(id)).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, inventory.MaterialNotFound(id)
	}
	if err != nil {
		return 0, fmt.Errorf("read stock: %w", err)
	}
	return 0, &inventory.InsufficientStockError{MaterialID: id, Available: stock, Requested: -delta}
}

func (q queries) listTransactions(ctx context.Context, filter inventory.TransactionFilter) ([]inventory.TransactionEntry, error) {
	query := `
		SELECT t.id, t.material_id, t.project_id, t.quantity, t.tx_type, COALESCE(t.notes, ''), t.created_at,
		       m.id, m.name, m.description, m.unit, m.unit_price::text, m.stock, m.created_at, m.updated_at,
		       p.id, p.name, p.description, p.created_at
		FROM transactions t
		JOIN materials m ON m.id = t.material_id
		LEFT JOIN projects p ON p.id = t.project_id
	`

	var conds []string
	var args []any
	if filter.ProjectID != nil {
		args = append(args, int64(*filter.ProjectID))
		conds = append(conds, fmt.Sprintf("t.project_id = $%d", len(args)))
	}
	if filter.MaterialID != nil {
		args = append(args, int64(*filter.MaterialID))
		conds = append(conds, fmt.Sprintf("t.material_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.created_at DESC, t.id DESC"

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]inventory.TransactionEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

func scanMaterial(row pgx.Row) (inventory.Material, error) {
	var (
		m     inventory.Material
		id    int64
		price string
	)
	if err := row.Scan(&id, &m.Name, &m.Description, &m.Unit, &price, &m.Stock, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return m, err
	}
	m.ID = inventory.MaterialID(id)

	var err error
	if m.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return m, fmt.Errorf("material %d has malformed price %q: %w", id, price, err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func scanProject(row pgx.Row) (inventory.Project, error) {
	var (
		p  inventory.Project
		id int64
	)
	if err := row.Scan(&id, &p.Name, &p.Description, &p.CreatedAt); err != nil {
		return p, err
	}
	p.ID = inventory.ProjectID(id)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func scanEntry(rows pgx.Rows) (inventory.TransactionEntry, error) {
	var (
		e                inventory.TransactionEntry
		txID, materialID int64
		projectID        *int64
		txType           string
		matID            int64
		price            string
		pID              *int64
		pName, pDesc     *string
		pCreatedAt       *time.Time
	)

	err := rows.Scan(
		&txID, &materialID, &projectID, &e.Quantity, &txType, &e.Notes, &e.CreatedAt,
		&matID, &e.Material.Name, &e.Material.Description, &e.Material.Unit,
		&price, &e.Material.Stock, &e.Material.CreatedAt, &e.Material.UpdatedAt,
		&pID, &pName, &pDesc, &pCreatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("scan transaction: %w", err)
	}

	e.ID = inventory.TransactionID(txID)
	e.MaterialID = inventory.MaterialID(materialID)
	e.Type = inventory.TxType(txType)
	e.CreatedAt = e.CreatedAt.UTC()
	e.Material.ID = inventory.MaterialID(matID)
	if e.Material.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return e, fmt.Errorf("material %d has malformed price %q: %w", matID, price, err)
	}
	e.Material.CreatedAt = e.Material.CreatedAt.UTC()
	e.Material.UpdatedAt = e.Material.UpdatedAt.UTC()

	if projectID != nil && pID != nil {
		pid := inventory.ProjectID(*projectID)
		e.ProjectID = &pid
		e.Project = &inventory.Project{ID: pid}
		if pName != nil {
			e.Project.Name = *pName
		}
		if pDesc != nil {
			e.Project.Description = *pDesc
		}
		if pCreatedAt != nil {
			e.Project.CreatedAt = pCreatedAt.UTC()
		}
	}
	return e, nil
}
