/*
store.go - Persistence contract for the materials ledger

PURPOSE:
  Defines the interface between ledger logic and the database. The store is
  the single source of truth for stock; nothing above it caches stock values.

KEY INTERFACES:
  Store:   Catalog CRUD, ledger append, guarded stock adjustment, listings
  TxStore: Store plus all-or-nothing execution of several writes

APPEND-ONLY CONTRACT:
  AppendTransaction is the only ledger write. There is no update or delete
  for transactions, and no delete for materials or projects.

GUARDED COUNTER:
  AdjustStock must refuse to move a counter below zero and report
  InsufficientStockError instead. Combined with WithTx this closes the
  check-then-act window between reading stock and decrementing it.

IMPLEMENTATIONS:
  - inventory/store/memory.go: In-memory, for tests and demos
  - store/sqlite/sqlite.go:    SQLite (mattn/go-sqlite3)
  - store/postgres/postgres.go: PostgreSQL (pgx pool, goose migrations)
*/
package inventory

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of materials, projects and the transaction ledger.
type Store interface {
	// CreateMaterial inserts a material with zero stock and returns it with its ID.
	CreateMaterial(ctx context.Context, m Material) (Material, error)
	ListMaterials(ctx context.Context) ([]Material, error)
	// GetMaterial returns a *NotFoundError when the id is unknown.
	GetMaterial(ctx context.Context, id MaterialID) (Material, error)

	CreateProject(ctx context.Context, p Project) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id ProjectID) (Project, error)

	// AppendTransaction persists a ledger entry. A zero CreatedAt is stamped
	// by the store.
	AppendTransaction(ctx context.Context, tx Transaction) (Transaction, error)

	// AdjustStock adds delta to the material's counter and returns the new
	// value. Fails with *InsufficientStockError if the result would be negative.
	AdjustStock(ctx context.Context, id MaterialID, delta int64) (int64, error)

	// ListTransactions returns matching entries newest first (CreatedAt desc, ID desc).
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionEntry, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed Store is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
