/*
Package inventory provides the materials ledger: stock records, the
append-only transaction log, and the per-project cost report.

KEY CONCEPTS IN THIS FILE (types.go):
  - Material: a stocked item with a unit price and a denormalized stock counter
  - Project: a cost bucket that withdrawals and returns are booked against
  - Transaction: an immutable ledger entry recording one stock movement
  - TransactionEntry: a transaction joined with its material and project

LEDGER INVARIANT:
  For every material, Stock equals the sum of RECEIVE and RETURN quantities
  minus the sum of WITHDRAW quantities in its transaction history. The
  transaction log is authoritative; Stock is a cached read-side value that
  is only ever changed in the same store transaction as a ledger append.

MONEY:
  Unit prices and costs use decimal.Decimal. Quantities are whole units.

SEE ALSO:
  - store.go: Persistence contract
  - mutator.go: Receive / Withdraw / Return
  - report.go: Project usage and cost fold
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MaterialID int64
type ProjectID int64
type TransactionID int64

// =============================================================================
// CATALOG
// =============================================================================

// Material is a stocked inventory item.
type Material struct {
	ID          MaterialID
	Name        string
	Description string
	Unit        string
	UnitPrice   decimal.Decimal
	Stock       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Project is a cost-tracking bucket.
type Project struct {
	ID          ProjectID
	Name        string
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// TRANSACTION - Immutable stock movement
// =============================================================================

type TxType string

const (
	TxReceive  TxType = "RECEIVE"  // Stock arrives from a supplier, never tied to a project
	TxWithdraw TxType = "WITHDRAW" // Stock leaves for a project
	TxReturn   TxType = "RETURN"   // Unused stock comes back from a project
)

// Valid reports whether t is one of the known movement types.
func (t TxType) Valid() bool {
	switch t {
	case TxReceive, TxWithdraw, TxReturn:
		return true
	}
	return false
}

// Sign is the direction the movement moves the stock counter.
func (t TxType) Sign() int64 {
	if t == TxWithdraw {
		return -1
	}
	return 1
}

// RequiresProject reports whether a movement of this type must reference a project.
func (t TxType) RequiresProject() bool {
	return t == TxWithdraw || t == TxReturn
}

type Transaction struct {
	ID         TransactionID
	MaterialID MaterialID
	ProjectID  *ProjectID // nil for RECEIVE
	Quantity   int64      // always positive; direction comes from Type
	Type       TxType
	Notes      string
	CreatedAt  time.Time
}

// Delta is the signed change this transaction applies to stock.
func (tx Transaction) Delta() int64 {
	return tx.Type.Sign() * tx.Quantity
}

// TransactionEntry is a transaction joined with the rows it references.
type TransactionEntry struct {
	Transaction
	Material Material
	Project  *Project
}

// TransactionFilter narrows ListTransactions. Nil fields match everything.
type TransactionFilter struct {
	ProjectID  *ProjectID
	MaterialID *MaterialID
}

// =============================================================================
// REPORT
// =============================================================================

// MaterialUsage accumulates one material's movements within a project.
type MaterialUsage struct {
	Material       Material
	TotalWithdrawn int64
	TotalReturned  int64
	NetUsage       int64           // may be negative when returns exceed withdrawals
	TotalCost      decimal.Decimal // NetUsage * current unit price
}

// Report is the usage and cost breakdown of a single project.
type Report struct {
	Project       Project
	MaterialUsage []MaterialUsage // in order of first appearance in the ledger
	TotalCost     decimal.Decimal
}

// StockAudit compares the stored counter with the value derived from the ledger.
type StockAudit struct {
	MaterialID MaterialID
	Recorded   int64
	Derived    int64
	Consistent bool
}

// ProjectRef returns a pointer to id, for building filters and inputs.
func ProjectRef(id ProjectID) *ProjectID { return &id }

// MaterialRef returns a pointer to id.
func MaterialRef(id MaterialID) *MaterialID { return &id }
