/*
ledger.go - Catalog and read side of the materials ledger

PURPOSE:
  Ledger is the entry point for everything that is not a stock movement:
  creating and listing materials and projects, listing the transaction log,
  and auditing stock counters against the log.

AUDIT:
  Material.Stock is a denormalized counter. AuditStock replays the ledger
  for a material and compares the result with the counter. A mismatch means
  a write bypassed the StockMutator and is reported, never repaired here.

SEE ALSO:
  - mutator.go: The only code path that writes transactions
  - report.go:  Per-project aggregation
*/
package inventory

import (
	"context"
	"strings"
)

// Ledger serves catalog writes and ledger reads.
type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// =============================================================================
// CATALOG
// =============================================================================

// CreateMaterial validates in and stores a new material with zero stock.
func (l *Ledger) CreateMaterial(ctx context.Context, in NewMaterial) (Material, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	if err := in.validate(); err != nil {
		return Material{}, err
	}

	m, err := l.Store.CreateMaterial(ctx, Material{
		Name:        in.Name,
		Description: in.Description,
		Unit:        in.Unit,
		UnitPrice:   in.UnitPrice.Decimal,
	})
	return m, wrapStore("create material", err)
}

func (l *Ledger) ListMaterials(ctx context.Context) ([]Material, error) {
	ms, err := l.Store.ListMaterials(ctx)
	return ms, wrapStore("list materials", err)
}

func (l *Ledger) GetMaterial(ctx context.Context, id MaterialID) (Material, error) {
	m, err := l.Store.GetMaterial(ctx, id)
	return m, wrapStore("get material", err)
}

// CreateProject validates in and stores a new project.
func (l *Ledger) CreateProject(ctx context.Context, in NewProject) (Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := Validate(in); err != nil {
		return Project{}, err
	}

	p, err := l.Store.CreateProject(ctx, Project{Name: in.Name, Description: in.Description})
	return p, wrapStore("create project", err)
}

func (l *Ledger) ListProjects(ctx context.Context) ([]Project, error) {
	ps, err := l.Store.ListProjects(ctx)
	return ps, wrapStore("list projects", err)
}

func (l *Ledger) GetProject(ctx context.Context, id ProjectID) (Project, error) {
	p, err := l.Store.GetProject(ctx, id)
	return p, wrapStore("get project", err)
}

// =============================================================================
// LEDGER READS
// =============================================================================

// Transactions lists the log newest first. A nil projectID lists every
// transaction in the system.
func (l *Ledger) Transactions(ctx context.Context, projectID *ProjectID) ([]TransactionEntry, error) {
	entries, err := l.Store.ListTransactions(ctx, TransactionFilter{ProjectID: projectID})
	return entries, wrapStore("list transactions", err)
}

// AuditStock recomputes one material's stock from its transactions.
func (l *Ledger) AuditStock(ctx context.Context, id MaterialID) (StockAudit, error) {
	m, err := l.Store.GetMaterial(ctx, id)
	if err != nil {
		return StockAudit{}, wrapStore("audit stock", err)
	}
	entries, err := l.Store.ListTransactions(ctx, TransactionFilter{MaterialID: &id})
	if err != nil {
		return StockAudit{}, wrapStore("audit stock", err)
	}
	return auditOf(m, entries), nil
}

// AuditAll audits every material in id order.
func (l *Ledger) AuditAll(ctx context.Context) ([]StockAudit, error) {
	materials, err := l.Store.ListMaterials(ctx)
	if err != nil {
		return nil, wrapStore("audit stock", err)
	}
	entries, err := l.Store.ListTransactions(ctx, TransactionFilter{})
	if err != nil {
		return nil, wrapStore("audit stock", err)
	}

	byMaterial := make(map[MaterialID][]TransactionEntry)
	for _, e := range entries {
		byMaterial[e.MaterialID] = append(byMaterial[e.MaterialID], e)
	}

	audits := make([]StockAudit, len(materials))
	for i, m := range materials {
		audits[i] = auditOf(m, byMaterial[m.ID])
	}
	return audits, nil
}

// DerivedStock folds signed quantities into the stock they imply.
func DerivedStock(entries []TransactionEntry) int64 {
	var stock int64
	for _, e := range entries {
		stock += e.Delta()
	}
	return stock
}

func auditOf(m Material, entries []TransactionEntry) StockAudit {
	derived := DerivedStock(entries)
	return StockAudit{
		MaterialID: m.ID,
		Recorded:   m.Stock,
		Derived:    derived,
		Consistent: derived == m.Stock,
	}
}
