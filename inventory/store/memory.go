// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/materials-ledger/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	materials    map[inventory.MaterialID]inventory.Material
	projects     map[inventory.ProjectID]inventory.Project
	transactions []inventory.Transaction // append order
	seq          sequences
	now          func() time.Time
}

type sequences struct {
	material    int64
	project     int64
	transaction int64
}

func NewMemory() *Memory {
	return &Memory{
		materials: make(map[inventory.MaterialID]inventory.Material),
		projects:  make(map[inventory.ProjectID]inventory.Project),
		now:       time.Now,
	}
}

func (m *Memory) CreateMaterial(_ context.Context, mat inventory.Material) (inventory.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createMaterialLocked(mat), nil
}

func (m *Memory) createMaterialLocked(mat inventory.Material) inventory.Material {
	m.seq.material++
	now := m.now().UTC()
	mat.ID = inventory.MaterialID(m.seq.material)
	mat.Stock = 0
	mat.CreatedAt = now
	mat.UpdatedAt = now
	m.materials[mat.ID] = mat
	return mat
}

func (m *Memory) ListMaterials(_ context.Context) ([]inventory.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMaterialsLocked(), nil
}

func (m *Memory) listMaterialsLocked() []inventory.Material {
	out := make([]inventory.Material, 0, len(m.materials))
	for _, mat := range m.materials {
		out = append(out, mat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) GetMaterial(_ context.Context, id inventory.MaterialID) (inventory.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMaterialLocked(id)
}

func (m *Memory) getMaterialLocked(id inventory.MaterialID) (inventory.Material, error) {
	mat, ok := m.materials[id]
	if !ok {
		return inventory.Material{}, inventory.MaterialNotFound(id)
	}
	return mat, nil
}

func (m *Memory) CreateProject(_ context.Context, p inventory.Project) (inventory.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createProjectLocked(p), nil
}

func (m *Memory) createProjectLocked(p inventory.Project) inventory.Project {
	m.seq.project++
	p.ID = inventory.ProjectID(m.seq.project)
	p.CreatedAt = m.now().UTC()
	m.projects[p.ID] = p
	return p
}

func (m *Memory) ListProjects(_ context.Context) ([]inventory.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listProjectsLocked(), nil
}

func (m *Memory) listProjectsLocked() []inventory.Project {
	out := make([]inventory.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) GetProject(_ context.Context, id inventory.ProjectID) (inventory.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProjectLocked(id)
}

func (m *Memory) getProjectLocked(id inventory.ProjectID) (inventory.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return inventory.Project{}, inventory.ProjectNotFound(id)
	}
	return p, nil
}

// AppendTransaction adds a ledger entry. Append-only.
func (m *Memory) AppendTransaction(_ context.Context, tx inventory.Transaction) (inventory.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx inventory.Transaction) (inventory.Transaction, error) {
	// Foreign keys, as the SQL stores enforce them.
	if _, ok := m.materials[tx.MaterialID]; !ok {
		return inventory.Transaction{}, inventory.MaterialNotFound(tx.MaterialID)
	}
	if tx.ProjectID != nil {
		if _, ok := m.projects[*tx.ProjectID]; !ok {
			return inventory.Transaction{}, inventory.ProjectNotFound(*tx.ProjectID)
		}
		pid := *tx.ProjectID
		tx.ProjectID = &pid
	}

	m.seq.transaction++
	tx.ID = inventory.TransactionID(m.seq.transaction)
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = m.now()
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	m.transactions = append(m.transactions, tx)
	return tx, nil
}

func (m *Memory) AdjustStock(_ context.Context, id inventory.MaterialID, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustLocked(id, delta)
}

func (m *Memory) adjustLocked(id inventory.MaterialID, delta int64) (int64, error) {
	mat, ok := m.materials[id]
	if !ok {
		return 0, inventory.MaterialNotFound(id)
	}
	if mat.Stock+delta < 0 {
		return 0, &inventory.InsufficientStockError{MaterialID: id, Available: mat.Stock, Requested: -delta}
	}
	mat.Stock += delta
	mat.UpdatedAt = m.now().UTC()
	m.materials[id] = mat
	return mat.Stock, nil
}

func (m *Memory) ListTransactions(_ context.Context, filter inventory.TransactionFilter) ([]inventory.TransactionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactionsLocked(filter), nil
}

func (m *Memory) listTransactionsLocked(filter inventory.TransactionFilter) []inventory.TransactionEntry {
	out := make([]inventory.TransactionEntry, 0)
	for _, tx := range m.transactions {
		if filter.MaterialID != nil && tx.MaterialID != *filter.MaterialID {
			continue
		}
		if filter.ProjectID != nil && (tx.ProjectID == nil || *tx.ProjectID != *filter.ProjectID) {
			continue
		}

		entry := inventory.TransactionEntry{Transaction: tx, Material: m.materials[tx.MaterialID]}
		if tx.ProjectID != nil {
			pid := *tx.ProjectID
			p := m.projects[pid]
			entry.ProjectID = &pid
			entry.Project = &p
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	materials    map[inventory.MaterialID]inventory.Material
	projects     map[inventory.ProjectID]inventory.Project
	transactions []inventory.Transaction
	seq          sequences
}

func (tm *TxMemory) snapshot() memorySnapshot {
	mats := make(map[inventory.MaterialID]inventory.Material, len(tm.materials))
	for k, v := range tm.materials {
		mats[k] = v
	}
	projects := make(map[inventory.ProjectID]inventory.Project, len(tm.projects))
	for k, v := range tm.projects {
		projects[k] = v
	}
	return memorySnapshot{
		materials:    mats,
		projects:     projects,
		transactions: append([]inventory.Transaction{}, tm.transactions...),
		seq:          tm.seq,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.materials = s.materials
	tm.projects = s.projects
	tm.transactions = s.transactions
	tm.seq = s.seq
}

// txMemoryView runs under the parent's write lock, so it uses the *Locked helpers.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreateMaterial(_ context.Context, mat inventory.Material) (inventory.Material, error) {
	return tv.parent.createMaterialLocked(mat), nil
}

func (tv *txMemoryView) ListMaterials(_ context.Context) ([]inventory.Material, error) {
	return tv.parent.listMaterialsLocked(), nil
}

func (tv *txMemoryView) GetMaterial(_ context.Context, id inventory.MaterialID) (inventory.Material, error) {
	return tv.parent.getMaterialLocked(id)
}

func (tv *txMemoryView) CreateProject(_ context.Context, p inventory.Project) (inventory.Project, error) {
	return tv.parent.createProjectLocked(p), nil
}

func (tv *txMemoryView) ListProjects(_ context.Context) ([]inventory.Project, error) {
	return tv.parent.listProjectsLocked(), nil
}

func (tv *txMemoryView) GetProject(_ context.Context, id inventory.ProjectID) (inventory.Project, error) {
	return tv.parent.getProjectLocked(id)
}

func (tv *txMemoryView) AppendTransaction(_ context.Context, tx inventory.Transaction) (inventory.Transaction, error) {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) AdjustStock(_ context.Context, id inventory.MaterialID, delta int64) (int64, error) {
	return tv.parent.adjustLocked(id, delta)
}

func (tv *txMemoryView) ListTransactions(_ context.Context, filter inventory.TransactionFilter) ([]inventory.TransactionEntry, error) {
	return tv.parent.listTransactionsLocked(filter), nil
}
