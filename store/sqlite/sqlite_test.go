package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/materials-ledger/inventory"
	"github.com/warp/materials-ledger/inventory/storetest"
)

func newTestStore(t *testing.T) *Store {
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) inventory.TxStore {
		return newTestStore(t)
	})
}

func TestStore_TransactionsAreAppendOnly(t *testing.T) {
	// GIVEN: a ledger row
	// WHEN: something tries to edit or delete it with raw SQL
	// THEN: the triggers abort the statement

	store := newTestStore(t)
	ctx := context.Background()

	m, err := store.CreateMaterial(ctx, inventory.Material{Name: "Lime", Unit: "kg"})
	require.NoError(t, err)
	tx, err := store.AppendTransaction(ctx, inventory.Transaction{MaterialID: m.ID, Quantity: 5, Type: inventory.TxReceive})
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, "UPDATE transactions SET quantity = 500 WHERE id = ?", tx.ID)
	assert.ErrorContains(t, err, "append-only")

	_, err = store.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", tx.ID)
	assert.ErrorContains(t, err, "append-only")
}

func TestStore_RejectsUnknownTransactionType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m, err := store.CreateMaterial(ctx, inventory.Material{Name: "Lime", Unit: "kg"})
	require.NoError(t, err)

	_, err = store.AppendTransaction(ctx, inventory.Transaction{MaterialID: m.ID, Quantity: 1, Type: "ADJUST"})
	assert.Error(t, err)

	_, err = store.AppendTransaction(ctx, inventory.Transaction{MaterialID: m.ID, Quantity: 0, Type: inventory.TxReceive})
	assert.Error(t, err, "quantity must be positive")
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: a file-backed store with one material and one receipt
	// WHEN: the store is closed and reopened
	// THEN: catalog, ledger and stock counter are all still there

	path := filepath.Join(t.TempDir(), "materials.db")
	ctx := context.Background()

	first, err := New(path)
	require.NoError(t, err)

	m, err := first.CreateMaterial(ctx, inventory.Material{
		Name: "Timber", Unit: "m", UnitPrice: decimal.RequireFromString("7.35"),
	})
	require.NoError(t, err)

	err = first.WithTx(ctx, func(s inventory.Store) error {
		if _, err := s.AppendTransaction(ctx, inventory.Transaction{MaterialID: m.ID, Quantity: 40, Type: inventory.TxReceive}); err != nil {
			return err
		}
		_, err := s.AdjustStock(ctx, m.ID, 40)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.Stock)
	assert.True(t, decimal.RequireFromString("7.35").Equal(got.UnitPrice))

	entries, err := second.ListTransactions(ctx, inventory.TransactionFilter{MaterialID: &m.ID})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_ReceiveOverflowIsRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ledger := inventory.NewLedger(store)
	mutator := inventory.NewStockMutator(store, nil)

	m, err := ledger.CreateMaterial(ctx, inventory.NewMaterial{
		Name: "Nails", Unit: "pcs", UnitPrice: decimal.NewNullDecimal(decimal.RequireFromString("0.02")),
	})
	require.NoError(t, err)
	_, err = mutator.Receive(ctx, inventory.ReceiveInput{MaterialID: m.ID, Quantity: math.MaxInt64})
	require.NoError(t, err)

	_, err = mutator.Receive(ctx, inventory.ReceiveInput{MaterialID: m.ID, Quantity: 1})
	assert.ErrorIs(t, err, inventory.ErrValidation)
	assert.NotErrorIs(t, err, inventory.ErrStore)

	got, err := store.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got.Stock)
}
