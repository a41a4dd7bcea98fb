/*
Package storetest is a behavioral suite every inventory.TxStore must pass.

USAGE:
  func TestSQLiteStore(t *testing.T) {
      storetest.Run(t, func(t *testing.T) inventory.TxStore {
          s, err := sqlite.New(":memory:")
          require.NoError(t, err)
          t.Cleanup(func() { s.Close() })
          return s
      })
  }

Each subtest gets a fresh store from the factory.
*/
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/materials-ledger/inventory"
)

// Factory returns an empty store.
type Factory func(t *testing.T) inventory.TxStore

var errRollback = errors.New("rollback requested")

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("MaterialCreateGetList", func(t *testing.T) { testMaterials(t, newStore(t)) })
	t.Run("MaterialNotFound", func(t *testing.T) { testMaterialNotFound(t, newStore(t)) })
	t.Run("MaterialPriceIsExact", func(t *testing.T) { testMaterialPrice(t, newStore(t)) })
	t.Run("Projects", func(t *testing.T) { testProjects(t, newStore(t)) })
	t.Run("AdjustStockGuard", func(t *testing.T) { testAdjustStock(t, newStore(t)) })
	t.Run("TransactionsNewestFirst", func(t *testing.T) { testTransactionOrder(t, newStore(t)) })
	t.Run("TransactionsFilter", func(t *testing.T) { testTransactionFilter(t, newStore(t)) })
	t.Run("TransactionTieBreak", func(t *testing.T) { testTieBreak(t, newStore(t)) })
	t.Run("AppendRequiresMaterial", func(t *testing.T) { testAppendForeignKeys(t, newStore(t)) })
	t.Run("WithTxCommit", func(t *testing.T) { testWithTxCommit(t, newStore(t)) })
	t.Run("WithTxRollback", func(t *testing.T) { testWithTxRollback(t, newStore(t)) })
	t.Run("ConcurrentWithdrawals", func(t *testing.T) { testConcurrentWithdrawals(t, newStore(t)) })
}

func seedMaterial(t *testing.T, s inventory.Store, name, price string) inventory.Material {
	t.Helper()
	m, err := s.CreateMaterial(context.Background(), inventory.Material{
		Name:      name,
		Unit:      "pcs",
		UnitPrice: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return m
}

func seedProject(t *testing.T, s inventory.Store, name string) inventory.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), inventory.Project{Name: name})
	require.NoError(t, err)
	return p
}

func at(minute int) time.Time {
	return time.Date(2025, time.March, 10, 9, minute, 0, 0, time.UTC)
}

// =============================================================================
// CATALOG
// =============================================================================

func testMaterials(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()

	created, err := s.CreateMaterial(ctx, inventory.Material{
		Name:        "Cement",
		Description: "Portland, 25kg bag",
		Unit:        "bag",
		UnitPrice:   decimal.RequireFromString("12.50"),
		Stock:       99, // ignored: stock always starts at zero
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, int64(0), created.Stock)

	got, err := s.GetMaterial(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cement", got.Name)
	assert.Equal(t, "Portland, 25kg bag", got.Description)
	assert.Equal(t, "bag", got.Unit)
	assert.True(t, decimal.RequireFromString("12.5").Equal(got.UnitPrice), "price %s", got.UnitPrice)
	assert.Equal(t, int64(0), got.Stock)

	second := seedMaterial(t, s, "Sand", "3")
	list, err := s.ListMaterials(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func testMaterialNotFound(t *testing.T, s inventory.TxStore) {
	_, err := s.GetMaterial(context.Background(), 4242)
	require.Error(t, err)
	assert.True(t, inventory.IsNotFound(err))

	var nf *inventory.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "material", nf.Kind)
	assert.Equal(t, int64(4242), nf.ID)
}

func testMaterialPrice(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()

	for _, price := range []string{"0.1234", "98765432109876543.5", "0"} {
		m := seedMaterial(t, s, "Priced "+price, price)
		got, err := s.GetMaterial(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString(price).Equal(got.UnitPrice), "want %s, got %s", price, got.UnitPrice)
	}
}

func testProjects(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()

	p, err := s.CreateProject(ctx, inventory.Project{Name: "Bridge", Description: "Pier 4"})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bridge", got.Name)
	assert.Equal(t, "Pier 4", got.Description)

	seedProject(t, s, "Tunnel")
	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = s.GetProject(ctx, 777)
	assert.True(t, inventory.IsNotFound(err))
}

// =============================================================================
// STOCK COUNTER
// =============================================================================

func testAdjustStock(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	m := seedMaterial(t, s, "Rebar", "4")

	stock, err := s.AdjustStock(ctx, m.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stock)

	stock, err = s.AdjustStock(ctx, m.ID, -10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stock)

	_, err = s.AdjustStock(ctx, m.ID, -1)
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	got, err := s.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Stock, "failed adjustment must not change stock")

	_, err = s.AdjustStock(ctx, 999, 1)
	assert.True(t, inventory.IsNotFound(err))
}

// =============================================================================
// LEDGER
// =============================================================================

func testTransactionOrder(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	m := seedMaterial(t, s, "Gravel", "2")
	p := seedProject(t, s, "Road")

	first, err := s.AppendTransaction(ctx, inventory.Transaction{
		MaterialID: m.ID, Quantity: 50, Type: inventory.TxReceive, CreatedAt: at(1),
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Nil(t, first.ProjectID)

	second, err := s.AppendTransaction(ctx, inventory.Transaction{
		MaterialID: m.ID, ProjectID: inventory.ProjectRef(p.ID), Quantity: 20,
		Type: inventory.TxWithdraw, Notes: "north lane", CreatedAt: at(2),
	})
	require.NoError(t, err)

	entries, err := s.ListTransactions(ctx, inventory.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, second.ID, entries[0].ID, "newest first")
	assert.Equal(t, first.ID, entries[1].ID)

	assert.Equal(t, inventory.TxWithdraw, entries[0].Type)
	assert.Equal(t, int64(20), entries[0].Quantity)
	assert.Equal(t, "north lane", entries[0].Notes)
	assert.Equal(t, "Gravel", entries[0].Material.Name)
	require.NotNil(t, entries[0].Project)
	assert.Equal(t, "Road", entries[0].Project.Name)
	assert.True(t, at(2).Equal(entries[0].CreatedAt))

	assert.Nil(t, entries[1].ProjectID)
	assert.Nil(t, entries[1].Project)
}

func testTransactionFilter(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	m1 := seedMaterial(t, s, "Brick", "1")
	m2 := seedMaterial(t, s, "Mortar", "6")
	p1 := seedProject(t, s, "House")
	p2 := seedProject(t, s, "Garage")

	appendTx := func(m inventory.MaterialID, p inventory.ProjectID, typ inventory.TxType, minute int) {
		t.Helper()
		_, err := s.AppendTransaction(ctx, inventory.Transaction{
			MaterialID: m, ProjectID: inventory.ProjectRef(p), Quantity: 1, Type: typ, CreatedAt: at(minute),
		})
		require.NoError(t, err)
	}
	appendTx(m1.ID, p1.ID, inventory.TxWithdraw, 1)
	appendTx(m2.ID, p2.ID, inventory.TxWithdraw, 2)
	appendTx(m1.ID, p1.ID, inventory.TxReturn, 3)
	appendTx(m2.ID, p1.ID, inventory.TxWithdraw, 4)

	byProject, err := s.ListTransactions(ctx, inventory.TransactionFilter{ProjectID: inventory.ProjectRef(p1.ID)})
	require.NoError(t, err)
	require.Len(t, byProject, 3)
	for _, e := range byProject {
		require.NotNil(t, e.ProjectID)
		assert.Equal(t, p1.ID, *e.ProjectID)
	}
	assert.True(t, at(4).Equal(byProject[0].CreatedAt))
	assert.True(t, at(1).Equal(byProject[2].CreatedAt))

	byMaterial, err := s.ListTransactions(ctx, inventory.TransactionFilter{MaterialID: inventory.MaterialRef(m2.ID)})
	require.NoError(t, err)
	require.Len(t, byMaterial, 2)
	assert.Equal(t, m2.ID, byMaterial[0].MaterialID)

	none, err := s.ListTransactions(ctx, inventory.TransactionFilter{ProjectID: inventory.ProjectRef(9999)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testTieBreak(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	m := seedMaterial(t, s, "Nails", "0.05")

	var ids []inventory.TransactionID
	for i := 0; i < 3; i++ {
		tx, err := s.AppendTransaction(ctx, inventory.Transaction{
			MaterialID: m.ID, Quantity: int64(i + 1), Type: inventory.TxReceive, CreatedAt: at(5),
		})
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}

	entries, err := s.ListTransactions(ctx, inventory.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ids[2], entries[0].ID)
	assert.Equal(t, ids[1], entries[1].ID)
	assert.Equal(t, ids[0], entries[2].ID)
}

func testAppendForeignKeys(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()

	_, err := s.AppendTransaction(ctx, inventory.Transaction{
		MaterialID: 31337, Quantity: 1, Type: inventory.TxReceive,
	})
	assert.Error(t, err)

	m := seedMaterial(t, s, "Tile", "2")
	_, err = s.AppendTransaction(ctx, inventory.Transaction{
		MaterialID: m.ID, ProjectID: inventory.ProjectRef(31337), Quantity: 1, Type: inventory.TxWithdraw,
	})
	assert.Error(t, err)

	entries, err := s.ListTransactions(ctx, inventory.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// ATOMICITY
// =============================================================================

func testWithTxCommit(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	m := seedMaterial(t, s, "Pipe", "9")

	err := s.WithTx(ctx, func(tx inventory.Store) error {
		if _, err := tx.AppendTransaction(ctx, inventory.Transaction{
			MaterialID: m.ID, Quantity: 7, Type: inventory.TxReceive,
		}); err != nil {
			return err
		}
		_, err := tx.AdjustStock(ctx, m.ID, 7)
		return err
	})
	require.NoError(t, err)

	got, err := s.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Stock)

	entries, err := s.ListTransactions(ctx, inventory.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func testWithTxRollback(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	m := seedMaterial(t, s, "Cable", "1.25")

	err := s.WithTx(ctx, func(tx inventory.Store) error {
		if _, err := tx.AppendTransaction(ctx, inventory.Transaction{
			MaterialID: m.ID, Quantity: 3, Type: inventory.TxReceive,
		}); err != nil {
			return err
		}
		if _, err := tx.AdjustStock(ctx, m.ID, 3); err != nil {
			return err
		}
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	got, err := s.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Stock, "stock change must be rolled back")

	entries, err := s.ListTransactions(ctx, inventory.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "ledger append must be rolled back")

	// Sequences may advance, but the store must remain usable.
	_, err = s.AdjustStock(ctx, m.ID, 1)
	require.NoError(t, err)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// testConcurrentWithdrawals drives the real mutator so the store's locking
// and guarded decrement are exercised together.
func testConcurrentWithdrawals(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	m := seedMaterial(t, s, "Helmet", "15")
	p := seedProject(t, s, "Site safety")

	mutator := inventory.NewStockMutator(s, nil)
	_, err := mutator.Receive(ctx, inventory.ReceiveInput{MaterialID: m.ID, Quantity: 10})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
		other     []error
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: m.ID, ProjectID: p.ID, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, inventory.ErrInsufficientStock):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 15, rejected)

	got, err := s.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Stock)

	entries, err := s.ListTransactions(ctx, inventory.TransactionFilter{MaterialID: inventory.MaterialRef(m.ID)})
	require.NoError(t, err)
	assert.Len(t, entries, 11)
	assert.Equal(t, got.Stock, inventory.DerivedStock(entries))
}
