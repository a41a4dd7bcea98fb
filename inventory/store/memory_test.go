package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/materials-ledger/inventory"
	"github.com/warp/materials-ledger/inventory/store"
	"github.com/warp/materials-ledger/inventory/storetest"
)

func TestTxMemory_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) inventory.TxStore {
		return store.NewTxMemory()
	})
}

func TestTxMemory_ReturnedEntriesAreCopies(t *testing.T) {
	// GIVEN: a withdrawal booked against a project
	// WHEN: a caller mutates the returned project pointer
	// THEN: the stored ledger is unaffected

	s := store.NewTxMemory()
	ctx := context.Background()

	m, err := s.CreateMaterial(ctx, inventory.Material{Name: "Glue", Unit: "tube"})
	require.NoError(t, err)
	p, err := s.CreateProject(ctx, inventory.Project{Name: "Shelf"})
	require.NoError(t, err)

	pid := p.ID
	_, err = s.AppendTransaction(ctx, inventory.Transaction{
		MaterialID: m.ID, ProjectID: &pid, Quantity: 1, Type: inventory.TxWithdraw,
	})
	require.NoError(t, err)
	pid = 999

	entries, err := s.ListTransactions(ctx, inventory.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, p.ID, *entries[0].ProjectID)

	*entries[0].ProjectID = 12345
	again, err := s.ListTransactions(ctx, inventory.TransactionFilter{ProjectID: inventory.ProjectRef(p.ID)})
	require.NoError(t, err)
	assert.Len(t, again, 1)
}
