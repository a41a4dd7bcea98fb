package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/materials-ledger/inventory"
)

// =============================================================================
// CATALOG
// =============================================================================

func TestLedger_CreateMaterial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.ledger.CreateMaterial(ctx, inventory.NewMaterial{
		Name:        "  Plywood  ",
		Description: "18mm birch",
		Unit:        "sheet",
		UnitPrice:   decimal.NewNullDecimal(decimal.RequireFromString("42.90")),
	})
	require.NoError(t, err)
	assert.Equal(t, "Plywood", m.Name)
	assert.Equal(t, int64(0), m.Stock)
	assertDecimal(t, "42.9", m.UnitPrice)

	list, err := f.ledger.ListMaterials(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, m.ID, list[0].ID)
}

func TestLedger_CreateMaterialValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    inventory.NewMaterial
		field string
	}{
		{"blank name", inventory.NewMaterial{Name: "   ", Unit: "kg", UnitPrice: price("1")}, "name"},
		{"missing unit", inventory.NewMaterial{Name: "Lime", UnitPrice: price("1")}, "unit"},
		{"missing price", inventory.NewMaterial{Name: "Lime", Unit: "kg"}, "unitPrice"},
		{"negative price", inventory.NewMaterial{Name: "Lime", Unit: "kg", UnitPrice: price("-1")}, "unitPrice"},
		{"five decimal places", inventory.NewMaterial{Name: "Lime", Unit: "kg", UnitPrice: price("0.00001")}, "unitPrice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.CreateMaterial(ctx, tt.in)
			var ve *inventory.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
		})
	}

	list, err := f.ledger.ListMaterials(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLedger_CreateMaterialKeepsFourDecimals(t *testing.T) {
	f := newFixture(t)

	m, err := f.ledger.CreateMaterial(context.Background(), inventory.NewMaterial{
		Name: "Copper wire", Unit: "m", UnitPrice: price("0.12340"),
	})
	require.NoError(t, err)
	assertDecimal(t, "0.1234", m.UnitPrice)
}

func TestLedger_CreateMaterialFreePriceIsExplicit(t *testing.T) {
	f := newFixture(t)

	m, err := f.ledger.CreateMaterial(context.Background(), inventory.NewMaterial{
		Name: "Offcuts", Unit: "kg", UnitPrice: price("0"),
	})
	require.NoError(t, err)
	assert.True(t, m.UnitPrice.IsZero())
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestLedger_Projects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateProject(ctx, inventory.NewProject{})
	assert.ErrorIs(t, err, inventory.ErrValidation)

	p := f.project(t, "School roof")
	got, err := f.ledger.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "School roof", got.Name)

	_, err = f.ledger.GetProject(ctx, p.ID+1)
	assert.True(t, inventory.IsNotFound(err))

	list, err := f.ledger.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// =============================================================================
// LEDGER READS
// =============================================================================

func TestLedger_TransactionsByProjectNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.material(t, "Cement", "10")
	p := f.project(t, "Bridge")
	q := f.project(t, "Tunnel")
	f.receive(t, m.ID, 100)

	w1, err := f.mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: m.ID, ProjectID: p.ID, Quantity: 10})
	require.NoError(t, err)
	_, err = f.mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: m.ID, ProjectID: q.ID, Quantity: 10})
	require.NoError(t, err)
	r1, err := f.mutator.Return(ctx, inventory.ReturnInput{MaterialID: m.ID, ProjectID: p.ID, Quantity: 3})
	require.NoError(t, err)

	entries, err := f.ledger.Transactions(ctx, inventory.ProjectRef(p.ID))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, r1.ID, entries[0].ID)
	assert.Equal(t, w1.ID, entries[1].ID)
	for _, e := range entries {
		assert.Equal(t, "Cement", e.Material.Name)
		require.NotNil(t, e.Project)
		assert.Equal(t, "Bridge", e.Project.Name)
	}

	all, err := f.ledger.Transactions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, inventory.TxReceive, all[3].Type, "the receipt is the oldest entry")
}

// =============================================================================
// AUDIT
// =============================================================================

func TestLedger_AuditMatchesAfterMovements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.material(t, "Nails", "0.02")
	b := f.material(t, "Screws", "0.05")
	p := f.project(t, "Deck")

	f.receive(t, a.ID, 500)
	f.receive(t, b.ID, 300)
	_, err := f.mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: a.ID, ProjectID: p.ID, Quantity: 120})
	require.NoError(t, err)
	_, err = f.mutator.Return(ctx, inventory.ReturnInput{MaterialID: a.ID, ProjectID: p.ID, Quantity: 20})
	require.NoError(t, err)
	_, err = f.mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: b.ID, ProjectID: p.ID, Quantity: 1000})
	require.Error(t, err)

	audits, err := f.ledger.AuditAll(ctx)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	for _, audit := range audits {
		assert.True(t, audit.Consistent, "material %d: recorded %d derived %d", audit.MaterialID, audit.Recorded, audit.Derived)
	}
	assert.Equal(t, int64(400), audits[0].Derived)
	assert.Equal(t, int64(300), audits[1].Derived)
}

func TestLedger_AuditDetectsDrift(t *testing.T) {
	// GIVEN: a counter changed without a ledger entry
	// WHEN: the material is audited
	// THEN: the mismatch is reported

	f := newFixture(t)
	ctx := context.Background()
	m := f.material(t, "Sand", "1")
	f.receive(t, m.ID, 10)

	_, err := f.store.AdjustStock(ctx, m.ID, 5)
	require.NoError(t, err)

	audit, err := f.ledger.AuditStock(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, audit.Consistent)
	assert.Equal(t, int64(15), audit.Recorded)
	assert.Equal(t, int64(10), audit.Derived)

	_, err = f.ledger.AuditStock(ctx, 404)
	assert.True(t, inventory.IsNotFound(err))
}

func TestDerivedStock(t *testing.T) {
	entries := []inventory.TransactionEntry{
		{Transaction: inventory.Transaction{Type: inventory.TxReceive, Quantity: 100}},
		{Transaction: inventory.Transaction{Type: inventory.TxWithdraw, Quantity: 30}},
		{Transaction: inventory.Transaction{Type: inventory.TxReturn, Quantity: 5}},
	}
	assert.Equal(t, int64(75), inventory.DerivedStock(entries))
	assert.Equal(t, int64(0), inventory.DerivedStock(nil))
}
