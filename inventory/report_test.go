package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/materials-ledger/inventory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestReport_WithdrawAndReturn(t *testing.T) {
	// GIVEN: 30 withdrawn and 5 returned at price 10
	// WHEN: the project report is built
	// THEN: net usage is 25 and cost is 250

	f := newFixture(t)
	ctx := context.Background()
	m := f.material(t, "Cement", "10")
	p := f.project(t, "Warehouse extension")
	f.receive(t, m.ID, 100)

	_, err := f.mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: m.ID, ProjectID: p.ID, Quantity: 30})
	require.NoError(t, err)
	_, err = f.mutator.Return(ctx, inventory.ReturnInput{MaterialID: m.ID, ProjectID: p.ID, Quantity: 5})
	require.NoError(t, err)

	report, err := f.reports.ProjectReport(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, p.ID, report.Project.ID)
	require.Len(t, report.MaterialUsage, 1)
	u := report.MaterialUsage[0]
	assert.Equal(t, m.ID, u.Material.ID)
	assert.Equal(t, int64(30), u.TotalWithdrawn)
	assert.Equal(t, int64(5), u.TotalReturned)
	assert.Equal(t, int64(25), u.NetUsage)
	assertDecimal(t, "250", u.TotalCost)
	assertDecimal(t, "250", report.TotalCost)
}

func TestReport_EmptyProject(t *testing.T) {
	f := newFixture(t)
	p := f.project(t, "Idle")

	report, err := f.reports.ProjectReport(context.Background(), p.ID)
	require.NoError(t, err)
	assert.NotNil(t, report.MaterialUsage)
	assert.Empty(t, report.MaterialUsage)
	assertDecimal(t, "0", report.TotalCost)
}

func TestReport_UnknownProject(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.ProjectReport(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, inventory.IsNotFound(err))
}

func TestReport_OnlyCountsOwnProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.material(t, "Brick", "0.75")
	mine := f.project(t, "House")
	other := f.project(t, "Garage")
	f.receive(t, m.ID, 1000)

	_, err := f.mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: m.ID, ProjectID: mine.ID, Quantity: 400})
	require.NoError(t, err)
	_, err = f.mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: m.ID, ProjectID: other.ID, Quantity: 200})
	require.NoError(t, err)

	report, err := f.reports.ProjectReport(ctx, mine.ID)
	require.NoError(t, err)
	require.Len(t, report.MaterialUsage, 1)
	assert.Equal(t, int64(400), report.MaterialUsage[0].TotalWithdrawn)
	assertDecimal(t, "300", report.TotalCost)
}

func TestReport_OverReturnIsNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.material(t, "Paint", "20")
	p := f.project(t, "Facade")
	f.receive(t, m.ID, 10)

	_, err := f.mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: m.ID, ProjectID: p.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.mutator.Return(ctx, inventory.ReturnInput{MaterialID: m.ID, ProjectID: p.ID, Quantity: 5})
	require.NoError(t, err)

	report, err := f.reports.ProjectReport(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, report.MaterialUsage, 1)
	assert.Equal(t, int64(-3), report.MaterialUsage[0].NetUsage)
	assertDecimal(t, "-60", report.TotalCost)
}

func TestReport_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.material(t, "Gravel", "1.10")
	p := f.project(t, "Driveway")
	f.receive(t, m.ID, 50)
	_, err := f.mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: m.ID, ProjectID: p.ID, Quantity: 7})
	require.NoError(t, err)

	first, err := f.reports.ProjectReport(ctx, p.ID)
	require.NoError(t, err)
	second, err := f.reports.ProjectReport(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(43), f.stock(t, m.ID), "reports never touch stock")
}

// =============================================================================
// FOLD
// =============================================================================

func TestFoldUsage_FirstAppearanceOrderAndReceiveSkipped(t *testing.T) {
	p := inventory.Project{ID: 1, Name: "Tower"}
	steel := inventory.Material{ID: 7, Name: "Steel", UnitPrice: dec("3.5")}
	glass := inventory.Material{ID: 2, Name: "Glass", UnitPrice: dec("12")}
	t0 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	entry := func(m inventory.Material, typ inventory.TxType, qty int64, minute int) inventory.TransactionEntry {
		return inventory.TransactionEntry{
			Transaction: inventory.Transaction{
				MaterialID: m.ID, Type: typ, Quantity: qty, CreatedAt: t0.Add(time.Duration(minute) * time.Minute),
			},
			Material: m,
		}
	}

	report := inventory.FoldUsage(p, []inventory.TransactionEntry{
		entry(steel, inventory.TxReceive, 1000, 0),
		entry(steel, inventory.TxWithdraw, 10, 1),
		entry(glass, inventory.TxWithdraw, 4, 2),
		entry(steel, inventory.TxReturn, 2, 3),
		entry(glass, inventory.TxWithdraw, 1, 4),
	})

	require.Len(t, report.MaterialUsage, 2)
	assert.Equal(t, steel.ID, report.MaterialUsage[0].Material.ID, "first seen comes first")
	assert.Equal(t, glass.ID, report.MaterialUsage[1].Material.ID)

	assert.Equal(t, int64(10), report.MaterialUsage[0].TotalWithdrawn, "receipts are not usage")
	assert.Equal(t, int64(8), report.MaterialUsage[0].NetUsage)
	assertDecimal(t, "28", report.MaterialUsage[0].TotalCost)
	assert.Equal(t, int64(5), report.MaterialUsage[1].NetUsage)
	assertDecimal(t, "60", report.MaterialUsage[1].TotalCost)
	assertDecimal(t, "88", report.TotalCost)
}

func TestFoldUsage_OnlyReceives(t *testing.T) {
	report := inventory.FoldUsage(inventory.Project{ID: 3}, []inventory.TransactionEntry{{
		Transaction: inventory.Transaction{MaterialID: 1, Type: inventory.TxReceive, Quantity: 5},
		Material:    inventory.Material{ID: 1, UnitPrice: dec("1")},
	}})
	assert.Empty(t, report.MaterialUsage)
	assertDecimal(t, "0", report.TotalCost)
}
