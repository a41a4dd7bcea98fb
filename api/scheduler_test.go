package api

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/materials-ledger/inventory"
	"github.com/warp/materials-ledger/inventory/store"
)

func TestAuditScheduler_ReportsDrift(t *testing.T) {
	// GIVEN: one healthy material and one whose counter was bumped directly
	// WHEN: the audit runs
	// THEN: only the drifted material is reported, logged and counted

	ctx := context.Background()
	s := store.NewTxMemory()
	ledger := inventory.NewLedger(s)
	mutator := inventory.NewStockMutator(s, nil)

	healthy, err := ledger.CreateMaterial(ctx, inventory.NewMaterial{Name: "Sand", Unit: "t", UnitPrice: decimal.NewNullDecimal(decimal.NewFromInt(30))})
	require.NoError(t, err)
	drifted, err := ledger.CreateMaterial(ctx, inventory.NewMaterial{Name: "Lime", Unit: "kg", UnitPrice: decimal.NewNullDecimal(decimal.NewFromInt(2))})
	require.NoError(t, err)
	_, err = mutator.Receive(ctx, inventory.ReceiveInput{MaterialID: healthy.ID, Quantity: 5})
	require.NoError(t, err)
	_, err = s.AdjustStock(ctx, drifted.ID, 3)
	require.NoError(t, err)

	log, hook := logtest.NewNullLogger()
	metrics := NewMetrics(prometheus.NewRegistry())
	scheduler := NewAuditScheduler(ledger, log, metrics, time.Hour)

	found := scheduler.RunNow(ctx)
	require.Len(t, found, 1)
	assert.Equal(t, drifted.ID, found[0].MaterialID)
	assert.Equal(t, int64(3), found[0].Recorded)
	assert.Equal(t, int64(0), found[0].Derived)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["material_id"] == drifted.ID {
			warned = true
		}
	}
	assert.True(t, warned)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.auditedMaterials))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.driftedMaterials))
}

func TestAuditScheduler_StartStop(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	scheduler := NewAuditScheduler(inventory.NewLedger(store.NewTxMemory()), log, nil, time.Hour)

	scheduler.Start()
	scheduler.Stop()

	var started, stopped bool
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "stock audit scheduler started":
			started = true
		case "stock audit scheduler stopped":
			stopped = true
		}
	}
	assert.True(t, started)
	assert.True(t, stopped)
}

func TestAuditScheduler_DisabledByZeroInterval(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	scheduler := NewAuditScheduler(inventory.NewLedger(store.NewTxMemory()), log, nil, 0)

	assert.False(t, scheduler.Enabled)
	scheduler.Start()
	scheduler.Stop()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "stock audit scheduler disabled", hook.LastEntry().Message)
}
