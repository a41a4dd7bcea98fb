/*
scheduler.go - Periodic stock audit

PURPOSE:
  Every CheckInterval, recomputes each material's stock from the ledger and
  compares it with the stored counter. Mismatches are logged and exported
  as a gauge. Nothing is repaired: the ledger is authoritative and a drift
  means something wrote to the counter outside the StockMutator.

DESIGN:
  - Runs a background goroutine, one audit immediately on Start
  - Read-only: uses Ledger.AuditAll, never writes
  - Stop waits for an in-flight audit to finish

USAGE:
  scheduler := NewAuditScheduler(ledger, log, metrics, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GET /api/audit (on-demand audit)
  - inventory/ledger.go: AuditAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/materials-ledger/inventory"
)

// AuditScheduler runs stock audits on a fixed interval.
type AuditScheduler struct {
	Ledger        *inventory.Ledger
	Log           logrus.FieldLogger
	Metrics       *Metrics
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAuditScheduler creates a scheduler. A non-positive interval disables it.
func NewAuditScheduler(ledger *inventory.Ledger, log logrus.FieldLogger, metrics *Metrics, interval time.Duration) *AuditScheduler {
	return &AuditScheduler{
		Ledger:        ledger,
		Log:           log,
		Metrics:       metrics,
		CheckInterval: interval,
		Enabled:       interval > 0,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.Log.Info("stock audit scheduler disabled")
		return
	}
	if as.ticker != nil {
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)
	go as.run()

	as.Log.WithField("interval", as.CheckInterval.String()).Info("stock audit scheduler started")
}

// Stop stops the scheduler.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		as.ticker = nil
		as.Log.Info("stock audit scheduler stopped")
	}
}

func (as *AuditScheduler) run() {
	defer as.wg.Done()

	as.RunNow(context.Background())

	for {
		select {
		case <-as.ticker.C:
			as.RunNow(context.Background())
		case <-as.stop:
			return
		}
	}
}

// RunNow audits every material once and returns the inconsistent ones.
func (as *AuditScheduler) RunNow(ctx context.Context) []inventory.StockAudit {
	audits, err := as.Ledger.AuditAll(ctx)
	if err != nil {
		as.Log.WithError(err).Error("stock audit failed")
		return nil
	}

	var drifted []inventory.StockAudit
	for _, a := range audits {
		if a.Consistent {
			continue
		}
		drifted = append(drifted, a)
		as.Log.WithFields(logrus.Fields{
			"material_id": a.MaterialID,
			"recorded":    a.Recorded,
			"derived":     a.Derived,
		}).Warn("stock counter drifted from ledger")
	}

	as.Metrics.observeAudit(len(audits), len(drifted))
	as.Log.WithFields(logrus.Fields{
		"materials": len(audits),
		"drifted":   len(drifted),
	}).Debug("stock audit completed")
	return drifted
}
