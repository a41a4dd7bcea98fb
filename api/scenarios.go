/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate an empty catalog with
	realistic data for demos. Every movement goes through the StockMutator,
	so seeded data obeys the same rules as live traffic.

AVAILABLE SCENARIOS:

	construction-site: Three materials, two projects, withdrawals and a return
	over-return:       A project that returned more than it withdrew

HOW SCENARIOS WORK:
 1. Refuse if the catalog already has materials (409)
 2. Create materials and projects
 3. Receive opening stock
 4. Book withdrawals and returns

USAGE VIA API:

	POST /api/scenarios/load
	{"scenarioId": "construction-site"}

NOTE:

	Scenarios never delete data. The ledger is append-only, so loading
	into a populated database is refused instead.

SEE ALSO:
  - handlers.go: Handler services used by the loaders
*/
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/materials-ledger/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "construction-site",
		Name:        "Construction Site",
		Description: "Cement, rebar and sand received, withdrawn by two projects, some returned",
	},
	{
		ID:          "over-return",
		Name:        "Over-Return",
		Description: "A project returns more than it withdrew, producing a negative cost",
	},
}

var errCatalogNotEmpty = errors.New("catalog is not empty")

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into an empty catalog.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var load func(context.Context, *seeder) error
	switch req.ScenarioID {
	case "construction-site":
		load = loadConstructionSite
	case "over-return":
		load = loadOverReturn
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	existing, err := h.Ledger.ListMaterials(ctx)
	if err != nil {
		h.fail(w, "LoadScenario", err)
		return
	}
	if len(existing) > 0 {
		writeError(w, http.StatusConflict, "Scenarios load into an empty catalog only", errCatalogNotEmpty)
		return
	}

	s := &seeder{h: h}
	if err := load(ctx, s); err != nil {
		h.fail(w, "LoadScenario", err)
		return
	}

	h.Log.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		ScenarioID:   req.ScenarioID,
		Materials:    s.materials,
		Projects:     s.projects,
		Transactions: s.transactions,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadConstructionSite(ctx context.Context, s *seeder) error {
	cement := s.material(ctx, "Cement", "Portland CEM II, 25kg bag", "bag", "10")
	rebar := s.material(ctx, "Rebar 12mm", "B500B, 6m bar", "bar", "8.40")
	sand := s.material(ctx, "Sand", "Washed river sand", "t", "32.50")

	school := s.project(ctx, "School extension", "Two classrooms on the east wing")
	bridge := s.project(ctx, "Footbridge", "Pedestrian crossing over the canal")

	s.receive(ctx, cement, 100)
	s.receive(ctx, rebar, 250)
	s.receive(ctx, sand, 40)

	s.withdraw(ctx, cement, school, 30)
	s.returnStock(ctx, cement, school, 5)
	s.withdraw(ctx, rebar, school, 80)
	s.withdraw(ctx, sand, bridge, 12)
	s.withdraw(ctx, cement, bridge, 20)
	s.returnStock(ctx, sand, bridge, 2)
	return s.err
}

func loadOverReturn(ctx context.Context, s *seeder) error {
	paint := s.material(ctx, "Facade paint", "Silicate, 15l bucket", "bucket", "64")
	facade := s.project(ctx, "Facade refresh", "Repaint of the street front")

	s.receive(ctx, paint, 10)
	s.withdraw(ctx, paint, facade, 2)
	s.returnStock(ctx, paint, facade, 3)
	return s.err
}

// seeder chains calls and keeps the first error, so loaders read as a script.
type seeder struct {
	h   *Handler
	err error

	materials    int
	projects     int
	transactions int
}

func (s *seeder) material(ctx context.Context, name, description, unit, price string) inventory.MaterialID {
	if s.err != nil {
		return 0
	}
	var m inventory.Material
	m, s.err = s.h.Ledger.CreateMaterial(ctx, inventory.NewMaterial{
		Name:        name,
		Description: description,
		Unit:        unit,
		UnitPrice:   decimal.NewNullDecimal(decimal.RequireFromString(price)),
	})
	if s.err == nil {
		s.materials++
	}
	return m.ID
}

func (s *seeder) project(ctx context.Context, name, description string) inventory.ProjectID {
	if s.err != nil {
		return 0
	}
	var p inventory.Project
	p, s.err = s.h.Ledger.CreateProject(ctx, inventory.NewProject{Name: name, Description: description})
	if s.err == nil {
		s.projects++
	}
	return p.ID
}

func (s *seeder) receive(ctx context.Context, m inventory.MaterialID, qty int64) {
	s.book(func() (inventory.Transaction, error) {
		return s.h.Mutator.Receive(ctx, inventory.ReceiveInput{MaterialID: m, Quantity: qty, Notes: "opening stock"})
	})
}

func (s *seeder) withdraw(ctx context.Context, m inventory.MaterialID, p inventory.ProjectID, qty int64) {
	s.book(func() (inventory.Transaction, error) {
		return s.h.Mutator.Withdraw(ctx, inventory.WithdrawInput{MaterialID: m, ProjectID: p, Quantity: qty})
	})
}

func (s *seeder) returnStock(ctx context.Context, m inventory.MaterialID, p inventory.ProjectID, qty int64) {
	s.book(func() (inventory.Transaction, error) {
		return s.h.Mutator.Return(ctx, inventory.ReturnInput{MaterialID: m, ProjectID: p, Quantity: qty, Notes: "unused"})
	})
}

func (s *seeder) book(apply func() (inventory.Transaction, error)) {
	if s.err != nil {
		return
	}
	var tx inventory.Transaction
	tx, s.err = apply()
	if s.err == nil {
		s.h.Metrics.observeMovement(tx)
		s.transactions++
	}
}
