/*
handlers.go - HTTP API handlers for the materials ledger

PURPOSE:
  Exposes the inventory services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Materials:
    GET    /api/materials              List all materials
    POST   /api/materials              Create material (stock starts at 0, unitPrice required)
    GET    /api/materials/{id}         Get material
    GET    /api/materials/{id}/audit   Recompute stock from the ledger

  Movements:
    POST   /api/materials/receive      Stock arrives (no project)
    POST   /api/materials/withdraw     Stock leaves for a project
    POST   /api/materials/return       Stock comes back from a project

  Projects:
    GET    /api/projects               List all projects
    POST   /api/projects               Create project
    GET    /api/projects/{id}          Get project
    GET    /api/projects/{id}/report   Usage and cost report
    GET    /api/projects/{id}/report.xlsx  Same report as a workbook

  Ledger:
    GET    /api/transactions?projectId=  Transaction log, newest first
    GET    /api/audit                    Audit every material

REQUEST FLOW:
  1. Parse HTTP request
  2. Call domain logic (validation lives in the inventory package)
  3. Serialize response
  4. Map errors

SUCCESS STATUS:
  - 201: Creates (materials, projects) and movements (receive, withdraw,
    return) answer 201 Created with the new resource. Clients written
    against the earlier service, which answered 200, must accept 201.
  - 200: Everything else.

ERROR HANDLING:
  - 400: Validation errors, malformed body or id, insufficient stock
  - 404: Material or project not found
  - 409: Scenario load on a non-empty catalog
  - 500: Store failures. The cause is logged, never returned.

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - export.go: XLSX report rendering
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/materials-ledger/config"
	"github.com/warp/materials-ledger/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger  *inventory.Ledger
	Mutator *inventory.StockMutator
	Reports *inventory.ReportAggregator
	Log     logrus.FieldLogger
	Metrics *Metrics

	ping func(context.Context) error
}

// NewHandler wires the inventory services around store.
func NewHandler(store inventory.TxStore, log logrus.FieldLogger, metrics *Metrics) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Handler{
		Ledger:  inventory.NewLedger(store),
		Mutator: inventory.NewStockMutator(store, log),
		Reports: inventory.NewReportAggregator(store),
		Log:     log,
		Metrics: metrics,
	}
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		h.ping = p.Ping
	}
	return h
}

// =============================================================================
// MATERIAL HANDLERS
// =============================================================================

// ListMaterials returns all materials.
func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.Ledger.ListMaterials(r.Context())
	if err != nil {
		h.fail(w, "ListMaterials", err)
		return
	}
	writeJSON(w, http.StatusOK, toMaterialDTOs(materials))
}

// CreateMaterial adds a material to the catalog.
func (h *Handler) CreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req CreateMaterialRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.Ledger.CreateMaterial(r.Context(), inventory.NewMaterial{
		Name:        req.Name,
		Description: req.Description,
		Unit:        req.Unit,
		UnitPrice:   req.UnitPrice,
	})
	if err != nil {
		h.fail(w, "CreateMaterial", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMaterialDTO(m))
}

// GetMaterial returns a single material.
func (h *Handler) GetMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	m, err := h.Ledger.GetMaterial(r.Context(), inventory.MaterialID(id))
	if err != nil {
		h.fail(w, "GetMaterial", err)
		return
	}
	writeJSON(w, http.StatusOK, toMaterialDTO(m))
}

// AuditMaterial compares one material's counter with its ledger.
func (h *Handler) AuditMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	audit, err := h.Ledger.AuditStock(r.Context(), inventory.MaterialID(id))
	if err != nil {
		h.fail(w, "AuditMaterial", err)
		return
	}
	writeJSON(w, http.StatusOK, toStockAuditDTO(audit))
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// Receive books incoming stock.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	var in inventory.ReceiveInput
	if !decodeBody(w, r, &in) {
		return
	}

	tx, err := h.Mutator.Receive(r.Context(), in)
	h.movementResult(w, "Receive", tx, err)
}

// Withdraw books stock leaving for a project.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var in inventory.WithdrawInput
	if !decodeBody(w, r, &in) {
		return
	}

	tx, err := h.Mutator.Withdraw(r.Context(), in)
	if errors.Is(err, inventory.ErrInsufficientStock) {
		h.Metrics.observeWithdrawRejected()
	}
	h.movementResult(w, "Withdraw", tx, err)
}

// Return books stock coming back from a project.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	var in inventory.ReturnInput
	if !decodeBody(w, r, &in) {
		return
	}

	tx, err := h.Mutator.Return(r.Context(), in)
	h.movementResult(w, "Return", tx, err)
}

func (h *Handler) movementResult(w http.ResponseWriter, op string, tx inventory.Transaction, err error) {
	if err != nil {
		h.fail(w, op, err)
		return
	}
	h.Metrics.observeMovement(tx)
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns all projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Ledger.ListProjects(r.Context())
	if err != nil {
		h.fail(w, "ListProjects", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTOs(projects))
}

// CreateProject adds a project.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.Ledger.CreateProject(r.Context(), inventory.NewProject{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, "CreateProject", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(p))
}

// GetProject returns a single project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, err := h.Ledger.GetProject(r.Context(), inventory.ProjectID(id))
	if err != nil {
		h.fail(w, "GetProject", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(p))
}

// GetReport returns the project's usage and cost report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	report, err := h.Reports.ProjectReport(r.Context(), inventory.ProjectID(id))
	if err != nil {
		h.fail(w, "GetReport", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListTransactions returns the transaction log, newest first.
// GET /api/transactions?projectId=3
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var projectID *inventory.ProjectID
	if raw := r.URL.Query().Get("projectId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid projectId", err)
			return
		}
		projectID = inventory.ProjectRef(inventory.ProjectID(id))
	}

	entries, err := h.Ledger.Transactions(r.Context(), projectID)
	if err != nil {
		h.fail(w, "ListTransactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionEntryDTOs(entries))
}

// AuditAll compares every material's counter with its ledger.
func (h *Handler) AuditAll(w http.ResponseWriter, r *http.Request) {
	audits, err := h.Ledger.AuditAll(r.Context())
	if err != nil {
		h.fail(w, "AuditAll", err)
		return
	}

	dtos := make([]StockAuditDTO, len(audits))
	for i, a := range audits {
		dtos[i] = toStockAuditDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.Log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// fail maps a service error to a status code. Store failures are logged
// here and answered without details.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var (
		nf *inventory.NotFoundError
		ve *inventory.ValidationError
	)

	switch {
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s not found", capitalize(nf.Kind)), err)
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusBadRequest, "Insufficient stock", err)
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: ve.Error(),
			Fields:  ve.Fields,
		})
	default:
		config.LogError(h.Log, "api", op, nil, err)
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
