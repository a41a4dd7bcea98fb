/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names are
  camelCase so existing clients keep working against this service.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Prices and costs are written as JSON numbers with the exact decimal
  digits (json.Number built from decimal.String), never via float64.
  Requests accept either a number or a quoted string for unitPrice.

MOVEMENT BODIES:
  receive / withdraw / return decode straight into inventory.ReceiveInput,
  inventory.WithdrawInput and inventory.ReturnInput, which carry their own
  json and validate tags.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/materials-ledger/inventory"
)

// =============================================================================
// CATALOG
// =============================================================================

type MaterialDTO struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Unit        string      `json:"unit"`
	UnitPrice   json.Number `json:"unitPrice"`
	Stock       int64       `json:"stock"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type CreateMaterialRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.NullDecimal `json:"unitPrice"`
}

type ProjectDTO struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// LEDGER
// =============================================================================

type TransactionDTO struct {
	ID         int64     `json:"id"`
	MaterialID int64     `json:"materialId"`
	ProjectID  *int64    `json:"projectId"`
	Quantity   int64     `json:"quantity"`
	Type       string    `json:"type"`
	Notes      *string   `json:"notes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TransactionEntryDTO is a transaction with its material and project inlined.
type TransactionEntryDTO struct {
	TransactionDTO
	Material MaterialDTO `json:"material"`
	Project  *ProjectDTO `json:"project"`
}

type StockAuditDTO struct {
	MaterialID int64 `json:"materialId"`
	Recorded   int64 `json:"recorded"`
	Derived    int64 `json:"derived"`
	Consistent bool  `json:"consistent"`
}

// =============================================================================
// REPORT
// =============================================================================

type MaterialUsageDTO struct {
	Material       MaterialDTO `json:"material"`
	TotalWithdrawn int64       `json:"totalWithdrawn"`
	TotalReturned  int64       `json:"totalReturned"`
	NetUsage       int64       `json:"netUsage"`
	TotalCost      json.Number `json:"totalCost"`
}

type ReportDTO struct {
	Project       ProjectDTO         `json:"project"`
	MaterialUsage []MaterialUsageDTO `json:"materialUsage"`
	TotalCost     json.Number        `json:"totalCost"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

type LoadScenarioResponse struct {
	ScenarioID   string `json:"scenarioId"`
	Materials    int    `json:"materials"`
	Projects     int    `json:"projects"`
	Transactions int    `json:"transactions"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type HealthDTO struct {
	Status string `json:"status"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func toMaterialDTO(m inventory.Material) MaterialDTO {
	return MaterialDTO{
		ID:          int64(m.ID),
		Name:        m.Name,
		Description: m.Description,
		Unit:        m.Unit,
		UnitPrice:   money(m.UnitPrice),
		Stock:       m.Stock,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toMaterialDTOs(ms []inventory.Material) []MaterialDTO {
	out := make([]MaterialDTO, len(ms))
	for i, m := range ms {
		out[i] = toMaterialDTO(m)
	}
	return out
}

func toProjectDTO(p inventory.Project) ProjectDTO {
	return ProjectDTO{
		ID:          int64(p.ID),
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func toProjectDTOs(ps []inventory.Project) []ProjectDTO {
	out := make([]ProjectDTO, len(ps))
	for i, p := range ps {
		out[i] = toProjectDTO(p)
	}
	return out
}

func toTransactionDTO(tx inventory.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:         int64(tx.ID),
		MaterialID: int64(tx.MaterialID),
		Quantity:   tx.Quantity,
		Type:       string(tx.Type),
		CreatedAt:  tx.CreatedAt,
	}
	if tx.ProjectID != nil {
		pid := int64(*tx.ProjectID)
		dto.ProjectID = &pid
	}
	if tx.Notes != "" {
		notes := tx.Notes
		dto.Notes = &notes
	}
	return dto
}

func toTransactionEntryDTOs(entries []inventory.TransactionEntry) []TransactionEntryDTO {
	out := make([]TransactionEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = TransactionEntryDTO{
			TransactionDTO: toTransactionDTO(e.Transaction),
			Material:       toMaterialDTO(e.Material),
		}
		if e.Project != nil {
			p := toProjectDTO(*e.Project)
			out[i].Project = &p
		}
	}
	return out
}

func toReportDTO(r inventory.Report) ReportDTO {
	usage := make([]MaterialUsageDTO, len(r.MaterialUsage))
	for i, u := range r.MaterialUsage {
		usage[i] = MaterialUsageDTO{
			Material:       toMaterialDTO(u.Material),
			TotalWithdrawn: u.TotalWithdrawn,
			TotalReturned:  u.TotalReturned,
			NetUsage:       u.NetUsage,
			TotalCost:      money(u.TotalCost),
		}
	}
	return ReportDTO{
		Project:       toProjectDTO(r.Project),
		MaterialUsage: usage,
		TotalCost:     money(r.TotalCost),
	}
}

func toStockAuditDTO(a inventory.StockAudit) StockAuditDTO {
	return StockAuditDTO{
		MaterialID: int64(a.MaterialID),
		Recorded:   a.Recorded,
		Derived:    a.Derived,
		Consistent: a.Consistent,
	}
}
