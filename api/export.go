package api

import (
	"fmt"
	"net/http"

	"github.com/warp/materials-ledger/inventory"
	"github.com/xuri/excelize/v2"
)

const reportSheet = "Report"

var reportHeader = []any{"Material", "Unit", "Unit price", "Withdrawn", "Returned", "Net usage", "Total cost"}

// ExportReport streams the project report as an XLSX workbook.
// GET /api/projects/{id}/report.xlsx
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	report, err := h.Reports.ProjectReport(r.Context(), inventory.ProjectID(id))
	if err != nil {
		h.fail(w, "ExportReport", err)
		return
	}

	f, err := reportWorkbook(report)
	if err != nil {
		h.fail(w, "ExportReport", err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=project-%d-report.xlsx", id))
	if err := f.Write(w); err != nil {
		h.Log.WithError(err).Warn("write report workbook")
	}
}

// reportWorkbook lays the report out as one row per material plus a total row.
func reportWorkbook(report inventory.Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), reportSheet); err != nil {
		return nil, err
	}

	title := []any{"Project", report.Project.Name}
	if err := f.SetSheetRow(reportSheet, "A1", &title); err != nil {
		return nil, err
	}
	header := reportHeader
	if err := f.SetSheetRow(reportSheet, "A3", &header); err != nil {
		return nil, err
	}

	row := 4
	for _, u := range report.MaterialUsage {
		values := []any{
			u.Material.Name,
			u.Material.Unit,
			u.Material.UnitPrice.InexactFloat64(),
			u.TotalWithdrawn,
			u.TotalReturned,
			u.NetUsage,
			u.TotalCost.InexactFloat64(),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(reportSheet, cell, &values); err != nil {
			return nil, err
		}
		row++
	}

	total := []any{"Total", "", "", "", "", "", report.TotalCost.InexactFloat64()}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(reportSheet, cell, &total); err != nil {
		return nil, err
	}
	return f, nil
}
