package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportReport_Workbook(t *testing.T) {
	ts := newTestServer(t)
	cement := ts.createMaterial("Cement", "10")
	rebar := ts.createMaterial("Rebar", "2.5")
	p := ts.createProject("School")

	require.Equal(t, http.StatusCreated, ts.move("receive", map[string]any{"materialId": cement.ID, "quantity": 100}).Code)
	require.Equal(t, http.StatusCreated, ts.move("receive", map[string]any{"materialId": rebar.ID, "quantity": 100}).Code)
	require.Equal(t, http.StatusCreated, ts.move("withdraw", map[string]any{"materialId": cement.ID, "projectId": p.ID, "quantity": 30}).Code)
	require.Equal(t, http.StatusCreated, ts.move("return", map[string]any{"materialId": cement.ID, "projectId": p.ID, "quantity": 5}).Code)
	require.Equal(t, http.StatusCreated, ts.move("withdraw", map[string]any{"materialId": rebar.ID, "projectId": p.ID, "quantity": 4}).Code)

	rec := ts.do(http.MethodGet, fmt.Sprintf("/api/projects/%d/report.xlsx", p.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), fmt.Sprintf("project-%d-report.xlsx", p.ID))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	assert.Equal(t, []string{"Project", "School"}, rows[0])
	assert.Equal(t, "Material", rows[2][0])
	assert.Equal(t, []string{"Cement", "bag", "10", "30", "5", "25", "250"}, rows[3])
	assert.Equal(t, []string{"Rebar", "bag", "2.5", "4", "0", "4", "10"}, rows[4])
	assert.Equal(t, "Total", rows[5][0])
	assert.Equal(t, "260", rows[5][6])
}

func TestExportReport_UnknownProject(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/projects/42/report.xlsx", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
