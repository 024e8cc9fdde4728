package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/services"
	"github.com/vilepilates/studio/internal/studiotime"
)

// GET /monthly-revenue?year=&month=
func (a *API) ListMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	year, err := optInt(r, "year")
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := optInt(r, "month")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.ListMonthlyRevenue(a.DB, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type periodRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// period reads year and month from the body or the query string. Missing
// values default to the current studio month.
func (a *API) period(r *http.Request) (int, int, error) {
	var req periodRequest
	if err := decode(r, &req); err != nil {
		return 0, 0, err
	}
	if req.Year == 0 {
		y, err := optInt(r, "year")
		if err != nil {
			return 0, 0, err
		}
		req.Year = y
	}
	if req.Month == 0 {
		m, err := optInt(r, "month")
		if err != nil {
			return 0, 0, err
		}
		req.Month = m
	}
	y, m := studiotime.YearMonth(a.Now())
	if req.Year == 0 {
		req.Year = y
	}
	if req.Month == 0 {
		req.Month = int(m)
	}
	if req.Month < 1 || req.Month > 12 {
		return 0, 0, apperr.Invalid("Periodo inválido.", map[string]string{"month": "entre 1 y 12"})
	}
	return req.Year, req.Month, nil
}

// POST /monthly-revenue/recalculate
func (a *API) RecalculateRevenue(w http.ResponseWriter, r *http.Request) {
	year, month, err := a.period(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.Recalculate(r.Context(), a.DB, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /monthly-revenue/recalculate-all
func (a *API) RecalculateAllRevenue(w http.ResponseWriter, r *http.Request) {
	out, err := services.RecalculateAll(r.Context(), a.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /monthly-revenue/total
func (a *API) TotalRevenue(w http.ResponseWriter, r *http.Request) {
	total, err := services.TotalRevenue(a.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"total": total})
}

// GET /reports/weekly-closing
func (a *API) WeeklyClosing(w http.ResponseWriter, r *http.Request) {
	out, err := services.WeeklyClosing(a.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /reports/monthly-usage?year=&month=
func (a *API) MonthlyUsage(w http.ResponseWriter, r *http.Request) {
	year, month, err := a.period(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.MonthlyUsageReport(a.DB, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /reports/class-types
func (a *API) ClassTypeSummary(w http.ResponseWriter, r *http.Request) {
	out, err := services.SummaryByClassType(a.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /reports/attendance
func (a *API) AttendanceSummary(w http.ResponseWriter, r *http.Request) {
	out, err := services.AttendanceSummary(a.DB, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
