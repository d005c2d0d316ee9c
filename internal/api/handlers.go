package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
	"github.com/eddiefleurent/straddle_tracker/internal/straddle"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	storageOK := true
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.WithError(err).Warn("Storage ping failed")
		status, code, storageOK = "degraded", http.StatusServiceUnavailable, false
	}
	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": s.calc.Calendar().Now().Format(time.RFC3339),
		"services": map[string]bool{
			"calculator": s.calc != nil,
			"storage":    storageOK,
		},
	})
}

// handleToday distinguishes "not computed yet" (404) from a failed day (200
// with status error).
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	rec, err := s.calc.Today(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to read today's record")
		s.writeError(w, storageStatus(err), "failed to retrieve straddle data")
		return
	}
	if rec == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  string(models.StatusPending),
			"date":    models.FormatDate(s.calc.Calendar().Today()),
			"message": "No straddle cost data available yet. POST /api/straddle/calculate to compute.",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	date := s.calc.Calendar().Today()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := models.ParseDate(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
			return
		}
		date = d
	}

	rec := s.calc.Calculate(r.Context(), date)
	code := http.StatusOK
	if !rec.IsAvailable() {
		code = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, code, rec)
}

type historyResponse struct {
	Status    string                  `json:"status"`
	Days      int                     `json:"days"`
	Count     int                     `json:"count"`
	StartDate string                  `json:"start_date"`
	EndDate   string                  `json:"end_date"`
	Data      []models.StraddleRecord `json:"data"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := s.daysParam(w, r)
	if !ok {
		return
	}
	recs, err := s.engine.History(r.Context(), days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load history")
		s.writeError(w, storageStatus(err), "failed to retrieve straddle history")
		return
	}
	if recs == nil {
		recs = []models.StraddleRecord{}
	}
	start, end := s.engine.Window(days)
	s.writeJSON(w, http.StatusOK, historyResponse{
		Status:    models.ReportSuccess,
		Days:      days,
		Count:     len(recs),
		StartDate: models.FormatDate(start),
		EndDate:   models.FormatDate(end),
		Data:      recs,
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	days, ok := s.daysParam(w, r)
	if !ok {
		return
	}
	// Empty windows and store failures are both reported through the
	// report status.
	s.writeJSON(w, http.StatusOK, s.engine.Analyze(r.Context(), days))
}

func (s *Server) handleMultiWindow(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.MultiWindow(r.Context()))
}

func (s *Server) handleExpectedMove(w http.ResponseWriter, r *http.Request) {
	rec, err := s.calc.Today(r.Context())
	if err != nil {
		s.writeError(w, storageStatus(err), "failed to retrieve straddle data")
		return
	}
	if !rec.IsAvailable() {
		s.writeError(w, http.StatusNotFound, "no straddle cost available for today")
		return
	}
	move, err := straddle.NewExpectedMove(rec)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, move)
}

var csvHeader = []string{"Date", "Underlying_Price_Open", "ATM_Strike", "Call_Price", "Put_Price", "Straddle_Cost", "Computed_At"}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	days, ok := s.daysParam(w, r)
	if !ok {
		return
	}
	recs, err := s.engine.History(r.Context(), days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load history for export")
		s.writeError(w, storageStatus(err), "failed to export straddle data")
		return
	}
	if len(recs) == 0 {
		s.writeError(w, http.StatusNotFound, "no historical data available")
		return
	}

	filename := fmt.Sprintf("%s_history_%ddays.csv", s.calc.Instrument().KeyPrefix(), days)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, rec := range recs {
		computed := ""
		if rec.ComputedAt != nil {
			computed = rec.ComputedAt.Format(time.RFC3339)
		}
		_ = cw.Write([]string{
			models.FormatDate(rec.Date),
			formatPrice(rec.UnderlyingPriceOpen),
			formatPrice(rec.Strike),
			formatPrice(rec.UpperLegPrice),
			formatPrice(rec.LowerLegPrice),
			formatPrice(rec.Cost),
			computed,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.WithError(err).Error("Failed to write CSV")
	}
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cal := s.calc.Calendar()
	resp := map[string]interface{}{
		"system_status":     "operational",
		"symbol":            s.calc.Instrument().Name,
		"storage_connected": true,
		"trading_day":       cal.IsValidTradingDay(cal.Today()),
		"timestamp":         cal.Now().Format(time.RFC3339),
	}
	if err := s.store.Ping(r.Context()); err != nil {
		resp["system_status"] = "degraded"
		resp["storage_connected"] = false
		resp["error"] = err.Error()
	} else if rec, err := s.calc.Today(r.Context()); err == nil && rec != nil {
		resp["last_calculation"] = models.FormatDate(rec.Date)
		resp["calculation_status"] = rec.Status
	} else {
		resp["calculation_status"] = models.StatusPending
	}
	if job := s.currentJob(); job != nil {
		resp["backfill"] = job
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// daysParam parses ?days=, defaulting to DefaultDays and writing a 400 when
// it is outside 1..MaxDays.
func (s *Server) daysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return DefaultDays, true
	}
	days, err := strconv.Atoi(v)
	if err != nil || days < 1 || days > MaxDays {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("days parameter must be between 1 and %d", MaxDays))
		return 0, false
	}
	return days, true
}
