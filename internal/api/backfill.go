package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eddiefleurent/straddle_tracker/internal/backfill"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// Job states.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobCancelled = "cancelled"
	JobFailed    = "failed"
)

// Job is the latest background backfill. Only one runs at a time.
type Job struct {
	Scenario  string                   `json:"scenario,omitempty"`
	StartDate string                   `json:"start_date"`
	EndDate   string                   `json:"end_date"`
	BatchSize int                      `json:"batch_size"`
	Delay     float64                  `json:"delay_seconds"`
	State     string                   `json:"state"`
	Progress  *models.BackfillProgress `json:"progress,omitempty"`
	Summary   *models.BackfillSummary  `json:"summary,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

func (s *Server) currentJob() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return nil
	}
	j := *s.job
	return &j
}

func (s *Server) recordProgress(p models.BackfillProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job != nil {
		s.job.Progress = &p
	}
}

// startJob launches req in the background unless another backfill is still
// running.
func (s *Server) startJob(scenario string, req backfill.Request) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job != nil && s.job.State == JobRunning {
		return nil, false
	}
	s.job = &Job{
		Scenario:  scenario,
		StartDate: models.FormatDate(req.Start),
		EndDate:   models.FormatDate(req.End),
		BatchSize: req.BatchSize,
		Delay:     req.Delay.Seconds(),
		State:     JobRunning,
	}
	started := *s.job

	s.wg.Add(1)
	go s.runJob(s.ctx, req)
	return &started, true
}

func (s *Server) runJob(ctx context.Context, req backfill.Request) {
	defer s.wg.Done()
	summary, err := s.backfill.Run(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Summary = summary
	switch {
	case err == nil:
		s.job.State = JobCompleted
	case ctx.Err() != nil:
		s.job.State = JobCancelled
		s.job.Error = err.Error()
	default:
		s.job.State = JobFailed
		s.job.Error = err.Error()
	}
	if err != nil {
		s.logger.WithError(err).Warn("Backfill did not complete")
	}
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]backfill.Scenario, 0, len(backfill.Scenarios))
	for _, name := range backfill.ScenarioNames() {
		out = append(out, backfill.Scenarios[name])
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job := s.currentJob()
	if job == nil {
		s.writeError(w, http.StatusNotFound, "no backfill has been started")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleBackfillScenario(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "scenario")
	req, err := backfill.ScenarioRequest(name, s.calc.Calendar().Today())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.accept(w, name, req, fmt.Sprintf("Backfill for %s started in background", backfill.Scenarios[name].Description))
}

// handleBackfillCustom takes start_date, end_date, batch_size and delay
// (seconds) as query parameters. end_date defaults to yesterday.
func (s *Server) handleBackfillCustom(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := models.ParseDate(q.Get("start_date"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid start_date, use YYYY-MM-DD")
		return
	}
	var end time.Time
	if v := q.Get("end_date"); v != "" {
		if end, err = models.ParseDate(v); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid end_date, use YYYY-MM-DD")
			return
		}
	}
	batchSize := backfill.ScenarioBatchSize
	if v := q.Get("batch_size"); v != "" {
		if batchSize, err = strconv.Atoi(v); err != nil || batchSize < 1 {
			s.writeError(w, http.StatusBadRequest, "batch_size must be a positive integer")
			return
		}
	}
	delay := backfill.ScenarioDelay
	if v := q.Get("delay"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "delay must be a number of seconds")
			return
		}
		delay = time.Duration(secs * float64(time.Second))
	}

	req, err := backfill.CustomRequest(start, end, s.calc.Calendar().Today(), batchSize, delay)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.accept(w, "", req, fmt.Sprintf("Custom backfill from %s to %s started in background",
		models.FormatDate(req.Start), models.FormatDate(req.End)))
}

func (s *Server) accept(w http.ResponseWriter, scenario string, req backfill.Request, msg string) {
	job, ok := s.startJob(scenario, req)
	if !ok {
		s.writeError(w, http.StatusConflict, "a backfill is already running")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "started",
		"job":     job,
		"message": msg,
	})
}
