package models

import "time"

// Disposition is the outcome of one date in a backfill run.
type Disposition string

const (
	DispositionSuccessful Disposition = "successful"
	DispositionFailed     Disposition = "failed"
	DispositionSkipped    Disposition = "skipped"
)

// BackfillProgress tracks a running backfill. It is not persisted.
type BackfillProgress struct {
	RunID      string    `json:"run_id"`
	TotalDays  int       `json:"total_days"`
	Processed  int       `json:"processed_days"`
	Successful int       `json:"successful_days"`
	Failed     int       `json:"failed_days"`
	Skipped    int       `json:"skipped_days"`
	StartTime  time.Time `json:"start_time"`
}

// CompletionPercentage returns processed/total as a percentage.
func (p BackfillProgress) CompletionPercentage() float64 {
	if p.TotalDays == 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.TotalDays) * 100
}

// SuccessRate returns successful/processed as a percentage.
func (p BackfillProgress) SuccessRate() float64 {
	if p.Processed == 0 {
		return 0
	}
	return float64(p.Successful) / float64(p.Processed) * 100
}

// Record adds one date outcome to the running counts.
func (p *BackfillProgress) Record(d Disposition) {
	p.Processed++
	switch d {
	case DispositionSuccessful:
		p.Successful++
	case DispositionFailed:
		p.Failed++
	case DispositionSkipped:
		p.Skipped++
	}
}

// DateResult is the outcome for a single date.
type DateResult struct {
	Date        string      `json:"date"`
	Disposition Disposition `json:"disposition"`
	Cost        *float64    `json:"cost,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// BackfillSummary is returned when a run completes.
type BackfillSummary struct {
	RunID           string       `json:"run_id"`
	TotalDays       int          `json:"total_days"`
	ProcessedDays   int          `json:"processed_days"`
	SuccessfulDays  int          `json:"successful_days"`
	FailedDays      int          `json:"failed_days"`
	SkippedDays     int          `json:"skipped_days"`
	SuccessRate     float64      `json:"success_rate"`
	DurationSeconds float64      `json:"duration_seconds"`
	StartDate       string       `json:"start_date"`
	EndDate         string       `json:"end_date"`
	Results         []DateResult `json:"results"`
}
