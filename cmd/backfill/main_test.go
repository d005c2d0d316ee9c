package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/straddle_tracker/internal/backfill"
	"github.com/eddiefleurent/straddle_tracker/internal/config"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("backfill:\n  batch_size: 4\n  delay: 0s\n"))
	require.NoError(t, err)
	return cfg
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "scenario", args: []string{"-scenario", "1week"}},
		{name: "custom", args: []string{"-start", "2024-01-02", "-end", "2024-01-31"}},
		{name: "list", args: []string{"-list"}},
		{name: "nothing", args: nil, wantErr: "required"},
		{name: "both", args: []string{"-scenario", "1week", "-start", "2024-01-02"}, wantErr: "mutually exclusive"},
		{name: "bad flag", args: []string{"-bogus"}, wantErr: "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildRequest(t *testing.T) {
	today := day(2024, 3, 15)
	cfg := defaultConfig(t)

	tests := []struct {
		name    string
		args    []string
		want    backfill.Request
		wantErr string
	}{
		{
			name: "scenario uses preset throttling",
			args: []string{"-scenario", "1month"},
			want: backfill.Request{Start: day(2024, 2, 14), End: day(2024, 3, 14), BatchSize: 5, Delay: 2 * time.Second},
		},
		{
			name: "scenario with overrides",
			args: []string{"-scenario", "1week", "-batch-size", "2", "-delay", "0s"},
			want: backfill.Request{Start: day(2024, 3, 8), End: day(2024, 3, 14), BatchSize: 2},
		},
		{
			name: "custom uses config defaults",
			args: []string{"-start", "2024-01-02", "-end", "2024-01-31"},
			want: backfill.Request{Start: day(2024, 1, 2), End: day(2024, 1, 31), BatchSize: 4},
		},
		{
			name: "custom end defaults to yesterday",
			args: []string{"-start", "2024-03-01"},
			want: backfill.Request{Start: day(2024, 3, 1), End: day(2024, 3, 14), BatchSize: 4},
		},
		{name: "unknown scenario", args: []string{"-scenario", "decade"}, wantErr: "unknown scenario"},
		{name: "bad start", args: []string{"-start", "March"}, wantErr: "invalid -start"},
		{name: "end not before today", args: []string{"-start", "2024-03-01", "-end", "2024-03-15"}, wantErr: "end date must be before today"},
		{name: "start after end", args: []string{"-start", "2024-03-10", "-end", "2024-03-01"}, wantErr: "start date must be before end date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseFlags(tt.args)
			require.NoError(t, err)
			got, err := buildRequest(o, today, cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunCustomRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	cfg, err := config.Parse([]byte("storage:\n  backend: json\n  path: " + path + "\nbackfill:\n  batch_size: 3\n  delay: 0s\n"))
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	o, err := parseFlags([]string{"-start", "2024-03-01", "-end", "2024-03-08"})
	require.NoError(t, err)

	summary, err := run(context.Background(), o, cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.TotalDays)
	assert.Equal(t, 6, summary.SuccessfulDays)

	// Second run finds everything already available.
	summary, err = run(context.Background(), o, cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.SkippedDays)

	var buf bytes.Buffer
	printSummary(&buf, summary)
	assert.Contains(t, buf.String(), "Skipped:      6")
	assert.Contains(t, buf.String(), "2024-03-01 to 2024-03-08")
}

func TestPrintScenarios(t *testing.T) {
	var buf bytes.Buffer
	printScenarios(&buf)
	out := buf.String()
	for name := range backfill.Scenarios {
		assert.Contains(t, out, name)
	}
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("1week")), bytes.Index(buf.Bytes(), []byte("2years")))
}

func TestPrintSummaryListsFailures(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &models.BackfillSummary{
		RunID:     "run-1",
		StartDate: "2024-03-01",
		EndDate:   "2024-03-08",
		Results: []models.DateResult{
			{Date: "2024-03-01", Disposition: models.DispositionSuccessful},
			{Date: "2024-03-04", Disposition: models.DispositionFailed, Error: "missing call price"},
		},
	})
	assert.Contains(t, buf.String(), "2024-03-04 failed: missing call price")
	assert.NotContains(t, buf.String(), "2024-03-01 failed")
}
