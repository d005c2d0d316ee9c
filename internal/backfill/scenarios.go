package backfill

import (
	"fmt"
	"sort"
	"time"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// Scenario is a named look-back preset ending yesterday.
type Scenario struct {
	Name        string `json:"name"`
	Days        int    `json:"days"`
	Description string `json:"description"`
}

// Scenarios are the presets offered by the CLI and the API.
var Scenarios = map[string]Scenario{
	"1week":   {Name: "1week", Days: 7, Description: "Last 7 days"},
	"1month":  {Name: "1month", Days: 30, Description: "Last 30 days"},
	"3months": {Name: "3months", Days: 90, Description: "Last 3 months"},
	"6months": {Name: "6months", Days: 180, Description: "Last 6 months"},
	"1year":   {Name: "1year", Days: 365, Description: "Last 1 year"},
	"2years":  {Name: "2years", Days: 730, Description: "Last 2 years"},
}

// Scenario preset throttling: small batches with a pause so a long range
// stays inside price API rate limits.
const (
	ScenarioBatchSize = 5
	ScenarioDelay     = 2 * time.Second
)

// ScenarioNames returns the preset names ordered by length of range.
func ScenarioNames() []string {
	names := make([]string, 0, len(Scenarios))
	for n := range Scenarios {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return Scenarios[names[i]].Days < Scenarios[names[j]].Days })
	return names
}

// ScenarioRequest builds the request for a preset relative to today:
// [today-days, today-1].
func ScenarioRequest(name string, today time.Time) (Request, error) {
	s, ok := Scenarios[name]
	if !ok {
		return Request{}, fmt.Errorf("unknown scenario %q, expected one of %v", name, ScenarioNames())
	}
	today = models.CivilDate(today)
	return Request{
		Start:     today.AddDate(0, 0, -s.Days),
		End:       today.AddDate(0, 0, -1),
		BatchSize: ScenarioBatchSize,
		Delay:     ScenarioDelay,
	}, nil
}

// CustomRequest validates an explicit range: start must be before end and
// end must be before today. A zero end defaults to yesterday.
func CustomRequest(start, end, today time.Time, batchSize int, delay time.Duration) (Request, error) {
	today = models.CivilDate(today)
	start = models.CivilDate(start)
	if end.IsZero() {
		end = today.AddDate(0, 0, -1)
	}
	end = models.CivilDate(end)
	if !start.Before(end) {
		return Request{}, fmt.Errorf("start date must be before end date")
	}
	if !end.Before(today) {
		return Request{}, fmt.Errorf("end date must be before today")
	}
	if batchSize <= 0 {
		batchSize = ScenarioBatchSize
	}
	if delay < 0 {
		return Request{}, fmt.Errorf("delay must not be negative")
	}
	return Request{Start: start, End: end, BatchSize: batchSize, Delay: delay}, nil
}
