package calendar

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

//go:embed holidays.yaml
var defaultHolidays string

// Holiday is a full-day market closure.
type Holiday struct {
	Date time.Time
	Name string
}

type holidayEntry struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

// LoadHolidays parses a holiday table keyed by year. Each entry's date must
// fall in the year it is listed under.
func LoadHolidays(r io.Reader) ([]Holiday, error) {
	table := map[int][]holidayEntry{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&table); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing holiday table: %w", err)
	}

	var out []Holiday
	for year, entries := range table {
		for _, e := range entries {
			d, err := models.ParseDate(e.Date)
			if err != nil {
				return nil, fmt.Errorf("holiday %q in %d: %w", e.Name, year, err)
			}
			if d.Year() != year {
				return nil, fmt.Errorf("holiday %s listed under year %d", e.Date, year)
			}
			out = append(out, Holiday{Date: d, Name: e.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// DefaultHolidays returns the embedded NYSE closure table.
func DefaultHolidays() []Holiday {
	h, err := LoadHolidays(strings.NewReader(defaultHolidays))
	if err != nil {
		// embedded data is covered by tests
		panic(err)
	}
	return h
}
