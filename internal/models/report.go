package models

import "time"

// Report status values.
const (
	ReportSuccess          = "success"
	ReportError            = "error"
	ReportInsufficientData = "insufficient_data"
)

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Volatility categories.
const (
	VolatilityLow    = "low"
	VolatilityMedium = "medium"
	VolatilityHigh   = "high"
)

// StatisticsReport is the analysis of one trailing window of straddle costs.
type StatisticsReport struct {
	Status             string              `json:"status"`
	PeriodDays         int                 `json:"period_days"`
	DataPoints         int                 `json:"data_points"`
	DescriptiveStats   *DescriptiveStats   `json:"descriptive_stats,omitempty"`
	TrendAnalysis      *TrendAnalysis      `json:"trend_analysis,omitempty"`
	VolatilityAnalysis *VolatilityAnalysis `json:"volatility_analysis,omitempty"`
	RecentComparison   *RecentComparison   `json:"recent_comparison,omitempty"`
	StartDate          string              `json:"start_date,omitempty"`
	EndDate            string              `json:"end_date,omitempty"`
	ErrorMessage       string              `json:"error_message,omitempty"`
	GeneratedAt        time.Time           `json:"timestamp"`
}

// DescriptiveStats summarizes the cost distribution.
type DescriptiveStats struct {
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	StdDev       float64 `json:"std_dev"`
	Percentile25 float64 `json:"percentile_25"`
	Percentile75 float64 `json:"percentile_75"`
	Percentile90 float64 `json:"percentile_90"`
	Percentile95 float64 `json:"percentile_95"`
}

// TrendAnalysis is the least-squares slope of cost against position.
type TrendAnalysis struct {
	Slope          float64 `json:"slope"`
	Direction      string  `json:"direction"`
	Interpretation string  `json:"interpretation"`
}

// VolatilityAnalysis classifies the coefficient of variation.
type VolatilityAnalysis struct {
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	Category               string  `json:"category"`
	Interpretation         string  `json:"interpretation"`
}

// RecentComparison compares the last week of costs with the window mean.
type RecentComparison struct {
	RecentAvg        float64 `json:"recent_avg"`
	HistoricalAvg    float64 `json:"historical_avg"`
	Difference       float64 `json:"difference"`
	PercentageChange float64 `json:"percentage_change"`
}

// MultiWindowReport runs the single-window analysis over a catalog of
// window sizes and keeps the ones with enough data.
type MultiWindowReport struct {
	Status  string             `json:"status"`
	Windows []WindowReport     `json:"windows"`
	Summary MultiWindowSummary `json:"summary"`
	Message string             `json:"message,omitempty"`
}

// WindowReport is one retained window.
type WindowReport struct {
	Key    string           `json:"key"`
	Label  string           `json:"label"`
	IsYTD  bool             `json:"is_ytd"`
	Report StatisticsReport `json:"report"`
}

// MultiWindowSummary aggregates across retained windows.
type MultiWindowSummary struct {
	AvailableWindows  []int     `json:"available_windows"`
	RecommendedWindow string    `json:"recommended_window,omitempty"`
	TotalWindows      int       `json:"total_windows"`
	TrendConsistency  bool      `json:"trend_consistency"`
	YTD               YTDInfo   `json:"ytd_info"`
	GeneratedAt       time.Time `json:"timestamp"`
}

// YTDInfo describes the dynamic year-to-date window.
type YTDInfo struct {
	Days      int    `json:"ytd_days"`
	Year      int    `json:"year"`
	Included  bool   `json:"ytd_included"`
	StartDate string `json:"ytd_start_date"`
	EndDate   string `json:"ytd_end_date"`
}
