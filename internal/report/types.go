// Package report aggregates validation outcomes into a category-sectioned
// report with a summary and a threshold-scored band.
package report

import "github.com/provisionwatch/provisionwatch/internal/config"

// Status is the outcome of a single report check.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusWarning Status = "warning"
	StatusUnknown Status = "unknown"
)

// Check is one evaluated entry in a report section.
type Check struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Status      Status `json:"status"`
	Criticality string `json:"criticality,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Section is a named group of checks, one per configured category.
type Section struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Icon   string  `json:"icon,omitempty"`
	Checks []Check `json:"checks"`
}

// Summary holds aggregate check counts.
type Summary struct {
	Total    int `json:"total"`
	Valid    int `json:"valid"`
	Invalid  int `json:"invalid"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// Report is the top-level validation report.
type Report struct {
	Timestamp string      `json:"timestamp"`
	Title     string      `json:"title"`
	Sections  []Section   `json:"sections"`
	Summary   Summary     `json:"summary"`
	Score     float64     `json:"score"`
	Band      config.Band `json:"band"`
	Overall   Status      `json:"overall"`
}
