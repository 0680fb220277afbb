package report

import (
	"time"

	"github.com/provisionwatch/provisionwatch/internal/config"
)

// Builder aggregates sections into a report.
type Builder struct {
	title      string
	thresholds config.Thresholds
	sections   []Section
}

// NewBuilder creates a builder scoring against the given thresholds.
func NewBuilder(title string, thresholds config.Thresholds) *Builder {
	return &Builder{title: title, thresholds: thresholds}
}

// AddSection appends a section to the report.
func (b *Builder) AddSection(section Section) {
	b.sections = append(b.sections, section)
}

// Build produces the report from all registered sections. The score counts
// passed checks against the total; the band maps the score through the
// configured thresholds.
func (b *Builder) Build() *Report {
	r := &Report{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Title:     b.title,
		Sections:  b.sections,
		Overall:   b.OverallStatus(),
	}

	for _, section := range b.sections {
		for _, check := range section.Checks {
			r.Summary.Total++
			switch check.Status {
			case StatusPass:
				r.Summary.Valid++
			case StatusFail:
				r.Summary.Invalid++
			case StatusWarning:
				r.Summary.Warnings++
			case StatusUnknown:
				r.Summary.Errors++
			}
		}
	}

	if r.Summary.Total > 0 {
		r.Score = float64(r.Summary.Valid) / float64(r.Summary.Total)
	}
	r.Band = b.thresholds.BandFor(r.Score)
	return r
}

// OverallStatus returns the worst-case status across all checks.
func (b *Builder) OverallStatus() Status {
	worst := StatusPass
	for _, section := range b.sections {
		for _, check := range section.Checks {
			if check.Status == StatusFail {
				return StatusFail
			}
			if check.Status == StatusWarning && worst != StatusFail {
				worst = StatusWarning
			}
			if check.Status == StatusUnknown && worst == StatusPass {
				worst = StatusUnknown
			}
		}
	}
	return worst
}
