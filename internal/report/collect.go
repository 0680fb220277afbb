package report

import (
	"errors"
	"log"
	"strings"

	"github.com/provisionwatch/provisionwatch/internal/config"
	"github.com/provisionwatch/provisionwatch/internal/inspect"
	"github.com/provisionwatch/provisionwatch/pkg/plistval"
)

// defaultSection groups items that carry no category of their own.
const defaultSection = "Installation"

// FromSnapshot builds the full report for one engine snapshot: a section
// per item category in item order, then one per plist-source category in
// configuration order. Source checks are evaluated live at call time.
func FromSnapshot(snap inspect.Snapshot, doc *config.Config, logger *log.Logger) *Report {
	if logger == nil {
		logger = log.Default()
	}
	b := NewBuilder(snap.Title, doc.Thresholds)
	for _, section := range itemSections(snap) {
		b.AddSection(section)
	}
	for _, section := range sourceSections(doc, logger) {
		b.AddSection(section)
	}
	return b.Build()
}

func itemSections(snap inspect.Snapshot) []Section {
	index := make(map[string]int)
	var sections []Section
	for _, it := range snap.Items {
		name := it.Category
		if name == "" {
			name = defaultSection
		}
		i, ok := index[name]
		if !ok {
			i = len(sections)
			index[name] = i
			sections = append(sections, Section{ID: sectionID(name), Name: name, Icon: it.CategoryIcon})
		}
		res := snap.Validation[it.ID]
		sections[i].Checks = append(sections[i].Checks, Check{
			ID:     it.ID,
			Label:  it.DisplayName,
			Status: itemStatus(res),
			Detail: res.Detail,
		})
	}
	return sections
}

// itemStatus maps a cached validation result onto a report status. Reads
// that could not be evaluated count as unknown rather than failed.
func itemStatus(res inspect.ValidationResult) Status {
	if res.Valid {
		return StatusPass
	}
	switch res.Reason {
	case string(plistval.ReasonUnreadable), string(plistval.ReasonMalformed), string(plistval.ReasonOversize):
		return StatusUnknown
	case inspect.ReasonNoResult:
		return StatusWarning
	}
	return StatusFail
}

func sourceSections(doc *config.Config, logger *log.Logger) []Section {
	index := make(map[string]int)
	var sections []Section
	for _, check := range doc.SourceChecks() {
		i, ok := index[check.Category]
		if !ok {
			i = len(sections)
			index[check.Category] = i
			sections = append(sections, Section{
				ID:   sectionID(check.Category),
				Name: check.Category,
				Icon: check.CategoryIcon,
			})
		}
		sections[i].Checks = append(sections[i].Checks, evalSourceCheck(check, logger))
	}
	return sections
}

func evalSourceCheck(c config.Check, logger *log.Logger) Check {
	out := Check{ID: c.ID, Label: c.Label, Criticality: c.Criticality}
	res, err := plistval.EvaluateSpec(c.Spec)
	if err != nil {
		var verr *plistval.ValidationError
		if errors.As(err, &verr) && verr.Reason == plistval.ReasonNotFound {
			out.Status = StatusFail
			out.Detail = "key not present"
			return out
		}
		logger.Printf("[report] check %s: %v", c.ID, err)
		out.Status = StatusUnknown
		out.Detail = err.Error()
		return out
	}
	switch res.Outcome {
	case plistval.OutcomeValid:
		out.Status = StatusPass
	case plistval.OutcomeNoResult:
		out.Status = StatusWarning
		out.Detail = "value type not comparable"
	default:
		out.Status = StatusFail
		out.Detail = "expected value not matched"
	}
	return out
}

func sectionID(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}
