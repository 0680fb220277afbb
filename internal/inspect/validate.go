package inspect

import (
	"errors"
	"log"

	"github.com/provisionwatch/provisionwatch/internal/config"
	"github.com/provisionwatch/provisionwatch/pkg/plistval"
)

// runValidationPass recomputes every item's validation result and the
// overall score. Called on the run loop at initial load, on retry, and on
// explicit RunValidation requests.
func (e *Engine) runValidationPass() {
	if e.state != StateReady {
		return
	}
	results := make(map[string]ValidationResult, len(e.items))
	valid := 0
	for _, it := range e.items {
		res := validateItem(it)
		results[it.ID] = res
		if res.Valid {
			valid++
		}
	}
	e.validation = results
	if len(e.items) > 0 {
		e.score = float64(valid) / float64(len(e.items))
	} else {
		e.score = 0
	}
}

// validateItem evaluates the item's compliance predicate, or bare path
// existence when it has none. Evaluation failures degrade to "not valid"
// with the reason surfaced; they never propagate.
func validateItem(it Item) ValidationResult {
	if !it.HasPredicate() {
		if firstExistingPath(it.Paths) != "" {
			return ValidationResult{Valid: true}
		}
		return ValidationResult{Valid: false, Reason: ReasonNoPath, Detail: "no configured path exists"}
	}

	path := firstExistingPath(it.Paths)
	if path == "" {
		path = it.Paths[0]
	}
	res, err := plistval.Evaluate(path, it.PlistKey, it.Kind, it.Expected)
	if err != nil {
		var verr *plistval.ValidationError
		if errors.As(err, &verr) {
			return ValidationResult{Valid: false, Reason: string(verr.Reason), Detail: verr.Error()}
		}
		return ValidationResult{Valid: false, Detail: err.Error()}
	}
	switch res.Outcome {
	case plistval.OutcomeValid:
		return ValidationResult{Valid: true}
	case plistval.OutcomeNoResult:
		return ValidationResult{Valid: false, Reason: ReasonNoResult, Detail: "value type not comparable"}
	default:
		return ValidationResult{Valid: false, Detail: "predicate not satisfied"}
	}
}

// CheckOnce loads the configuration, runs one probe pass and one validation
// pass, and returns the resulting snapshot without starting any signal
// source. Used by one-shot command modes.
func CheckOnce(logger *log.Logger) (Snapshot, error) {
	e := New(Config{Logger: logger})
	if err := e.load(); err != nil {
		return e.Snapshot(), err
	}
	return e.Snapshot(), nil
}

// CheckConfig is CheckOnce against an already-loaded document.
func CheckConfig(doc *config.Config, logger *log.Logger) Snapshot {
	e := New(Config{
		Load:   func(*log.Logger) (*config.Config, error) { return doc, nil },
		Logger: logger,
	})
	_ = e.load()
	return e.Snapshot()
}
