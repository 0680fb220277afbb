package config

// Thresholds maps a [0,1] compliance score onto four ordered bands:
// excellent, good, warning, and critical below warning. The boundaries are
// expected to descend; a violation is reported at load time but the mapping
// still evaluates.
type Thresholds struct {
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Warning   float64 `yaml:"warning"`

	// Labels and Colors override band presentation, keyed by band name.
	Labels map[string]string `yaml:"labels"`
	Colors map[string]string `yaml:"colors"`
}

// Band is the presentation of one score range.
type Band struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// DefaultThresholds returns the standard band boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Excellent: 0.9, Good: 0.7, Warning: 0.5}
}

// withDefaults fills unset boundaries from DefaultThresholds.
func (t Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()
	if t.Excellent == 0 {
		t.Excellent = def.Excellent
	}
	if t.Good == 0 {
		t.Good = def.Good
	}
	if t.Warning == 0 {
		t.Warning = def.Warning
	}
	return t
}

// OrderedDescending reports whether excellent > good > warning.
func (t Thresholds) OrderedDescending() bool {
	return t.Excellent > t.Good && t.Good > t.Warning
}

// BandFor maps a score onto its band.
func (t Thresholds) BandFor(score float64) Band {
	switch {
	case score >= t.Excellent:
		return t.band("excellent", "Excellent", "green", "✓")
	case score >= t.Good:
		return t.band("good", "Good", "yellow", "○")
	case score >= t.Warning:
		return t.band("warning", "Warning", "orange", "!")
	default:
		return t.band("critical", "Critical", "red", "✗")
	}
}

func (t Thresholds) band(name, label, color, icon string) Band {
	if l, ok := t.Labels[name]; ok && l != "" {
		label = l
	}
	if c, ok := t.Colors[name]; ok && c != "" {
		color = c
	}
	return Band{Name: name, Label: label, Color: color, Icon: icon}
}
