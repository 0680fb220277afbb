// Package config loads and validates the provisionwatch configuration
// document: display text, color thresholds, cache paths, the status file,
// plist compliance sources, and the tracked item list.
//
// The document path comes from $PROVISIONWATCH_CONFIG. A missing variable or
// missing file falls back to a built-in three-item test configuration;
// malformed content is a hard failure the caller may retry. A loaded Config
// is immutable; a reload builds a fresh value.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/provisionwatch/provisionwatch/pkg/plistval"
)

// EnvConfigPath names the environment variable pointing at the document.
const EnvConfigPath = "PROVISIONWATCH_CONFIG"

// Config is the loaded configuration document.
type Config struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
	Icon    string `yaml:"icon"`

	// StatusFile is the append-only external status file to tail. Empty
	// disables the status channel.
	StatusFile string `yaml:"status_file"`

	// CachePaths are the directories scanned for download artifacts and
	// watched for change notifications.
	CachePaths []string `yaml:"cache_paths"`

	Thresholds Thresholds    `yaml:"thresholds"`
	Sources    []PlistSource `yaml:"plist_sources"`
	Items      []ItemSpec    `yaml:"items"`
}

// ItemSpec is one tracked item as configured. Paths are checked in order;
// the first existing path wins. The optional predicate fields turn the item
// into a plist-backed compliance check evaluated against its first path.
type ItemSpec struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	GUIIndex     int      `yaml:"gui_index"`
	Paths        []string `yaml:"paths"`
	Icon         string   `yaml:"icon"`
	PlistKey     string   `yaml:"plist_key"`
	Expected     any      `yaml:"expected_value"`
	Kind         string   `yaml:"evaluation_kind"`
	Category     string   `yaml:"category"`
	CategoryIcon string   `yaml:"category_icon"`
}

// PlistSource is an external compliance database: one property-list file
// carrying findings for a set of keys, grouped under a category.
type PlistSource struct {
	Path         string           `yaml:"path"`
	Category     string           `yaml:"category"`
	CategoryIcon string           `yaml:"category_icon"`
	Criticality  string           `yaml:"criticality"`
	Keys         []PlistSourceKey `yaml:"keys"`
}

// PlistSourceKey maps one key inside a plist source to a predicate.
// Kind defaults to booleanTrue, the compliance-database convention.
type PlistSourceKey struct {
	Key      string `yaml:"key"`
	Kind     string `yaml:"kind"`
	Expected any    `yaml:"expected"`
	Label    string `yaml:"label"`
}

// Check is one expanded compliance check from a plist source.
type Check struct {
	ID           string
	Label        string
	Category     string
	CategoryIcon string
	Criticality  string
	Spec         plistval.CheckSpec
}

// ConfigError is a hard configuration failure: the document exists but
// cannot be used. The engine surfaces it in the Failed state with retry.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("configuration %s: %v", e.Path, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads the configuration from the file named by $PROVISIONWATCH_CONFIG,
// falling back to FallbackConfig when the variable or file is missing.
func Load(logger *log.Logger) (*Config, error) {
	if logger == nil {
		logger = log.Default()
	}
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		logger.Printf("[config] %s not set, using fallback configuration", EnvConfigPath)
		return FallbackConfig(), nil
	}
	cfg, err := LoadFile(path, logger)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		logger.Printf("[config] %s missing, using fallback configuration", path)
		return FallbackConfig(), nil
	}
	return cfg, err
}

// LoadFile parses and validates one configuration document.
func LoadFile(path string, logger *log.Logger) (*Config, error) {
	if logger == nil {
		logger = log.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("parsing: %w", err)}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if !cfg.Thresholds.OrderedDescending() {
		logger.Printf("[config] thresholds are not in descending order (excellent %.2f, good %.2f, warning %.2f)",
			cfg.Thresholds.Excellent, cfg.Thresholds.Good, cfg.Thresholds.Warning)
	}
	return &cfg, nil
}

// FallbackConfig returns the built-in three-item test configuration used
// when no external document is available.
func FallbackConfig() *Config {
	cfg := &Config{
		Title:      "provisionwatch",
		Message:    "Tracking installation progress",
		StatusFile: "/var/tmp/provisionwatch.status",
		CachePaths: []string{"/var/tmp/provisionwatch-cache"},
		Items: []ItemSpec{
			{ID: "test1", Name: "Test 1", GUIIndex: 0, Paths: []string{"/Applications/Test1.app"}},
			{ID: "test2", Name: "Test 2", GUIIndex: 1, Paths: []string{"/Applications/Test2.app"}},
			{ID: "test3", Name: "Test 3", GUIIndex: 2, Paths: []string{"/Applications/Test3.app"}},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	c.Thresholds = c.Thresholds.withDefaults()
}

// Validate reports every structural problem in the document at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Items) == 0 {
		errs = append(errs, fmt.Errorf("no items configured"))
	}
	seen := make(map[string]bool, len(c.Items))
	for i, item := range c.Items {
		where := fmt.Sprintf("item %d (%s)", i, item.ID)
		if err := ValidateNonEmpty(item.ID); err != nil {
			errs = append(errs, fmt.Errorf("item %d: id is required", i))
		} else if seen[item.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate id", where))
		}
		seen[item.ID] = true
		if err := ValidateNonEmpty(item.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		}
		if len(item.Paths) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one path is required", where))
		}
		errs = append(errs, validatePredicate(where, item)...)
	}
	for i, src := range c.Sources {
		where := fmt.Sprintf("plist source %d (%s)", i, src.Path)
		if err := ValidateNonEmpty(src.Path); err != nil {
			errs = append(errs, fmt.Errorf("plist source %d: path is required", i))
		}
		if len(src.Keys) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one key is required", where))
		}
		for _, k := range src.Keys {
			if err := ValidateNonEmpty(k.Key); err != nil {
				errs = append(errs, fmt.Errorf("%s: empty key", where))
				continue
			}
			if k.Kind != "" {
				if _, err := plistval.ParsePredicateKind(k.Kind); err != nil {
					errs = append(errs, fmt.Errorf("%s key %s: %v", where, k.Key, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func validatePredicate(where string, item ItemSpec) []error {
	hasKey := strings.TrimSpace(item.PlistKey) != ""
	hasKind := strings.TrimSpace(item.Kind) != ""
	if hasKey != hasKind {
		return []error{fmt.Errorf("%s: plist_key and evaluation_kind go together", where)}
	}
	if !hasKind {
		return nil
	}
	kind, err := plistval.ParsePredicateKind(item.Kind)
	if err != nil {
		return []error{fmt.Errorf("%s: %v", where, err)}
	}
	if requiresOperand(kind) && item.Expected == nil {
		return []error{fmt.Errorf("%s: evaluation kind %s requires expected_value", where, kind)}
	}
	return nil
}

func requiresOperand(kind plistval.PredicateKind) bool {
	switch kind {
	case plistval.KindEquals, plistval.KindContains, plistval.KindRange:
		return true
	}
	return false
}

// SourceChecks expands every plist source into concrete checks. Keys with
// no kind default to booleanTrue.
func (c *Config) SourceChecks() []Check {
	var checks []Check
	for _, src := range c.Sources {
		for _, k := range src.Keys {
			kind := plistval.KindBooleanTrue
			if k.Kind != "" {
				parsed, err := plistval.ParsePredicateKind(k.Kind)
				if err != nil {
					// Validate rejects these at load time
					continue
				}
				kind = parsed
			}
			label := k.Label
			if label == "" {
				label = k.Key
			}
			id := k.Key
			if src.Category != "" {
				id = src.Category + "/" + k.Key
			}
			checks = append(checks, Check{
				ID:           id,
				Label:        label,
				Category:     src.Category,
				CategoryIcon: src.CategoryIcon,
				Criticality:  src.Criticality,
				Spec: plistval.CheckSpec{
					Path:     src.Path,
					Key:      k.Key,
					Kind:     kind,
					Expected: k.Expected,
				},
			})
		}
	}
	return checks
}
