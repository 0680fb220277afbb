package inspect

import (
	"os"
	"sort"

	"github.com/provisionwatch/provisionwatch/internal/config"
	"github.com/provisionwatch/provisionwatch/pkg/artifact"
	"github.com/provisionwatch/provisionwatch/pkg/plistval"
)

// probeResult is one item's evidence from a polling pass.
type probeResult struct {
	itemID    string
	installed bool
	artifact  bool
}

// probe re-checks every item's paths and scans the cache directories for
// download artifacts. It is the authoritative fallback: its evidence alone
// is sufficient for correct state even if no other signal source ever fires.
type probe struct {
	items     []Item
	cacheDirs []string
	cache     *artifact.DirCache
}

func newProbe(items []Item, cacheDirs []string) *probe {
	return &probe{
		items:     items,
		cacheDirs: cacheDirs,
		cache:     artifact.NewDirCache(),
	}
}

// pass produces evidence for every item. Each distinct cache directory is
// listed at most once per pass.
func (p *probe) pass() []probeResult {
	p.cache.Invalidate()
	results := make([]probeResult, 0, len(p.items))
	for _, it := range p.items {
		res := probeResult{itemID: it.ID}
		res.installed = firstExistingPath(it.Paths) != ""
		if !res.installed {
			res.artifact = p.findArtifact(it)
		}
		results = append(results, res)
	}
	return results
}

// recheck re-observes a single item with fresh directory listings.
func (p *probe) recheck(it Item) (installed, art bool) {
	installed = firstExistingPath(it.Paths) != ""
	if !installed {
		p.cache.Invalidate()
		art = p.findArtifact(it)
	}
	return installed, art
}

func (p *probe) findArtifact(it Item) bool {
	for _, dir := range p.cacheDirs {
		match := p.cache.ContainsMatchingFile(dir, func(name string) bool {
			return artifact.MatchesItem(name, it.ID, it.DisplayName)
		})
		if match {
			return true
		}
	}
	return false
}

// firstExistingPath returns the first path that exists, checked in order.
// Earlier paths take priority.
func firstExistingPath(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// itemsFromConfig builds the immutable item list, ordered by GUIIndex.
// Evaluation kinds were validated at load; unparseable ones are dropped.
func itemsFromConfig(cfg *config.Config) []Item {
	items := make([]Item, 0, len(cfg.Items))
	for _, spec := range cfg.Items {
		it := Item{
			ID:           spec.ID,
			DisplayName:  spec.Name,
			GUIIndex:     spec.GUIIndex,
			Paths:        spec.Paths,
			Icon:         spec.Icon,
			PlistKey:     spec.PlistKey,
			Expected:     spec.Expected,
			Category:     spec.Category,
			CategoryIcon: spec.CategoryIcon,
		}
		if spec.Kind != "" {
			if kind, err := plistval.ParsePredicateKind(spec.Kind); err == nil {
				it.Kind = kind
			}
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].GUIIndex < items[j].GUIIndex })
	return items
}
