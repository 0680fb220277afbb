// Package artifact recognizes download artifacts (packages, disk images,
// partial downloads) on the filesystem and provides a memoized directory
// scanner used by the polling probe to find them.
package artifact

import "strings"

// DownloadSuffixes lists the filename suffixes treated as evidence of an
// in-progress or staged installation.
var DownloadSuffixes = []string{
	".pkg", ".dmg", ".mpkg", ".app", ".download", ".crdownload", ".partial", ".tmp",
}

// IsDownloadArtifact reports whether name carries a recognized artifact
// suffix. Matching is case-insensitive.
func IsDownloadArtifact(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range DownloadSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// MatchesItem reports whether a directory entry looks like a download
// artifact for one item: the name carries a recognized suffix and contains
// either the item id or the whitespace-stripped lowercase display name.
func MatchesItem(name, itemID, displayName string) bool {
	if !IsDownloadArtifact(name) {
		return false
	}
	lower := strings.ToLower(name)
	if itemID != "" && strings.Contains(lower, strings.ToLower(itemID)) {
		return true
	}
	stripped := StripName(displayName)
	return stripped != "" && strings.Contains(lower, stripped)
}

// StripName lowercases a display name and removes all whitespace, producing
// the form matched against artifact filenames.
func StripName(displayName string) string {
	return strings.ToLower(strings.Join(strings.Fields(displayName), ""))
}
