package capture

import (
	"strings"

	"github.com/snapwatch/snapwatch/internal/storybook"
)

// Job is a single planned capture: one story rendered at one viewport.
type Job struct {
	Source   string
	Story    storybook.Story
	Viewport string
	URL      string
	Width    int
	Height   int
}

// SnapshotID returns the hierarchical, '/'-separated id used as the
// on-disk relative path: "{source}/{viewport}/{title_path}/{name}".
// Slashes in the story title become directory separators (they already
// are, Storybook titles use "/" as a category separator); spaces become
// underscores in both title and name.
func (j Job) SnapshotID() string {
	titlePath := strings.ReplaceAll(j.Story.Title, " ", "_")
	namePart := strings.ReplaceAll(j.Story.Name, " ", "_")
	return j.Source + "/" + j.Viewport + "/" + titlePath + "/" + namePart
}

// normalizeForFilter lowercases and merges underscores/spaces so both
// terminal output and raw story fields can be used interchangeably as
// filter patterns.
func normalizeForFilter(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", " ")
	return s
}

// MatchesFilter reports whether this job matches a case-insensitive
// filter pattern. A ".png" suffix is stripped first (users often
// copy-paste filenames straight from a file listing).
func (j Job) MatchesFilter(pattern string) bool {
	pattern = strings.TrimSuffix(pattern, ".png")
	p := normalizeForFilter(pattern)
	return strings.Contains(normalizeForFilter(j.Story.Title), p) ||
		strings.Contains(normalizeForFilter(j.Story.Name), p) ||
		strings.Contains(normalizeForFilter(j.Viewport), p) ||
		strings.Contains(normalizeForFilter(j.SnapshotID()), p)
}
