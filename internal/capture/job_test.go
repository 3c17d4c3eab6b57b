package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snapwatch/snapwatch/internal/storybook"
)

func testJob() Job {
	return Job{
		Source:   "storybook",
		Story:    storybook.Story{ID: "button--primary", Name: "Primary", Title: "Components/Button"},
		Viewport: "desktop",
	}
}

func TestJobSnapshotID(t *testing.T) {
	j := testJob()
	assert.Equal(t, "storybook/desktop/Components/Button/Primary", j.SnapshotID())
}

func TestJobSnapshotIDReplacesSpaces(t *testing.T) {
	j := testJob()
	j.Story.Title = "Components/Call To Action"
	j.Story.Name = "Large Button"
	assert.Equal(t, "storybook/desktop/Components/Call_To_Action/Large_Button", j.SnapshotID())
}

func TestJobMatchesFilter(t *testing.T) {
	j := testJob()
	j.Story.Name = "Primary Large"

	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{"matches title substring", "button", true},
		{"matches name substring", "primary", true},
		{"matches viewport", "desktop", true},
		{"case insensitive", "PRIMARY", true},
		{"underscore/space interchangeable", "primary_large", true},
		{"strips .png suffix", "primary.png", true},
		{"matches full snapshot id", "storybook/desktop/components/button/primary", true},
		{"no match", "mobile-nav", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, j.MatchesFilter(tt.pattern))
		})
	}
}
