package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseFile() *File {
	f := &File{
		Viewports: map[string]ViewportFile{"desktop": {Width: 1280, Height: 720}},
	}
	f.Storybook.URL = "http://localhost:6006"
	return f
}

func TestResolveDefaultsWhenNothingOverridden(t *testing.T) {
	f := baseFile()
	r, err := Resolve(f, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:6006", r.StorybookURL)
	assert.Equal(t, "storybook", r.SourceName)
	assert.Equal(t, defaultParallel, r.Parallel)
	assert.Equal(t, 0.0, r.Threshold)
	assert.Len(t, r.Viewports, 1)
}

func TestResolveFileOverridesDefault(t *testing.T) {
	f := baseFile()
	f.Parallel = 8
	f.Diff.Threshold = 0.05
	r, err := Resolve(f, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 8, r.Parallel)
	assert.Equal(t, 0.05, r.Threshold)
}

func TestResolveEnvOverridesFile(t *testing.T) {
	f := baseFile()
	f.Diff.Threshold = 0.05
	t.Setenv("SNAPWATCH_DIFF_THRESHOLD", "0.2")
	t.Setenv("SNAPWATCH_STORYBOOK_URL", "http://env:6006")
	r, err := Resolve(f, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 0.2, r.Threshold)
	assert.Equal(t, "http://env:6006", r.StorybookURL)
}

func TestResolveCLIOverridesEverything(t *testing.T) {
	f := baseFile()
	f.Diff.Threshold = 0.05
	t.Setenv("SNAPWATCH_DIFF_THRESHOLD", "0.2")
	t.Setenv("SNAPWATCH_STORYBOOK_URL", "http://env:6006")

	cli := CLIOverrides{
		StorybookURL: "http://cli:6006",
		Parallel:     16,
		Threshold:    0.5,
		HasThreshold: true,
	}
	r, err := Resolve(f, cli)
	require.NoError(t, err)
	assert.Equal(t, "http://cli:6006", r.StorybookURL)
	assert.Equal(t, 16, r.Parallel)
	assert.Equal(t, 0.5, r.Threshold)
}

func TestResolveRejectsThresholdOutOfRange(t *testing.T) {
	f := baseFile()
	_, err := Resolve(f, CLIOverrides{Threshold: 1.5, HasThreshold: true})
	assert.Error(t, err)
}

func TestResolveScreenshotStrategyFromFile(t *testing.T) {
	f := baseFile()
	f.Screenshot.Kind = "single"
	f.Screenshot.StabilityAttempts = 5
	r, err := Resolve(f, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 5, r.Strategy.MaxAttempts)
}

func TestFileValidateRequiresStorybookURL(t *testing.T) {
	f := &File{Viewports: map[string]ViewportFile{"desktop": {Width: 100, Height: 100}}}
	assert.Error(t, f.validate())
}

func TestFileValidateRequiresAtLeastOneViewport(t *testing.T) {
	f := baseFile()
	f.Viewports = nil
	assert.Error(t, f.validate())
}

func TestFileValidateRejectsZeroSizedViewport(t *testing.T) {
	f := baseFile()
	f.Viewports["broken"] = ViewportFile{Width: 0, Height: 100}
	assert.Error(t, f.validate())
}

func TestLoadMissingFileReturnsConfigError(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadParsesValidFile(t *testing.T) {
	dir := t.TempDir()
	contents := []byte("source: storybook\nstorybook:\n  url: http://localhost:6006\nviewports:\n  desktop:\n    width: 1280\n    height: 720\ndiff:\n  threshold: 0.01\n")
	require.NoError(t, os.WriteFile(dir+"/"+FileName, contents, 0o644))

	f, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:6006", f.Storybook.URL)
	assert.Equal(t, 0.01, f.Diff.Threshold)
}
