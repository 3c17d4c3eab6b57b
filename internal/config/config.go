// Package config loads snapwatch.yaml and resolves it against CLI
// flags and environment variables, CLI taking precedence over env,
// which takes precedence over the file, which takes precedence over
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snapwatch/snapwatch/internal/capture"
	"github.com/snapwatch/snapwatch/internal/snaperr"
)

const (
	FileName        = "snapwatch.yaml"
	defaultParallel = 4
)

// ViewportFile is one entry of the `viewports` map in snapwatch.yaml.
type ViewportFile struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ScreenshotFile is the `screenshot` section of snapwatch.yaml.
type ScreenshotFile struct {
	Kind              string `yaml:"kind"` // "stable" | "single"
	StabilityAttempts int    `yaml:"stability_attempts"`
	StabilityDelayMs  int    `yaml:"stability_delay_ms"`
}

// DiffFile is the `diff` section of snapwatch.yaml.
type DiffFile struct {
	Threshold float64 `yaml:"threshold"`
}

// File is the raw, on-disk shape of snapwatch.yaml.
type File struct {
	Source    string `yaml:"source"` // human name, e.g. "storybook"
	Storybook struct {
		URL string `yaml:"url"`
	} `yaml:"storybook"`
	Viewports  map[string]ViewportFile `yaml:"viewports"`
	Parallel   int                     `yaml:"parallel"`
	ChromeURL  string                  `yaml:"chrome_url"`
	Screenshot ScreenshotFile          `yaml:"screenshot"`
	Diff       DiffFile                `yaml:"diff"`
}

// Load reads and parses snapwatch.yaml from the given directory.
func Load(dir string) (*File, error) {
	path := dir + string(os.PathSeparator) + FileName
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, snaperr.ConfigError("load", fmt.Errorf("run `snapwatch init` first: %w", err))
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, snaperr.ConfigError("parse", err)
	}
	if err := f.validate(); err != nil {
		return nil, snaperr.ConfigError("validate", err)
	}
	return &f, nil
}

func (f *File) validate() error {
	if f.Storybook.URL == "" {
		return fmt.Errorf("storybook.url must be set")
	}
	if len(f.Viewports) == 0 {
		return fmt.Errorf("at least one entry in viewports is required")
	}
	for name, vp := range f.Viewports {
		if vp.Width <= 0 || vp.Height <= 0 {
			return fmt.Errorf("viewport %q must have width > 0 and height > 0", name)
		}
	}
	if f.Diff.Threshold < 0 || f.Diff.Threshold > 1 {
		return fmt.Errorf("diff.threshold must be between 0.0 and 1.0, got %v", f.Diff.Threshold)
	}
	return nil
}

// CLIOverrides carries flag values that participate in the resolve
// merge; a zero value means "not set on the CLI".
type CLIOverrides struct {
	StorybookURL string
	ChromeURL    string
	Parallel     int
	Threshold    float64
	HasThreshold bool
}

// Resolved is the fully merged configuration a run actually uses.
type Resolved struct {
	StorybookURL string
	SourceName   string
	ChromeURL    string
	Parallel     int
	Threshold    float64
	Viewports    []capture.Viewport
	Strategy     capture.ScreenshotStrategy
}

// Resolve merges CLI > env > file > defaults into a Resolved config.
func Resolve(file *File, cli CLIOverrides) (Resolved, error) {
	storybookURL := cli.StorybookURL
	if storybookURL == "" {
		storybookURL = os.Getenv("SNAPWATCH_STORYBOOK_URL")
	}
	if storybookURL == "" {
		storybookURL = file.Storybook.URL
	}

	chromeURL := cli.ChromeURL
	if chromeURL == "" {
		chromeURL = os.Getenv("SNAPWATCH_CHROME_URL")
	}
	if chromeURL == "" {
		chromeURL = file.ChromeURL
	}

	threshold := file.Diff.Threshold
	if envT := os.Getenv("SNAPWATCH_DIFF_THRESHOLD"); envT != "" {
		v, err := strconv.ParseFloat(envT, 64)
		if err != nil {
			return Resolved{}, snaperr.ConfigError("env threshold", err)
		}
		threshold = v
	}
	if cli.HasThreshold {
		threshold = cli.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return Resolved{}, snaperr.ConfigError("threshold", fmt.Errorf("threshold must be between 0.0 and 1.0, got %v", threshold))
	}

	parallel := file.Parallel
	if parallel <= 0 {
		parallel = defaultParallel
	}
	if cli.Parallel > 0 {
		parallel = cli.Parallel
	}

	viewports := make([]capture.Viewport, 0, len(file.Viewports))
	for name, vp := range file.Viewports {
		viewports = append(viewports, capture.Viewport{Name: name, Width: vp.Width, Height: vp.Height})
	}

	strategy := capture.DefaultScreenshotStrategy()
	if file.Screenshot.Kind == "single" {
		strategy.Kind = capture.ScreenshotSingle
	}
	if file.Screenshot.StabilityAttempts > 0 {
		strategy.MaxAttempts = file.Screenshot.StabilityAttempts
	}
	if file.Screenshot.StabilityDelayMs > 0 {
		strategy.Delay = time.Duration(file.Screenshot.StabilityDelayMs) * time.Millisecond
	}

	source := stringOrDefault(file.Source, "storybook")

	return Resolved{
		StorybookURL: storybookURL,
		SourceName:   source,
		ChromeURL:    chromeURL,
		Parallel:     parallel,
		Threshold:    threshold,
		Viewports:    viewports,
		Strategy:     strategy,
	}, nil
}

func stringOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
