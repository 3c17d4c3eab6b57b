package capture

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snapwatch/snapwatch/internal/browser"
	"github.com/snapwatch/snapwatch/internal/storybook"
)

// Viewport is a named capture size.
type Viewport struct {
	Name   string
	Width  int
	Height int
}

// RunConfig is the subset of resolved configuration Plan/Execute need.
type RunConfig struct {
	StorybookURL string
	SourceName   string
	Viewports    []Viewport
	Parallel     int
	ChromeURL    string // non-empty: attach to a remote Chrome instead of launching one
	CustomCSS    string
	Strategy     ScreenshotStrategy
}

// Plan is a discovered, filtered, but not-yet-executed capture run.
type Plan struct {
	cfg  RunConfig
	jobs []Job
	log  *zap.Logger
}

// NewPlan discovers stories, crosses them with configured viewports,
// and applies an optional case-insensitive filter.
func NewPlan(ctx context.Context, cfg RunConfig, filter string, log *zap.Logger) (*Plan, error) {
	local := cfg.ChromeURL == ""
	client, err := storybook.New(cfg.StorybookURL, local)
	if err != nil {
		return nil, err
	}

	all, err := client.Discover(ctx)
	if err != nil {
		return nil, err
	}

	stories := make([]storybook.Story, 0, len(all))
	for _, s := range all {
		if !s.IsSkipped() {
			stories = append(stories, s)
		}
	}

	if len(stories) == 0 {
		log.Info("no stories found", zap.String("url", client.URL()))
		return &Plan{cfg: cfg, log: log}, nil
	}

	log.Info("discovered stories",
		zap.Int("stories", len(stories)),
		zap.Int("viewports", len(cfg.Viewports)),
		zap.Int("snapshots", len(stories)*len(cfg.Viewports)),
	)

	var jobs []Job
	for _, story := range stories {
		for _, vp := range cfg.Viewports {
			jobs = append(jobs, Job{
				Source:   cfg.SourceName,
				Story:    story,
				Viewport: vp.Name,
				URL:      client.StoryURL(story),
				Width:    vp.Width,
				Height:   vp.Height,
			})
		}
	}

	if filter != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if j.MatchesFilter(filter) {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
		if len(jobs) == 0 {
			log.Info("no snapshots match filter", zap.String("filter", filter))
		}
	}

	return &Plan{cfg: cfg, jobs: jobs, log: log}, nil
}

// Total is the number of jobs in this plan.
func (p *Plan) Total() int { return len(p.jobs) }

// JobNames returns the snapshot id of every planned job.
func (p *Plan) JobNames() []string {
	names := make([]string, len(p.jobs))
	for i, j := range p.jobs {
		names[i] = j.SnapshotID()
	}
	return names
}

// Execute launches (or attaches to) Chrome and starts the worker pool,
// returning the streaming result channel and a cleanup that must be
// called once the channel is drained.
func (p *Plan) Execute(ctx context.Context) (<-chan Result, func(), error) {
	var ctrl *browser.Controller
	var err error
	if p.cfg.ChromeURL != "" {
		ctrl, err = browser.Attach(ctx, p.log, p.cfg.ChromeURL)
	} else {
		ctrl, err = browser.Launch(ctx, p.log, "", browser.DefaultStartTimeout)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	opts := Options{CustomCSS: p.cfg.CustomCSS, Strategy: p.cfg.Strategy}
	results := RunPool(ctx, ctrl, p.jobs, p.cfg.Parallel, opts, p.log)
	cleanup := func() { ctrl.Kill() }
	return results, cleanup, nil
}
