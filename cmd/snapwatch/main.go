package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/snapwatch/snapwatch/internal/capture"
	"github.com/snapwatch/snapwatch/internal/compare"
	"github.com/snapwatch/snapwatch/internal/config"
	"github.com/snapwatch/snapwatch/internal/logging"
	"github.com/snapwatch/snapwatch/internal/report"
	"github.com/snapwatch/snapwatch/internal/store"
	"github.com/snapwatch/snapwatch/internal/tools"
	"github.com/snapwatch/snapwatch/internal/ui"
)

func main() {
	if len(os.Args) < 2 {
		runTest(os.Args[1:])
		return
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "approve":
		runApprove(os.Args[2:])
	case "test":
		runTest(os.Args[2:])
	default:
		runTest(os.Args[1:])
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dir := fs.String("dir", ".", "directory to write snapwatch.yaml into")
	fs.Parse(args)

	path, err := tools.ExpandPath(*dir)
	if err != nil {
		log.Fatal(err)
	}
	if err := config.WriteTemplate(path); err != nil {
		log.Fatal(err)
	}
	if err := config.WriteGitignore(path); err != nil {
		log.Fatal(err)
	}
	fmt.Println("wrote", filepath.Join(path, config.FileName))
}

func runApprove(args []string) {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	dir := fs.String("dir", ".", "project directory")
	filter := fs.String("filter", "", "only approve snapshots whose id matches this filter")
	fs.Parse(args)

	root, err := tools.ExpandPath(*dir)
	if err != nil {
		log.Fatal(err)
	}
	s := store.New(filepath.Join(root, store.BaseDir))

	ids := s.ListCurrentIDs()
	approved := 0
	for _, id := range ids {
		if *filter != "" && !strings.Contains(strings.ToLower(id), strings.ToLower(*filter)) {
			continue
		}
		data, ok := s.ReadCurrent(id)
		if !ok {
			continue
		}
		if err := s.WriteReference(id, data); err != nil {
			log.Fatalf("approve %s: %v", id, err)
		}
		approved++
	}
	fmt.Printf("approved %d snapshot(s)\n", approved)
}

func runTest(args []string) {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	dir := fs.String("dir", ".", "project directory (contains snapwatch.yaml)")
	filter := fs.String("filter", "", "only run snapshots whose id/title/name matches this filter")
	prune := fs.Bool("prune", false, "delete orphaned references on a full run")
	timings := fs.Bool("timings", false, "print a per-snapshot stage timing table")
	storybookURL := fs.String("url", "", "override storybook.url from snapwatch.yaml")
	chromeURL := fs.String("chrome-url", "", "attach to a remote Chrome instead of launching one")
	parallel := fs.Int("parallel", 0, "override parallel from snapwatch.yaml")
	threshold := fs.Float64("threshold", -1, "override diff.threshold from snapwatch.yaml")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	liveUI := fs.Bool("ui", false, "show a live terminal progress display instead of line-by-line output")
	fs.Parse(args)

	cleanup, err := logging.Init(logging.Config{Level: *logLevel, Console: true})
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()
	logger := logging.With(zap.String("component", "cli"))

	root, err := tools.ExpandPath(*dir)
	if err != nil {
		logger.Fatal("expand dir", zap.Error(err))
	}

	file, err := config.Load(root)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	cli := config.CLIOverrides{
		StorybookURL: *storybookURL,
		ChromeURL:    *chromeURL,
		Parallel:     *parallel,
	}
	if *threshold >= 0 {
		cli.Threshold = *threshold
		cli.HasThreshold = true
	}

	resolved, err := config.Resolve(file, cli)
	if err != nil {
		logger.Fatal("resolve config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("received interrupt, shutting down")
		cancel()
	}()

	runCfg := capture.RunConfig{
		StorybookURL: resolved.StorybookURL,
		SourceName:   resolved.SourceName,
		Viewports:    resolved.Viewports,
		Parallel:     resolved.Parallel,
		ChromeURL:    resolved.ChromeURL,
		Strategy:     resolved.Strategy,
	}

	plan, err := capture.NewPlan(ctx, runCfg, *filter, logger)
	if err != nil {
		logger.Fatal("plan", zap.Error(err))
	}

	if plan.Total() == 0 {
		os.Exit(0)
	}

	plannedIDs := make(map[string]struct{}, plan.Total())
	for _, id := range plan.JobNames() {
		plannedIDs[id] = struct{}{}
	}

	snapStore := store.New(filepath.Join(root, store.BaseDir))
	if *filter != "" {
		snapStore.CleanOutputFiles(plan.JobNames())
	} else {
		snapStore.ClearOutputDirs()
	}

	runStart := time.Now()
	results, cleanupRun, err := plan.Execute(ctx)
	if err != nil {
		logger.Fatal("execute", zap.Error(err))
	}
	defer cleanupRun()

	builder := &report.Builder{}
	var allTimings []capture.CaptureTimings
	var allNames []string
	var failedNames, newNames, erroredNames []string

	total := plan.Total()
	done := 0

	var sendUI func(ui.Event)
	var stopUI func()
	if *liveUI {
		sendUI, stopUI = ui.Run(ctx, total)
		defer stopUI()
	}

	for res := range results {
		done++
		id := res.Job.SnapshotID()
		outcome := res.Outcome
		if sendUI != nil {
			sendUI(ui.Event{Type: ui.EvtStart, Name: id, URL: res.Job.URL})
		}

		if outcome.Err != nil {
			builder.Add(report.CaseResult{ID: id, Status: report.StatusError, Error: outcome.Err.Error()})
			if sendUI != nil {
				sendUI(ui.Event{Type: ui.EvtDone, Name: id, Status: report.StatusError, Error: outcome.Err.Error()})
			}
			erroredNames = append(erroredNames, id)
			report.PrintErrorLine(id, outcome.Err.Error())
			report.ShowProgress(done, total)
			continue
		}

		refPNG, hasRef := snapStore.ReadReference(id)
		var status report.Status
		var cr report.CaseResult
		cr.ID = id
		cr.Timings = &outcome.Timings

		if !hasRef {
			if err := snapStore.WriteCurrent(id, outcome.PNG); err != nil {
				logger.Error("write current", zap.String("id", id), zap.Error(err))
			}
			status = report.StatusNew
			newNames = append(newNames, id)
		} else {
			cmpStart := time.Now()
			result, cmpErr := compare.Compare(refPNG, outcome.PNG)
			outcome.Timings.Compare = time.Since(cmpStart)
			if cmpErr != nil {
				_ = snapStore.WriteCurrent(id, outcome.PNG)
				status = report.StatusError
				cr.Error = cmpErr.Error()
				erroredNames = append(erroredNames, id)
			} else if result.IsMatch || result.Score <= resolved.Threshold {
				snapStore.CleanOutput(id)
				status = report.StatusPass
			} else {
				_ = snapStore.WriteCurrent(id, outcome.PNG)
				if result.DiffImage != nil {
					if diffPNG, encErr := encodePNG(result.DiffImage); encErr == nil {
						_ = snapStore.WriteDifference(id, diffPNG)
					}
				}
				status = report.StatusFail
				cr.Score = result.Score
				cr.DiffPixels = result.DiffPixels
				cr.TotalPixels = result.TotalPixels
				cr.DimensionMismatch = result.DimensionMismatch
				cr.PHashDistance = result.PHashDistance
				failedNames = append(failedNames, id)
			}
		}

		cr.Status = status
		builder.Add(cr)
		if sendUI != nil {
			sendUI(ui.Event{Type: ui.EvtDone, Name: id, Status: status})
		}
		report.PrintLine(id, status, cr.Score, outcome.Timings.Total)
		allTimings = append(allTimings, outcome.Timings)
		allNames = append(allNames, id)
		report.ShowProgress(done, total)
	}
	cleanupRun()

	var removedNames []string
	if *filter == "" {
		for _, id := range snapStore.ListReferenceIDs() {
			if _, ok := plannedIDs[id]; ok {
				continue
			}
			report.PrintRemovedLine(id)
			removedNames = append(removedNames, id)
			builder.Add(report.CaseResult{ID: id, Status: report.StatusRemoved})
			if *prune {
				snapStore.RemoveReference(id)
			}
		}
	}

	if *timings {
		report.PrintTimingTable(allNames, allTimings)
		report.PrintTimingSummary(allTimings)
	}

	report.PrintActionableSummary(failedNames, newNames, erroredNames, removedNames)
	passed, failed, newC, errored, removed := builder.Counts()
	elapsed := time.Since(runStart)
	report.PrintSummary(total, passed, failed, newC, errored, removed, elapsed)

	rep := builder.Build(elapsed)
	reportPath := filepath.Join(root, "snapwatch-report.json")
	if err := report.WriteJSON(reportPath, rep); err != nil {
		logger.Error("write report", zap.Error(err))
	}

	os.Exit(builder.ExitCode())
}
