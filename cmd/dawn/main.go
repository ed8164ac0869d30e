// Command dawn runs a workflow definition from a JSON file and prints
// the run result. With -watch it opens a live monitor fed by the
// engine's event bus instead of streaming log lines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/emezac/dawn-sub002/internal/body"
	"github.com/emezac/dawn-sub002/internal/config"
	"github.com/emezac/dawn-sub002/internal/engine"
	"github.com/emezac/dawn-sub002/internal/events"
	"github.com/emezac/dawn-sub002/internal/persistence"
	"github.com/emezac/dawn-sub002/internal/tui"
	"github.com/emezac/dawn-sub002/internal/workflow"
)

func main() {
	var (
		workflowPath = flag.String("workflow", "", "path to the workflow definition JSON (required)")
		inputArg     = flag.String("input", "{}", "run input as inline JSON, or @path to read a file")
		dbPath       = flag.String("db", "", "sqlite file for run reports (overrides config)")
		watch        = flag.Bool("watch", false, "open the live run monitor")
		quiet        = flag.Bool("quiet", false, "suppress log output, print only the result")
	)
	flag.Parse()

	if *workflowPath == "" {
		fmt.Fprintln(os.Stderr, "usage: dawn -workflow definition.json [-input '{...}']")
		flag.Usage()
		os.Exit(2)
	}

	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ok, err := run(ctx, *workflowPath, *inputArg, *dbPath, *watch, *quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

// run executes the workflow and reports whether it succeeded. Cleanup
// happens via defers, so exiting the process is left to main.
func run(ctx context.Context, workflowPath, inputArg, dbPath string, watch, quiet bool) (bool, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return false, fmt.Errorf("loading config: %w", err)
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if quiet || watch {
		logger.SetLevel(log.ErrorLevel)
	}

	wf, err := loadWorkflow(workflowPath)
	if err != nil {
		return false, err
	}
	input, err := parseInput(inputArg)
	if err != nil {
		return false, err
	}

	registry := body.NewRegistry()
	body.RegisterBuiltins(registry)

	bus := events.NewBus()
	defer bus.Close()

	eng, err := engine.New(cfg.WorkflowEngine, registry,
		engine.WithLogger(logger), engine.WithBus(bus))
	if err != nil {
		return false, fmt.Errorf("creating engine: %w", err)
	}

	var store persistence.Store
	if cfg.DatabasePath != "" {
		s, err := persistence.NewSQLiteStore(ctx, cfg.DatabasePath)
		if err != nil {
			return false, fmt.Errorf("opening run store: %w", err)
		}
		defer s.Close()
		store = s
	}

	var res *engine.RunResult
	if watch {
		res, err = runWatched(ctx, eng, bus, wf, input)
	} else {
		res, err = eng.Run(ctx, wf, input)
	}
	if err != nil {
		return false, err
	}

	if store != nil {
		if err := store.SaveReport(ctx, res.Report); err != nil {
			logger.Error("failed to persist run report", "err", err)
		}
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))

	return res.Success, nil
}

// runWatched runs the workflow behind the live monitor. The monitor owns
// the terminal; the run happens on a goroutine publishing to the bus.
func runWatched(ctx context.Context, eng *engine.Engine, bus *events.Bus, wf *workflow.Workflow, input map[string]any) (*engine.RunResult, error) {
	p := tea.NewProgram(tui.New(bus), tea.WithAltScreen(), tea.WithContext(ctx))

	type outcome struct {
		res *engine.RunResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := eng.Run(ctx, wf, input)
		done <- outcome{res, err}
	}()

	if _, err := p.Run(); err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	o := <-done
	return o.res, o.err
}

// loadWorkflow reads and parses a workflow definition file.
func loadWorkflow(path string) (*workflow.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow: %w", err)
	}
	wf, err := workflow.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing workflow %s: %w", path, err)
	}
	return wf, nil
}

// parseInput decodes the -input argument: inline JSON, or @path to read
// the JSON from a file.
func parseInput(arg string) (map[string]any, error) {
	data := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		var err error
		data, err = os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("reading input file: %w", err)
		}
	}

	input := map[string]any{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parsing input: %w", err)
	}
	return input, nil
}
