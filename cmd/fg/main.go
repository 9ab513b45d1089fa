package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/vanderheijden86/forcegraph/internal/bridge"
	"github.com/vanderheijden86/forcegraph/pkg/config"
	"github.com/vanderheijden86/forcegraph/pkg/debug"
	"github.com/vanderheijden86/forcegraph/pkg/document"
	"github.com/vanderheijden86/forcegraph/pkg/export"
	"github.com/vanderheijden86/forcegraph/pkg/layout"
	"github.com/vanderheijden86/forcegraph/pkg/neighbors"
	"github.com/vanderheijden86/forcegraph/pkg/ui"
	"github.com/vanderheijden86/forcegraph/pkg/version"
)

// snapshotSteps bounds offline settling; 300 steps take alpha from 1 to alphaMin.
const snapshotSteps = 300

func main() {
	cpuProfile := flag.String("cpu-profile", "", "Write CPU profile to file")
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	graphPath := flag.String("graph", "", "Graph document to lay out (.json, .yaml or .yml)")
	configPath := flag.String("config", "", "Config file (default "+config.ConfigPath()+")")
	snapshotPath := flag.String("snapshot", "", "Settle the graph offline and write an .svg or .png snapshot")
	bridgeMode := flag.Bool("bridge", false, "Serve the JSON-lines protocol on stdin/stdout")
	noWatch := flag.Bool("no-watch", false, "Do not reload the graph document when it changes")
	debugFlag := flag.Bool("debug", false, "Write debug logs to stderr (same as FG_DEBUG=1)")
	debugLog := flag.String("debug-log", "", "Write debug logs to this file instead of stderr (implies -debug)")
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if *help {
		fmt.Println("Usage: fg [options]")
		fmt.Println("\nForce-directed layout of a graph document, in the terminal or over stdio.")
		flag.PrintDefaults()
		return
	}

	if *versionFlag {
		fmt.Printf("fg %s\n", version.String())
		return
	}

	if *debugLog != "" {
		f, err := os.OpenFile(*debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not open debug log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		debug.SetOutput(f)
		*debugFlag = true
	}
	if *debugFlag {
		debug.SetEnabled(true)
	}
	debug.Log("fg %s session %s", version.Version, uuid.NewString())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v; using defaults\n", err)
		cfg = config.DefaultConfig()
	}

	var doc *document.Document
	if *graphPath != "" {
		doc, err = document.Load(*graphPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading graph: %v\n", err)
			os.Exit(1)
		}
		if n := doc.Dangling(); n > 0 {
			fmt.Fprintf(os.Stderr, "Warning: %d edges reference missing nodes and will be ignored\n", n)
		}
	}

	switch {
	case *snapshotPath != "":
		if doc == nil {
			fmt.Fprintln(os.Stderr, "Error: -snapshot requires -graph")
			os.Exit(2)
		}
		if err := runSnapshot(cfg, doc, *snapshotPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing snapshot: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *snapshotPath)

	case *bridgeMode:
		if err := runBridge(cfg, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Bridge error: %v\n", err)
			os.Exit(1)
		}

	default:
		if doc == nil {
			fmt.Fprintln(os.Stderr, "Error: -graph is required (or use -bridge)")
			os.Exit(2)
		}
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: stdout is not a terminal; use -snapshot or -bridge")
			os.Exit(2)
		}
		if err := runTUI(cfg, doc, *graphPath, !*noWatch); err != nil {
			fmt.Printf("Error running fg: %v\n", err)
			os.Exit(1)
		}
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// layoutParameters maps the simulation config onto integrator constants.
func layoutParameters(cfg config.Config) layout.Parameters {
	p := layout.DefaultParameters()
	p.AlphaMin = cfg.Simulation.AlphaMin
	p.AlphaDecay = cfg.Simulation.EffectiveAlphaDecay()
	p.VelocityDecay = cfg.Simulation.VelocityDecay
	p.HitTolerance = cfg.Interaction.HitTolerance
	return p
}

func newEngine(cfg config.Config) *layout.Engine {
	return layout.New(
		layout.WithParameters(layoutParameters(cfg)),
		layout.WithSettings(cfg.Simulation.Settings),
		layout.WithFrameInterval(cfg.Simulation.FrameInterval),
		layout.WithErrorHandler(func(e layout.WorkerError) {
			debug.Log("fg: worker: %v", e)
		}),
	)
}

func runSnapshot(cfg config.Config, doc *document.Document, path string) error {
	tick, err := export.Settle(doc, layoutParameters(cfg), cfg.Simulation.Settings, cfg.Simulation.InitialAlpha, snapshotSteps)
	if err != nil {
		return err
	}
	return export.SaveSnapshot(export.SnapshotOptions{
		Path:     path,
		Title:    fmt.Sprintf("%d nodes, %d edges", len(doc.Nodes), len(doc.Edges)),
		Nodes:    tick.Nodes,
		Edges:    doc.Edges,
		Progress: tick.Progress,
	})
}

func runBridge(cfg config.Config, r io.Reader, w io.Writer) error {
	engine := newEngine(cfg)
	defer engine.Close()
	nb := neighbors.New()
	defer nb.Destroy()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(engine, nb, bridge.WithQueryTimeout(cfg.Interaction.QueryTimeout))
	err := b.Run(ctx, r, w)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runTUI(cfg config.Config, doc *document.Document, path string, watch bool) error {
	engine := newEngine(cfg)
	defer engine.Close()
	nb := neighbors.New()
	defer nb.Destroy()

	opts := ui.Options{Config: cfg, Document: doc}
	if watch {
		w, err := document.NewWatcher(path, document.OnError(func(err error) {
			debug.Log("fg: watch %s: %v", path, err)
		}))
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: not watching %s: %v\n", path, err)
		} else {
			defer w.Stop()
			opts.Watcher = w
		}
	}

	return runTUIProgram(ui.NewModel(engine, nb, opts))
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set FG_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("FG_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}
				p.Quit()
			}()
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}
