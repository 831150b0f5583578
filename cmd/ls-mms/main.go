// Command ls-mms is a terminal viewer for Magnetospheric Multiscale orbits
// and the data measured along them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/litescript/ls-mms/internal/config"
	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/frame"
	"github.com/litescript/ls-mms/internal/logging"
	"github.com/litescript/ls-mms/internal/metrics"
	"github.com/litescript/ls-mms/internal/scene"
	"github.com/litescript/ls-mms/internal/state"
	"github.com/litescript/ls-mms/internal/ui"
	"github.com/litescript/ls-mms/internal/viewer"
)

// headlessOptions selects the headless outputs.
type headlessOptions struct {
	summary bool
	watch   time.Duration
	render  bool
}

func (o headlessOptions) any() bool {
	return o.summary || o.watch > 0 || o.render
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, config.ErrInvalidConfig) || errors.Is(err, config.ErrLoadConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	var opts headlessOptions
	var exportDir string

	configPath := flag.String("config", "", "YAML config file (also $"+config.EnvPrefix+"CONFIG)")
	flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.String("log-file", "", "Write logs to file in TUI mode")
	flag.String("date", "", "First UTC day to load (YYYY-MM-DD)")
	flag.Int("days", 0, "Number of days to load")
	flag.String("frame", "", "Reference frame (inertial, fixed)")
	flag.String("path-dataset", "", "Scalar parameter coloring the orbit path")
	flag.String("whisker-dataset", "", "Vector parameter drawn as whiskers")
	flag.String("path-palette", "", "Orbit path palette")
	flag.String("whisker-palette", "", "Whisker palette")
	flag.Bool("formation", false, "Show the formation viewer")
	flag.String("source", "", "Data source (synthetic, dir)")
	flag.String("data-dir", "", "Directory of .jsond datasets for the dir source")
	flag.String("metrics-addr", "", "Serve Prometheus metrics on addr (e.g., :9090)")
	flag.BoolVar(&opts.summary, "summary", false, "Print a load summary instead of TUI")
	flag.DurationVar(&opts.watch, "watch", 0, "Print positions at interval, advancing the clock")
	flag.BoolVar(&opts.render, "render", false, "Print the orbit view once")
	flag.StringVar(&exportDir, "export-dir", "", "Copy the configured range into a dir source and exit")
	flag.Parse()

	if *configPath != "" {
		_ = os.Setenv(config.EnvPrefix+"CONFIG", *configPath)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	headless := opts.any() || exportDir != ""

	// Set up logging. The TUI owns the terminal, so logs go to a file or
	// nowhere.
	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	if !headless {
		logger.SetOutput(io.Discard)
		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			logger.SetOutput(f)
		}
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	src := newSource(cfg, logger)

	if exportDir != "" {
		dst := datasource.NewDir(exportDir, datasource.WithDirLogger(logger.Named("export")))
		n, err := datasource.ExportRange(ctx, src, dst, settings.Range, cfg.SpacecraftIDs())
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d datasets for %s to %s\n", n, settings.Range, exportDir)
		return nil
	}

	orient := frame.NewEarthOrientation()
	tf := frame.NewTransformer(orient, frame.WithLogger(logger.Named("frame")))
	ctrl := viewer.NewController(src, tf,
		viewer.WithLogger(logger.Named("viewer")),
		viewer.WithPreloader(orient),
		viewer.WithClockMultiplier(cfg.ClockMultiplier),
		viewer.WithShades(cfg.Shades),
		viewer.WithSpacecraft(cfg.SpacecraftIDs()...),
	)
	defer ctrl.Close()

	if headless {
		return runHeadless(ctx, os.Stdout, ctrl, settings, opts)
	}

	model := ui.New(ctx, ctrl, settings, config.LatestDate(time.Now()))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Run TUI (blocks until quit)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

// loadConfig layers flags that were set explicitly over the loaded config.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}

	var parseErr error
	flag.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "log-level":
			cfg.LogLevel = v
		case "log-file":
			cfg.LogFile = v
		case "date":
			cfg.Date = v
		case "days":
			cfg.Days, parseErr = strconv.Atoi(v)
		case "frame":
			cfg.Frame = v
		case "path-dataset":
			cfg.Dataset1D = v
		case "whisker-dataset":
			cfg.Dataset3D = v
		case "path-palette":
			cfg.Palette1D = v
		case "whisker-palette":
			cfg.Palette3D = v
		case "formation":
			cfg.Formation = v == "true"
		case "source":
			cfg.Source = v
		case "data-dir":
			cfg.DataDir = v
		case "metrics-addr":
			cfg.MetricsAddr = v
		}
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newSource(cfg *config.Config, logger *logging.Logger) datasource.Source {
	if cfg.Source == config.SourceDir {
		return datasource.NewDir(cfg.DataDir, datasource.WithDirLogger(logger.Named("dir")))
	}
	return datasource.NewSynthetic(
		datasource.WithStep(cfg.Step),
		datasource.WithSyntheticLogger(logger.Named("synthetic")),
	)
}

func serveMetrics(ctx context.Context, addr string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server: %v", err)
	}
}

// runHeadless handles all headless modes without starting TUI.
func runHeadless(ctx context.Context, w io.Writer, ctrl *viewer.Controller, settings viewer.Settings, opts headlessOptions) error {
	action, err := ctrl.Apply(ctx, settings)
	if err != nil && errors.Is(err, viewer.ErrInvalidSettings) {
		return err
	}

	if opts.summary {
		writeSummary(w, ctrl.State().Snapshot(), action)
	}
	if opts.render {
		if err := writeRender(w, ctrl.Main()); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	if opts.watch == 0 {
		return nil
	}

	// Watch mode: advance the clock by the interval each time
	ticker := time.NewTicker(opts.watch)
	defer ticker.Stop()

	writePositions(w, ctrl)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ctrl.Tick(opts.watch)
			writePositions(w, ctrl)
		}
	}
}

func writeSummary(w io.Writer, snap state.Snapshot, action viewer.Action) {
	fmt.Fprintf(w, "Generation %d  %s  %s  %s\n", snap.Target.Generation, action, snap.Target.Frame, snap.Target.Range)
	for _, name := range []string{state.MainViewer, state.FormationViewer} {
		fmt.Fprintf(w, "  %-10s %s\n", name, snap.Viewers[name])
	}
	fmt.Fprintln(w)
	for _, t := range snap.Tracks {
		switch {
		case t.Err != nil:
			fmt.Fprintf(w, "  %-6s unavailable: %v\n", t.ID, t.Err)
		case t.Degraded:
			fmt.Fprintf(w, "  %-6s %6d samples  degraded\n", t.ID, t.Samples)
		default:
			fmt.Fprintf(w, "  %-6s %6d samples\n", t.ID, t.Samples)
		}
	}
	if ws := snap.Whiskers; ws.Parameter != "" {
		fmt.Fprintf(w, "\nWhiskers %s: %d of %d built, %d dropped, %d skipped\n",
			ws.Parameter, ws.Built, ws.Total, ws.Dropped, ws.Skipped)
	}
	if len(snap.Events) > 0 {
		fmt.Fprintln(w, "\nEvents:")
	}
	for _, e := range snap.Events {
		line := fmt.Sprintf("  %s  %-16s gen %d", e.Timestamp.Format("15:04:05"), e.Type, e.Generation)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Fprintln(w, line)
	}
}

func writeRender(w io.Writer, sc scene.Scene) error {
	canvas, ok := sc.(*scene.Canvas)
	if !ok || canvas.Destroyed() {
		return errors.New("no main viewer to render")
	}
	width, height := 100, 40
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if tw, th, err := term.GetSize(int(f.Fd())); err == nil {
			width, height = tw, th-1
		}
	}
	_, err := fmt.Fprintln(w, canvas.Render(scene.View{Width: width, Height: height, Zoom: 1}))
	return err
}

func writePositions(w io.Writer, ctrl *viewer.Controller) {
	sc := ctrl.Main()
	if sc == nil {
		return
	}
	now := sc.Clock().Now()
	snap := ctrl.Pipeline().Snapshot()
	fmt.Fprintf(w, "%s", now.UTC().Format(time.RFC3339))
	for _, id := range ctrl.Pipeline().Spacecraft() {
		t, ok := snap.Track(id)
		if !ok {
			continue
		}
		if p, ok := t.PositionAt(now); ok {
			fmt.Fprintf(w, "  %s (%.0f, %.0f, %.0f) km", id, p.X, p.Y, p.Z)
		}
	}
	fmt.Fprintln(w)
}
