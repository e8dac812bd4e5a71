package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/trackraster/internal/config"
	"github.com/banshee-data/trackraster/internal/dataset"
	"github.com/banshee-data/trackraster/internal/monitoring"
	"github.com/banshee-data/trackraster/internal/render"
	"github.com/banshee-data/trackraster/internal/scene"
	"github.com/banshee-data/trackraster/internal/timeutil"
	"github.com/banshee-data/trackraster/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Feature map configuration (.json, .yaml or .toml)")
	scenesArg   = flag.String("scenes", "", "Comma-separated scene files or directories")
	sceneTags   = flag.String("scene-tags", "", "Optional JSON-lines scene tag file, one line per scene file")
	synthetic   = flag.Int("synthetic", 0, "Render N synthetic scenes instead of reading scene files")
	seed        = flag.Int64("seed", 1, "Seed for synthetic scenes")
	workers     = flag.Int("workers", runtime.NumCPU(), "Number of render workers")
	noRender    = flag.Bool("no-render", false, "Only compute ground-truth trajectories")
	progress    = flag.Duration("progress", 10*time.Second, "Interval between progress log lines (0 to disable)")
	debugMode   = flag.Bool("debug", false, "Log per-track render diagnostics")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// options is the parsed command line.
type options struct {
	ConfigPath string
	Scenes     []string
	SceneTags  string
	Synthetic  int
	Seed       int64
	Workers    int
	NoRender   bool
	Progress   time.Duration
	Clock      timeutil.Clock // nil uses the real clock
}

// stats accumulates per-run counters across workers.
type stats struct {
	mu      sync.Mutex
	samples int
	pixels  int
}

func (s *stats) add(pixels int) {
	s.mu.Lock()
	s.samples++
	s.pixels += pixels
	s.mu.Unlock()
}

func (s *stats) snapshot() (samples, pixels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples, s.pixels
}

// reportProgress logs the sample rate on every tick until the returned
// stop function is called.
func reportProgress(clock timeutil.Clock, interval time.Duration, st *stats) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	ticker := clock.NewTicker(interval)
	start := clock.Now()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ticker.C():
				n, _ := st.snapshot()
				elapsed := clock.Since(start)
				monitoring.Logf("progress: %d samples in %v (%.1f/s)", n, elapsed.Round(time.Second), float64(n)/elapsed.Seconds())
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
		wg.Wait()
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("featuremap"))
		return
	}
	monitoring.SetDebug(*debugMode)

	opts := options{
		ConfigPath: *configPath,
		Scenes:     splitList(*scenesArg),
		SceneTags:  *sceneTags,
		Synthetic:  *synthetic,
		Seed:       *seed,
		Workers:    *workers,
		NoRender:   *noRender,
		Progress:   *progress,
	}
	if len(opts.Scenes) == 0 && opts.Synthetic <= 0 {
		log.Fatal("either -scenes or -synthetic is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); isFatal(err) {
		log.Fatalf("featuremap: %v", err)
	}
}

// isFatal reports whether err should fail the process. Cancellation from a
// signal, however wrapped, exits quietly.
func isFatal(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func run(ctx context.Context, opts options, out io.Writer) error {
	var fr *render.FeatureRenderer
	if !opts.NoRender {
		cfg, err := config.LoadFeatureConfig(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if fr, err = render.NewFeatureRenderer(cfg); err != nil {
			return fmt.Errorf("failed to build renderer: %w", err)
		}
		monitoring.Logf("renderer ready: %d channels over %d renderers, %dx%d at %.2f m/px",
			fr.NumChannels(), len(fr.Renderers()), cfg.FeatureMap.Rows, cfg.FeatureMap.Cols, cfg.FeatureMap.Resolution)
	}

	paths, err := resolvePaths(opts.Scenes)
	if err != nil {
		return err
	}
	ds, err := dataset.New(paths, dataset.Options{SceneTagsPath: opts.SceneTags, Renderer: fr})
	if err != nil {
		return err
	}

	var st stats
	var outMu sync.Mutex
	emit := func(s dataset.Sample) error {
		line, pixels := summarize(s, fr)
		st.add(pixels)
		outMu.Lock()
		defer outMu.Unlock()
		_, err := fmt.Fprintln(out, line)
		return err
	}

	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	start := clock.Now()
	stopProgress := reportProgress(clock, opts.Progress, &st)
	defer stopProgress()

	if opts.Synthetic > 0 {
		gen := scene.NewSyntheticGenerator(opts.Seed)
		gen.Limit = opts.Synthetic
		monitoring.Logf("rendering %d synthetic scenes with %d workers", opts.Synthetic, opts.Workers)
		err = ds.RunSource(ctx, opts.Workers, gen, emit)
	} else {
		monitoring.Logf("rendering %d scene files with %d workers", ds.NumScenes(), opts.Workers)
		err = ds.Run(ctx, opts.Workers, emit)
	}
	if err != nil {
		return err
	}
	samples, pixels := st.snapshot()
	monitoring.Logf("rendered %d samples in %v (%d non-zero values)", samples, clock.Since(start).Round(time.Millisecond), pixels)
	return nil
}

// resolvePaths expands directories into the scene files beneath them.
func resolvePaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat scenes path: %w", err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := dataset.Discover(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

// summarize formats one sample as a log line and returns its non-zero
// value count.
func summarize(s dataset.Sample, fr *render.FeatureRenderer) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "scene=%s track=%d gt=%d", s.SceneID, s.TrackID, len(s.GroundTruth))
	if s.Features == nil || fr == nil {
		return b.String(), 0
	}
	shape := s.Features.Shape()
	fmt.Fprintf(&b, " shape=%dx%dx%d", shape[0], shape[1], shape[2])
	total := 0
	for _, sl := range fr.Slices() {
		n := 0
		for c := sl.Offset; c < sl.End(); c++ {
			n += s.Features.NonZero(c)
		}
		total += n
		fmt.Fprintf(&b, " %s%s=%d", sl.Kind, sl.Grid, n)
	}
	return b.String(), total
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
