// Package dataset walks scene files and turns each valid prediction request
// into a training sample: the track-frame transform, the ground-truth
// trajectory in that frame and, when a renderer is attached, the feature
// raster.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/trackraster/internal/fsutil"
	"github.com/banshee-data/trackraster/internal/geom"
	"github.com/banshee-data/trackraster/internal/monitoring"
	"github.com/banshee-data/trackraster/internal/raster"
	"github.com/banshee-data/trackraster/internal/render"
	"github.com/banshee-data/trackraster/internal/scene"
	"github.com/banshee-data/trackraster/internal/security"
)

// ErrInvalidWorker is returned for a worker ID or count that cannot shard
// the dataset.
var ErrInvalidWorker = errors.New("dataset: invalid worker split")

// SceneFilter decides from scene tags whether a scene is used.
type SceneFilter func(tags map[string]any) bool

// TrajectoryFilter decides from request tags whether a request is used.
type TrajectoryFilter func(tags []string) bool

// Sample is one prediction request ready for training.
type Sample struct {
	SceneID      string
	TrackID      int64
	Tags         []string
	ToTrackFrame geom.Transform
	GroundTruth  []geom.Vec2    // future positions in the track frame
	Features     *raster.Raster // nil without a renderer
	Worker       int
}

// Options configures a Dataset. Zero values accept everything and skip
// rendering.
type Options struct {
	// SceneTagsPath names a JSON-lines file holding one tag object per
	// scene path, in path order. When set, SceneFilter is applied to it
	// up front; otherwise SceneFilter sees each scene's own tags.
	SceneTagsPath    string
	SceneFilter      SceneFilter
	TrajectoryFilter TrajectoryFilter
	Renderer         *render.FeatureRenderer
	FS               fsutil.FileSystem // nil reads from the OS
}

// Dataset is an ordered list of scene files plus the filters and renderer
// applied while iterating. It is read-only once built and may be iterated
// from several goroutines.
type Dataset struct {
	paths       []string
	sceneFilter SceneFilter // nil once the tag file has been applied
	trajFilter  TrajectoryFilter
	renderer    *render.FeatureRenderer
	fs          fsutil.FileSystem
}

// New builds a Dataset over paths, in the given order.
func New(paths []string, opts Options) (*Dataset, error) {
	d := &Dataset{
		paths:       slices.Clone(paths),
		sceneFilter: opts.SceneFilter,
		trajFilter:  opts.TrajectoryFilter,
		renderer:    opts.Renderer,
		fs:          fsutil.OrOS(opts.FS),
	}
	if opts.SceneTagsPath == "" {
		return d, nil
	}

	tags, err := readSceneTags(d.fs, opts.SceneTagsPath)
	if err != nil {
		return nil, err
	}
	if len(tags) != len(d.paths) {
		return nil, fmt.Errorf("scene tags file %s has %d entries for %d scene files",
			opts.SceneTagsPath, len(tags), len(d.paths))
	}
	if d.sceneFilter != nil {
		kept := d.paths[:0]
		for i, p := range d.paths {
			if d.sceneFilter(tags[i]) {
				kept = append(kept, p)
			}
		}
		d.paths = kept
	}
	d.sceneFilter = nil
	return d, nil
}

func readSceneTags(fsys fsutil.FileSystem, path string) ([]map[string]any, error) {
	f, err := fsys.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open scene tags file: %w", err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var tags map[string]any
		if err := json.Unmarshal([]byte(text), &tags); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, tags)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scene tags file: %w", err)
	}
	return out, nil
}

// Discover lists scene files under root (.json, .jsonl and their .gz
// forms) in lexical order. Symlinks that resolve outside root are skipped.
func Discover(root string) ([]string, error) {
	var paths []string
	root = filepath.Clean(root)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.TrimSuffix(strings.ToLower(d.Name()), ".gz")
		switch filepath.Ext(name) {
		case ".json", ".jsonl":
		default:
			return nil
		}
		if err := security.ValidatePathWithinDirectory(path, root); err != nil {
			monitoring.Logf("dataset: skipping %s: %v", path, err)
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scene files: %w", err)
	}
	slices.Sort(paths)
	return paths, nil
}

// NumScenes is the number of scene files after tag filtering.
func (d *Dataset) NumScenes() int { return len(d.paths) }

// Paths returns the scene files in iteration order.
func (d *Dataset) Paths() []string { return slices.Clone(d.paths) }

// SplitByWorker returns the contiguous shard of paths owned by workerID.
// Every shard has len(paths)/numWorkers files; the last worker also takes
// the remainder.
func SplitByWorker(paths []string, workerID, numWorkers int) ([]string, error) {
	if numWorkers <= 0 || workerID < 0 || workerID >= numWorkers {
		return nil, fmt.Errorf("%w: worker %d of %d", ErrInvalidWorker, workerID, numWorkers)
	}
	per := len(paths) / numWorkers
	start := workerID * per
	stop := start + per
	if workerID == numWorkers-1 {
		stop = len(paths)
	}
	return paths[start:stop], nil
}

// Iterate calls fn for every sample, in file and request order. It stops
// at the first error from a scene file, the renderer or fn.
func (d *Dataset) Iterate(ctx context.Context, fn func(Sample) error) error {
	return d.iterateFiles(ctx, 0, d.paths, fn)
}

// Run shards the dataset over workers goroutines and calls fn from each of
// them, so fn must be safe for concurrent use. The first error cancels the
// remaining workers.
func (d *Dataset) Run(ctx context.Context, workers int, fn func(Sample) error) error {
	if workers <= 0 {
		return fmt.Errorf("%w: %d workers", ErrInvalidWorker, workers)
	}
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		shard, err := SplitByWorker(d.paths, w, workers)
		if err != nil {
			return err
		}
		if len(shard) == 0 {
			continue
		}
		g.Go(func() error {
			monitoring.Logf("dataset: worker %d starting on %d scene files", w, len(shard))
			return d.iterateFiles(ctx, w, shard, fn)
		})
	}
	return g.Wait()
}

// IterateSource calls fn for every sample of the scenes src yields.
func (d *Dataset) IterateSource(ctx context.Context, src scene.Source, fn func(Sample) error) error {
	return d.iterateSource(ctx, 0, src, fn)
}

// RunSource reads scenes from src on one goroutine and renders them on
// workers goroutines. fn must be safe for concurrent use; samples of
// different scenes may arrive in any order.
func (d *Dataset) RunSource(ctx context.Context, workers int, src scene.Source, fn func(Sample) error) error {
	if workers <= 0 {
		return fmt.Errorf("%w: %d workers", ErrInvalidWorker, workers)
	}
	g, ctx := errgroup.WithContext(ctx)
	scenes := make(chan *scene.Scene, workers)
	g.Go(func() error {
		defer close(scenes)
		for {
			s, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case scenes <- s:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for s := range scenes {
				if err := d.emitScene(ctx, w, s, fn); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Dataset) iterateFiles(ctx context.Context, worker int, paths []string, fn func(Sample) error) error {
	for _, p := range paths {
		r, err := scene.OpenFileFS(d.fs, p)
		if err != nil {
			return err
		}
		err = d.iterateSource(ctx, worker, r, fn)
		if cerr := r.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close scene file %s: %w", p, cerr)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Dataset) iterateSource(ctx context.Context, worker int, src scene.Source, fn func(Sample) error) error {
	for {
		s, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := d.emitScene(ctx, worker, s, fn); err != nil {
			return err
		}
	}
}

// emitScene applies the scene filter and emits the scene's samples.
func (d *Dataset) emitScene(ctx context.Context, worker int, s *scene.Scene, fn func(Sample) error) error {
	if d.sceneFilter != nil && !d.sceneFilter(s.Tags) {
		monitoring.Debugf("dataset: scene %s filtered by tags", s.ID)
		return nil
	}
	return d.sceneSamples(ctx, worker, s, fn)
}

func (d *Dataset) sceneSamples(ctx context.Context, worker int, s *scene.Scene, fn func(Sample) error) error {
	for _, req := range s.PredictionRequests {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.RequestIsValid(req) {
			monitoring.Debugf("dataset: scene %s track %d has no complete future", s.ID, req.TrackID)
			continue
		}
		if d.trajFilter != nil && !d.trajFilter(req.Tags) {
			continue
		}
		sample, err := d.buildSample(s, req)
		if err != nil {
			return fmt.Errorf("scene %s track %d: %w", s.ID, req.TrackID, err)
		}
		sample.Worker = worker
		if err := fn(sample); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dataset) buildSample(s *scene.Scene, req scene.PredictionRequest) (Sample, error) {
	track := s.TrackForTransform(req.TrackID)
	tf := geom.ToTrackFrame(track.Position, track.Yaw)
	sample := Sample{
		SceneID:      s.ID,
		TrackID:      req.TrackID,
		Tags:         req.Tags,
		ToTrackFrame: tf,
		GroundTruth:  tf.ApplyPoints(s.GroundTruth(req.TrackID)),
	}
	if d.renderer == nil {
		return sample, nil
	}
	fm, err := d.renderer.Render(s, tf)
	if err != nil {
		return Sample{}, err
	}
	sample.Features = fm
	return sample, nil
}
