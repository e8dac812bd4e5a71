package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackraster/internal/config"
	"github.com/banshee-data/trackraster/internal/fsutil"
	"github.com/banshee-data/trackraster/internal/geom"
	"github.com/banshee-data/trackraster/internal/render"
	"github.com/banshee-data/trackraster/internal/scene"
)

// writeScenes writes one synthetic scene per file and returns the paths.
func writeScenes(t *testing.T, dir string, seed int64, n int) []string {
	t.Helper()
	gen := scene.NewSyntheticGenerator(seed)
	paths := make([]string, n)
	for i := range paths {
		data, err := json.Marshal(gen.Scene(i))
		require.NoError(t, err)
		paths[i] = filepath.Join(dir, fmt.Sprintf("scene_%03d.jsonl", i))
		require.NoError(t, os.WriteFile(paths[i], append(data, '\n'), 0o644))
	}
	return paths
}

func collect(t *testing.T, d *Dataset) []Sample {
	t.Helper()
	var out []Sample
	require.NoError(t, d.Iterate(context.Background(), func(s Sample) error {
		out = append(out, s)
		return nil
	}))
	return out
}

func TestSplitByWorker(t *testing.T) {
	t.Parallel()

	paths := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	var all []string
	sizes := make([]int, 3)
	for w := range sizes {
		shard, err := SplitByWorker(paths, w, 3)
		require.NoError(t, err)
		sizes[w] = len(shard)
		all = append(all, shard...)
	}
	assert.Equal(t, []int{3, 3, 4}, sizes)
	if diff := cmp.Diff(paths, all); diff != "" {
		t.Errorf("shards must cover every path once, in order (-want +got):\n%s", diff)
	}

	// Fewer paths than workers: the last worker takes them all.
	for w := 0; w < 2; w++ {
		shard, err := SplitByWorker(paths[:2], w, 3)
		require.NoError(t, err)
		assert.Empty(t, shard)
	}
	shard, err := SplitByWorker(paths[:2], 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, shard)

	for _, tc := range [][2]int{{0, 0}, {-1, 2}, {2, 2}} {
		_, err := SplitByWorker(paths, tc[0], tc[1])
		assert.ErrorIs(t, err, ErrInvalidWorker, "worker %d of %d", tc[0], tc[1])
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	for _, name := range []string{"b.json.gz", "a.jsonl", "notes.txt", "sub/c.jsonl", "d.pb"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	got, err := Discover(dir)
	require.NoError(t, err)
	want := []string{
		filepath.Join(dir, "a.jsonl"),
		filepath.Join(dir, "b.json.gz"),
		filepath.Join(dir, "sub", "c.jsonl"),
	}
	assert.Equal(t, want, got)

	_, err = Discover(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	// A link pointing out of the root is not a scene file of this dataset.
	outside := filepath.Join(t.TempDir(), "x.jsonl")
	require.NoError(t, os.WriteFile(outside, nil, 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link.jsonl")))
	got, err = Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIterate_MemoryFileSystem(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(scene.NewSyntheticGenerator(6).Scene(0))
	require.NoError(t, err)
	mfs := fsutil.NewMemoryFileSystem()
	mfs.WriteFile("/scenes/a.jsonl", data)
	mfs.WriteFile("/scenes/tags.jsonl", []byte(`{"day_time": "day"}`+"\n"))

	d, err := New([]string{"/scenes/a.jsonl"}, Options{FS: mfs, SceneTagsPath: "/scenes/tags.jsonl"})
	require.NoError(t, err)
	assert.Len(t, collect(t, d), 6)
}

func TestIterate_GroundTruthInTrackFrame(t *testing.T) {
	t.Parallel()

	paths := writeScenes(t, t.TempDir(), 5, 2)
	d, err := New(paths, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, d.NumScenes())

	samples := collect(t, d)
	require.Len(t, samples, 12, "six vehicles per synthetic scene")

	for _, s := range samples {
		assert.Nil(t, s.Features)
		require.Len(t, s.GroundTruth, 25)
		// One 0.2 s step at 8 m/s along the heading, curving slightly.
		first := s.GroundTruth[0]
		assert.InDelta(t, 1.6, first.X, 0.1, "scene %s track %d", s.SceneID, s.TrackID)
		assert.Less(t, math.Abs(first.Y), 0.3)
		assert.Equal(t, []string{"move_forward"}, s.Tags)
	}
	assert.Equal(t, int64(1), samples[0].TrackID)
	assert.NotEqual(t, samples[0].SceneID, samples[6].SceneID)
}

func TestIterate_WithRenderer(t *testing.T) {
	t.Parallel()

	fr, err := render.NewFeatureRenderer(config.MustLoadDefaultConfig())
	require.NoError(t, err)

	paths := writeScenes(t, t.TempDir(), 9, 1)
	d, err := New(paths, Options{Renderer: fr})
	require.NoError(t, err)

	samples := collect(t, d)
	require.NotEmpty(t, samples)
	for _, s := range samples {
		require.NotNil(t, s.Features)
		assert.Equal(t, [3]int{fr.NumChannels(), 128, 128}, s.Features.Shape())
	}

	// The request track sits at the raster centre, facing +X.
	last := fr.Slices()[2]
	assert.Equal(t, float32(1), samples[0].Features.At(last.Offset, 63, 63))
}

func TestFilters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := writeScenes(t, dir, 2, 3)

	tagsPath := filepath.Join(dir, "tags.jsonl")
	tags := `{"day_time": "night", "track": "a"}
{"day_time": "day", "track": "b"}
{"day_time": "night", "track": "c"}
`
	require.NoError(t, os.WriteFile(tagsPath, []byte(tags), 0o644))

	night := func(tags map[string]any) bool { return tags["day_time"] == "night" }
	d, err := New(paths, Options{SceneTagsPath: tagsPath, SceneFilter: night})
	require.NoError(t, err)
	assert.Equal(t, []string{paths[0], paths[2]}, d.Paths())
	assert.Len(t, collect(t, d), 12)

	// Without a tag file the filter sees the scene's own tags.
	d, err = New(paths, Options{SceneFilter: night})
	require.NoError(t, err)
	assert.Equal(t, 3, d.NumScenes())
	assert.Empty(t, collect(t, d), "synthetic scenes are tagged as daytime")

	d, err = New(paths, Options{TrajectoryFilter: func(tags []string) bool { return len(tags) == 0 }})
	require.NoError(t, err)
	assert.Empty(t, collect(t, d))

	_, err = New(paths[:2], Options{SceneTagsPath: tagsPath})
	assert.ErrorContains(t, err, "3 entries for 2 scene files")

	_, err = New(paths, Options{SceneTagsPath: filepath.Join(dir, "missing.jsonl")})
	assert.Error(t, err)
}

func TestIterateSource_SkipsIncompleteRequests(t *testing.T) {
	t.Parallel()

	track := func(id int64, x float64) scene.Track {
		return scene.Track{TrackID: id, Position: geom.Vec2{X: x}, Dimensions: geom.Vec2{X: 4, Y: 2}}
	}
	s := &scene.Scene{
		ID:                "partial",
		PastVehicleTracks: []scene.TrackFrame{{Tracks: []scene.Track{track(1, 0), track(2, 10)}}},
		FutureVehicleTracks: []scene.TrackFrame{
			{Tracks: []scene.Track{track(1, 1), track(2, 11)}},
			{Tracks: []scene.Track{track(1, 2)}},
		},
		PredictionRequests: []scene.PredictionRequest{{TrackID: 1}, {TrackID: 2}, {TrackID: 3}},
	}

	d, err := New(nil, Options{})
	require.NoError(t, err)

	var got []Sample
	err = d.IterateSource(context.Background(), &scene.SliceSource{Scenes: []*scene.Scene{s}}, func(smp Sample) error {
		got = append(got, smp)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].TrackID)
	assert.Equal(t, []geom.Vec2{{X: 1}, {X: 2}}, got[0].GroundTruth)
}

func TestRun_ShardsAcrossWorkers(t *testing.T) {
	t.Parallel()

	paths := writeScenes(t, t.TempDir(), 4, 5)
	d, err := New(paths, Options{})
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[string]int{}
	workers := map[int]bool{}
	err = d.Run(context.Background(), 2, func(s Sample) error {
		mu.Lock()
		defer mu.Unlock()
		seen[fmt.Sprintf("%s/%d", s.SceneID, s.TrackID)]++
		workers[s.Worker] = true
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 30)
	for k, n := range seen {
		assert.Equal(t, 1, n, k)
	}
	assert.Equal(t, map[int]bool{0: true, 1: true}, workers)

	assert.ErrorIs(t, d.Run(context.Background(), 0, nil), ErrInvalidWorker)
}

func TestRunSource_FansOutScenes(t *testing.T) {
	t.Parallel()

	d, err := New(nil, Options{})
	require.NoError(t, err)

	gen := scene.NewSyntheticGenerator(11)
	gen.Limit = 6

	var mu sync.Mutex
	seen := map[string]int{}
	workers := map[int]bool{}
	err = d.RunSource(context.Background(), 3, gen, func(s Sample) error {
		mu.Lock()
		defer mu.Unlock()
		seen[fmt.Sprintf("%s/%d", s.SceneID, s.TrackID)]++
		workers[s.Worker] = true
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 36)
	for k, n := range seen {
		assert.Equal(t, 1, n, k)
	}
	for w := range workers {
		assert.True(t, w >= 0 && w < 3, "worker %d", w)
	}

	assert.ErrorIs(t, d.RunSource(context.Background(), 0, gen, nil), ErrInvalidWorker)

	errStop := errors.New("stop")
	gen = scene.NewSyntheticGenerator(11)
	err = d.RunSource(context.Background(), 2, gen, func(Sample) error { return errStop })
	assert.ErrorIs(t, err, errStop)
}

func TestRun_StopsOnError(t *testing.T) {
	t.Parallel()

	paths := writeScenes(t, t.TempDir(), 8, 4)
	d, err := New(paths, Options{})
	require.NoError(t, err)

	errStop := errors.New("stop")
	err = d.Run(context.Background(), 3, func(Sample) error { return errStop })
	assert.ErrorIs(t, err, errStop)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.Iterate(ctx, func(Sample) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
