package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackraster/internal/config"
	"github.com/banshee-data/trackraster/internal/monitoring"
	"github.com/banshee-data/trackraster/internal/scene"
	"github.com/banshee-data/trackraster/internal/timegrid"
	"github.com/banshee-data/trackraster/internal/timeutil"
)

var defaultConfig = filepath.Join("..", "..", config.DefaultConfigPath)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestRun_Synthetic(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{ConfigPath: defaultConfig, Synthetic: 2, Seed: 7, Workers: 1}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 12)
	assert.Contains(t, lines[0], "track=1 gt=25 shape=46x128x128")
	assert.Contains(t, lines[0], "pedestrians{start:0 stop:24 step:6}=")
}

func TestRun_SceneFilesWithoutRendering(t *testing.T) {
	dir := t.TempDir()
	gen := scene.NewSyntheticGenerator(3)
	for i := 0; i < 3; i++ {
		data, err := json.Marshal(gen.Scene(i))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "s"+string(rune('a'+i))+".jsonl"), data, 0o644))
	}

	var out bytes.Buffer
	err := run(context.Background(), options{Scenes: []string{dir}, Workers: 2, NoRender: true}, &out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 18)
	for _, l := range lines {
		assert.NotContains(t, l, "shape=")
	}
}

func TestRun_Errors(t *testing.T) {
	err := run(context.Background(), options{ConfigPath: "missing.json", Synthetic: 1}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "failed to load config")

	err = run(context.Background(), options{NoRender: true, Scenes: []string{"does-not-exist"}}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "failed to stat scenes path")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"feature_map_params": {"rows": 8, "cols": 8, "resolution": 1},
		"renderers_groups": [{"time_grid_params": {"start": 0, "stop": 30}, "renderers": [{"vehicles": ["occupancy"]}]}]}`), 0o644))
	err = run(context.Background(), options{ConfigPath: bad, Synthetic: 1}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "failed to load config")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.ErrorIs(t, err, timegrid.ErrHistoryTooLong)
}

func TestRun_SyntheticFansOutAcrossWorkers(t *testing.T) {
	var one, many bytes.Buffer
	require.NoError(t, run(context.Background(), options{ConfigPath: defaultConfig, Synthetic: 4, Seed: 3, Workers: 1}, &one))
	require.NoError(t, run(context.Background(), options{ConfigPath: defaultConfig, Synthetic: 4, Seed: 3, Workers: 3}, &many))

	sorted := func(b *bytes.Buffer) []string {
		lines := strings.Split(strings.TrimSpace(b.String()), "\n")
		slices.Sort(lines)
		return lines
	}
	want := sorted(&one)
	assert.Len(t, want, 24)
	assert.Equal(t, want, sorted(&many))
}

func TestRun_CancelledSyntheticIsNotFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, options{ConfigPath: defaultConfig, Synthetic: 2, Workers: 2}, &bytes.Buffer{})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, isFatal(err))
	assert.False(t, isFatal(fmt.Errorf("worker 1: %w", context.Canceled)))
	assert.False(t, isFatal(nil))
	assert.True(t, isFatal(errors.New("boom")))
}

func TestReportProgress(t *testing.T) {
	lines := make(chan string, 4)
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines <- fmt.Sprintf(format, v...)
	})
	defer monitoring.SetLogger(nil)

	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var st stats
	for i := 0; i < 30; i++ {
		st.add(1)
	}

	stop := reportProgress(clock, 10*time.Second, &st)
	clock.Advance(10 * time.Second)
	select {
	case l := <-lines:
		assert.Equal(t, "progress: 30 samples in 10s (3.0/s)", l)
	case <-time.After(5 * time.Second):
		t.Fatal("no progress line logged")
	}
	stop()

	reportProgress(clock, 0, &st)()
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b/c.jsonl"}, splitList(" a, ,b/c.jsonl,"))
	assert.Nil(t, splitList(""))
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, config.DefaultConfigPath, *configPath)
	assert.Positive(t, *workers)
	assert.False(t, *showVersion)
}
