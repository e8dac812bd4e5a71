// Package testutil provides shared test utilities and fixtures.
//
// This package centralises scene and configuration builders used by the
// renderer tests.
package testutil

import (
	"github.com/banshee-data/trackraster/internal/config"
	"github.com/banshee-data/trackraster/internal/geom"
	"github.com/banshee-data/trackraster/internal/raster"
	"github.com/banshee-data/trackraster/internal/scene"
)

// Group builds a renderer group over {start, stop, step}. Each renderer is
// given as kind followed by its attributes, e.g. []string{"vehicles", "occupancy"}.
func Group(start, stop, step int, renderers ...[]string) config.RendererGroup {
	g := config.RendererGroup{TimeGrid: config.TimeGridParams{Start: start, Stop: stop, Step: step}}
	for _, r := range renderers {
		g.Renderers = append(g.Renderers, config.RendererParams{Kind: r[0], Attributes: r[1:]})
	}
	return g
}

// FeatureConfig builds a validated-shape FeatureConfig.
func FeatureConfig(rows, cols int, resolution float64, groups ...config.RendererGroup) *config.FeatureConfig {
	return &config.FeatureConfig{
		FeatureMap: config.FeatureMapParams{Rows: rows, Cols: cols, Resolution: resolution},
		Groups:     groups,
	}
}

// BoxTrack is an axis-aligned length×width track centred at (x, y).
func BoxTrack(id int64, x, y, length, width float64) scene.Track {
	return scene.Track{
		TrackID:    id,
		Position:   geom.Vec2{X: x, Y: y},
		Dimensions: geom.Vec2{X: length, Y: width},
	}
}

// Frames wraps per-timestep track lists into TrackFrames, oldest first.
func Frames(frames ...[]scene.Track) []scene.TrackFrame {
	out := make([]scene.TrackFrame, len(frames))
	for i, f := range frames {
		out[i].Tracks = f
	}
	return out
}

// CountAbove counts pixels of channel c whose value exceeds threshold.
func CountAbove(r *raster.Raster, c int, threshold float32) int {
	n := 0
	for _, v := range r.Plane(c) {
		if v > threshold {
			n++
		}
	}
	return n
}
