package render

import (
	"fmt"

	"github.com/banshee-data/trackraster/internal/channels"
	"github.com/banshee-data/trackraster/internal/config"
	"github.com/banshee-data/trackraster/internal/geom"
	"github.com/banshee-data/trackraster/internal/monitoring"
	"github.com/banshee-data/trackraster/internal/raster"
	"github.com/banshee-data/trackraster/internal/scene"
	"github.com/banshee-data/trackraster/internal/timegrid"
)

// ChannelSlice is the contiguous channel range one renderer owns in the
// assembled raster.
type ChannelSlice struct {
	Kind   channels.Class
	Grid   timegrid.Grid
	Offset int
	Len    int
	Names  []string
}

// End is the exclusive upper channel bound.
func (s ChannelSlice) End() int { return s.Offset + s.Len }

// FeatureRenderer assembles the outputs of its configured track renderers
// into one [channels, rows, cols] raster.
type FeatureRenderer struct {
	geometry     config.FeatureMapParams
	toFeatureMap geom.Transform
	renderers    []TrackRenderer
	slices       []ChannelSlice
	numChannels  int
}

// NewFeatureRenderer validates cfg and expands its renderer groups, in
// order, into concrete renderers. Every error it returns wraps
// config.ErrInvalidConfig; Render never sees an invalid time grid or
// renderer kind.
func NewFeatureRenderer(cfg *config.FeatureConfig) (*FeatureRenderer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil feature config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fm := cfg.FeatureMap
	fr := &FeatureRenderer{
		geometry:     fm,
		toFeatureMap: geom.RasterTransform(fm.Rows, fm.Cols, fm.Resolution),
	}

	for gi, group := range cfg.Groups {
		grid, err := timegrid.New(group.TimeGrid.Start, group.TimeGrid.Stop, group.TimeGrid.Step)
		if err != nil {
			return nil, fmt.Errorf("%w: renderers_groups[%d]: %w", config.ErrInvalidConfig, gi, err)
		}
		for ri, params := range group.Renderers {
			r, err := NewTrackRenderer(params, grid, fr.geometry, fr.toFeatureMap)
			if err != nil {
				return nil, fmt.Errorf("%w: renderers_groups[%d].renderers[%d]: %w", config.ErrInvalidConfig, gi, ri, err)
			}
			fr.slices = append(fr.slices, ChannelSlice{
				Kind:   r.Kind(),
				Grid:   grid,
				Offset: fr.numChannels,
				Len:    r.OutputChannels(),
				Names:  r.ChannelNames(),
			})
			fr.renderers = append(fr.renderers, r)
			fr.numChannels += r.OutputChannels()
			monitoring.Debugf("render: %s renderer over %s, %d channels x %d steps",
				r.Kind(), grid, r.NumChannels(), r.HistorySteps())
		}
	}
	return fr, nil
}

// Render draws s in the frame given by toTrackFrame (world to track-local,
// 3x4 or 4x4). The result is freshly allocated; identical inputs always
// give bit-identical output. On error no raster is returned.
func (fr *FeatureRenderer) Render(s *scene.Scene, toTrackFrame geom.Transform) (*raster.Raster, error) {
	out := raster.New(fr.numChannels, fr.geometry.Rows, fr.geometry.Cols)
	for i, r := range fr.renderers {
		fm, err := r.Render(s, toTrackFrame)
		if err != nil {
			return nil, fmt.Errorf("%s renderer %d: %w", r.Kind(), i, err)
		}
		if err := out.CopyChannels(fr.slices[i].Offset, fm); err != nil {
			return nil, fmt.Errorf("%s renderer %d: %w", r.Kind(), i, err)
		}
	}
	return out, nil
}

// NumChannels is the total channel count of a rendered raster.
func (fr *FeatureRenderer) NumChannels() int { return fr.numChannels }

// Geometry returns the raster geometry.
func (fr *FeatureRenderer) Geometry() config.FeatureMapParams { return fr.geometry }

// ToFeatureMapTransform is the fixed track-frame to pixel transform.
func (fr *FeatureRenderer) ToFeatureMapTransform() geom.Transform { return fr.toFeatureMap }

// Renderers returns the configured renderers in output order.
func (fr *FeatureRenderer) Renderers() []TrackRenderer {
	return append([]TrackRenderer(nil), fr.renderers...)
}

// Slices returns each renderer's channel range, in output order.
func (fr *FeatureRenderer) Slices() []ChannelSlice {
	return append([]ChannelSlice(nil), fr.slices...)
}
