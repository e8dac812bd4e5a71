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

// ErrUnknownRenderer is returned for renderer kinds other than vehicles
// and pedestrians. It is the same value as channels.ErrUnknownClass, which
// configuration validation reports.
var ErrUnknownRenderer = channels.ErrUnknownClass

// TrackRenderer draws one agent class over a time grid.
type TrackRenderer interface {
	// Render returns a raster of OutputChannels() channels: one block of
	// NumChannels() per sampled timestep, oldest first.
	Render(s *scene.Scene, toTrackFrame geom.Transform) (*raster.Raster, error)
	Kind() channels.Class
	NumChannels() int
	HistorySteps() int
	OutputChannels() int
	Grid() timegrid.Grid
	ChannelNames() []string
}

// NewTrackRenderer builds the renderer named by params.Kind.
func NewTrackRenderer(
	params config.RendererParams,
	grid timegrid.Grid,
	geometry config.FeatureMapParams,
	toFeatureMap geom.Transform,
) (TrackRenderer, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	class := channels.Class(params.Kind)
	attrs := make([]channels.Attribute, 0, len(params.Attributes))
	for _, name := range params.Attributes {
		a, err := channels.ParseAttribute(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", params.Kind, err)
		}
		attrs = append(attrs, a)
	}

	switch class {
	case channels.Vehicles:
		base, err := newBase(class, attrs, grid, geometry, toFeatureMap)
		if err != nil {
			return nil, err
		}
		return &VehicleRenderer{base}, nil
	case channels.Pedestrians:
		base, err := newBase(class, attrs, grid, geometry, toFeatureMap)
		if err != nil {
			return nil, err
		}
		return &PedestrianRenderer{base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRenderer, params.Kind)
	}
}

// base holds what every track renderer shares.
type base struct {
	enc          channels.Encoder
	grid         timegrid.Grid
	offsets      []int
	rows, cols   int
	toFeatureMap geom.Transform
}

func newBase(
	class channels.Class,
	attrs []channels.Attribute,
	grid timegrid.Grid,
	geometry config.FeatureMapParams,
	toFeatureMap geom.Transform,
) (base, error) {
	enc, err := channels.NewEncoder(class, attrs)
	if err != nil {
		return base{}, err
	}
	return base{
		enc:          enc,
		grid:         grid,
		offsets:      grid.Indices(),
		rows:         geometry.Rows,
		cols:         geometry.Cols,
		toFeatureMap: toFeatureMap,
	}, nil
}

func (b *base) Kind() channels.Class { return b.enc.Class() }
func (b *base) NumChannels() int { return b.enc.NumChannels() }
func (b *base) HistorySteps() int { return len(b.offsets) }
func (b *base) OutputChannels() int { return b.enc.NumChannels() * len(b.offsets) }
func (b *base) Grid() timegrid.Grid { return b.grid }
func (b *base) Encoder() channels.Encoder { return b.enc }

// ChannelNames labels every output channel as name@offset.
func (b *base) ChannelNames() []string {
	names := make([]string, 0, b.OutputChannels())
	per := b.enc.ChannelNames()
	for _, off := range b.offsets {
		for _, n := range per {
			names = append(names, fmt.Sprintf("%s@%d", n, off))
		}
	}
	return names
}

// frameFunc returns the tracks to draw at a history offset, in draw order.
type frameFunc func(offset int) ([]*scene.Track, error)

// render draws every sampled frame into a fresh raster. Values come from
// toTrackFrame (metric, track-aligned); polygons go through the composed
// pixel transform.
func (b *base) render(toTrackFrame geom.Transform, frame frameFunc) (*raster.Raster, error) {
	tf, err := geom.Compose(b.toFeatureMap, toTrackFrame)
	if err != nil {
		return nil, err
	}

	n := b.enc.NumChannels()
	fm := raster.New(n*len(b.offsets), b.rows, b.cols)
	if n == 0 {
		return fm, nil
	}
	filler := raster.NewFiller(b.rows, b.cols)
	values := make([]float32, 0, n)

	for step, off := range b.offsets {
		tracks, err := frame(off)
		if err != nil {
			return nil, err
		}
		block := step * n
		for _, t := range tracks {
			if !filler.Prepare(tf.ApplyPoints(t.Footprint())) {
				monitoring.Debugf("render: %s track %d at offset %d has no drawable footprint",
					b.enc.Class(), t.TrackID, off)
				continue
			}
			values = b.enc.AppendValues(values[:0], t, toTrackFrame)
			for i, v := range values {
				filler.Blend(fm.Plane(block+i), v)
			}
		}
	}
	return fm, nil
}
