package scene

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/banshee-data/trackraster/internal/geom"
)

// syntheticNamespace seeds deterministic scene IDs.
var syntheticNamespace = uuid.MustParse("6f1c2a7e-3b0d-4c55-9a53-0c7e5d2b8f10")

// SyntheticGenerator produces deterministic scenes of vehicles circling the
// ego and pedestrians drifting in straight lines. The same seed always
// yields the same scenes.
type SyntheticGenerator struct {
	seed  int64
	index int

	// Configuration
	VehicleCount    int     // vehicles per scene, ego excluded
	PedestrianCount int     // pedestrians per scene
	HistoryLength   int     // past frames per scene
	FutureLength    int     // future vehicle frames per scene
	FrameInterval   float64 // seconds between frames
	TrackRadius     float64 // metres, maximum circle radius for vehicles
	TrackSpeedMPS   float64 // vehicle speed
	WalkSpeedMPS    float64 // pedestrian speed
	Limit           int     // scenes to produce from Next; 0 means unbounded
}

// NewSyntheticGenerator returns a generator with defaults matching a 5 s,
// 5 Hz history window.
func NewSyntheticGenerator(seed int64) *SyntheticGenerator {
	return &SyntheticGenerator{
		seed:            seed,
		VehicleCount:    6,
		PedestrianCount: 4,
		HistoryLength:   25,
		FutureLength:    25,
		FrameInterval:   0.2,
		TrackRadius:     30.0,
		TrackSpeedMPS:   8.0,
		WalkSpeedMPS:    1.4,
	}
}

// Next implements Source.
func (g *SyntheticGenerator) Next(ctx context.Context) (*Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.Limit > 0 && g.index >= g.Limit {
		return nil, io.EOF
	}
	s := g.Scene(g.index)
	g.index++
	return s, nil
}

// Scene builds scene number i. It does not advance the generator.
func (g *SyntheticGenerator) Scene(i int) *Scene {
	rng := rand.New(rand.NewSource(g.seed*1_000_003 + int64(i)))
	frames := g.HistoryLength + g.FutureLength

	type vehicle struct {
		id     int64
		radius float64
		phase  float64
		dir    float64
		length float64
		width  float64
	}
	vehicles := make([]vehicle, g.VehicleCount)
	for k := range vehicles {
		vehicles[k] = vehicle{
			id:     int64(k + 1),
			radius: 5 + rng.Float64()*(g.TrackRadius-5),
			phase:  rng.Float64() * 2 * math.Pi,
			dir:    float64(1 - 2*rng.Intn(2)),
			length: 4 + rng.Float64()*1.5,
			width:  1.8 + rng.Float64()*0.4,
		}
	}

	type walker struct {
		id    int64
		start geom.Vec2
		head  float64
	}
	walkers := make([]walker, g.PedestrianCount)
	for k := range walkers {
		walkers[k] = walker{
			id:    int64(1000 + k),
			start: geom.Vec2{X: (rng.Float64() - 0.5) * 40, Y: (rng.Float64() - 0.5) * 40},
			head:  rng.Float64() * 2 * math.Pi,
		}
	}

	s := &Scene{
		ID: uuid.NewSHA1(syntheticNamespace, fmt.Appendf(nil, "%d/%d", g.seed, i)).String(),
		Tags: map[string]any{
			"day_time": "day",
			"season":   "summer",
			"track":    "synthetic",
		},
	}

	for f := 0; f < frames; f++ {
		t := float64(f) * g.FrameInterval

		var vf TrackFrame
		for _, v := range vehicles {
			omega := v.dir * g.TrackSpeedMPS / v.radius
			theta := v.phase + omega*t
			pos := geom.Vec2{X: v.radius * math.Cos(theta), Y: v.radius * math.Sin(theta)}
			vel := geom.Vec2{X: -v.radius * omega * math.Sin(theta), Y: v.radius * omega * math.Cos(theta)}
			acc := geom.Vec2{X: -omega * omega * pos.X, Y: -omega * omega * pos.Y}
			vf.Tracks = append(vf.Tracks, Track{
				TrackID:      v.id,
				Position:     pos,
				Dimensions:   geom.Vec2{X: v.length, Y: v.width},
				Yaw:          math.Atan2(vel.Y, vel.X),
				Velocity:     vel,
				Acceleration: acc,
			})
		}

		if f >= g.HistoryLength {
			s.FutureVehicleTracks = append(s.FutureVehicleTracks, vf)
			continue
		}
		s.PastVehicleTracks = append(s.PastVehicleTracks, vf)

		var pf TrackFrame
		for _, w := range walkers {
			vel := geom.Vec2{X: g.WalkSpeedMPS * math.Cos(w.head), Y: g.WalkSpeedMPS * math.Sin(w.head)}
			pf.Tracks = append(pf.Tracks, Track{
				TrackID:    w.id,
				Position:   geom.Vec2{X: w.start.X + vel.X*t, Y: w.start.Y + vel.Y*t},
				Dimensions: geom.Vec2{X: 0.6, Y: 0.6},
				Yaw:        w.head,
				Velocity:   vel,
			})
		}
		s.PastPedestrianTracks = append(s.PastPedestrianTracks, pf)

		egoSpeed := g.TrackSpeedMPS
		s.PastEgoTrack = append(s.PastEgoTrack, Track{
			TrackID:    0,
			Position:   geom.Vec2{X: egoSpeed * (t - float64(g.HistoryLength-1)*g.FrameInterval), Y: 0},
			Dimensions: geom.Vec2{X: 4.8, Y: 2.0},
			Velocity:   geom.Vec2{X: egoSpeed},
		})
	}

	for _, v := range vehicles {
		s.PredictionRequests = append(s.PredictionRequests, PredictionRequest{
			TrackID: v.id,
			Tags:    []string{"move_forward"},
		})
	}
	return s
}
