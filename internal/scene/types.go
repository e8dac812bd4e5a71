package scene

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trackraster/internal/geom"
)

// ErrMissingHistory is returned when a history offset falls outside the
// frames a scene carries.
var ErrMissingHistory = errors.New("scene: missing history frame")

// Track is one agent's state at a single timestep. Polygon, when set,
// overrides the footprint derived from Position, Dimensions and Yaw.
type Track struct {
	TrackID      int64       `json:"track_id"`
	Position     geom.Vec2   `json:"position"`
	Dimensions   geom.Vec2   `json:"dimensions"` // X = length, Y = width (metres)
	Yaw          float64     `json:"yaw"`        // radians
	Velocity     geom.Vec2   `json:"velocity"`
	Acceleration geom.Vec2   `json:"acceleration"`
	Polygon      []geom.Vec2 `json:"polygon,omitempty"`
}

// Footprint returns the agent's outline in world coordinates: the explicit
// polygon if present, otherwise the oriented box ordered front-left,
// front-right, rear-right, rear-left.
func (t *Track) Footprint() []geom.Vec2 {
	if len(t.Polygon) > 0 {
		return t.Polygon
	}
	c, s := math.Cos(t.Yaw), math.Sin(t.Yaw)
	hl, hw := 0.5*t.Dimensions.X, 0.5*t.Dimensions.Y
	corner := func(dl, dw float64) geom.Vec2 {
		return geom.Vec2{
			X: t.Position.X + dl*c - dw*s,
			Y: t.Position.Y + dl*s + dw*c,
		}
	}
	return []geom.Vec2{
		corner(hl, hw),
		corner(hl, -hw),
		corner(-hl, -hw),
		corner(-hl, hw),
	}
}

// TrackFrame is the set of tracks observed at one timestep.
type TrackFrame struct {
	Tracks []Track `json:"tracks"`
}

// Find returns the track with the given ID, or nil.
func (f *TrackFrame) Find(id int64) *Track {
	for i := range f.Tracks {
		if f.Tracks[i].TrackID == id {
			return &f.Tracks[i]
		}
	}
	return nil
}

// PredictionRequest asks for the future trajectory of one vehicle track.
type PredictionRequest struct {
	TrackID int64    `json:"track_id"`
	Tags    []string `json:"trajectory_tags,omitempty"`
}

// Scene is an immutable snapshot of a bounded history window.
type Scene struct {
	ID                   string              `json:"id"`
	PastVehicleTracks    []TrackFrame        `json:"past_vehicle_tracks"`
	PastPedestrianTracks []TrackFrame        `json:"past_pedestrian_tracks"`
	PastEgoTrack         []Track             `json:"past_ego_track"`
	FutureVehicleTracks  []TrackFrame        `json:"future_vehicle_tracks,omitempty"`
	PredictionRequests   []PredictionRequest `json:"prediction_requests,omitempty"`
	Tags                 map[string]any      `json:"scene_tags,omitempty"`
}

// resolve maps a negative offset onto an index into a history of length n.
func resolve(offset, n int) (int, error) {
	idx := n + offset
	if offset >= 0 || idx < 0 {
		return 0, fmt.Errorf("%w: offset %d with %d frames", ErrMissingHistory, offset, n)
	}
	return idx, nil
}

// VehiclesAt returns the vehicle tracks at a negative history offset.
func (s *Scene) VehiclesAt(offset int) ([]Track, error) {
	idx, err := resolve(offset, len(s.PastVehicleTracks))
	if err != nil {
		return nil, fmt.Errorf("vehicles: %w", err)
	}
	return s.PastVehicleTracks[idx].Tracks, nil
}

// PedestriansAt returns the pedestrian tracks at a negative history offset.
func (s *Scene) PedestriansAt(offset int) ([]Track, error) {
	idx, err := resolve(offset, len(s.PastPedestrianTracks))
	if err != nil {
		return nil, fmt.Errorf("pedestrians: %w", err)
	}
	return s.PastPedestrianTracks[idx].Tracks, nil
}

// EgoAt returns the ego track at a negative history offset.
func (s *Scene) EgoAt(offset int) (*Track, error) {
	idx, err := resolve(offset, len(s.PastEgoTrack))
	if err != nil {
		return nil, fmt.Errorf("ego: %w", err)
	}
	return &s.PastEgoTrack[idx], nil
}

// HistoryLength is the number of past vehicle frames in the scene.
func (s *Scene) HistoryLength() int { return len(s.PastVehicleTracks) }

// TrackForTransform returns the request track in the most recent history
// frame, or nil when it is absent.
func (s *Scene) TrackForTransform(trackID int64) *Track {
	if len(s.PastVehicleTracks) == 0 {
		return nil
	}
	return s.PastVehicleTracks[len(s.PastVehicleTracks)-1].Find(trackID)
}

// GroundTruth returns the future positions of a track, one per future
// frame, stopping at the first frame where it is missing.
func (s *Scene) GroundTruth(trackID int64) []geom.Vec2 {
	out := make([]geom.Vec2, 0, len(s.FutureVehicleTracks))
	for i := range s.FutureVehicleTracks {
		t := s.FutureVehicleTracks[i].Find(trackID)
		if t == nil {
			break
		}
		out = append(out, t.Position)
	}
	return out
}

// RequestIsValid reports whether a request's track is present in the latest
// history frame and in every future frame.
func (s *Scene) RequestIsValid(req PredictionRequest) bool {
	if s.TrackForTransform(req.TrackID) == nil {
		return false
	}
	return len(s.GroundTruth(req.TrackID)) == len(s.FutureVehicleTracks)
}
