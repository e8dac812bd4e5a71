package render

import (
	"github.com/banshee-data/trackraster/internal/geom"
	"github.com/banshee-data/trackraster/internal/raster"
	"github.com/banshee-data/trackraster/internal/scene"
)

// VehicleRenderer draws vehicle tracks and, after them, the ego track of
// each sampled timestep. Scenes without any ego history draw no ego.
type VehicleRenderer struct {
	base
}

// Render implements TrackRenderer.
func (r *VehicleRenderer) Render(s *scene.Scene, toTrackFrame geom.Transform) (*raster.Raster, error) {
	return r.render(toTrackFrame, func(off int) ([]*scene.Track, error) {
		vehicles, err := s.VehiclesAt(off)
		if err != nil {
			return nil, err
		}
		out := make([]*scene.Track, 0, len(vehicles)+1)
		for i := range vehicles {
			out = append(out, &vehicles[i])
		}
		if len(s.PastEgoTrack) == 0 {
			return out, nil
		}
		ego, err := s.EgoAt(off)
		if err != nil {
			return nil, err
		}
		return append(out, ego), nil
	})
}
