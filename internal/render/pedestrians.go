package render

import (
	"github.com/banshee-data/trackraster/internal/geom"
	"github.com/banshee-data/trackraster/internal/raster"
	"github.com/banshee-data/trackraster/internal/scene"
)

// PedestrianRenderer draws pedestrian tracks. Scenes without any pedestrian
// history render empty channels.
type PedestrianRenderer struct {
	base
}

// Render implements TrackRenderer.
func (r *PedestrianRenderer) Render(s *scene.Scene, toTrackFrame geom.Transform) (*raster.Raster, error) {
	return r.render(toTrackFrame, func(off int) ([]*scene.Track, error) {
		if len(s.PastPedestrianTracks) == 0 {
			return nil, nil
		}
		peds, err := s.PedestriansAt(off)
		if err != nil {
			return nil, err
		}
		out := make([]*scene.Track, len(peds))
		for i := range peds {
			out[i] = &peds[i]
		}
		return out, nil
	})
}
