// Package scene holds the read-only traffic snapshot the renderers consume.
//
// A Scene carries, per historical timestep, the vehicle tracks, the
// pedestrian tracks and the ego track, plus the future vehicle frames used
// as ground truth and the prediction requests attached to the scene.
// History is stored oldest first; offsets are negative with -1 addressing
// the most recent frame.
//
// Key types: Scene, Track, TrackFrame, PredictionRequest, Source.
package scene
