// Package render rasterises scene tracks into feature maps.
//
// A TrackRenderer draws one agent class over one time grid into a
// [channels*steps, rows, cols] block. FeatureRenderer owns an ordered list
// of them, the raster geometry and the metres-to-pixels transform, and
// concatenates their blocks into a single raster.
//
// Configuration is read-only after construction, so one FeatureRenderer
// may serve concurrent Render calls; every call allocates its own output
// and scratch buffers.
package render
