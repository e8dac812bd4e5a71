// Package geom owns the coordinate frames used by the feature-map engine.
//
// Responsibilities: 2D vectors, row-major affine transforms (3×4 or 4×4),
// transform composition, point and vector application, the fixed
// metres-to-pixels raster transform, and the world-to-track frame pose.
// Key types: Vec2, Transform.
//
// Dependency rule: geom depends on nothing else in this module.
package geom
