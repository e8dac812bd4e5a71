package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when a transform or point batch has the wrong
// dimensions for the requested operation.
var ErrShapeMismatch = errors.New("geom: shape mismatch")

// Vec2 is a point or vector in a 2D frame (metres unless stated otherwise).
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Finite reports whether both components are finite numbers.
func (v Vec2) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

// Transform is a row-major affine transform acting on homogeneous 3D
// coordinates. It has 4 columns and either 3 rows (the homogeneous row
// omitted) or 4 rows. The zero value is not usable; build one with
// NewTransform, Identity, RasterTransform or ToTrackFrame.
type Transform struct {
	m *mat.Dense
}

// NewTransform builds a transform from row-major data. rows must be 3 or 4
// and cols must be 4.
func NewTransform(rows, cols int, data []float64) (Transform, error) {
	if cols != 4 || (rows != 3 && rows != 4) {
		return Transform{}, fmt.Errorf("%w: transform must be 3x4 or 4x4, got %dx%d", ErrShapeMismatch, rows, cols)
	}
	if len(data) != rows*cols {
		return Transform{}, fmt.Errorf("%w: %dx%d transform needs %d values, got %d",
			ErrShapeMismatch, rows, cols, rows*cols, len(data))
	}
	return Transform{m: mat.NewDense(rows, cols, append([]float64(nil), data...))}, nil
}

// FromPose converts a 4x4 row-major pose array into a Transform.
func FromPose(T [16]float64) Transform {
	return Transform{m: mat.NewDense(4, 4, append([]float64(nil), T[:]...))}
}

// Identity returns the 4x4 identity transform.
func Identity() Transform {
	return FromPose([16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// RasterTransform maps metric track-frame coordinates to pixel coordinates
// of a rows×cols raster with the given resolution (metres per pixel). The
// track-frame origin lands on the raster centre.
func RasterTransform(rows, cols int, resolution float64) Transform {
	scale := 1 / resolution
	return FromPose([16]float64{
		scale, 0, 0, 0.5 * float64(rows),
		0, scale, 0, 0.5 * float64(cols),
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// ToTrackFrame returns the rigid transform taking world coordinates into the
// frame centred on position with the X axis along yaw (radians).
func ToTrackFrame(position Vec2, yaw float64) Transform {
	c, s := math.Cos(yaw), math.Sin(yaw)
	return FromPose([16]float64{
		c, s, 0, -(c*position.X + s*position.Y),
		-s, c, 0, -(-s*position.X + c*position.Y),
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// IsZero reports whether t was never initialised.
func (t Transform) IsZero() bool { return t.m == nil }

// Dims returns the number of rows and columns.
func (t Transform) Dims() (rows, cols int) {
	if t.m == nil {
		return 0, 0
	}
	return t.m.Dims()
}

// At returns the element at row i, column j.
func (t Transform) At(i, j int) float64 { return t.m.At(i, j) }

// Raw returns a row-major copy of the matrix elements.
func (t Transform) Raw() []float64 {
	if t.m == nil {
		return nil
	}
	r, c := t.m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, t.m.RawRowView(i)...)
	}
	return out
}

// homogeneous returns t as a 4x4 matrix, appending [0 0 0 1] to a 3x4.
func (t Transform) homogeneous() *mat.Dense {
	if r, _ := t.m.Dims(); r == 4 {
		return t.m
	}
	h := mat.NewDense(4, 4, nil)
	h.Slice(0, 3, 0, 4).(*mat.Dense).Copy(t.m)
	h.Set(3, 3, 1)
	return h
}

// Compose returns outer·inner, i.e. the transform that applies inner first
// and outer second. A 3x4 inner is treated as its 4x4 homogeneous extension;
// the result has as many rows as outer.
func Compose(outer, inner Transform) (Transform, error) {
	if outer.m == nil || inner.m == nil {
		return Transform{}, fmt.Errorf("%w: compose with uninitialised transform", ErrShapeMismatch)
	}
	if _, c := outer.m.Dims(); c != 4 {
		return Transform{}, fmt.Errorf("%w: outer transform has %d columns", ErrShapeMismatch, c)
	}
	if _, c := inner.m.Dims(); c != 4 {
		return Transform{}, fmt.Errorf("%w: inner transform has %d columns", ErrShapeMismatch, c)
	}
	r, _ := outer.m.Dims()
	out := mat.NewDense(r, 4, nil)
	out.Mul(outer.m, inner.homogeneous())
	return Transform{m: out}, nil
}

// ApplyPoints transforms 2D points lifted to (x, y, 0, 1) and returns the
// resulting X/Y in the same order. An empty batch returns nil.
func (t Transform) ApplyPoints(points []Vec2) []Vec2 {
	if len(points) == 0 {
		return nil
	}
	lifted := mat.NewDense(4, len(points), nil)
	for j, p := range points {
		lifted.Set(0, j, p.X)
		lifted.Set(1, j, p.Y)
		lifted.Set(3, j, 1)
	}
	var res mat.Dense
	res.Mul(t.m, lifted)
	out := make([]Vec2, len(points))
	for j := range points {
		out[j] = Vec2{X: res.At(0, j), Y: res.At(1, j)}
	}
	return out
}

// ApplyVector applies only the linear 2x2 block of t, ignoring translation.
// Use it for velocities and accelerations.
func (t Transform) ApplyVector(v Vec2) Vec2 {
	return Vec2{
		X: t.m.At(0, 0)*v.X + t.m.At(0, 1)*v.Y,
		Y: t.m.At(1, 0)*v.X + t.m.At(1, 1)*v.Y,
	}
}
