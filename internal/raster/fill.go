package raster

import (
	"image"
	"math"

	"golang.org/x/image/vector"

	"github.com/banshee-data/trackraster/internal/geom"
)

// maxPixelCoord bounds snapped coordinates so far-off vertices keep their
// side of the raster when converted to int.
const maxPixelCoord = 1 << 30

// SnapToPixels rounds raster-frame points to integer pixel coordinates,
// shifting by half a pixel first so a pixel centre sits on an integer
// coordinate. Ties round to even. Coordinates are clamped to
// ±maxPixelCoord.
func SnapToPixels(dst []image.Point, pts []geom.Vec2) []image.Point {
	dst = dst[:0]
	for _, p := range pts {
		dst = append(dst, image.Point{X: snap(p.X), Y: snap(p.Y)})
	}
	return dst
}

func snap(v float64) int {
	return int(math.Max(-maxPixelCoord, math.Min(maxPixelCoord, math.RoundToEven(v-0.5))))
}

// Filler rasterises polygons into coverage masks. It keeps scratch buffers
// between calls and must not be shared between goroutines; allocate one per
// render call.
type Filler struct {
	rows, cols int

	z       *vector.Rasterizer
	mask    image.Alpha
	snapped []image.Point
	clipA   []geom.Vec2
	clipB   []geom.Vec2

	// bounds of the current mask in raster pixels; empty when nothing to draw.
	bounds image.Rectangle
}

// NewFiller returns a filler for rows×cols planes.
func NewFiller(rows, cols int) *Filler {
	return &Filler{
		rows: rows,
		cols: cols,
		z:    vector.NewRasterizer(0, 0),
	}
}

// Prepare snaps poly (raster-frame coordinates, X along columns, Y along
// rows) to pixels and computes its anti-aliased coverage. It reports false
// for polygons that would draw nothing: fewer than three vertices,
// non-finite coordinates, a flat bounding box after snapping, or no overlap with the
// raster. The coverage stays valid until the next Prepare.
func (f *Filler) Prepare(poly []geom.Vec2) bool {
	f.bounds = image.Rectangle{}
	if len(poly) < 3 {
		return false
	}
	for _, p := range poly {
		if !p.Finite() {
			return false
		}
	}

	f.snapped = SnapToPixels(f.snapped, poly)
	box := image.Rectangle{Min: f.snapped[0], Max: f.snapped[0]}
	for _, p := range f.snapped[1:] {
		box.Min.X = min(box.Min.X, p.X)
		box.Min.Y = min(box.Min.Y, p.Y)
		box.Max.X = max(box.Max.X, p.X)
		box.Max.Y = max(box.Max.Y, p.Y)
	}
	if box.Dx() == 0 || box.Dy() == 0 {
		return false
	}
	frame := image.Rect(0, 0, f.cols, f.rows)
	clipped := box.Intersect(frame)
	if clipped.Empty() {
		return false
	}

	f.clipA = f.clipA[:0]
	for _, p := range f.snapped {
		f.clipA = append(f.clipA, geom.Vec2{X: float64(p.X), Y: float64(p.Y)})
	}
	outline := f.clipA
	if clipped != box {
		outline = f.clipToRect(clipped)
		if len(outline) < 3 {
			return false
		}
	}

	w, h := clipped.Dx(), clipped.Dy()
	f.z.Reset(w, h)
	ox, oy := float64(clipped.Min.X), float64(clipped.Min.Y)
	f.z.MoveTo(float32(outline[0].X-ox), float32(outline[0].Y-oy))
	for _, p := range outline[1:] {
		f.z.LineTo(float32(p.X-ox), float32(p.Y-oy))
	}
	f.z.ClosePath()

	if cap(f.mask.Pix) < w*h {
		f.mask.Pix = make([]uint8, w*h)
	}
	f.mask.Pix = f.mask.Pix[:w*h]
	clear(f.mask.Pix)
	f.mask.Stride = w
	f.mask.Rect = image.Rect(0, 0, w, h)
	f.z.Draw(&f.mask, f.mask.Rect, image.Opaque, image.Point{})

	f.bounds = clipped
	return true
}

// Bounds is the raster-pixel rectangle covered by the prepared mask.
func (f *Filler) Bounds() image.Rectangle { return f.bounds }

// Coverage returns the prepared alpha (0..255) at raster pixel (x, y).
func (f *Filler) Coverage(x, y int) uint8 {
	if !(image.Point{X: x, Y: y}).In(f.bounds) {
		return 0
	}
	return f.mask.Pix[(y-f.bounds.Min.Y)*f.mask.Stride+(x-f.bounds.Min.X)]
}

// Blend writes value into a row-major rows×cols plane through the prepared
// coverage. Fully covered pixels take value exactly; edge pixels are mixed
// with what is already there.
func (f *Filler) Blend(plane []float32, value float32) {
	b := f.bounds
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := plane[y*f.cols : (y+1)*f.cols]
		mrow := f.mask.Pix[(y-b.Min.Y)*f.mask.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			switch a := mrow[x-b.Min.X]; a {
			case 0:
			case 0xff:
				row[x] = value
			default:
				alpha := float32(a) / 0xff
				row[x] = row[x]*(1-alpha) + value*alpha
			}
		}
	}
}

// clipToRect clips f.clipA against r (Sutherland-Hodgman) using f.clipB as
// scratch and returns the clipped outline.
func (f *Filler) clipToRect(r image.Rectangle) []geom.Vec2 {
	in, out := f.clipA, f.clipB[:0]
	edges := [4]struct {
		inside func(geom.Vec2) bool
		cross  func(a, b geom.Vec2) geom.Vec2
	}{
		{
			func(p geom.Vec2) bool { return p.X >= float64(r.Min.X) },
			func(a, b geom.Vec2) geom.Vec2 { return atX(a, b, float64(r.Min.X)) },
		},
		{
			func(p geom.Vec2) bool { return p.X <= float64(r.Max.X) },
			func(a, b geom.Vec2) geom.Vec2 { return atX(a, b, float64(r.Max.X)) },
		},
		{
			func(p geom.Vec2) bool { return p.Y >= float64(r.Min.Y) },
			func(a, b geom.Vec2) geom.Vec2 { return atY(a, b, float64(r.Min.Y)) },
		},
		{
			func(p geom.Vec2) bool { return p.Y <= float64(r.Max.Y) },
			func(a, b geom.Vec2) geom.Vec2 { return atY(a, b, float64(r.Max.Y)) },
		},
	}
	for _, e := range edges {
		out = out[:0]
		for i, cur := range in {
			prev := in[(i+len(in)-1)%len(in)]
			switch curIn, prevIn := e.inside(cur), e.inside(prev); {
			case curIn && prevIn:
				out = append(out, cur)
			case curIn:
				out = append(out, e.cross(prev, cur), cur)
			case prevIn:
				out = append(out, e.cross(prev, cur))
			}
		}
		in, out = out, in
		if len(in) == 0 {
			break
		}
	}
	f.clipA, f.clipB = in, out
	return in
}

func atX(a, b geom.Vec2, x float64) geom.Vec2 {
	t := (x - a.X) / (b.X - a.X)
	return geom.Vec2{X: x, Y: a.Y + t*(b.Y-a.Y)}
}

func atY(a, b geom.Vec2, y float64) geom.Vec2 {
	t := (y - a.Y) / (b.Y - a.Y)
	return geom.Vec2{X: a.X + t*(b.X-a.X), Y: y}
}
