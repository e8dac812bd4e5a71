// Package raster holds the multi-channel float32 feature buffer and the
// anti-aliased polygon filler that writes into it.
package raster

import (
	"errors"
	"fmt"
)

// ErrShape is returned when two rasters or a channel range do not line up.
var ErrShape = errors.New("raster: shape mismatch")

// Raster is a [Channels, Rows, Cols] float32 buffer stored channel-major,
// then row-major. A new Raster is zero-filled.
type Raster struct {
	Channels int
	Rows     int
	Cols     int
	Data     []float32
}

// New allocates a zeroed raster.
func New(channels, rows, cols int) *Raster {
	return &Raster{
		Channels: channels,
		Rows:     rows,
		Cols:     cols,
		Data:     make([]float32, channels*rows*cols),
	}
}

// Shape returns [channels, rows, cols].
func (r *Raster) Shape() [3]int { return [3]int{r.Channels, r.Rows, r.Cols} }

// PlaneSize is the number of pixels in one channel.
func (r *Raster) PlaneSize() int { return r.Rows * r.Cols }

// Plane returns channel c as a row-major slice aliasing Data.
func (r *Raster) Plane(c int) []float32 {
	n := r.PlaneSize()
	return r.Data[c*n : (c+1)*n : (c+1)*n]
}

// At returns the value at channel c, row y, column x.
func (r *Raster) At(c, y, x int) float32 {
	return r.Data[(c*r.Rows+y)*r.Cols+x]
}

// CopyChannels writes all of src's channels into r starting at channel
// offset. src must have the same rows and cols and fit within r.
func (r *Raster) CopyChannels(offset int, src *Raster) error {
	if src.Rows != r.Rows || src.Cols != r.Cols {
		return fmt.Errorf("%w: %dx%d slice into %dx%d raster", ErrShape, src.Rows, src.Cols, r.Rows, r.Cols)
	}
	if offset < 0 || offset+src.Channels > r.Channels {
		return fmt.Errorf("%w: channels [%d, %d) outside [0, %d)", ErrShape, offset, offset+src.Channels, r.Channels)
	}
	copy(r.Data[offset*r.PlaneSize():], src.Data)
	return nil
}

// NonZero counts the non-zero pixels of channel c.
func (r *Raster) NonZero(c int) int {
	n := 0
	for _, v := range r.Plane(c) {
		if v != 0 {
			n++
		}
	}
	return n
}
