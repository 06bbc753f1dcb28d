// Package raster is a CPU implementation of the bloom backend. It renders
// into float HDR buffers and is used for headless output and for tests.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"glow-viewer/bloom"
	"glow-viewer/core"
)

var (
	ErrTargetTooLarge = errors.New("target exceeds pixel budget")
	ErrReleased       = errors.New("target already released")
)

// Buffer is a linear RGB float target with a depth plane.
type Buffer struct {
	w, h  int
	pix   []float32 // RGB triples, row-major, top row first
	depth []float32
}

func NewBuffer(w, h int) *Buffer {
	return &Buffer{
		w:     w,
		h:     h,
		pix:   make([]float32, w*h*3),
		depth: make([]float32, w*h),
	}
}

func (b *Buffer) Size() (int, int) {
	return b.w, b.h
}

// At returns the linear color at pixel (x, y).
func (b *Buffer) At(x, y int) core.Color {
	i := (y*b.w + x) * 3
	return core.Color{R: b.pix[i], G: b.pix[i+1], B: b.pix[i+2], A: 1}
}

// Luminance sums the Rec. 709 luminance of every pixel.
func (b *Buffer) Luminance() float64 {
	var sum float64
	for i := 0; i+2 < len(b.pix); i += 3 {
		sum += float64(0.2126*b.pix[i] + 0.7152*b.pix[i+1] + 0.0722*b.pix[i+2])
	}
	return sum
}

func (b *Buffer) Clear(c core.Color) {
	for i := 0; i+2 < len(b.pix); i += 3 {
		b.pix[i], b.pix[i+1], b.pix[i+2] = c.R, c.G, c.B
	}
	inf := float32(math.Inf(1))
	for i := range b.depth {
		b.depth[i] = inf
	}
}

func (b *Buffer) get(x, y int) mgl32.Vec3 {
	i := (y*b.w + x) * 3
	return mgl32.Vec3{b.pix[i], b.pix[i+1], b.pix[i+2]}
}

func (b *Buffer) set(x, y int, c mgl32.Vec3) {
	i := (y*b.w + x) * 3
	b.pix[i], b.pix[i+1], b.pix[i+2] = c[0], c[1], c[2]
}

func (b *Buffer) released() bool {
	return b.pix == nil
}

func asBuffer(t bloom.Target) (*Buffer, error) {
	b, ok := t.(*Buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("raster: foreign target %T", t)
	}
	if b.released() {
		return nil, ErrReleased
	}
	return b, nil
}

// ensure returns b when it already has the requested size.
func ensure(b *Buffer, w, h int) *Buffer {
	if b != nil && b.w == w && b.h == h {
		return b
	}
	return NewBuffer(w, h)
}

// CopyFrom copies the color plane of src, which must have the same size.
func (b *Buffer) CopyFrom(src *Buffer) {
	copy(b.pix, src.pix)
}
