package raster

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"

	"glow-viewer/bloom"
	"glow-viewer/core"
)

// Bloom keeps the pixels of src whose luminance reaches threshold, then
// blurs them. The result lives in a buffer owned by the renderer.
func (r *Renderer) Bloom(src bloom.Target, threshold, radius float32) (bloom.Target, error) {
	in, err := asBuffer(src)
	if err != nil {
		return nil, err
	}
	r.bright = ensure(r.bright, in.w, in.h)
	r.scratch = ensure(r.scratch, in.w, in.h)

	for i := 0; i+2 < len(in.pix); i += 3 {
		red, green, blue := in.pix[i], in.pix[i+1], in.pix[i+2]
		if 0.2126*red+0.7152*green+0.0722*blue >= threshold {
			r.bright.pix[i], r.bright.pix[i+1], r.bright.pix[i+2] = red, green, blue
		} else {
			r.bright.pix[i], r.bright.pix[i+1], r.bright.pix[i+2] = 0, 0, 0
		}
	}

	spacing := bloom.TapSpacing(radius)
	if spacing > 0 {
		for p := 0; p < bloom.BlurPasses; p++ {
			blur(r.bright, r.scratch, spacing, 0)
			blur(r.scratch, r.bright, 0, spacing)
		}
	}
	return r.bright, nil
}

// blur applies the 5-tap kernel along (dx, dy) with linear filtering and
// clamp-to-edge addressing.
func blur(src, dst *Buffer, dx, dy float32) {
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			var acc mgl32.Vec3
			for k, wgt := range bloom.BlurWeights {
				o := float32(k - 2)
				acc = acc.Add(src.sample(float32(x)+o*dx, float32(y)+o*dy).Mul(wgt))
			}
			dst.set(x, y, acc)
		}
	}
}

// sample bilinearly filters at fractional pixel coordinates.
func (b *Buffer) sample(fx, fy float32) mgl32.Vec3 {
	fx = mgl32.Clamp(fx, 0, float32(b.w-1))
	fy = mgl32.Clamp(fy, 0, float32(b.h-1))
	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, b.w-1), min(y0+1, b.h-1)
	tx, ty := fx-float32(x0), fy-float32(y0)

	top := b.get(x0, y0).Mul(1 - tx).Add(b.get(x1, y0).Mul(tx))
	bottom := b.get(x0, y1).Mul(1 - tx).Add(b.get(x1, y1).Mul(tx))
	return top.Mul(1 - ty).Add(bottom.Mul(ty))
}

// Composite adds the bloom buffer, applies exposure and Reinhard tone
// mapping, sRGB-encodes and stores the 8-bit frame.
func (r *Renderer) Composite(base, bl bloom.Target, strength, exposure float32) error {
	b, err := asBuffer(base)
	if err != nil {
		return err
	}
	glow, err := asBuffer(bl)
	if err != nil {
		return err
	}
	if b.w != glow.w || b.h != glow.h {
		return fmt.Errorf("raster: composite size mismatch %dx%d vs %dx%d", b.w, b.h, glow.w, glow.h)
	}
	if r.output == nil || r.output.Rect.Dx() != b.w || r.output.Rect.Dy() != b.h {
		r.output = image.NewRGBA(image.Rect(0, 0, b.w, b.h))
	}

	for i, j := 0, 0; i+2 < len(b.pix); i, j = i+3, j+4 {
		for c := 0; c < 3; c++ {
			r.output.Pix[j+c] = ToneMap(b.pix[i+c]+glow.pix[i+c]*strength, exposure)
		}
		r.output.Pix[j+3] = 0xff
	}
	r.frames++
	return nil
}

// ToneMap maps one linear HDR channel to an 8-bit display value.
func ToneMap(v, exposure float32) uint8 {
	x := math32.Max(v*exposure, 0)
	mapped := x / (1 + x)
	return uint8(core.LinearToSRGB(mapped)*255 + 0.5)
}

// Output is the last composited frame, nil before the first one.
func (r *Renderer) Output() *image.RGBA {
	return r.output
}

// WritePNG encodes the last frame, resampled to width×height when they
// differ from the target size.
func (r *Renderer) WritePNG(w io.Writer, width, height int) error {
	if r.output == nil {
		return fmt.Errorf("raster: no frame rendered")
	}
	img := image.Image(r.output)
	if width > 0 && height > 0 && (width != r.output.Rect.Dx() || height != r.output.Rect.Dy()) {
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), r.output, r.output.Bounds(), draw.Src, nil)
		img = scaled
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
