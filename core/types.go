package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
)

// Color is a linear RGBA color. Components may exceed 1 for HDR values.
type Color struct {
	R, G, B, A float32
}

var (
	ColorWhite = Color{1, 1, 1, 1}
	ColorBlack = Color{0, 0, 0, 1}
)

// ColorFromHex builds an opaque color from a 0xRRGGBB sRGB value.
func ColorFromHex(hex uint32) Color {
	return fromSRGB(colorful.Color{
		R: float64((hex>>16)&0xff) / 255,
		G: float64((hex>>8)&0xff) / 255,
		B: float64(hex&0xff) / 255,
	})
}

// ColorFromHSL returns the opaque color for hue h (turns, wrapped into [0,1)),
// saturation s and lightness l. s and l are clamped to [0,1]. HSL describes
// sRGB, so the result is linearized like a hex color.
func ColorFromHSL(h, s, l float32) Color {
	hue := float64(h) - math.Floor(float64(h))
	return fromSRGB(colorful.Hsl(hue*360, clamp01(float64(s)), clamp01(float64(l))))
}

// ParseHexColor accepts "#rrggbb", "0xrrggbb" or a bare "rrggbb" string.
func ParseHexColor(s string) (Color, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "#")
	v = strings.TrimPrefix(v, "0x")
	c, err := colorful.Hex("#" + v)
	if err != nil {
		return Color{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	return fromSRGB(c), nil
}

func fromSRGB(c colorful.Color) Color {
	r, g, b := c.LinearRgb()
	return Color{R: float32(r), G: float32(g), B: float32(b), A: 1}
}

// Hex sRGB-encodes the clamped RGB channels, quantizes them to 8 bits and
// packs them as 0xRRGGBB. It inverts ColorFromHex.
func (c Color) Hex() uint32 {
	e := colorful.LinearRgb(clamp01(float64(c.R)), clamp01(float64(c.G)), clamp01(float64(c.B)))
	q := func(v float64) uint32 {
		return uint32(math.Round(clamp01(v) * 255))
	}
	return q(e.R)<<16 | q(e.G)<<8 | q(e.B)
}

// LinearToSRGB applies the sRGB transfer curve to one channel in [0,1].
func LinearToSRGB(v float32) float32 {
	return float32(colorful.LinearRgb(clamp01(float64(v)), 0, 0).R)
}

// SRGBToLinear undoes LinearToSRGB.
func SRGBToLinear(v float32) float32 {
	r, _, _ := colorful.Color{R: clamp01(float64(v))}.LinearRgb()
	return float32(r)
}

// IsBlack reports whether all RGB channels are zero.
func (c Color) IsBlack() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

func (c Color) Scale(k float32) Color {
	return Color{R: c.R * k, G: c.G * k, B: c.B * k, A: c.A}
}

func (c Color) Vec3() mgl32.Vec3 {
	return mgl32.Vec3{c.R, c.G, c.B}
}

// Luminance is the Rec. 709 relative luminance of the RGB channels.
func (c Color) Luminance() float32 {
	return 0.2126*c.R + 0.7152*c.G + 0.0722*c.B
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Color    Color
	Tangent  mgl32.Vec3
}

type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// GetMatrix composes translation * rotation * scale (column-vector convention).
func (t Transform) GetMatrix() mgl32.Mat4 {
	translation := mgl32.Translate3D(t.Position[0], t.Position[1], t.Position[2])
	scale := mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2])
	return translation.Mul4(t.Rotation.Mat4()).Mul4(scale)
}
