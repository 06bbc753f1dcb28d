package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorFromHSL(t *testing.T) {
	red := ColorFromHSL(0, 1, 0.5)
	assert.InDelta(t, 1, red.R, 1e-5)
	assert.InDelta(t, 0, red.G, 1e-5)
	assert.InDelta(t, 0, red.B, 1e-5)

	// hue wraps around a full turn
	assert.InDeltaSlice(t,
		[]float32{red.R, red.G, red.B},
		func() []float32 { c := ColorFromHSL(1, 1, 0.5); return []float32{c.R, c.G, c.B} }(),
		1e-5)

	// lightness above 1 clamps to white
	white := ColorFromHSL(0.3, 1, 1.7)
	assert.Equal(t, uint32(0xffffff), white.Hex())
}

func TestParseHexColor(t *testing.T) {
	for _, in := range []string{"#ffddaa", "0xffddaa", "ffddaa", " #FFDDAA "} {
		c, err := ParseHexColor(in)
		require.NoError(t, err, in)
		assert.Equal(t, uint32(0xffddaa), c.Hex(), in)
	}

	_, err := ParseHexColor("not-a-color")
	assert.Error(t, err)
}

func TestColorHex(t *testing.T) {
	assert.Equal(t, uint32(0), Color{}.Hex())
	assert.Equal(t, uint32(0xbc0000), Color{R: 0.5}.Hex(), "linear mid grey encodes brighter")
	assert.Equal(t, uint32(0), Color{R: 0.0001}.Hex(), "below half a step quantizes to zero")
	assert.Equal(t, uint32(0xffffff), Color{R: 4, G: 4, B: 4}.Hex(), "HDR values clamp")
	for _, hex := range []uint32{0x000001, 0x0a0a0a, 0x404040, 0x4f9eff, 0xffddaa} {
		assert.Equal(t, hex, ColorFromHex(hex).Hex())
	}
}

func TestColorFromHexIsLinear(t *testing.T) {
	grey := ColorFromHex(0x808080)
	assert.InDelta(t, 0.2158, grey.R, 1e-3)

	dark := ColorFromHex(0x0a0a0a)
	assert.InDelta(t, 0.00304, dark.G, 1e-4)

	c, err := ParseHexColor("#808080")
	require.NoError(t, err)
	assert.Equal(t, grey, c)
}

func TestSRGBTransfer(t *testing.T) {
	assert.Zero(t, LinearToSRGB(0))
	assert.InDelta(t, 1, LinearToSRGB(1), 1e-6)
	assert.InDelta(t, 1, LinearToSRGB(3), 1e-6, "clamped")
	assert.InDelta(t, 0.7354, LinearToSRGB(0.5), 1e-3)
	for _, v := range []float32{0.001, 0.1, 0.5, 0.9} {
		assert.InDelta(t, v, SRGBToLinear(LinearToSRGB(v)), 1e-5)
	}
}

func TestTransformMatrix(t *testing.T) {
	tr := NewTransform()
	tr.Position = mgl32.Vec3{1, 2, 3}
	tr.Scale = mgl32.Vec3{2, 2, 2}

	p := tr.GetMatrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1}).Vec3()
	assert.InDelta(t, 3, p[0], 1e-5)
	assert.InDelta(t, 2, p[1], 1e-5)
	assert.InDelta(t, 3, p[2], 1e-5)
}
