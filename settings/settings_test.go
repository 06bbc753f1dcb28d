package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"glow-viewer/bloom"
	"glow-viewer/glow"
	"glow-viewer/pulse"
)

func tuned() Bundle {
	b := Default()
	b.Glow.Mode = "separate"
	b.Glow.Params.Intensity = 3.5
	b.Glow.Pulse.Enabled = false
	b.Glow.Classifier.All = true
	b.Bloom.Mode = "selective"
	b.Bloom.Params.Strength = 0.75
	b.Pulse.Color = "#ff8800"
	b.Pulse.Speed = 0.5
	b.Lighting.SceneLights = true
	return b
}

func TestDefault(t *testing.T) {
	b := Default()
	require.NoError(t, b.Validate())

	gm, _ := b.GlowMode()
	assert.Equal(t, glow.ModeEmissive, gm)
	bm, _ := b.BloomMode()
	assert.Equal(t, bloom.ModeSimple, bm)
	assert.Equal(t, "#ffddaa", b.Pulse.Color)

	d, err := b.PulseDefaults()
	require.NoError(t, err)
	assert.Equal(t, pulse.DefaultDefaults().Color.Hex(), d.Color.Hex())
	assert.Equal(t, float32(1.2), d.Amplitude)
	assert.False(t, b.Lighting.SceneLights)
	assert.Len(t, b.Lighting.Profiles, 1)
}

func TestYAMLFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glow.yaml")
	want := tuned()
	require.NoError(t, WriteFile(path, want))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTOMLFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glow.toml")
	want := tuned()
	require.NoError(t, WriteFile(path, want))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "separate", got.Glow.Mode)
	assert.Equal(t, "selective", got.Bloom.Mode)
	assert.InDelta(t, 3.5, got.Glow.Params.Intensity, 1e-6)
	assert.InDelta(t, 0.75, got.Bloom.Params.Strength, 1e-6)
	assert.False(t, got.Glow.Pulse.Enabled)
	assert.True(t, got.Glow.Classifier.All)
	assert.Equal(t, "#ff8800", got.Pulse.Color)
	require.Len(t, got.Lighting.Profiles, 1)
	assert.Equal(t, "house17", got.Lighting.Profiles[0].Keyword)
	assert.Equal(t, 2048, got.Lighting.Profiles[0].ShadowMapSize)
}

func TestDecodePartialKeepsDefaults(t *testing.T) {
	b, err := Decode("partial.yml", []byte("glow:\n  mode: separate\nbloom:\n  params:\n    radius: 0.9\n"))
	require.NoError(t, err)
	assert.Equal(t, "separate", b.Glow.Mode)
	assert.Equal(t, glow.DefaultParams(), b.Glow.Params)
	assert.InDelta(t, 0.9, b.Bloom.Params.Radius, 1e-6)
	assert.Equal(t, bloom.DefaultParams().Strength, b.Bloom.Params.Strength)

	b, err = Decode("partial.toml", []byte("[pulse]\ncolor = \"0x112233\"\n"))
	require.NoError(t, err)
	d, err := b.PulseDefaults()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x112233), d.Color.Hex())
	assert.Equal(t, float32(6), d.Distance)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("x.json", []byte("{}"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Decode("x.yaml", []byte("glow:\n  mode: sparkly\n"))
	assert.ErrorIs(t, err, glow.ErrUnknownMode)

	_, err = Decode("x.yaml", []byte("bloom:\n  mode: everything\n"))
	assert.ErrorIs(t, err, bloom.ErrUnknownMode)

	_, err = Decode("x.yaml", []byte("pulse:\n  color: nope\n"))
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))

	s, err := OpenStore(zaptest.NewLogger(t), "glow_viewer_test")
	require.NoError(t, err)
	assert.False(t, s.Exists())

	_, err = s.Load()
	require.ErrorIs(t, err, ErrNoSavedSettings)

	want := tuned()
	require.NoError(t, s.Save(want))
	assert.True(t, s.Exists())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
