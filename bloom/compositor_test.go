package bloom_test

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"glow-viewer/bloom"
	"glow-viewer/core"
	"glow-viewer/internal/raster"
	"glow-viewer/scene"
)

type canvas struct {
	w, h  int
	ratio float64
}

func (c *canvas) Size() (int, int)    { return c.w, c.h }
func (c *canvas) PixelRatio() float64 { return c.ratio }

type sizedTarget struct{ w, h int }

func (t sizedTarget) Size() (int, int) { return t.w, t.h }

// fakeBackend records calls and can be told to fail.
type fakeBackend struct {
	allocated    []sizedTarget
	released     int
	failAlloc    int
	failBloom    error
	drawLayers   []scene.Layers
	composites   int
	lastStrength float32
}

func (f *fakeBackend) NewTarget(w, h int) (bloom.Target, error) {
	if f.failAlloc > 0 {
		f.failAlloc--
		return nil, errors.New("out of memory")
	}
	t := sizedTarget{w, h}
	f.allocated = append(f.allocated, t)
	return t, nil
}

func (f *fakeBackend) ReleaseTarget(bloom.Target) { f.released++ }

func (f *fakeBackend) DrawScene(_ bloom.Target, s *scene.Scene, _ core.Color) error {
	f.drawLayers = append(f.drawLayers, s.Camera.Layers)
	return nil
}

func (f *fakeBackend) Bloom(src bloom.Target, _, _ float32) (bloom.Target, error) {
	if f.failBloom != nil {
		return nil, f.failBloom
	}
	return src, nil
}

func (f *fakeBackend) Composite(_, _ bloom.Target, strength, _ float32) error {
	f.composites++
	f.lastStrength = strength
	return nil
}

type layerSet map[*scene.Node]bool

func (l layerSet) InBloomLayer(n *scene.Node) bool { return l[n] }

func newScene() *scene.Scene {
	s := scene.NewScene()
	cam := scene.NewCamera(mgl32.DegToRad(50), 4.0/3.0, 0.1, 100)
	cam.SetPosition(mgl32.Vec3{0, 0, 6})
	s.SetCamera(cam)
	return s
}

func TestParseMode(t *testing.T) {
	m, err := bloom.ParseMode("SELECTIVE")
	require.NoError(t, err)
	assert.Equal(t, bloom.ModeSelective, m)

	_, err = bloom.ParseMode("rainbow")
	assert.ErrorIs(t, err, bloom.ErrUnknownMode)

	c := bloom.NewCompositor(nil, &fakeBackend{}, &canvas{8, 8, 1}, newScene())
	assert.ErrorIs(t, c.SetMode("rainbow"), bloom.ErrUnknownMode)
	assert.Equal(t, bloom.ModeSimple, c.Mode())
}

func TestResizeReallocatesWithClampedRatio(t *testing.T) {
	cv := &canvas{800, 600, 3}
	fb := &fakeBackend{}
	c := bloom.NewCompositor(zaptest.NewLogger(t), fb, cv, newScene())
	require.NoError(t, c.Init())

	w, h := c.TargetDimensions()
	assert.Equal(t, 1600, w)
	assert.Equal(t, 1200, h)

	cv.w, cv.h = 1600, 900
	require.NoError(t, c.Render())
	w, _ = c.TargetDimensions()
	assert.Equal(t, 1600, w, "no reallocation without notification")

	require.NoError(t, c.OnWindowResize())
	w, h = c.TargetDimensions()
	assert.Equal(t, 3200, w)
	assert.Equal(t, 1800, h)
	assert.Equal(t, 2, fb.released, "old targets released")
	assert.Equal(t, sizedTarget{3200, 1800}, fb.allocated[len(fb.allocated)-1])
}

func TestTargetSize(t *testing.T) {
	w, h := bloom.TargetSize(&canvas{800, 600, 1.5})
	assert.Equal(t, []int{1200, 900}, []int{w, h})

	w, h = bloom.TargetSize(&canvas{800, 600, 0})
	assert.Equal(t, []int{800, 600}, []int{w, h})

	w, h = bloom.TargetSize(&canvas{0, 0, 1})
	assert.Equal(t, []int{1, 1}, []int{w, h})
}

func TestAllocationFailureIsRetried(t *testing.T) {
	fb := &fakeBackend{failAlloc: 1}
	c := bloom.NewCompositor(nil, fb, &canvas{64, 48, 1}, newScene())

	err := c.Render()
	var cerr *bloom.CompositorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "allocate", cerr.Op)
	assert.Zero(t, fb.composites)

	require.NoError(t, c.Render())
	assert.Equal(t, 1, fb.composites)
}

func TestSelectiveRestoresCameraLayers(t *testing.T) {
	s := newScene()
	fb := &fakeBackend{}
	c := bloom.NewCompositor(nil, fb, &canvas{64, 48, 1}, s)
	require.NoError(t, c.SetMode(bloom.ModeSelective))

	before := s.Camera.Layers
	require.NoError(t, c.Render())
	assert.Equal(t, before, s.Camera.Layers)
	assert.Equal(t, []scene.Layers{scene.LayerMask(scene.LayerBloom), before}, fb.drawLayers)

	fb.failBloom = errors.New("blur failed")
	err := c.Render()
	var cerr *bloom.CompositorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "bloom", cerr.Op)
	assert.Equal(t, before, s.Camera.Layers, "restored on failure")
}

func TestUpdateParamsClampsNegative(t *testing.T) {
	fb := &fakeBackend{}
	c := bloom.NewCompositor(nil, fb, &canvas{8, 8, 1}, newScene())
	neg, radius := float32(-2), float32(0.8)
	c.UpdateParams(bloom.ParamsUpdate{Strength: &neg, Exposure: &neg, Radius: &radius})

	p := c.Params()
	assert.Zero(t, p.Strength)
	assert.Zero(t, p.Exposure)
	assert.Equal(t, float32(0.8), p.Radius)
	assert.Equal(t, bloom.DefaultParams().Threshold, p.Threshold)

	require.NoError(t, c.Render())
	assert.Zero(t, fb.lastStrength, "applied on the next frame")
}

func TestSetupModelLayers(t *testing.T) {
	root := scene.NewNode("asset")
	glowing := scene.NewMeshNode("Eye_L", scene.CreateCube(1), scene.NewStandardMaterial("m", core.ColorWhite))
	plain := scene.NewMeshNode("Wall", scene.CreateCube(1), scene.NewStandardMaterial("m", core.ColorWhite))
	plain.Layers = 0
	stale := scene.NewMeshNode("Stale", scene.CreateCube(1), scene.NewStandardMaterial("m", core.ColorWhite))
	stale.Layers.Enable(scene.LayerBloom)
	root.AddChild(glowing)
	root.AddChild(plain)
	root.AddChild(stale)

	c := bloom.NewCompositor(nil, &fakeBackend{}, &canvas{8, 8, 1}, newScene())
	n := c.SetupModelLayers(root, layerSet{glowing: true})

	assert.Equal(t, 1, n)
	assert.Equal(t, scene.LayerMask(scene.LayerBase, scene.LayerBloom), glowing.Layers)
	assert.Equal(t, scene.LayerMask(scene.LayerBase), plain.Layers)
	assert.Equal(t, scene.LayerMask(scene.LayerBase), stale.Layers)
}

// Two bright unlit cubes side by side; only the left one is on the bloom
// layer. The isolated pass must see the left cube alone.
func TestSelectiveIsolatesBloomLayer(t *testing.T) {
	s := newScene()
	white := func() *scene.Material { return scene.NewBasicMaterial("hot", core.Color{R: 4, G: 4, B: 4, A: 1}) }
	left := scene.NewMeshNode("Lamp", scene.CreateCube(1), white())
	left.SetPosition(mgl32.Vec3{-1.5, 0, 0})
	left.Layers.Enable(scene.LayerBloom)
	right := scene.NewMeshNode("Crate", scene.CreateCube(1), white())
	right.SetPosition(mgl32.Vec3{1.5, 0, 0})
	s.AddNode(left)
	s.AddNode(right)

	backend := &isolationSpy{Renderer: raster.NewRenderer(zaptest.NewLogger(t))}
	c := bloom.NewCompositor(nil, backend, &canvas{64, 48, 1}, s)
	require.NoError(t, c.SetMode(bloom.ModeSelective))
	c.UpdateParams(bloom.ParamsUpdate{Radius: ptr(0)})
	require.NoError(t, c.Render())

	isolated := backend.bloomInput
	require.NotNil(t, isolated)
	w, h := isolated.Size()
	leftHalf, rightHalf := 0.0, 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			l := float64(isolated.At(x, y).Luminance())
			if x < w/2 {
				leftHalf += l
			} else {
				rightHalf += l
			}
		}
	}
	assert.Positive(t, leftHalf)
	assert.Zero(t, rightHalf)

	// The composited frame still shows both cubes.
	out := backend.Output()
	require.NotNil(t, out)
	assert.NotZero(t, out.RGBAAt(w*3/4, h/2).R)
	assert.Equal(t, 1, backend.Frames())
}

func TestSimpleModeBloomsWholeFrame(t *testing.T) {
	s := newScene()
	s.AddNode(scene.NewMeshNode("Crate", scene.CreateCube(1), scene.NewBasicMaterial("hot", core.Color{R: 4, G: 4, B: 4, A: 1})))

	backend := &isolationSpy{Renderer: raster.NewRenderer(nil)}
	c := bloom.NewCompositor(nil, backend, &canvas{32, 32, 1}, s)
	require.NoError(t, c.Render())
	assert.Positive(t, backend.bloomInput.Luminance(), "non-bloom-layer geometry feeds simple bloom")
}

// isolationSpy keeps a copy of what was handed to the bright-pass.
type isolationSpy struct {
	*raster.Renderer
	bloomInput *raster.Buffer
}

func (s *isolationSpy) Bloom(src bloom.Target, threshold, radius float32) (bloom.Target, error) {
	b := src.(*raster.Buffer)
	w, h := b.Size()
	cp := raster.NewBuffer(w, h)
	cp.CopyFrom(b)
	s.bloomInput = cp
	return s.Renderer.Bloom(src, threshold, radius)
}

func ptr(v float32) *float32 { return &v }

func TestBackgroundPresentsAtConfiguredColor(t *testing.T) {
	s := newScene()
	require.Equal(t, uint32(0x0a0a0a), s.Background.Hex())

	backend := raster.NewRenderer(nil)
	c := bloom.NewCompositor(nil, backend, &canvas{8, 8, 1}, s)
	c.UpdateParams(bloom.ParamsUpdate{Strength: ptr(0)})
	require.NoError(t, c.Render())

	px := backend.Output().RGBAAt(4, 4)
	assert.InDelta(t, 0x0a, int(px.R), 1)
	assert.InDelta(t, 0x0a, int(px.G), 1)
	assert.InDelta(t, 0x0a, int(px.B), 1)

	s.Background = core.ColorFromHex(0x808080)
	require.NoError(t, c.Render())
	// Reinhard maps linear 0.216 to 0.178, which encodes as 117.
	assert.InDelta(t, 117, int(backend.Output().RGBAAt(4, 4).R), 2)
}
