package viewer

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"glow-viewer/bloom"
	"glow-viewer/core"
	"glow-viewer/glow"
	"glow-viewer/internal/raster"
	"glow-viewer/lighting"
	"glow-viewer/scene"
	"glow-viewer/settings"
)

type canvas struct{ w, h int }

func (c *canvas) Size() (int, int)    { return c.w, c.h }
func (c *canvas) PixelRatio() float64 { return 1 }

type event struct {
	loading *bool
	kind    NotifyKind
	msg     string
}

type recorder struct {
	events []event
}

func (r *recorder) Loading(active bool) {
	r.events = append(r.events, event{loading: &active})
}

func (r *recorder) Notify(kind NotifyKind, msg string) {
	r.events = append(r.events, event{kind: kind, msg: msg})
}

func (r *recorder) lastNotify() event {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].loading == nil {
			return r.events[i]
		}
	}
	return event{}
}

func (r *recorder) loading() bool {
	for i := len(r.events) - 1; i >= 0; i-- {
		if l := r.events[i].loading; l != nil {
			return *l
		}
	}
	return false
}

// fakeLoader builds assets from names. A gated name blocks until its gate
// closes and then returns an asset regardless of cancellation.
type fakeLoader struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	errs     map[string]error
	produced map[string]*scene.GLTFAsset
	calls    int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		gates:    make(map[string]chan struct{}),
		errs:     make(map[string]error),
		produced: make(map[string]*scene.GLTFAsset),
	}
}

func (f *fakeLoader) Load(_ context.Context, path string) (*scene.GLTFAsset, error) {
	f.mu.Lock()
	f.calls++
	gate, err := f.gates[path], f.errs[path]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	asset := testAsset(path)
	f.mu.Lock()
	f.produced[path] = asset
	f.mu.Unlock()
	return asset, nil
}

func (f *fakeLoader) LoadReader(ctx context.Context, name string, r io.Reader) (*scene.GLTFAsset, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return f.Load(ctx, name)
}

func (f *fakeLoader) asset(name string) *scene.GLTFAsset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.produced[name]
}

// testAsset holds a glowing eye and a plain wall, or nothing for "empty".
func testAsset(name string) *scene.GLTFAsset {
	root := scene.NewNode(name)
	if !strings.HasPrefix(name, "empty") {
		eye := scene.NewMeshNode("Eye_L", scene.CreateCube(0.5), scene.NewStandardMaterial("eye", core.ColorWhite))
		eye.SetPosition(mgl32.Vec3{-1, 0, 0})
		wall := scene.NewMeshNode("Wall_01", scene.CreateCube(1), scene.NewStandardMaterial("wall", core.ColorFromHex(0x808080)))
		wall.SetPosition(mgl32.Vec3{1, 0, 0})
		root.AddChild(eye)
		root.AddChild(wall)
	}
	return &scene.GLTFAsset{Name: name, Root: root}
}

type fixture struct {
	v       *Viewer
	loader  *fakeLoader
	status  *recorder
	backend *raster.Renderer
	canvas  *canvas
	clock   time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		loader:  newFakeLoader(),
		status:  &recorder{},
		backend: raster.NewRenderer(zaptest.NewLogger(t)),
		canvas:  &canvas{40, 30},
	}
	base := time.Unix(0, 0)
	v, err := New(Config{
		Log:     zaptest.NewLogger(t),
		Backend: f.backend,
		Canvas:  f.canvas,
		Loader:  f.loader,
		Status:  f.status,
		Now:     func() time.Time { return base.Add(f.clock) },
	})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	f.v = v
	return f
}

func (f *fixture) tickUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = f.v.Tick()
		if cond() {
			return
		}
		require.True(t, time.Now().Before(deadline), "timed out waiting for the viewer")
		time.Sleep(time.Millisecond)
	}
}

func (f *fixture) load(t *testing.T, name string) *scene.GLTFAsset {
	t.Helper()
	f.v.RequestLoad(name)
	f.tickUntil(t, func() bool { return !f.v.Loading() })
	require.NotNil(t, f.v.Asset())
	require.Equal(t, name, f.v.Asset().Name)
	return f.v.Asset()
}

func TestNewDefaults(t *testing.T) {
	f := newFixture(t)
	v := f.v
	assert.Equal(t, glow.ModeEmissive, v.GlowMode())
	assert.Equal(t, bloom.ModeSimple, v.BloomMode())
	assert.Nil(t, v.SpecialLight())
	assert.Nil(t, v.Asset())

	cam := v.Scene().Camera
	assert.InDelta(t, 0, cam.Position[0], 1e-4)
	assert.InDelta(t, 2, cam.Position[1], 1e-4)
	assert.InDelta(t, 10, cam.Position[2], 1e-4)
	assert.InDelta(t, 40.0/30.0, cam.AspectRatio, 1e-5)
	assert.False(t, v.Rig().SceneLightsEnabled())

	require.NoError(t, v.Tick(), "renders an empty scene")
	assert.Equal(t, 1, f.backend.Frames())
}

func TestLoadAppliesEffects(t *testing.T) {
	f := newFixture(t)
	asset := f.load(t, "House 17 Model.glb")

	eye := asset.Root.Find("Eye_L")
	wall := asset.Root.Find("Wall_01")
	assert.True(t, f.v.Glow().IsGlowing(eye))
	assert.False(t, f.v.Glow().IsGlowing(wall))
	assert.True(t, eye.Layers.Has(scene.LayerBloom))
	assert.False(t, wall.Layers.Has(scene.LayerBloom))
	_, ok := f.v.Glow().Snapshot(eye)
	assert.True(t, ok)
	assert.NotNil(t, f.v.SpecialLight())

	require.NotEmpty(t, f.status.events)
	assert.True(t, *f.status.events[0].loading)
	assert.False(t, f.status.loading())
	last := f.status.lastNotify()
	assert.Equal(t, NotifySuccess, last.kind)
	assert.Contains(t, last.msg, "House 17 Model.glb")
}

func TestChairHasNoSpecialLight(t *testing.T) {
	f := newFixture(t)
	f.load(t, "Chair.glb")
	assert.Nil(t, f.v.SpecialLight())
	assert.False(t, f.v.Rig().SetSpecialIntensity(2))
}

func TestLastRequestWins(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.loader.gates["slow.glb"] = gate

	f.v.RequestLoad("slow.glb")
	f.v.RequestLoad("fast.glb")
	f.tickUntil(t, func() bool { return f.v.Asset() != nil })
	assert.Equal(t, "fast.glb", f.v.Asset().Name)
	assert.False(t, f.status.loading())

	close(gate)
	var slow *scene.GLTFAsset
	f.tickUntil(t, func() bool {
		slow = f.loader.asset("slow.glb")
		return slow != nil && slow.Root.Find("Eye_L").Mesh == nil
	})
	assert.Equal(t, "fast.glb", f.v.Asset().Name, "superseded result never shown")
	assert.Nil(t, slow.Root.Parent)
	meshes, _ := f.backend.Released()
	assert.Equal(t, 2, meshes, "both meshes of the superseded asset released")
}

func TestLoadErrorKeepsCurrentAsset(t *testing.T) {
	f := newFixture(t)
	good := f.load(t, "good.glb")
	f.loader.errs["broken.glb"] = errors.New("truncated buffer")

	f.v.RequestLoad("broken.glb")
	f.tickUntil(t, func() bool { return !f.v.Loading() })

	assert.Same(t, good, f.v.Asset())
	assert.Same(t, f.v.Scene().Root, good.Root.Parent)
	last := f.status.lastNotify()
	assert.Equal(t, NotifyError, last.kind)
	assert.Contains(t, last.msg, "broken.glb")
	assert.Contains(t, last.msg, "truncated buffer")
	assert.False(t, f.status.loading())
}

func TestSwapDisposesPreviousAsset(t *testing.T) {
	f := newFixture(t)
	first := f.load(t, "first.glb")
	eye := first.Root.Find("Eye_L")
	eyeMesh, eyeMat := eye.Mesh, eye.Material

	f.load(t, "second.glb")
	assert.Nil(t, first.Root.Parent)
	assert.Zero(t, eyeMesh.Refs())
	assert.True(t, eyeMat.Disposed())
	assert.False(t, f.v.Glow().IsGlowing(eye))
	meshes, _ := f.backend.Released()
	assert.Equal(t, 2, meshes)
	assert.Len(t, f.v.Scene().Root.Children, 1)
}

func TestRequestLoadReader(t *testing.T) {
	f := newFixture(t)
	f.v.RequestLoadReader("notes.txt", strings.NewReader("hello"))
	assert.False(t, f.v.Loading())
	assert.Zero(t, f.loader.calls)
	last := f.status.lastNotify()
	assert.Equal(t, NotifyError, last.kind)
	assert.Contains(t, last.msg, ErrUnsupportedAsset.Error())

	f.v.RequestLoadReader("dropped.GLB", strings.NewReader("glb bytes"))
	f.tickUntil(t, func() bool { return f.v.Asset() != nil })
	assert.Equal(t, "dropped.GLB", f.v.Asset().Name)
}

func TestSetGlowModeReapplies(t *testing.T) {
	f := newFixture(t)
	asset := f.load(t, "model.glb")
	eye := asset.Root.Find("Eye_L")

	require.NoError(t, f.v.SetGlowMode(glow.ModeSeparate))
	assert.Equal(t, glow.ModeSeparate, f.v.Glow().AppliedMode())
	shell, ok := f.v.Glow().Shell(eye)
	require.True(t, ok)
	assert.True(t, shell.Layers.Has(scene.LayerBloom))
	assert.False(t, eye.Layers.Has(scene.LayerBloom))
	assert.True(t, eye.Material.Emissive.IsBlack(), "emissive restored")

	assert.ErrorIs(t, f.v.SetGlowMode("sparkle"), glow.ErrUnknownMode)
	assert.Equal(t, glow.ModeSeparate, f.v.GlowMode())

	require.NoError(t, f.v.SetBloomMode(bloom.ModeSelective))
	require.NoError(t, f.v.Tick())
	assert.Equal(t, scene.LayerMask(scene.LayerBase), f.v.Scene().Camera.Layers)
}

func TestEffectStagesContinueAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.load(t, "empty.glb")

	last := f.status.lastNotify()
	assert.Equal(t, NotifyError, last.kind)
	assert.Contains(t, last.msg, "apply lighting")
	assert.False(t, f.status.loading())
	assert.Equal(t, glow.ModeEmissive, f.v.Glow().AppliedMode(), "glow stage still ran")
}

func TestStageRecoversPanic(t *testing.T) {
	f := newFixture(t)
	err := f.v.stage(StageGlow, func() error { panic("boom") })

	var effErr *EffectError
	require.ErrorAs(t, err, &effErr)
	assert.Equal(t, StageGlow, effErr.Stage)
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, f.v.stage(StageLayers, func() error { return nil }))
}

func TestTickPulsesGlow(t *testing.T) {
	f := newFixture(t)
	asset := f.load(t, "model.glb")
	mat := asset.Root.Find("Eye_L").Material

	f.clock = 0
	require.NoError(t, f.v.Tick())
	assert.InDelta(t, 0.6, mat.EmissiveIntensity, 1e-4)

	// Peak of sin(t×3) at t = π/6.
	f.clock = time.Duration(float64(time.Second) * 3.14159265 / 6)
	require.NoError(t, f.v.Tick())
	assert.InDelta(t, 0.9, mat.EmissiveIntensity, 1e-4)

	f.v.SetPulseEnabled(false)
	f.clock = 0
	require.NoError(t, f.v.Tick())
	assert.InDelta(t, 0.9, mat.EmissiveIntensity, 1e-4, "frozen while disabled")
}

func TestResize(t *testing.T) {
	f := newFixture(t)
	f.canvas.w, f.canvas.h = 80, 40
	require.NoError(t, f.v.Resize())
	assert.InDelta(t, 2, f.v.Scene().Camera.AspectRatio, 1e-6)
	w, h := f.v.Compositor().TargetDimensions()
	assert.Equal(t, []int{80, 40}, []int{w, h})
	require.NoError(t, f.v.Tick())
	assert.Equal(t, 80, f.backend.Output().Rect.Dx())
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.load(t, "model.glb")
	assert.Equal(t, settings.Default(), f.v.CurrentSettings())

	b := settings.Default()
	b.Glow.Mode = "separate"
	b.Glow.Params.Intensity = 1
	b.Glow.Classifier.Eyes = false
	b.Bloom.Mode = "selective"
	b.Bloom.Params.Threshold = 0.5
	b.Pulse.Color = "#336699"
	b.Lighting.SceneLights = true
	b.Lighting.CustomLights = false

	require.NoError(t, f.v.RestoreSettings(b))
	assert.Equal(t, b, f.v.CurrentSettings())
	assert.Equal(t, glow.ModeSeparate, f.v.Glow().AppliedMode())
	assert.Zero(t, f.v.Glow().GlowingCount(), "eyes rule disabled")
	assert.True(t, f.v.Rig().SceneLightsEnabled())

	bad := b
	bad.Bloom.Mode = "everything"
	assert.ErrorIs(t, f.v.RestoreSettings(bad), bloom.ErrUnknownMode)
	assert.Equal(t, b, f.v.CurrentSettings(), "invalid bundle changes nothing")
}

func TestRestoredProfilesApplyToShownAsset(t *testing.T) {
	f := newFixture(t)
	f.load(t, "Chair.glb")
	require.Nil(t, f.v.SpecialLight())

	chair := lighting.House17
	chair.Name, chair.Keyword = "chair", "chair"
	b := f.v.CurrentSettings()
	b.Lighting.Profiles = []lighting.Profile{chair}
	require.NoError(t, f.v.RestoreSettings(b))

	require.NotNil(t, f.v.SpecialLight(), "no reload needed")
	p, ok := f.v.Rig().SpecialProfile()
	require.True(t, ok)
	assert.Equal(t, "chair", p.Name)
	assert.Equal(t, glow.ModeEmissive, f.v.Glow().AppliedMode())
	assert.Equal(t, 1, f.v.Glow().GlowingCount(), "profile light is not a glow candidate")

	b.Lighting.Profiles = []lighting.Profile{}
	require.NoError(t, f.v.RestoreSettings(b))
	assert.Nil(t, f.v.SpecialLight())
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	asset := f.load(t, "model.glb")
	f.v.Close()
	assert.Nil(t, f.v.Asset())
	assert.Nil(t, asset.Root.Parent)
	meshes, _ := f.backend.Released()
	assert.Equal(t, 2, meshes)

	f.v.RequestLoad("later.glb")
	assert.False(t, f.v.Loading(), "closed viewer ignores requests")
	f.v.Close()
}
