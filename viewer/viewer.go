// Package viewer wires the scene, the glow effect, the light pulse, the
// lighting rig and the bloom compositor into one frame loop.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"glow-viewer/bloom"
	"glow-viewer/glow"
	"glow-viewer/lighting"
	"glow-viewer/pulse"
	"glow-viewer/scene"
	"glow-viewer/settings"
)

// NotifyKind classifies a status message.
type NotifyKind int

const (
	NotifyInfo NotifyKind = iota
	NotifySuccess
	NotifyError
)

func (k NotifyKind) String() string {
	switch k {
	case NotifySuccess:
		return "success"
	case NotifyError:
		return "error"
	}
	return "info"
}

// Status receives the loading indicator and user notifications. It is only
// called from the goroutine that drives Tick.
type Status interface {
	Loading(active bool)
	Notify(kind NotifyKind, msg string)
}

// Backend renders frames and frees the resources of disposed assets.
type Backend interface {
	bloom.Backend
	scene.Releaser
}

type Config struct {
	Log     *zap.Logger
	Backend Backend
	Canvas  bloom.Canvas
	Loader  Loader
	Status  Status
	// Now is the monotonic clock driving animation; time.Now when nil.
	Now func() time.Time
}

// Camera defaults.
const (
	cameraFOV  = 50
	cameraNear = 0.1
	cameraFar  = 1000
)

var cameraPosition = mgl32.Vec3{0, 2, 10}

type loadResult struct {
	gen    uint64
	source string
	asset  *scene.GLTFAsset
	err    error
}

// Viewer owns the live state. All methods except the loader goroutines run
// on the caller's loop goroutine.
type Viewer struct {
	log     *zap.Logger
	backend Backend
	canvas  bloom.Canvas
	loader  Loader
	status  Status
	now     func() time.Time
	start   time.Time

	scene      *scene.Scene
	orbit      *scene.OrbitControls
	glow       *glow.Machine
	pulse      *pulse.Scheduler
	compositor *bloom.Compositor
	rig        *lighting.Rig

	asset *scene.GLTFAsset

	gen     uint64
	cancel  context.CancelFunc
	results chan loadResult
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// New builds the viewer and allocates the render targets.
func New(cfg Config) (*Viewer, error) {
	if cfg.Backend == nil || cfg.Canvas == nil {
		return nil, errors.New("viewer: backend and canvas are required")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Loader == nil {
		cfg.Loader = GLTFLoader{Log: log}
	}
	if cfg.Status == nil {
		cfg.Status = logStatus{log: log}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	v := &Viewer{
		log:     log.Named("viewer"),
		backend: cfg.Backend,
		canvas:  cfg.Canvas,
		loader:  cfg.Loader,
		status:  cfg.Status,
		now:     cfg.Now,
		results: make(chan loadResult, 4),
		done:    make(chan struct{}),
	}
	v.start = v.now()

	w, h := cfg.Canvas.Size()
	aspect := float32(1)
	if w > 0 && h > 0 {
		aspect = float32(w) / float32(h)
	}
	cam := scene.NewCamera(mgl32.DegToRad(cameraFOV), aspect, cameraNear, cameraFar)
	cam.SetPosition(cameraPosition)

	v.scene = scene.NewScene()
	v.scene.SetCamera(cam)
	v.orbit = scene.NewOrbitControls(cam, mgl32.Vec3{})
	v.glow = glow.NewMachine(log, cfg.Backend)
	v.pulse = pulse.NewScheduler(log)
	v.rig = lighting.NewRig(log, v.scene, v.pulse)
	v.compositor = bloom.NewCompositor(log, cfg.Backend, cfg.Canvas, v.scene)
	if err := v.compositor.Init(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Viewer) Scene() *scene.Scene           { return v.scene }
func (v *Viewer) Orbit() *scene.OrbitControls   { return v.orbit }
func (v *Viewer) Glow() *glow.Machine           { return v.glow }
func (v *Viewer) Scheduler() *pulse.Scheduler   { return v.pulse }
func (v *Viewer) Compositor() *bloom.Compositor { return v.compositor }
func (v *Viewer) Rig() *lighting.Rig            { return v.rig }
func (v *Viewer) GlowMode() glow.Mode           { return v.glow.Mode() }
func (v *Viewer) BloomMode() bloom.Mode         { return v.compositor.Mode() }
func (v *Viewer) IsPulsing(l *scene.Light) bool { return v.pulse.IsPulsing(l) }
func (v *Viewer) SpecialLight() *scene.Light    { return v.rig.SpecialLight() }

// Asset is the asset currently shown, or nil.
func (v *Viewer) Asset() *scene.GLTFAsset {
	return v.asset
}

// Loading reports whether a requested load has not been swapped in yet.
func (v *Viewer) Loading() bool {
	return v.cancel != nil
}

// RequestLoad starts loading path. A later request supersedes it.
func (v *Viewer) RequestLoad(path string) {
	v.request(path, func(ctx context.Context) (*scene.GLTFAsset, error) {
		return v.loader.Load(ctx, path)
	})
}

// RequestLoadReader starts loading an asset from r, as for a dropped file.
// Names without a glTF extension are rejected without touching the
// current load.
func (v *Viewer) RequestLoadReader(name string, r io.Reader) {
	if !scene.IsGLTFName(name) {
		v.reportLoadError(&LoadError{Source: name, Err: ErrUnsupportedAsset})
		return
	}
	v.request(name, func(ctx context.Context) (*scene.GLTFAsset, error) {
		return v.loader.LoadReader(ctx, name, r)
	})
}

func (v *Viewer) request(source string, load func(context.Context) (*scene.GLTFAsset, error)) {
	if v.closed {
		return
	}
	if v.cancel != nil {
		v.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.gen++
	gen := v.gen

	v.status.Loading(true)
	v.status.Notify(NotifyInfo, fmt.Sprintf("loading %s", source))
	v.log.Info("load requested", zap.String("source", source), zap.Uint64("generation", gen))

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		asset, err := load(ctx)
		res := loadResult{gen: gen, source: source, asset: asset, err: err}
		select {
		case v.results <- res:
		case <-v.done:
			if asset != nil {
				scene.DisposeTree(asset.Root, nil)
			}
		}
	}()
}

// drainLoads swaps in the result of the latest request, if it arrived, and
// disposes superseded ones.
func (v *Viewer) drainLoads() {
	for {
		select {
		case res := <-v.results:
			v.handleLoad(res)
		default:
			return
		}
	}
}

func (v *Viewer) handleLoad(res loadResult) {
	if res.gen != v.gen {
		if res.asset != nil {
			scene.DisposeTree(res.asset.Root, v.backend)
		}
		v.log.Debug("superseded load discarded", zap.String("source", res.source), zap.Uint64("generation", res.gen))
		return
	}
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}

	if res.err != nil {
		v.reportLoadError(&LoadError{Source: res.source, Err: res.err})
		return
	}
	if res.asset == nil || res.asset.Root == nil {
		v.reportLoadError(&LoadError{Source: res.source, Err: errors.New("loader returned no scene")})
		return
	}
	v.swap(res.asset)
	if err := v.ApplyEffects(res.asset.Root, res.source); err != nil {
		v.status.Notify(NotifyError, err.Error())
		return
	}
	v.status.Notify(NotifySuccess, fmt.Sprintf("%s loaded", res.source))
}

func (v *Viewer) reportLoadError(err *LoadError) {
	v.log.Error("asset load failed", zap.String("source", err.Source), zap.Error(err.Err))
	v.status.Loading(v.cancel != nil)
	v.status.Notify(NotifyError, err.Error())
}

// swap replaces the shown asset and releases everything the old one held.
func (v *Viewer) swap(next *scene.GLTFAsset) {
	if old := v.asset; old != nil {
		v.glow.Clear()
		v.rig.RemoveCustomLighting()
		scene.DisposeTree(old.Root, v.backend)
		v.log.Debug("asset disposed", zap.String("asset", old.Name))
	}
	v.asset = next
	v.scene.AddNode(next.Root)
}

// ApplyEffects fits the lighting to root, applies glow and derives bloom
// layers. Each stage runs even when an earlier one failed; the errors are
// joined. The loading indicator is cleared either way.
func (v *Viewer) ApplyEffects(root *scene.Node, name string) error {
	defer v.status.Loading(v.cancel != nil)

	var errs []error
	errs = append(errs, v.stage(StageLighting, func() error {
		return v.rig.ApplyAssetLighting(root, name)
	}))
	errs = append(errs, v.stage(StageGlow, func() error {
		v.glow.Apply(root)
		return nil
	}))
	errs = append(errs, v.stage(StageLayers, func() error {
		n := v.compositor.SetupModelLayers(root, v.glow)
		v.log.Debug("bloom layers assigned", zap.Int("nodes", n))
		return nil
	}))
	err := errors.Join(errs...)
	if err != nil {
		v.log.Warn("effects partially applied", zap.String("asset", name), zap.Error(err))
	} else {
		v.log.Info("effects applied", zap.String("asset", name), zap.Int("glowing", v.glow.GlowingCount()))
	}
	return err
}

// stage runs fn and turns an error or panic into an EffectError.
func (v *Viewer) stage(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EffectError{Stage: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &EffectError{Stage: name, Err: err}
	}
	return nil
}

// Tick runs one frame: pending loads are swapped in, then the light pulse,
// the glow pulse and the orbit advance, and the frame is rendered. A render
// error skips the frame only.
func (v *Viewer) Tick() error {
	v.drainLoads()

	elapsed := v.now().Sub(v.start).Seconds()
	v.pulse.Advance(elapsed)
	v.glow.Update(elapsed)
	v.orbit.Update()

	if err := v.compositor.Render(); err != nil {
		v.log.Warn("frame skipped", zap.Error(err))
		return err
	}
	return nil
}

// Resize applies the current canvas size to the camera and render targets.
func (v *Viewer) Resize() error {
	w, h := v.canvas.Size()
	v.scene.Camera.UpdateAspectRatio(float32(w), float32(h))
	return v.compositor.OnWindowResize()
}

// reapply re-runs glow and layer assignment on the shown asset.
// relight rebuilds the custom and profile lights of the shown asset.
func (v *Viewer) relight() {
	if v.asset == nil {
		return
	}
	root, name := v.asset.Root, v.asset.Name
	if err := v.stage(StageLighting, func() error { return v.rig.ApplyAssetLighting(root, name) }); err != nil {
		v.log.Error("lighting reapply failed", zap.Error(err))
	}
}

func (v *Viewer) reapply() {
	if v.asset == nil {
		return
	}
	root := v.asset.Root
	if err := v.stage(StageGlow, func() error { v.glow.Apply(root); return nil }); err != nil {
		v.log.Error("glow reapply failed", zap.Error(err))
	}
	v.compositor.SetupModelLayers(root, v.glow)
}

// SetGlowMode switches the glow representation and re-applies it.
func (v *Viewer) SetGlowMode(mode glow.Mode) error {
	if err := v.glow.SetMode(mode); err != nil {
		return err
	}
	v.reapply()
	return nil
}

func (v *Viewer) SetBloomMode(mode bloom.Mode) error {
	return v.compositor.SetMode(mode)
}

func (v *Viewer) UpdateGlowParams(u glow.ParamsUpdate) {
	v.glow.UpdateParams(u)
}

// UpdateClassifier changes which surfaces glow and re-applies.
func (v *Viewer) UpdateClassifier(u glow.ClassifierUpdate) {
	v.glow.UpdateClassifier(u)
	v.reapply()
}

func (v *Viewer) UpdateBloomParams(u bloom.ParamsUpdate) {
	v.compositor.UpdateParams(u)
}

func (v *Viewer) SetPulseEnabled(enabled bool) {
	v.glow.SetPulseEnabled(enabled)
}

func (v *Viewer) UpdatePulseDefaults(u pulse.DefaultsUpdate) {
	v.pulse.UpdateDefaults(u)
}

func (v *Viewer) ToggleSceneLights(enabled bool) {
	v.rig.ToggleSceneLights(enabled)
}

func (v *Viewer) UpdateCustomLighting(u lighting.CustomUpdate) {
	v.rig.UpdateCustomLighting(u)
}

// CurrentSettings captures every tunable parameter.
func (v *Viewer) CurrentSettings() settings.Bundle {
	return settings.Bundle{
		Glow: settings.Glow{
			Mode:       string(v.glow.Mode()),
			Params:     v.glow.Params(),
			Pulse:      v.glow.Pulse(),
			Classifier: v.glow.ClassifierConfig(),
		},
		Bloom: settings.Bloom{
			Mode:   string(v.compositor.Mode()),
			Params: v.compositor.Params(),
		},
		Pulse: settings.FromPulseDefaults(v.pulse.Defaults()),
		Lighting: settings.Lighting{
			SceneLights:  v.rig.SceneLightsEnabled(),
			CustomLights: v.rig.CustomEnabled(),
			Profiles:     v.rig.Profiles(),
		},
	}
}

// RestoreSettings applies b as a whole. Nothing changes when b is invalid.
func (v *Viewer) RestoreSettings(b settings.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	gm, _ := b.GlowMode()
	bm, _ := b.BloomMode()
	defs, _ := b.PulseDefaults()

	g := b.Glow
	_ = v.glow.SetMode(gm)
	v.glow.UpdateParams(glow.ParamsUpdate{Intensity: &g.Params.Intensity, Hue: &g.Params.Hue})
	v.glow.SetPulse(g.Pulse)
	c := g.Classifier
	v.glow.UpdateClassifier(glow.ClassifierUpdate{
		Eyes: &c.Eyes, Lights: &c.Lights, Transparent: &c.Transparent, Emissive: &c.Emissive, All: &c.All,
	})

	p := b.Bloom.Params
	_ = v.compositor.SetMode(bm)
	v.compositor.UpdateParams(bloom.ParamsUpdate{
		Strength: &p.Strength, Threshold: &p.Threshold, Radius: &p.Radius, Exposure: &p.Exposure,
	})

	v.pulse.UpdateDefaults(pulse.DefaultsUpdate{
		Color:         &defs.Color,
		BaseIntensity: &defs.BaseIntensity,
		Distance:      &defs.Distance,
		Decay:         &defs.Decay,
		Speed:         &defs.Speed,
		Amplitude:     &defs.Amplitude,
	})

	v.rig.ToggleSceneLights(b.Lighting.SceneLights)
	custom := b.Lighting.CustomLights
	v.rig.UpdateCustomLighting(lighting.CustomUpdate{Enabled: &custom})
	if b.Lighting.Profiles != nil {
		v.rig.SetProfiles(b.Lighting.Profiles)
		// The shown asset may match a different profile now.
		v.relight()
	}

	v.reapply()
	v.log.Info("settings restored")
	return nil
}

// Close cancels pending loads and releases the shown asset and the render
// targets.
func (v *Viewer) Close() {
	if v.closed {
		return
	}
	v.closed = true
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	close(v.done)
	v.wg.Wait()
	for drained := false; !drained; {
		select {
		case res := <-v.results:
			if res.asset != nil {
				scene.DisposeTree(res.asset.Root, v.backend)
			}
		default:
			drained = true
		}
	}

	if v.asset != nil {
		v.glow.Clear()
		v.rig.RemoveCustomLighting()
		scene.DisposeTree(v.asset.Root, v.backend)
		v.asset = nil
	}
	v.compositor.Close()
}

// logStatus reports through the logger when no Status is configured.
type logStatus struct {
	log *zap.Logger
}

func (s logStatus) Loading(active bool) {
	s.log.Debug("loading", zap.Bool("active", active))
}

func (s logStatus) Notify(kind NotifyKind, msg string) {
	if kind == NotifyError {
		s.log.Error(msg)
		return
	}
	s.log.Info(msg, zap.Stringer("kind", kind))
}
