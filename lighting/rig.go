// Package lighting owns the base scene lights and the per-asset custom
// lights derived from the asset bounds.
package lighting

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"glow-viewer/core"
	"glow-viewer/pulse"
	"glow-viewer/scene"
)

// ErrEmptyBounds is returned when an asset has no geometry to light.
var ErrEmptyBounds = errors.New("asset has empty bounds")

// BaseLights are always in the scene and only change visibility.
type BaseLights struct {
	Ambient     *scene.Light
	Directional *scene.Light
	Point       *scene.Light
}

func (b BaseLights) all() []*scene.Light {
	return []*scene.Light{b.Ambient, b.Directional, b.Point}
}

// CustomLights are rebuilt on every asset load. Inner is created but not
// added to the scene.
type CustomLights struct {
	Main   *scene.Light
	Inner  *scene.Light
	Bottom *scene.Light
	Accent *scene.Light
}

func (c *CustomLights) all() []*scene.Light {
	return []*scene.Light{c.Main, c.Inner, c.Bottom, c.Accent}
}

// CustomUpdate carries the custom lighting fields to change.
type CustomUpdate struct {
	Enabled         *bool
	MainIntensity   *float32
	InnerIntensity  *float32
	BottomIntensity *float32
	InnerColor      *core.Color
}

// Rig manages base, custom and profile lights of one scene.
type Rig struct {
	log       *zap.Logger
	scene     *scene.Scene
	scheduler *pulse.Scheduler
	profiles  []Profile

	base          BaseLights
	custom        *CustomLights
	customEnabled bool

	// special is the node carrying the profile light, attached to the
	// current asset root.
	special        *scene.Node
	specialProfile Profile
}

// NewRig creates the base lights and adds them to s, hidden.
func NewRig(log *zap.Logger, s *scene.Scene, sched *pulse.Scheduler) *Rig {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Rig{
		log:           log.Named("lighting"),
		scene:         s,
		scheduler:     sched,
		profiles:      DefaultProfiles(),
		customEnabled: true,
	}

	ambient := scene.NewAmbientLight(core.ColorFromHex(0x404040), 0.4)
	ambient.Name = "base_ambient"

	dir := scene.NewDirectionalLight(core.ColorWhite, 0.8)
	dir.Name = "base_directional"
	dir.Position = mgl32.Vec3{5, 5, 5}
	dir.CastShadow = true

	point := scene.NewPointLight(core.ColorFromHex(0x4f9eff), 0.5, 10, 2)
	point.Name = "base_point"
	point.Position = mgl32.Vec3{-5, 3, -5}

	r.base = BaseLights{Ambient: ambient, Directional: dir, Point: point}
	for _, l := range r.base.all() {
		l.Visible = false
		s.AddLight(l)
	}
	return r
}

// SetProfiles replaces the profile list. It takes effect on the next
// ApplyAssetLighting.
func (r *Rig) SetProfiles(p []Profile) {
	r.profiles = append([]Profile(nil), p...)
}

func (r *Rig) Profiles() []Profile {
	return append([]Profile(nil), r.profiles...)
}

func (r *Rig) Base() BaseLights {
	return r.base
}

// ToggleSceneLights shows or hides the base lights. They stay in the scene
// either way.
func (r *Rig) ToggleSceneLights(enabled bool) {
	for _, l := range r.base.all() {
		if !r.scene.HasLight(l) {
			r.scene.AddLight(l)
		}
		l.Visible = enabled
	}
	r.log.Debug("base lights toggled", zap.Bool("enabled", enabled))
}

func (r *Rig) SceneLightsEnabled() bool {
	return r.base.Ambient.Visible
}

// Custom returns the custom lights of the current asset.
func (r *Rig) Custom() (CustomLights, bool) {
	if r.custom == nil {
		return CustomLights{}, false
	}
	return *r.custom, true
}

// ApplyAssetLighting replaces the custom lights with a set fitted to root,
// and adds the profile light when name matches a profile. Previous custom
// lights and their pulse entries are removed first, even on error.
func (r *Rig) ApplyAssetLighting(root *scene.Node, name string) error {
	r.RemoveCustomLighting()

	box := scene.ComputeBounds(root)
	if box.IsEmpty() {
		return ErrEmptyBounds
	}
	center, size := box.Center(), box.Size()
	diag := size.Len()

	main := scene.NewDirectionalLight(core.ColorWhite, 0)
	main.Name = "custom_main"
	main.Position = center.Add(mgl32.Vec3{size[0] * 0.5, size[1] * 1.5, size[2] * 0.5})
	main.Target = center
	main.CastShadow = true

	inner := scene.NewPointLight(core.ColorFromHex(0xffffaa), 0, diag, 2)
	inner.Name = "custom_inner"
	inner.Position = center

	bottom := scene.NewPointLight(core.ColorFromHex(0xff8800), 0, diag*0.8, 2)
	bottom.Name = "custom_bottom"
	bottom.Position = mgl32.Vec3{center[0], center[1] - size[1]*0.1, center[2]}

	accent := scene.NewSpotLight(core.ColorFromHex(0xff0080), 0, diag*1.5, mgl32.DegToRad(54))
	accent.Name = "custom_accent"
	accent.Position = center.Add(mgl32.Vec3{-size[0] * 0.8, size[1] * 0.8, size[2] * 0.8})
	accent.Target = center

	r.custom = &CustomLights{Main: main, Inner: inner, Bottom: bottom, Accent: accent}
	for _, l := range []*scene.Light{main, bottom, accent} {
		l.Visible = r.customEnabled
		r.scene.AddLight(l)
	}
	inner.Visible = r.customEnabled

	if p, ok := MatchProfile(r.profiles, name); ok {
		r.addProfileLight(root, p, center, diag)
	}
	r.log.Debug("asset lighting applied",
		zap.String("asset", name),
		zap.Float32("diagonal", diag),
		zap.Bool("special", r.special != nil))
	return nil
}

func (r *Rig) addProfileLight(root *scene.Node, p Profile, center mgl32.Vec3, diag float32) {
	defs := r.defaults()
	dist := p.distance(diag, defs.Distance)
	base := defs.BaseIntensity
	if base == 0 {
		base = 1
	}
	decay := defs.Decay
	if decay == 0 {
		decay = 1
	}

	light := scene.NewPointLight(defs.Color, base*p.IntensityScale, dist, decay)
	light.Name = p.Name
	light.Visible = r.customEnabled
	light.CastShadow = true
	light.Shadow = p.shadow(dist)

	node := scene.NewLightNode(p.Name+"_light", light)
	node.Generated = true
	world := center.Add(p.offset())
	inv := root.GetWorldMatrix().Inv()
	node.SetPosition(mgl32.TransformCoordinate(world, inv))
	root.AddChild(node)

	r.special = node
	r.specialProfile = p
	r.log.Info("profile light added", zap.String("profile", p.Name), zap.Float32("distance", dist))
}

func (r *Rig) defaults() pulse.Defaults {
	if r.scheduler == nil {
		return pulse.DefaultDefaults()
	}
	return r.scheduler.Defaults()
}

// RemoveCustomLighting takes the custom lights out of the scene and drops
// the profile light and its pulse entry.
func (r *Rig) RemoveCustomLighting() {
	if r.custom != nil {
		for _, l := range r.custom.all() {
			r.scene.RemoveLight(l)
			r.unpulse(l)
		}
		r.custom = nil
	}
	if r.special != nil {
		r.unpulse(r.special.Light)
		r.special.Detach()
		r.special = nil
	}
}

func (r *Rig) unpulse(l *scene.Light) {
	if r.scheduler != nil {
		r.scheduler.Unregister(l)
	}
}

// SpecialLight is the profile light of the current asset, or nil.
func (r *Rig) SpecialLight() *scene.Light {
	if r.special == nil {
		return nil
	}
	return r.special.Light
}

// SpecialProfile is the profile that produced the special light.
func (r *Rig) SpecialProfile() (Profile, bool) {
	if r.special == nil {
		return Profile{}, false
	}
	return r.specialProfile, true
}

func (r *Rig) SetSpecialIntensity(v float32) bool {
	l := r.SpecialLight()
	if l == nil {
		return false
	}
	l.Intensity = max(v, 0)
	return true
}

// SetSpecialDistance sets the light range and refits the shadow far plane.
// Non-positive values keep the current range.
func (r *Rig) SetSpecialDistance(v float32) bool {
	l := r.SpecialLight()
	if l == nil {
		return false
	}
	if v > 0 {
		l.Distance = v
	}
	l.Shadow.Far = ShadowFar(l.Distance)
	return true
}

// SetSpecialPosition moves the light, in asset root space.
func (r *Rig) SetSpecialPosition(p mgl32.Vec3) bool {
	if r.special == nil {
		return false
	}
	r.special.SetPosition(p)
	return true
}

// SpecialPosition is the light position in asset root space.
func (r *Rig) SpecialPosition() (mgl32.Vec3, bool) {
	if r.special == nil {
		return mgl32.Vec3{}, false
	}
	return r.special.Transform.Position, true
}

// StartSpecialPulse hands the special light to the scheduler with the
// current defaults. It reports false when there is no special light.
func (r *Rig) StartSpecialPulse() bool {
	l := r.SpecialLight()
	if l == nil || r.scheduler == nil {
		return false
	}
	r.scheduler.Start(l)
	return true
}

// StopSpecialPulse freezes the special light at its current intensity.
func (r *Rig) StopSpecialPulse() bool {
	l := r.SpecialLight()
	if l == nil || r.scheduler == nil {
		return false
	}
	r.scheduler.Stop(l)
	return true
}

func (r *Rig) CustomEnabled() bool {
	return r.customEnabled
}

// UpdateCustomLighting merges u into the custom lights. Visibility also
// applies to lights created by later loads.
func (r *Rig) UpdateCustomLighting(u CustomUpdate) {
	if u.Enabled != nil {
		r.customEnabled = *u.Enabled
		if r.custom != nil {
			for _, l := range r.custom.all() {
				l.Visible = r.customEnabled
			}
		}
		if r.special != nil {
			r.special.Light.Visible = r.customEnabled
		}
	}
	if r.custom == nil {
		return
	}
	if u.MainIntensity != nil {
		r.custom.Main.Intensity = max(*u.MainIntensity, 0)
	}
	if u.InnerIntensity != nil {
		r.custom.Inner.Intensity = max(*u.InnerIntensity, 0)
	}
	if u.BottomIntensity != nil {
		r.custom.Bottom.Intensity = max(*u.BottomIntensity, 0)
	}
	if u.InnerColor != nil {
		r.custom.Inner.Color = *u.InnerColor
	}
}
