package lighting

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"glow-viewer/core"
	"glow-viewer/pulse"
	"glow-viewer/scene"
)

func newRig(t *testing.T) (*Rig, *scene.Scene, *pulse.Scheduler) {
	t.Helper()
	log := zaptest.NewLogger(t)
	s := scene.NewScene()
	sched := pulse.NewScheduler(log)
	return NewRig(log, s, sched), s, sched
}

// asset builds a root holding a 2×2×2 cube at the origin.
func asset(s *scene.Scene) *scene.Node {
	root := scene.NewNode("asset")
	root.AddChild(scene.NewMeshNode("Body", scene.CreateCube(2), scene.NewStandardMaterial("body", core.ColorWhite)))
	s.AddNode(root)
	return root
}

func assertVec(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-4, "component %d of %v", i, got)
	}
}

func TestBaseLightsHiddenByDefault(t *testing.T) {
	r, s, _ := newRig(t)
	require.Len(t, s.Lights, 3)
	assert.False(t, r.SceneLightsEnabled())
	assert.Empty(t, s.CollectLights())

	b := r.Base()
	assert.Equal(t, uint32(0x404040), b.Ambient.Color.Hex())
	assert.Equal(t, float32(0.4), b.Ambient.Intensity)
	assert.True(t, b.Directional.CastShadow)
	assertVec(t, mgl32.Vec3{5, 5, 5}, b.Directional.Position)
	assert.Equal(t, uint32(0x4f9eff), b.Point.Color.Hex())
	assert.Equal(t, float32(10), b.Point.Distance)

	r.ToggleSceneLights(true)
	assert.True(t, r.SceneLightsEnabled())
	assert.Len(t, s.CollectLights(), 3)

	r.ToggleSceneLights(false)
	assert.Len(t, s.Lights, 3, "toggling never removes lights")
	assert.Empty(t, s.CollectLights())
}

func TestSpecialLightByAssetName(t *testing.T) {
	tests := []struct {
		name    string
		special bool
	}{
		{"House 17 Model.glb", true},
		{"house-17.gltf", true},
		{"HOUSE_17", true},
		{"Chair.glb", false},
		{"House 18.glb", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, s, _ := newRig(t)
			require.NoError(t, r.ApplyAssetLighting(asset(s), tt.name))
			assert.Equal(t, tt.special, r.SpecialLight() != nil)
			assert.Equal(t, tt.special, r.SetSpecialIntensity(3))
			assert.Equal(t, tt.special, r.SetSpecialDistance(5))
			assert.Equal(t, tt.special, r.SetSpecialPosition(mgl32.Vec3{}))
			assert.Equal(t, tt.special, r.StartSpecialPulse())
		})
	}
}

func TestHouse17Light(t *testing.T) {
	r, s, _ := newRig(t)
	root := asset(s)
	require.NoError(t, r.ApplyAssetLighting(root, "House 17 Model.glb"))

	l := r.SpecialLight()
	require.NotNil(t, l)
	assert.Equal(t, scene.LightPoint, l.Type)
	assert.Equal(t, uint32(0xffddaa), l.Color.Hex())
	assert.InDelta(t, 2.0, l.Intensity, 1e-5, "base intensity × 4")
	assert.InDelta(t, 4.8, l.Distance, 1e-5, "0.8 × default distance wins over 0.2 × diagonal")
	assert.Equal(t, float32(2), l.Decay)
	assert.True(t, l.CastShadow)
	assert.Equal(t, 2048, l.Shadow.MapSize)
	assert.Equal(t, float32(0.0005), l.Shadow.Bias)
	assert.Equal(t, float32(20), l.Shadow.Radius)
	assert.Equal(t, float32(0.1), l.Shadow.Near)
	assert.Equal(t, float32(10), l.Shadow.Far)

	var placed *scene.PlacedLight
	for _, pl := range s.CollectLights() {
		if pl.Light == l {
			placed = &pl
		}
	}
	require.NotNil(t, placed, "light is attached under the asset root")
	assertVec(t, mgl32.Vec3{0, 1, 0}, placed.WorldPosition)
	assert.Len(t, s.DrawList(scene.LayerMask(scene.LayerBase)), 1, "profile light adds no geometry")

	require.True(t, r.SetSpecialDistance(12))
	assert.Equal(t, float32(12), l.Distance)
	assert.Equal(t, float32(24), l.Shadow.Far)
	require.True(t, r.SetSpecialDistance(0))
	assert.Equal(t, float32(12), l.Distance, "non-positive keeps the range")
}

func TestSpecialLightFollowsRootTransform(t *testing.T) {
	r, s, _ := newRig(t)
	root := asset(s)
	root.SetPosition(mgl32.Vec3{10, 0, 0})
	require.NoError(t, r.ApplyAssetLighting(root, "house17"))

	pos, ok := r.SpecialPosition()
	require.True(t, ok)
	assertVec(t, mgl32.Vec3{0, 1, 0}, pos)

	var world mgl32.Vec3
	root.Traverse(func(n *scene.Node) {
		if n.Light == r.SpecialLight() {
			world = n.WorldPosition()
		}
	})
	assertVec(t, mgl32.Vec3{10, 1, 0}, world)
}

func TestCustomLightsFitBounds(t *testing.T) {
	r, s, _ := newRig(t)
	require.NoError(t, r.ApplyAssetLighting(asset(s), "Chair.glb"))

	c, ok := r.Custom()
	require.True(t, ok)
	assertVec(t, mgl32.Vec3{1, 3, 1}, c.Main.Position)
	assertVec(t, mgl32.Vec3{0, 0, 0}, c.Main.Target)
	assertVec(t, mgl32.Vec3{0, -0.2, 0}, c.Bottom.Position)
	assert.Equal(t, uint32(0xff8800), c.Bottom.Color.Hex())
	assert.Equal(t, uint32(0xff0080), c.Accent.Color.Hex())
	assert.InDelta(t, 0.3*3.14159265, c.Accent.Angle, 1e-4)

	diag := mgl32.Vec3{2, 2, 2}.Len()
	assert.InDelta(t, diag, c.Inner.Distance, 1e-4)
	assert.InDelta(t, diag*0.8, c.Bottom.Distance, 1e-4)
	assert.InDelta(t, diag*1.5, c.Accent.Distance, 1e-4)

	for _, l := range []*scene.Light{c.Main, c.Inner, c.Bottom, c.Accent} {
		assert.Zero(t, l.Intensity, l.Name)
	}
	assert.True(t, s.HasLight(c.Main))
	assert.True(t, s.HasLight(c.Bottom))
	assert.True(t, s.HasLight(c.Accent))
	assert.False(t, s.HasLight(c.Inner))
}

func TestReapplyReplacesCustomLights(t *testing.T) {
	r, s, sched := newRig(t)
	root := asset(s)
	require.NoError(t, r.ApplyAssetLighting(root, "House 17"))
	first, _ := r.Custom()
	special := r.SpecialLight()
	require.True(t, r.StartSpecialPulse())
	assert.True(t, sched.IsPulsing(special))

	require.NoError(t, r.ApplyAssetLighting(root, "Chair"))
	assert.Len(t, s.Lights, 6, "three base and three custom")
	assert.False(t, s.HasLight(first.Main))
	assert.False(t, sched.IsPulsing(special))
	assert.Zero(t, sched.Len())
	assert.Nil(t, r.SpecialLight())
	for _, n := range root.Children {
		assert.NotEqual(t, special, n.Light, "profile node detached")
	}
}

func TestEmptyBounds(t *testing.T) {
	r, s, _ := newRig(t)
	require.NoError(t, r.ApplyAssetLighting(asset(s), "House 17"))

	err := r.ApplyAssetLighting(scene.NewNode("empty"), "House 17")
	require.ErrorIs(t, err, ErrEmptyBounds)
	_, ok := r.Custom()
	assert.False(t, ok)
	assert.Nil(t, r.SpecialLight())
	assert.Len(t, s.Lights, 3)
}

func TestSpecialPulse(t *testing.T) {
	r, s, sched := newRig(t)
	require.NoError(t, r.ApplyAssetLighting(asset(s), "House 17"))
	l := r.SpecialLight()

	require.True(t, r.StartSpecialPulse())
	sched.Advance(0.25)
	e, ok := sched.Entry(l)
	require.True(t, ok)
	assert.InDelta(t, e.BaseIntensity+e.Amplitude, l.Intensity, 1e-5, "peak a quarter period in")

	require.True(t, r.StopSpecialPulse())
	frozen := l.Intensity
	sched.Advance(0.75)
	assert.Equal(t, frozen, l.Intensity)
}

func TestUpdateCustomLighting(t *testing.T) {
	r, s, _ := newRig(t)
	require.NoError(t, r.ApplyAssetLighting(asset(s), "House 17"))

	off := false
	r.UpdateCustomLighting(CustomUpdate{Enabled: &off})
	c, _ := r.Custom()
	assert.False(t, c.Main.Visible)
	assert.False(t, r.SpecialLight().Visible)

	main, neg := float32(1.5), float32(-1)
	amber := core.ColorFromHex(0xffaa00)
	r.UpdateCustomLighting(CustomUpdate{MainIntensity: &main, BottomIntensity: &neg, InnerColor: &amber})
	assert.Equal(t, float32(1.5), c.Main.Intensity)
	assert.Zero(t, c.Bottom.Intensity)
	assert.Equal(t, uint32(0xffaa00), c.Inner.Color.Hex())

	require.NoError(t, r.ApplyAssetLighting(asset(s), "Chair"))
	c, _ = r.Custom()
	assert.False(t, c.Main.Visible, "disabled state carries over to the next asset")
}

func TestProfileLightRespectsDisabledCustomLighting(t *testing.T) {
	r, s, _ := newRig(t)
	off := false
	r.UpdateCustomLighting(CustomUpdate{Enabled: &off})

	require.NoError(t, r.ApplyAssetLighting(asset(s), "House 17 Model.glb"))
	l := r.SpecialLight()
	require.NotNil(t, l)
	assert.False(t, l.Visible)
	for _, pl := range s.CollectLights() {
		assert.NotSame(t, l, pl.Light, "hidden profile light is not collected")
	}

	on := true
	r.UpdateCustomLighting(CustomUpdate{Enabled: &on})
	assert.True(t, l.Visible)
}

func TestMatchProfile(t *testing.T) {
	custom := Profile{Name: "lantern", Keyword: "Old Lantern"}
	p, ok := MatchProfile([]Profile{House17, custom}, "old_lantern_v2.glb")
	require.True(t, ok)
	assert.Equal(t, "lantern", p.Name)

	_, ok = MatchProfile([]Profile{{Name: "blank"}}, "anything")
	assert.False(t, ok, "empty keyword never matches")

	assert.Equal(t, "house17model", NormalizeName(" House 17-Model "))
}
