package scene

import (
	"glow-viewer/core"

	"github.com/go-gl/mathgl/mgl32"
)

// LightType identifies the light model.
type LightType int

const (
	LightAmbient LightType = iota
	LightDirectional
	LightPoint
	LightSpot
)

func (t LightType) String() string {
	switch t {
	case LightAmbient:
		return "ambient"
	case LightDirectional:
		return "directional"
	case LightPoint:
		return "point"
	case LightSpot:
		return "spot"
	}
	return "unknown"
}

// ShadowParams configures the shadow map of a shadow-casting light. The
// values travel with profile lights and settings; no backend renders
// shadow maps yet.
type ShadowParams struct {
	MapSize int
	Bias    float32
	Radius  float32
	Near    float32
	Far     float32
}

// DefaultShadowParams matches a 512 map with no bias.
func DefaultShadowParams() ShadowParams {
	return ShadowParams{MapSize: 512, Radius: 1, Near: 0.5, Far: 500}
}

// Light represents a light source.
//
// Lights in Scene.Lights are positioned in world space. A light attached to
// a node through Node.Light is positioned relative to that node.
type Light struct {
	Name      string
	Type      LightType
	Color     core.Color
	Intensity float32
	Position  mgl32.Vec3
	// Target is the world-space point directional and spot lights aim at.
	Target mgl32.Vec3
	// Distance is the range of point and spot lights; 0 means unlimited.
	Distance float32
	Decay    float32
	// Angle is the spot cone half-angle in radians.
	Angle float32

	Visible    bool
	CastShadow bool
	Shadow     ShadowParams
}

func newLight(t LightType, color core.Color, intensity float32) *Light {
	return &Light{
		Type:      t,
		Color:     color,
		Intensity: intensity,
		Decay:     2,
		Visible:   true,
		Shadow:    DefaultShadowParams(),
	}
}

func NewAmbientLight(color core.Color, intensity float32) *Light {
	return newLight(LightAmbient, color, intensity)
}

func NewDirectionalLight(color core.Color, intensity float32) *Light {
	l := newLight(LightDirectional, color, intensity)
	l.Position = mgl32.Vec3{0, 1, 0}
	return l
}

func NewPointLight(color core.Color, intensity, distance, decay float32) *Light {
	l := newLight(LightPoint, color, intensity)
	l.Distance = distance
	l.Decay = decay
	return l
}

func NewSpotLight(color core.Color, intensity, distance, angle float32) *Light {
	l := newLight(LightSpot, color, intensity)
	l.Distance = distance
	l.Angle = angle
	return l
}

// Direction is the unit vector from Position towards Target.
func (l *Light) Direction() mgl32.Vec3 {
	d := l.Target.Sub(l.Position)
	if d.Len() == 0 {
		return mgl32.Vec3{0, -1, 0}
	}
	return d.Normalize()
}

// PlacedLight is a visible light resolved to world space for one frame.
type PlacedLight struct {
	*Light
	WorldPosition  mgl32.Vec3
	WorldDirection mgl32.Vec3
}
