package scene

import "glow-viewer/core"

// MaterialKind selects the shading model.
type MaterialKind int

const (
	MaterialStandard MaterialKind = iota // lit, PBR metallic-roughness
	MaterialBasic                        // unlit, outputs Color directly
)

// Side selects which triangle faces are drawn.
type Side int

const (
	SideFront Side = iota
	SideBack
	SideDouble
)

func (s Side) String() string {
	switch s {
	case SideBack:
		return "back"
	case SideDouble:
		return "double"
	default:
		return "front"
	}
}

// Material describes surface appearance properties for a mesh. It is mutated
// in place by effects; use Clone to take a snapshot and Restore to put it back.
type Material struct {
	Name  string
	Kind  MaterialKind
	Color core.Color // base color (multiplied with AlbedoTexture if set)

	// HasEmissive is false for materials that have no emissive channel at
	// all (basic materials), as opposed to a black emissive color.
	HasEmissive       bool
	Emissive          core.Color
	EmissiveIntensity float32

	Transparent bool
	Opacity     float32
	Side        Side

	Metallic  float32 // 0 = dielectric, 1 = fully metallic
	Roughness float32 // 0 = perfectly smooth, 1 = fully rough

	// Optional texture maps, uploaded by the backend on first draw.
	AlbedoTexture            *Texture
	NormalTexture            *Texture
	MetallicRoughnessTexture *Texture // G = roughness, B = metallic
	EmissiveTexture          *Texture

	disposed bool
}

// NewStandardMaterial creates an opaque lit material with a black emissive.
func NewStandardMaterial(name string, color core.Color) *Material {
	return &Material{
		Name:              name,
		Kind:              MaterialStandard,
		Color:             color,
		HasEmissive:       true,
		Emissive:          core.ColorBlack,
		EmissiveIntensity: 1,
		Opacity:           1,
		Roughness:         1,
	}
}

// NewBasicMaterial creates an unlit material without an emissive channel.
func NewBasicMaterial(name string, color core.Color) *Material {
	return &Material{
		Name:    name,
		Kind:    MaterialBasic,
		Color:   color,
		Opacity: 1,
	}
}

// Clone returns a copy sharing texture maps with m.
func (m *Material) Clone() *Material {
	c := *m
	c.disposed = false
	return &c
}

// Restore overwrites m in place with the values of snapshot. Every holder of
// m observes the restored values.
func (m *Material) Restore(snapshot *Material) {
	disposed := m.disposed
	*m = *snapshot
	m.disposed = disposed
}

// EmissiveHex is the 8-bit quantized emissive color, 0 when there is none.
func (m *Material) EmissiveHex() uint32 {
	if !m.HasEmissive {
		return 0
	}
	return m.Emissive.Hex()
}

// Textures lists the texture maps set on the material.
func (m *Material) Textures() []*Texture {
	var out []*Texture
	for _, t := range []*Texture{m.AlbedoTexture, m.NormalTexture, m.MetallicRoughnessTexture, m.EmissiveTexture} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Dispose marks the material as released. Backends skip disposed materials.
func (m *Material) Dispose() {
	m.disposed = true
}

func (m *Material) Disposed() bool {
	return m.disposed
}
