package lighting

import (
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"glow-viewer/scene"
)

// Profile describes the extra shadow-casting point light added to assets
// whose name matches Keyword. Values derived from the pulse defaults follow
// the same fallbacks as the scheduler: a zero default distance counts as 6
// and a zero default decay as 1.
type Profile struct {
	Name string `yaml:"name" toml:"name"`
	// Keyword is matched against the normalized asset name.
	Keyword string `yaml:"keyword" toml:"keyword"`
	// Offset is added to the asset bounds center.
	Offset [3]float32 `yaml:"offset" toml:"offset"`
	// IntensityScale multiplies the default pulse base intensity.
	IntensityScale float32 `yaml:"intensity_scale" toml:"intensity_scale"`
	// SizeFactor and DistanceFactor give the light range as
	// max(SizeFactor×|bounds|, DistanceFactor×default distance).
	SizeFactor     float32 `yaml:"size_factor" toml:"size_factor"`
	DistanceFactor float32 `yaml:"distance_factor" toml:"distance_factor"`

	ShadowMapSize int     `yaml:"shadow_map_size" toml:"shadow_map_size"`
	ShadowBias    float32 `yaml:"shadow_bias" toml:"shadow_bias"`
	ShadowRadius  float32 `yaml:"shadow_radius" toml:"shadow_radius"`
	ShadowNear    float32 `yaml:"shadow_near" toml:"shadow_near"`
}

// House17 is the built-in profile for the "House 17" asset.
var House17 = Profile{
	Name:           "house17",
	Keyword:        "house17",
	Offset:         [3]float32{0, 1, 0},
	IntensityScale: 4,
	SizeFactor:     0.2,
	DistanceFactor: 0.8,
	ShadowMapSize:  2048,
	ShadowBias:     0.0005,
	ShadowRadius:   20,
	ShadowNear:     0.1,
}

// DefaultProfiles is the profile list a new Rig starts with.
func DefaultProfiles() []Profile {
	return []Profile{House17}
}

// NormalizeName folds name to lower case and drops spaces, dashes,
// underscores and dots, so "House 17", "house-17" and "HOUSE_17" compare
// equal.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case ' ', '-', '_', '.', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MatchProfile returns the first profile whose keyword occurs in the
// normalized name.
func MatchProfile(profiles []Profile, name string) (Profile, bool) {
	n := NormalizeName(name)
	if n == "" {
		return Profile{}, false
	}
	for _, p := range profiles {
		k := NormalizeName(p.Keyword)
		if k != "" && strings.Contains(n, k) {
			return p, true
		}
	}
	return Profile{}, false
}

// ShadowFar is the shadow camera far plane for a light of the given range.
func ShadowFar(distance float32) float32 {
	return max(10, distance*2)
}

func (p Profile) offset() mgl32.Vec3 {
	return mgl32.Vec3(p.Offset)
}

// distance resolves the light range for a box of the given diagonal.
func (p Profile) distance(diagonal, defaultDistance float32) float32 {
	if defaultDistance == 0 {
		defaultDistance = 6
	}
	return max(diagonal*p.SizeFactor, defaultDistance*p.DistanceFactor)
}

func (p Profile) shadow(distance float32) scene.ShadowParams {
	s := scene.DefaultShadowParams()
	if p.ShadowMapSize > 0 {
		s.MapSize = p.ShadowMapSize
	}
	s.Bias = p.ShadowBias
	if p.ShadowRadius > 0 {
		s.Radius = p.ShadowRadius
	}
	if p.ShadowNear > 0 {
		s.Near = p.ShadowNear
	}
	s.Far = ShadowFar(distance)
	return s
}
