package glow

import (
	"strings"

	"glow-viewer/scene"
)

// ClassifierConfig selects which classification rules are active.
type ClassifierConfig struct {
	Eyes        bool `yaml:"eyes" toml:"eyes"`
	Lights      bool `yaml:"lights" toml:"lights"`
	Transparent bool `yaml:"transparent" toml:"transparent"`
	Emissive    bool `yaml:"emissive" toml:"emissive"`
	All         bool `yaml:"all" toml:"all"`
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Eyes:        true,
		Lights:      true,
		Transparent: true,
		Emissive:    true,
	}
}

// ClassifierUpdate carries the fields to change; nil fields are kept.
type ClassifierUpdate struct {
	Eyes        *bool
	Lights      *bool
	Transparent *bool
	Emissive    *bool
	All         *bool
}

// Merge returns c with the provided fields of u applied.
func (c ClassifierConfig) Merge(u ClassifierUpdate) ClassifierConfig {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.Eyes, u.Eyes)
	set(&c.Lights, u.Lights)
	set(&c.Transparent, u.Transparent)
	set(&c.Emissive, u.Emissive)
	set(&c.All, u.All)
	return c
}

var (
	eyeKeywords   = []string{"eye", "pupil", "iris"}
	lightKeywords = []string{"light", "glow", "emission", "lamp", "bulb", "neon", "screen", "display", "led", "torch"}
)

// transparentCutoff is the opacity below which a transparent surface glows.
const transparentCutoff = 0.9

// ShouldGlow decides whether a node is a glow candidate. Only single-material
// mesh nodes that were not generated by an effect qualify; the first
// matching rule wins. Name rules are plain substring matches, so
// "Spotlight_Stand" glows through "light".
func ShouldGlow(n *scene.Node, cfg ClassifierConfig) bool {
	if n == nil || n.Generated || !n.Mesh.Valid() || n.Material == nil || len(n.Materials) > 0 {
		return false
	}
	if cfg.All {
		return true
	}

	name := n.LowerName()
	if cfg.Eyes && containsAny(name, eyeKeywords) {
		return true
	}
	if cfg.Lights && containsAny(name, lightKeywords) {
		return true
	}

	mat := n.Material
	if cfg.Transparent && mat.Transparent && mat.Opacity < transparentCutoff {
		return true
	}
	if cfg.Emissive && mat.EmissiveHex() > 0 {
		return true
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
