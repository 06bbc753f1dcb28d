package glow

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"glow-viewer/core"
	"glow-viewer/scene"
)

// Mode is the glow representation.
type Mode string

const (
	// ModeEmissive tints the emissive channel of the original material.
	ModeEmissive Mode = "emissive"
	// ModeSeparate adds a translucent back-face shell around each surface.
	ModeSeparate Mode = "separate"
)

var ErrUnknownMode = errors.New("unknown glow mode")

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeEmissive, ModeSeparate:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Params are the glow look controls.
type Params struct {
	Intensity float32 `yaml:"intensity" toml:"intensity"`
	Hue       float32 `yaml:"hue" toml:"hue"` // turns, [0,1)
}

func DefaultParams() Params {
	return Params{Intensity: 2.0, Hue: 0.06}
}

// ParamsUpdate carries the fields to change; nil fields are kept.
type ParamsUpdate struct {
	Intensity *float32
	Hue       *float32
}

// PulseParams animate glowing surfaces over time.
type PulseParams struct {
	Enabled   bool    `yaml:"enabled" toml:"enabled"`
	Speed     float32 `yaml:"speed" toml:"speed"`         // radians per second
	Amplitude float32 `yaml:"amplitude" toml:"amplitude"` // share of intensity swung by the pulse
}

func DefaultPulseParams() PulseParams {
	return PulseParams{Enabled: true, Speed: 3.0, Amplitude: 1.0}
}

// Shell material constants.
const (
	shellScale     = 1.02
	shellOpacity   = 0.2
	shellLightness = 0.5

	emissiveLightness = 0.3
)

// Machine applies and reverts the glow effect on an asset graph.
//
// The selected mode and the applied mode are tracked separately: SetMode
// only records the choice, and the next Apply first reverts whatever is
// currently applied before entering the selected mode.
type Machine struct {
	log      *zap.Logger
	releaser scene.Releaser

	mode       Mode
	applied    Mode // empty when nothing is applied
	params     Params
	pulse      PulseParams
	classifier ClassifierConfig

	glowing   []*scene.Node
	snapshots map[*scene.Node]*scene.Material
	shells    map[*scene.Node]*scene.Node
}

// NewMachine returns a machine in emissive mode with default parameters.
// r receives meshes whose last reference a shell held; it may be nil.
func NewMachine(log *zap.Logger, r scene.Releaser) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		log:        log.Named("glow"),
		releaser:   r,
		mode:       ModeEmissive,
		params:     DefaultParams(),
		pulse:      DefaultPulseParams(),
		classifier: DefaultClassifierConfig(),
		snapshots:  make(map[*scene.Node]*scene.Material),
		shells:     make(map[*scene.Node]*scene.Node),
	}
}

// SetMode selects the mode used by the next Apply.
func (m *Machine) SetMode(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	m.mode = mode
	m.log.Debug("glow mode selected", zap.String("mode", string(mode)))
	return nil
}

func (m *Machine) Mode() Mode                         { return m.mode }
func (m *Machine) AppliedMode() Mode                  { return m.applied }
func (m *Machine) Params() Params                     { return m.params }
func (m *Machine) Pulse() PulseParams                 { return m.pulse }
func (m *Machine) PulseEnabled() bool                 { return m.pulse.Enabled }
func (m *Machine) ClassifierConfig() ClassifierConfig { return m.classifier }
func (m *Machine) GlowingCount() int                  { return len(m.glowing) }

// IsGlowing reports whether n is a source surface with glow applied.
func (m *Machine) IsGlowing(n *scene.Node) bool {
	for _, g := range m.glowing {
		if g == n {
			return true
		}
	}
	return false
}

// Snapshot returns the pre-glow material copy held for n in emissive mode.
func (m *Machine) Snapshot(n *scene.Node) (*scene.Material, bool) {
	s, ok := m.snapshots[n]
	return s, ok
}

// Shell returns the glow shell created for n in separate mode.
func (m *Machine) Shell(n *scene.Node) (*scene.Node, bool) {
	s, ok := m.shells[n]
	return s, ok
}

// InBloomLayer reports whether n should be drawn by the selective bloom
// pass: glowing sources in emissive mode, shells in separate mode.
func (m *Machine) InBloomLayer(n *scene.Node) bool {
	switch m.applied {
	case ModeEmissive:
		_, ok := m.snapshots[n]
		return ok
	case ModeSeparate:
		return n.Generated && m.isShell(n)
	}
	return false
}

func (m *Machine) isShell(n *scene.Node) bool {
	for _, s := range m.shells {
		if s == n {
			return true
		}
	}
	return false
}

// Apply reverts the applied glow and enters the selected mode on every
// classified surface under root. Applying twice yields the same state.
// Failures on single surfaces are logged and skipped.
func (m *Machine) Apply(root *scene.Node) {
	m.Clear()
	if root == nil {
		return
	}

	var candidates []*scene.Node
	root.Traverse(func(n *scene.Node) {
		if ShouldGlow(n, m.classifier) {
			candidates = append(candidates, n)
		}
	})

	switch m.mode {
	case ModeEmissive:
		// Snapshot everything before touching a material so that surfaces
		// sharing one material all keep the original values.
		for _, n := range candidates {
			if _, ok := m.snapshots[n]; !ok {
				m.snapshots[n] = n.Material.Clone()
			}
		}
		for _, n := range candidates {
			if err := m.guard(n, m.enterEmissive); err != nil {
				m.restoreEmissive(n)
				m.log.Warn("emissive glow failed", zap.String("node", n.Name), zap.Error(err))
				continue
			}
			m.glowing = append(m.glowing, n)
		}
	case ModeSeparate:
		for _, n := range candidates {
			if err := m.guard(n, m.enterSeparate); err != nil {
				m.log.Warn("glow shell failed", zap.String("node", n.Name), zap.Error(err))
				continue
			}
			m.glowing = append(m.glowing, n)
		}
	}
	m.applied = m.mode
	m.log.Info("glow applied",
		zap.String("mode", string(m.mode)),
		zap.Int("surfaces", len(m.glowing)))
}

// Clear reverts the applied mode. Afterwards no snapshots, shells or bloom
// layer memberships created by the machine remain.
func (m *Machine) Clear() {
	switch m.applied {
	case ModeEmissive:
		for _, n := range m.glowing {
			m.restoreEmissive(n)
		}
	case ModeSeparate:
		for _, n := range m.glowing {
			m.exitSeparate(n)
		}
	}
	// Leftover snapshots belong to surfaces that are no longer glowing.
	for n := range m.snapshots {
		m.restoreEmissive(n)
	}
	m.glowing = m.glowing[:0]
	m.applied = ""
}

// guard runs fn and turns a panic into an error.
func (m *Machine) guard(n *scene.Node, fn func(*scene.Node) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(n)
}

func (m *Machine) enterEmissive(n *scene.Node) error {
	mat := n.Material
	if mat.HasEmissive {
		mat.Emissive = core.ColorFromHSL(m.params.Hue, 1, emissiveLightness)
		mat.EmissiveIntensity = m.params.Intensity * 0.1
	}
	n.Layers.Enable(scene.LayerBloom)
	return nil
}

func (m *Machine) restoreEmissive(n *scene.Node) {
	snap, ok := m.snapshots[n]
	if !ok {
		return
	}
	if n.Material != nil {
		n.Material.Restore(snap)
	}
	n.Layers.Disable(scene.LayerBloom)
	delete(m.snapshots, n)
}

func (m *Machine) enterSeparate(n *scene.Node) error {
	parent := n.Parent
	if parent == nil {
		return errors.New("surface has no parent to hold its shell")
	}
	mat := scene.NewBasicMaterial(n.Name+"_glow", core.ColorFromHSL(m.params.Hue, 1, shellLightness))
	mat.Transparent = true
	mat.Opacity = shellOpacity
	mat.Side = scene.SideBack

	shell := scene.NewMeshNode(n.Name+"_glow", n.Mesh, mat)
	shell.Generated = true
	shell.Transform = n.Transform
	shell.Transform.Scale = n.Transform.Scale.Mul(shellScale)
	shell.Layers = scene.LayerMask(scene.LayerBase, scene.LayerBloom)
	shell.MarkWorldMatrixDirty()

	parent.AddChild(shell)
	m.shells[n] = shell
	return nil
}

func (m *Machine) exitSeparate(n *scene.Node) {
	shell, ok := m.shells[n]
	if !ok {
		return
	}
	shell.Detach()
	if shell.Mesh != nil {
		if shell.Mesh.Release() && m.releaser != nil {
			m.releaser.ReleaseMesh(shell.Mesh)
		}
		shell.Mesh = nil
	}
	shell.Material.Dispose()
	delete(m.shells, n)
}

// UpdateParams merges the provided fields and recolours glowing surfaces in
// place without re-classifying.
func (m *Machine) UpdateParams(u ParamsUpdate) {
	if u.Intensity != nil {
		m.params.Intensity = max(*u.Intensity, 0)
	}
	if u.Hue != nil {
		h := float64(*u.Hue)
		m.params.Hue = float32(h - math.Floor(h))
	}
	switch m.applied {
	case ModeEmissive:
		for _, n := range m.glowing {
			m.enterEmissive(n)
		}
	case ModeSeparate:
		for _, n := range m.glowing {
			if shell, ok := m.shells[n]; ok {
				shell.Material.Color = core.ColorFromHSL(m.params.Hue, 1, shellLightness)
			}
		}
	}
}

// UpdateClassifier merges the classifier configuration. The change takes
// effect on the next Apply.
func (m *Machine) UpdateClassifier(u ClassifierUpdate) {
	m.classifier = m.classifier.Merge(u)
}

// SetPulseEnabled toggles the glow pulse. Disabling leaves the last pulsed
// values in place.
func (m *Machine) SetPulseEnabled(enabled bool) {
	m.pulse.Enabled = enabled
}

// SetPulse replaces the pulse parameters.
func (m *Machine) SetPulse(p PulseParams) {
	m.pulse = p
}

// PulseLevel is the effective glow intensity at elapsed seconds:
// intensity × (0.5 + pulse × amplitude) with pulse = sin(t×speed)×0.5+0.5.
// The phase is reduced modulo one period in float64 so the value stays
// accurate for arbitrarily long runs.
func (m *Machine) PulseLevel(elapsed float64) float32 {
	speed := float64(m.pulse.Speed)
	phase := elapsed * speed
	if speed != 0 {
		phase = math.Mod(phase, 2*math.Pi)
	}
	pulse := math.Sin(phase)*0.5 + 0.5
	return m.params.Intensity * float32(0.5+pulse*float64(m.pulse.Amplitude))
}

// Update animates glowing surfaces. It does nothing while the pulse is
// disabled or nothing glows.
func (m *Machine) Update(elapsed float64) {
	if !m.pulse.Enabled || len(m.glowing) == 0 {
		return
	}
	level := m.PulseLevel(elapsed)
	color := core.ColorFromHSL(m.params.Hue, 1, emissiveLightness+level*0.2)

	switch m.applied {
	case ModeEmissive:
		for _, n := range m.glowing {
			if mat := n.Material; mat != nil && mat.HasEmissive {
				mat.Emissive = color
				mat.EmissiveIntensity = level * 0.3
			}
		}
	case ModeSeparate:
		for _, n := range m.glowing {
			if shell, ok := m.shells[n]; ok {
				shell.Material.Color = color
				shell.Material.Opacity = mgl32.Clamp(0.4+level*0.2, 0, 1)
			}
		}
	}
}
