// Package bloom composites a blurred bright-pass over the rendered frame,
// either for the whole frame or for the bloom layer only.
package bloom

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"glow-viewer/core"
	"glow-viewer/scene"
)

// Mode selects what feeds the bloom pass.
type Mode string

const (
	// ModeSimple blooms every pixel of the frame above the threshold.
	ModeSimple Mode = "simple"
	// ModeSelective blooms only geometry on the bloom layer.
	ModeSelective Mode = "selective"
)

var ErrUnknownMode = errors.New("unknown bloom mode")

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSimple, ModeSelective:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MaxPixelRatio caps the render target density.
const MaxPixelRatio = 2

// Blur kernel shared by the backends: BlurPasses horizontal+vertical pairs
// of a 5-tap binomial filter whose taps are TapSpacing(radius) texels apart.
const BlurPasses = 3

var BlurWeights = [5]float32{0.0625, 0.25, 0.375, 0.25, 0.0625}

// TapSpacing converts the radius parameter to a tap distance in texels.
// A zero radius leaves the bright-pass unblurred.
func TapSpacing(radius float32) float32 {
	return radius * 2.5
}

// Params control the bloom pass. All values are non-negative.
type Params struct {
	// Strength multiplies the blurred buffer before it is added.
	Strength float32 `yaml:"strength" toml:"strength"`
	// Threshold is the Rec. 709 luminance cutoff, measured on linear HDR
	// values before tone mapping.
	Threshold float32 `yaml:"threshold" toml:"threshold"`
	// Radius scales the blur kernel spread.
	Radius float32 `yaml:"radius" toml:"radius"`
	// Exposure scales radiance ahead of Reinhard tone mapping.
	Exposure float32 `yaml:"exposure" toml:"exposure"`
}

func DefaultParams() Params {
	return Params{Strength: 1.5, Threshold: 0.1, Radius: 0.4, Exposure: 1}
}

// ParamsUpdate carries the fields to change; nil fields are kept.
type ParamsUpdate struct {
	Strength  *float32
	Threshold *float32
	Radius    *float32
	Exposure  *float32
}

// Canvas is the surface the frame is presented on.
type Canvas interface {
	// Size is the logical size in screen coordinates.
	Size() (width, height int)
	// PixelRatio is the device pixel ratio.
	PixelRatio() float64
}

// Target is an offscreen HDR color buffer owned by a Backend.
type Target interface {
	Size() (width, height int)
}

// Backend executes the render passes.
type Backend interface {
	NewTarget(width, height int) (Target, error)
	ReleaseTarget(t Target)
	// DrawScene clears dst to clear and draws the nodes of s that share a
	// layer with s.Camera.Layers, in linear HDR.
	DrawScene(dst Target, s *scene.Scene, clear core.Color) error
	// Bloom runs the bright-pass on src and blurs the result. The returned
	// target belongs to the backend and stays valid until the next call.
	Bloom(src Target, threshold, radius float32) (Target, error)
	// Composite adds strength × bloom to base, applies exposure and
	// Reinhard tone mapping, and presents the result.
	Composite(base, bloom Target, strength, exposure float32) error
}

// GlowQuery reports which nodes belong on the bloom layer.
type GlowQuery interface {
	InBloomLayer(n *scene.Node) bool
}

// CompositorError is a failed frame. The compositor stays usable.
type CompositorError struct {
	Op  string
	Err error
}

func (e *CompositorError) Error() string {
	return fmt.Sprintf("bloom %s: %v", e.Op, e.Err)
}

func (e *CompositorError) Unwrap() error { return e.Err }

// Compositor owns the base and isolated render targets and sequences the
// passes of a frame.
type Compositor struct {
	log     *zap.Logger
	backend Backend
	canvas  Canvas
	scene   *scene.Scene

	mode   Mode
	params Params

	base     Target
	isolated Target
	width    int
	height   int
	// stale is set when targets must be (re)allocated before drawing.
	stale bool
}

func NewCompositor(log *zap.Logger, backend Backend, canvas Canvas, s *scene.Scene) *Compositor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compositor{
		log:     log.Named("bloom"),
		backend: backend,
		canvas:  canvas,
		scene:   s,
		mode:    ModeSimple,
		params:  DefaultParams(),
		stale:   true,
	}
}

// TargetSize is the canvas size scaled by the pixel ratio, capped at
// MaxPixelRatio. Ratios below 1 are kept so small windows stay cheap.
func TargetSize(c Canvas) (int, int) {
	w, h := c.Size()
	ratio := c.PixelRatio()
	if ratio <= 0 || math.IsNaN(ratio) {
		ratio = 1
	}
	ratio = math.Min(ratio, MaxPixelRatio)
	tw := int(math.Round(float64(w) * ratio))
	th := int(math.Round(float64(h) * ratio))
	return max(tw, 1), max(th, 1)
}

// Init allocates the render targets.
func (c *Compositor) Init() error {
	return c.allocate()
}

func (c *Compositor) allocate() error {
	w, h := TargetSize(c.canvas)
	c.releaseTargets()
	c.stale = true

	base, err := c.backend.NewTarget(w, h)
	if err != nil {
		return &CompositorError{Op: "allocate", Err: err}
	}
	isolated, err := c.backend.NewTarget(w, h)
	if err != nil {
		c.backend.ReleaseTarget(base)
		return &CompositorError{Op: "allocate", Err: err}
	}
	c.base, c.isolated = base, isolated
	c.width, c.height = w, h
	c.stale = false
	c.log.Debug("targets allocated", zap.Int("width", w), zap.Int("height", h))
	return nil
}

func (c *Compositor) releaseTargets() {
	if c.base != nil {
		c.backend.ReleaseTarget(c.base)
		c.base = nil
	}
	if c.isolated != nil {
		c.backend.ReleaseTarget(c.isolated)
		c.isolated = nil
	}
}

// Close releases the render targets.
func (c *Compositor) Close() {
	c.releaseTargets()
	c.stale = true
}

// TargetDimensions is the size of the allocated targets.
func (c *Compositor) TargetDimensions() (int, int) {
	return c.width, c.height
}

// OnWindowResize reallocates the targets for the current canvas size. On
// failure the next Render retries.
func (c *Compositor) OnWindowResize() error {
	return c.allocate()
}

// SetupModelLayers puts every node under root on the base layer and
// re-derives bloom layer membership from q. It returns the number of nodes
// on the bloom layer.
func (c *Compositor) SetupModelLayers(root *scene.Node, q GlowQuery) int {
	if root == nil {
		return 0
	}
	count := 0
	root.Traverse(func(n *scene.Node) {
		n.Layers.Enable(scene.LayerBase)
		if q != nil && q.InBloomLayer(n) {
			n.Layers.Enable(scene.LayerBloom)
			count++
		} else {
			n.Layers.Disable(scene.LayerBloom)
		}
	})
	return count
}

func (c *Compositor) SetMode(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	c.mode = mode
	return nil
}

func (c *Compositor) Mode() Mode {
	return c.mode
}

func (c *Compositor) Params() Params {
	return c.params
}

// UpdateParams merges the provided fields. Negative values become 0.
func (c *Compositor) UpdateParams(u ParamsUpdate) {
	set := func(dst *float32, src *float32) {
		if src != nil {
			*dst = max(*src, 0)
		}
	}
	set(&c.params.Strength, u.Strength)
	set(&c.params.Threshold, u.Threshold)
	set(&c.params.Radius, u.Radius)
	set(&c.params.Exposure, u.Exposure)
}

// Render draws one frame in the current mode.
func (c *Compositor) Render() error {
	if c.scene == nil || c.scene.Camera == nil {
		return &CompositorError{Op: "render", Err: errors.New("no camera")}
	}
	if c.stale {
		if err := c.allocate(); err != nil {
			return err
		}
	}
	if c.mode == ModeSelective {
		return c.renderSelective()
	}
	return c.renderSimple()
}

func (c *Compositor) renderSimple() error {
	if err := c.backend.DrawScene(c.base, c.scene, c.scene.Background); err != nil {
		return &CompositorError{Op: "draw", Err: err}
	}
	bloomed, err := c.backend.Bloom(c.base, c.params.Threshold, c.params.Radius)
	if err != nil {
		return &CompositorError{Op: "bloom", Err: err}
	}
	if err := c.backend.Composite(c.base, bloomed, c.params.Strength, c.params.Exposure); err != nil {
		return &CompositorError{Op: "composite", Err: err}
	}
	return nil
}

func (c *Compositor) renderSelective() error {
	cam := c.scene.Camera
	saved := cam.Layers
	defer func() { cam.Layers = saved }()

	cam.Layers.Set(scene.LayerBloom)
	if err := c.backend.DrawScene(c.isolated, c.scene, core.Color{}); err != nil {
		return &CompositorError{Op: "draw isolated", Err: err}
	}
	bloomed, err := c.backend.Bloom(c.isolated, c.params.Threshold, c.params.Radius)
	if err != nil {
		return &CompositorError{Op: "bloom", Err: err}
	}
	cam.Layers = saved

	if err := c.backend.DrawScene(c.base, c.scene, c.scene.Background); err != nil {
		return &CompositorError{Op: "draw", Err: err}
	}
	if err := c.backend.Composite(c.base, bloomed, c.params.Strength, c.params.Exposure); err != nil {
		return &CompositorError{Op: "composite", Err: err}
	}
	return nil
}
