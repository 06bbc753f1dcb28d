package opengl

import (
	"errors"
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"glow-viewer/bloom"
)

var ErrReleased = errors.New("target already released")

// Target is an HDR off-screen render target: an RGBA16F colour texture and
// a depth renderbuffer behind one framebuffer object.
type Target struct {
	fbo    uint32
	color  uint32
	depth  uint32
	width  int32
	height int32
}

func (t *Target) Size() (int, int) {
	return int(t.width), int(t.height)
}

func asTarget(t bloom.Target) (*Target, error) {
	gt, ok := t.(*Target)
	if !ok || gt == nil {
		return nil, fmt.Errorf("opengl: foreign target %T", t)
	}
	if gt.fbo == 0 {
		return nil, ErrReleased
	}
	return gt, nil
}

// NewTarget allocates a framebuffer with colour and depth attachments.
func (r *Renderer) NewTarget(width, height int) (bloom.Target, error) {
	return newTarget(width, height, true)
}

func (r *Renderer) ReleaseTarget(t bloom.Target) {
	if gt, ok := t.(*Target); ok && gt != nil {
		gt.free()
	}
}

func newTarget(width, height int, withDepth bool) (*Target, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("opengl: invalid target size %dx%d", width, height)
	}
	t := &Target{width: int32(width), height: int32(height)}

	gl.GenTextures(1, &t.color)
	gl.BindTexture(gl.TEXTURE_2D, t.color)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA16F,
		t.width, t.height, 0, gl.RGBA, gl.HALF_FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0,
		gl.TEXTURE_2D, t.color, 0)

	if withDepth {
		gl.GenRenderbuffers(1, &t.depth)
		gl.BindRenderbuffer(gl.RENDERBUFFER, t.depth)
		gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, t.width, t.height)
		gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, t.depth)
		gl.BindRenderbuffer(gl.RENDERBUFFER, 0)
	}

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		t.free()
		return nil, fmt.Errorf("opengl: %dx%d framebuffer incomplete (0x%X)", width, height, status)
	}
	return t, nil
}

func (t *Target) free() {
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.color != 0 {
		gl.DeleteTextures(1, &t.color)
		t.color = 0
	}
	if t.depth != 0 {
		gl.DeleteRenderbuffers(1, &t.depth)
		t.depth = 0
	}
}

// ── Shaders ───────────────────────────────────────────────────────────────────

// ppVertSrc: fullscreen triangle via gl_VertexID (no VBO needed).
const ppVertSrc = `
#version 410 core
out vec2 fragUV;
void main() {
    const vec2 pos[3] = vec2[3](
        vec2(-1.0, -1.0),
        vec2( 3.0, -1.0),
        vec2(-1.0,  3.0)
    );
    gl_Position = vec4(pos[gl_VertexID], 0.0, 1.0);
    fragUV      = pos[gl_VertexID] * 0.5 + 0.5;
}
` + "\x00"

// ppFragSrc: bloom add, exposure, Reinhard tone mapping, sRGB encode.
const ppFragSrc = `
#version 410 core
in  vec2 fragUV;
out vec4 outColor;

uniform sampler2D hdrBuffer;  // unit 0
uniform sampler2D bloomTex;   // unit 1
uniform float     exposure;
uniform float     bloomStrength;
uniform bool      hasBloom;

vec3 linearToSRGB(vec3 c) {
    vec3 lo = c * 12.92;
    vec3 hi = 1.055 * pow(c, vec3(1.0 / 2.4)) - 0.055;
    return mix(hi, lo, vec3(lessThanEqual(c, vec3(0.0031308))));
}

void main() {
    vec3 hdr = texture(hdrBuffer, fragUV).rgb;
    if (hasBloom) {
        hdr += texture(bloomTex, fragUV).rgb * bloomStrength;
    }
    hdr *= exposure;
    vec3 mapped = hdr / (vec3(1.0) + hdr);
    mapped = linearToSRGB(clamp(mapped, 0.0, 1.0));
    outColor = vec4(mapped, 1.0);
}
` + "\x00"

// ppBrightFragSrc: keeps pixels whose luminance reaches the threshold.
const ppBrightFragSrc = `
#version 410 core
in  vec2 fragUV;
out vec4 outColor;

uniform sampler2D hdrBuffer;
uniform float     threshold;

void main() {
    vec3  color = texture(hdrBuffer, fragUV).rgb;
    float luma  = dot(color, vec3(0.2126, 0.7152, 0.0722));
    outColor = vec4(color * step(threshold, luma), 1.0);
}
` + "\x00"

// ppBlurFragSrc: single-axis 5-tap binomial blur.
// texelDir is the tap offset in UV units along one axis.
const ppBlurFragSrc = `
#version 410 core
in  vec2 fragUV;
out vec4 outColor;

uniform sampler2D blurTex;
uniform vec2      texelDir;

void main() {
    const float w[5] = float[](0.0625, 0.25, 0.375, 0.25, 0.0625);
    vec3 result = vec3(0.0);
    for (int i = -2; i <= 2; i++) {
        result += texture(blurTex, fragUV + float(i) * texelDir).rgb * w[i + 2];
    }
    outColor = vec4(result, 1.0);
}
` + "\x00"

// postProcess owns the fullscreen programs and the bloom ping-pong targets.
type postProcess struct {
	prog        uint32
	expLoc      int32
	bloomStrLoc int32
	hasBloomLoc int32

	brightProg      uint32
	brightThreshLoc int32

	blurProg   uint32
	blurDirLoc int32

	quadVAO uint32 // empty VAO for the fullscreen triangle

	ping [2]*Target
}

func newPostProcess() (*postProcess, error) {
	pp := &postProcess{}

	prog, err := newProgram(ppVertSrc, ppFragSrc)
	if err != nil {
		return nil, fmt.Errorf("composite shader: %w", err)
	}
	pp.prog = prog
	pp.expLoc = gl.GetUniformLocation(prog, gl.Str("exposure\x00"))
	pp.bloomStrLoc = gl.GetUniformLocation(prog, gl.Str("bloomStrength\x00"))
	pp.hasBloomLoc = gl.GetUniformLocation(prog, gl.Str("hasBloom\x00"))
	gl.UseProgram(prog)
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("hdrBuffer\x00")), 0)
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str("bloomTex\x00")), 1)

	bp, err := newProgram(ppVertSrc, ppBrightFragSrc)
	if err != nil {
		pp.destroy()
		return nil, fmt.Errorf("bright-pass shader: %w", err)
	}
	pp.brightProg = bp
	pp.brightThreshLoc = gl.GetUniformLocation(bp, gl.Str("threshold\x00"))
	gl.UseProgram(bp)
	gl.Uniform1i(gl.GetUniformLocation(bp, gl.Str("hdrBuffer\x00")), 0)

	blp, err := newProgram(ppVertSrc, ppBlurFragSrc)
	if err != nil {
		pp.destroy()
		return nil, fmt.Errorf("blur shader: %w", err)
	}
	pp.blurProg = blp
	pp.blurDirLoc = gl.GetUniformLocation(blp, gl.Str("texelDir\x00"))
	gl.UseProgram(blp)
	gl.Uniform1i(gl.GetUniformLocation(blp, gl.Str("blurTex\x00")), 0)

	gl.GenVertexArrays(1, &pp.quadVAO)
	return pp, nil
}

// ensurePing (re)allocates the ping-pong targets at the source size.
func (pp *postProcess) ensurePing(w, h int) error {
	if pp.ping[0] != nil {
		if pw, ph := pp.ping[0].Size(); pw == w && ph == h {
			return nil
		}
	}
	pp.freePing()
	for i := range pp.ping {
		t, err := newTarget(w, h, false)
		if err != nil {
			pp.freePing()
			return err
		}
		pp.ping[i] = t
	}
	return nil
}

func (pp *postProcess) freePing() {
	for i, t := range pp.ping {
		if t != nil {
			t.free()
			pp.ping[i] = nil
		}
	}
}

func (pp *postProcess) destroy() {
	pp.freePing()
	for _, p := range []*uint32{&pp.prog, &pp.brightProg, &pp.blurProg} {
		if *p != 0 {
			gl.DeleteProgram(*p)
			*p = 0
		}
	}
	if pp.quadVAO != 0 {
		gl.DeleteVertexArrays(1, &pp.quadVAO)
		pp.quadVAO = 0
	}
}

// ── Bloom ─────────────────────────────────────────────────────────────────────

// Bloom runs bright-pass → ping-pong blur on src. The result stays in the
// first ping-pong target until the next call.
func (r *Renderer) Bloom(src bloom.Target, threshold, radius float32) (bloom.Target, error) {
	in, err := asTarget(src)
	if err != nil {
		return nil, err
	}
	pp := r.post
	if err := pp.ensurePing(in.Size()); err != nil {
		return nil, err
	}

	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.BLEND)
	gl.BindVertexArray(pp.quadVAO)
	gl.Viewport(0, 0, in.width, in.height)

	// Step 1: bright-pass → ping[0]
	gl.BindFramebuffer(gl.FRAMEBUFFER, pp.ping[0].fbo)
	gl.UseProgram(pp.brightProg)
	gl.Uniform1f(pp.brightThreshLoc, threshold)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, in.color)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)

	// Step 2: ping-pong blur. Each H+V pair ends back in ping[0].
	if spacing := bloom.TapSpacing(radius); spacing > 0 {
		gl.UseProgram(pp.blurProg)
		dx := spacing / float32(in.width)
		dy := spacing / float32(in.height)
		for i := 0; i < bloom.BlurPasses; i++ {
			pp.blurInto(pp.ping[0], pp.ping[1], dx, 0)
			pp.blurInto(pp.ping[1], pp.ping[0], 0, dy)
		}
	}

	gl.BindVertexArray(0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Enable(gl.DEPTH_TEST)
	return pp.ping[0], nil
}

func (pp *postProcess) blurInto(src, dst *Target, dx, dy float32) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, dst.fbo)
	gl.Uniform2f(pp.blurDirLoc, dx, dy)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, src.color)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
}

// ── Composite ─────────────────────────────────────────────────────────────────

// SetPresentSize records the window framebuffer size in pixels. Composite
// draws into that area; targets may be smaller when the pixel ratio is
// clamped. Zero sizes fall back to the target size.
func (r *Renderer) SetPresentSize(width, height int) {
	r.presentW, r.presentH = int32(max(width, 0)), int32(max(height, 0))
}

func presentViewport(fbW, fbH, targetW, targetH int32) (int32, int32) {
	if fbW > 0 && fbH > 0 {
		return fbW, fbH
	}
	return targetW, targetH
}

// Composite resolves base plus strength × bl to the default framebuffer.
// bl may be nil to tone-map base alone.
func (r *Renderer) Composite(base, bl bloom.Target, strength, exposure float32) error {
	in, err := asTarget(base)
	if err != nil {
		return err
	}
	var glow *Target
	if bl != nil {
		if glow, err = asTarget(bl); err != nil {
			return err
		}
	}
	pp := r.post

	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.BLEND)
	gl.BindVertexArray(pp.quadVAO)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	w, h := presentViewport(r.presentW, r.presentH, in.width, in.height)
	gl.Viewport(0, 0, w, h)

	gl.UseProgram(pp.prog)
	gl.Uniform1f(pp.expLoc, exposure)
	gl.Uniform1f(pp.bloomStrLoc, strength)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, in.color)
	if glow != nil {
		gl.Uniform1i(pp.hasBloomLoc, 1)
		gl.ActiveTexture(gl.TEXTURE1)
		gl.BindTexture(gl.TEXTURE_2D, glow.color)
	} else {
		gl.Uniform1i(pp.hasBloomLoc, 0)
	}
	gl.DrawArrays(gl.TRIANGLES, 0, 3)

	gl.BindVertexArray(0)
	gl.Enable(gl.DEPTH_TEST)
	return nil
}
