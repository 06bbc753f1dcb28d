// Package opengl is the GPU implementation of the bloom backend. It draws
// into RGBA16F framebuffers and presents the composited frame on the
// default framebuffer of the current GLFW context.
package opengl

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/chewxy/math32"
	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"glow-viewer/bloom"
	"glow-viewer/core"
	"glow-viewer/scene"
)

// Per-frame light limits of the surface shader. Extra lights are dropped.
const (
	maxDirLights   = 4
	maxPointLights = 8
	maxSpotLights  = 4
)

// GPUMesh holds the OpenGL buffer objects for an uploaded mesh.
type GPUMesh struct {
	VAO        uint32
	VBO        uint32
	EBO        uint32
	IndexCount int32
}

// Renderer is the OpenGL rendering backend. It implements bloom.Backend and
// scene.Releaser. All methods must run on the goroutine owning the context.
type Renderer struct {
	log *zap.Logger

	program uint32

	mvpLoc       int32
	modelLoc     int32
	normalMatLoc int32

	ambientLoc int32

	dirCountLoc int32
	dirDirLoc   [maxDirLights]int32
	dirColorLoc [maxDirLights]int32

	pointCountLoc int32
	pointPosLoc   [maxPointLights]int32
	pointColorLoc [maxPointLights]int32
	pointRangeLoc [maxPointLights]int32
	pointDecayLoc [maxPointLights]int32

	spotCountLoc int32
	spotPosLoc   [maxSpotLights]int32
	spotDirLoc   [maxSpotLights]int32
	spotColorLoc [maxSpotLights]int32
	spotRangeLoc [maxSpotLights]int32
	spotDecayLoc [maxSpotLights]int32
	spotOuterLoc [maxSpotLights]int32
	spotInnerLoc [maxSpotLights]int32

	matColorLoc       int32
	matEmissiveLoc    int32
	matOpacityLoc     int32
	unlitLoc          int32
	albedoTexLoc      int32
	hasAlbedoTexLoc   int32
	emissiveTexLoc    int32
	hasEmissiveTexLoc int32

	post *postProcess

	// presentW and presentH size the default framebuffer viewport.
	presentW, presentH int32

	gpuMeshes map[*scene.Mesh]*GPUMesh
	textures  *textureCache
}

// ── Shaders ───────────────────────────────────────────────────────────────────

const vertSrc = `
#version 410 core
layout(location = 0) in vec3 inPosition;
layout(location = 1) in vec3 inNormal;
layout(location = 2) in vec2 inUV;
layout(location = 3) in vec4 inColor;

uniform mat4 mvp;
uniform mat4 model;
uniform mat3 normalMat;

out vec3 fragWorldPos;
out vec3 fragNormal;
out vec2 fragUV;
out vec4 fragColor;

void main() {
    vec4 world   = model * vec4(inPosition, 1.0);
    fragWorldPos = world.xyz;
    fragNormal   = normalMat * inNormal;
    fragUV       = inUV;
    fragColor    = inColor;
    gl_Position  = mvp * vec4(inPosition, 1.0);
}
` + "\x00"

// fragSrc writes linear HDR radiance. Falloff and cone match the CPU
// rasterizer so both backends bloom the same pixels.
const fragSrc = `
#version 410 core
#define MAX_DIR   4
#define MAX_POINT 8
#define MAX_SPOT  4

in vec3 fragWorldPos;
in vec3 fragNormal;
in vec2 fragUV;
in vec4 fragColor;

out vec4 outColor;

uniform vec3 ambientColor;

uniform int  dirCount;
uniform vec3 dirDir[MAX_DIR];
uniform vec3 dirColor[MAX_DIR];

uniform int   pointCount;
uniform vec3  pointPos[MAX_POINT];
uniform vec3  pointColor[MAX_POINT];
uniform float pointRange[MAX_POINT];
uniform float pointDecay[MAX_POINT];

uniform int   spotCount;
uniform vec3  spotPos[MAX_SPOT];
uniform vec3  spotDir[MAX_SPOT];
uniform vec3  spotColor[MAX_SPOT];
uniform float spotRange[MAX_SPOT];
uniform float spotDecay[MAX_SPOT];
uniform float spotOuter[MAX_SPOT];
uniform float spotInner[MAX_SPOT];

uniform vec3  matColor;
uniform vec3  matEmissive;
uniform float matOpacity;
uniform bool  unlit;

uniform sampler2D albedoTex;
uniform bool      hasAlbedoTex;
uniform sampler2D emissiveTex;
uniform bool      hasEmissiveTex;

float falloff(float dist, float cutoff, float decay) {
    float f = 1.0 / max(pow(dist, decay), 0.01);
    if (cutoff > 0.0) {
        float r = dist / cutoff;
        float w = clamp(1.0 - r * r * r * r, 0.0, 1.0);
        f *= w * w;
    }
    return f;
}

void main() {
    vec3 base = matColor * fragColor.rgb;
    if (hasAlbedoTex) {
        base *= texture(albedoTex, fragUV).rgb;
    }
    if (unlit) {
        outColor = vec4(base, matOpacity);
        return;
    }

    vec3 N = normalize(fragNormal);
    if (!gl_FrontFacing) {
        N = -N;
    }
    vec3 irradiance = ambientColor;

    for (int i = 0; i < dirCount && i < MAX_DIR; i++) {
        irradiance += dirColor[i] * max(dot(N, -dirDir[i]), 0.0);
    }
    for (int i = 0; i < pointCount && i < MAX_POINT; i++) {
        vec3  toLight = pointPos[i] - fragWorldPos;
        float dist    = length(toLight);
        if (dist <= 0.0) continue;
        vec3 L = toLight / dist;
        irradiance += pointColor[i] * max(dot(N, L), 0.0) * falloff(dist, pointRange[i], pointDecay[i]);
    }
    for (int i = 0; i < spotCount && i < MAX_SPOT; i++) {
        vec3  toLight = spotPos[i] - fragWorldPos;
        float dist    = length(toLight);
        if (dist <= 0.0) continue;
        vec3  L    = toLight / dist;
        float cone = smoothstep(spotOuter[i], spotInner[i], dot(-L, spotDir[i]));
        irradiance += spotColor[i] * max(dot(N, L), 0.0) * falloff(dist, spotRange[i], spotDecay[i]) * cone;
    }

    vec3 emissive = matEmissive;
    if (hasEmissiveTex) {
        emissive *= texture(emissiveTex, fragUV).rgb;
    }
    outColor = vec4(base * irradiance + emissive, matOpacity);
}
` + "\x00"

// ── NewRenderer ───────────────────────────────────────────────────────────────

// NewRenderer initialises OpenGL.
// Must be called after the GLFW window context is made current.
func NewRenderer(log *zap.Logger) (*Renderer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	log = log.Named("opengl")
	log.Info("context ready", zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))))

	prog, err := newProgram(vertSrc, fragSrc)
	if err != nil {
		return nil, fmt.Errorf("surface shader compile: %w", err)
	}

	post, err := newPostProcess()
	if err != nil {
		gl.DeleteProgram(prog)
		return nil, err
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)

	loc := func(name string) int32 {
		return gl.GetUniformLocation(prog, gl.Str(name+"\x00"))
	}

	r := &Renderer{
		log:     log,
		program: prog,
		post:    post,

		mvpLoc:       loc("mvp"),
		modelLoc:     loc("model"),
		normalMatLoc: loc("normalMat"),
		ambientLoc:   loc("ambientColor"),

		dirCountLoc:   loc("dirCount"),
		pointCountLoc: loc("pointCount"),
		spotCountLoc:  loc("spotCount"),

		matColorLoc:       loc("matColor"),
		matEmissiveLoc:    loc("matEmissive"),
		matOpacityLoc:     loc("matOpacity"),
		unlitLoc:          loc("unlit"),
		albedoTexLoc:      loc("albedoTex"),
		hasAlbedoTexLoc:   loc("hasAlbedoTex"),
		emissiveTexLoc:    loc("emissiveTex"),
		hasEmissiveTexLoc: loc("hasEmissiveTex"),

		gpuMeshes: make(map[*scene.Mesh]*GPUMesh),
		textures:  newTextureCache(log),
	}

	for i := 0; i < maxDirLights; i++ {
		r.dirDirLoc[i] = loc(fmt.Sprintf("dirDir[%d]", i))
		r.dirColorLoc[i] = loc(fmt.Sprintf("dirColor[%d]", i))
	}
	for i := 0; i < maxPointLights; i++ {
		r.pointPosLoc[i] = loc(fmt.Sprintf("pointPos[%d]", i))
		r.pointColorLoc[i] = loc(fmt.Sprintf("pointColor[%d]", i))
		r.pointRangeLoc[i] = loc(fmt.Sprintf("pointRange[%d]", i))
		r.pointDecayLoc[i] = loc(fmt.Sprintf("pointDecay[%d]", i))
	}
	for i := 0; i < maxSpotLights; i++ {
		r.spotPosLoc[i] = loc(fmt.Sprintf("spotPos[%d]", i))
		r.spotDirLoc[i] = loc(fmt.Sprintf("spotDir[%d]", i))
		r.spotColorLoc[i] = loc(fmt.Sprintf("spotColor[%d]", i))
		r.spotRangeLoc[i] = loc(fmt.Sprintf("spotRange[%d]", i))
		r.spotDecayLoc[i] = loc(fmt.Sprintf("spotDecay[%d]", i))
		r.spotOuterLoc[i] = loc(fmt.Sprintf("spotOuter[%d]", i))
		r.spotInnerLoc[i] = loc(fmt.Sprintf("spotInner[%d]", i))
	}

	// Texture units: albedo=0, emissive=1
	gl.UseProgram(prog)
	gl.Uniform1i(r.albedoTexLoc, 0)
	gl.Uniform1i(r.emissiveTexLoc, 1)

	return r, nil
}

// ── Scene pass ────────────────────────────────────────────────────────────────

// DrawScene draws opaque surfaces first, then transparent ones blended in
// traversal order without depth writes.
func (r *Renderer) DrawScene(dst bloom.Target, s *scene.Scene, clear core.Color) error {
	t, err := asTarget(dst)
	if err != nil {
		return err
	}
	if s.Camera == nil {
		return errors.New("opengl: scene has no camera")
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.Viewport(0, 0, t.width, t.height)
	gl.ClearColor(clear.R, clear.G, clear.B, 1)
	gl.DepthMask(true)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.Enable(gl.DEPTH_TEST)

	cam := s.Camera
	gl.UseProgram(r.program)
	r.applyLights(s.CollectLights())

	vp := cam.GetViewProjectionMatrix()
	type item struct {
		node *scene.Node
		surf scene.Surface
	}
	var transparent []item
	for _, n := range s.DrawList(cam.Layers) {
		for _, surf := range n.Surfaces() {
			if surf.Material.Transparent {
				transparent = append(transparent, item{n, surf})
				continue
			}
			r.drawSurface(n, surf, vp)
		}
	}

	if len(transparent) > 0 {
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
		gl.DepthMask(false)
		for _, it := range transparent {
			r.drawSurface(it.node, it.surf, vp)
		}
		gl.DepthMask(true)
		gl.Disable(gl.BLEND)
	}
	gl.Disable(gl.CULL_FACE)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return nil
}

// applyLights uploads the frame's lights. Ambient lights are summed.
func (r *Renderer) applyLights(lights []scene.PlacedLight) {
	var ambient mgl32.Vec3
	var dirs, points, spots int32
	for _, l := range lights {
		radiance := l.Color.Vec3().Mul(l.Intensity)
		switch l.Type {
		case scene.LightAmbient:
			ambient = ambient.Add(radiance)
		case scene.LightDirectional:
			if dirs == maxDirLights {
				continue
			}
			d := l.WorldDirection
			gl.Uniform3f(r.dirDirLoc[dirs], d[0], d[1], d[2])
			gl.Uniform3f(r.dirColorLoc[dirs], radiance[0], radiance[1], radiance[2])
			dirs++
		case scene.LightPoint:
			if points == maxPointLights {
				continue
			}
			p := l.WorldPosition
			gl.Uniform3f(r.pointPosLoc[points], p[0], p[1], p[2])
			gl.Uniform3f(r.pointColorLoc[points], radiance[0], radiance[1], radiance[2])
			gl.Uniform1f(r.pointRangeLoc[points], l.Distance)
			gl.Uniform1f(r.pointDecayLoc[points], l.Decay)
			points++
		case scene.LightSpot:
			if spots == maxSpotLights {
				continue
			}
			p, d := l.WorldPosition, l.WorldDirection
			gl.Uniform3f(r.spotPosLoc[spots], p[0], p[1], p[2])
			gl.Uniform3f(r.spotDirLoc[spots], d[0], d[1], d[2])
			gl.Uniform3f(r.spotColorLoc[spots], radiance[0], radiance[1], radiance[2])
			gl.Uniform1f(r.spotRangeLoc[spots], l.Distance)
			gl.Uniform1f(r.spotDecayLoc[spots], l.Decay)
			gl.Uniform1f(r.spotOuterLoc[spots], math32.Cos(l.Angle))
			gl.Uniform1f(r.spotInnerLoc[spots], math32.Cos(l.Angle*0.85))
			spots++
		}
	}
	gl.Uniform3f(r.ambientLoc, ambient[0], ambient[1], ambient[2])
	gl.Uniform1i(r.dirCountLoc, dirs)
	gl.Uniform1i(r.pointCountLoc, points)
	gl.Uniform1i(r.spotCountLoc, spots)
}

func (r *Renderer) drawSurface(n *scene.Node, surf scene.Surface, vp mgl32.Mat4) {
	gpu := r.ensureUploaded(n.Mesh)
	if gpu == nil {
		return
	}
	model := n.GetWorldMatrix()
	mvp := vp.Mul4(model)
	normalMat := model.Mat3().Inv().Transpose()
	gl.UniformMatrix4fv(r.mvpLoc, 1, false, &mvp[0])
	gl.UniformMatrix4fv(r.modelLoc, 1, false, &model[0])
	gl.UniformMatrix3fv(r.normalMatLoc, 1, false, &normalMat[0])

	r.applyMaterial(surf.Material)

	gl.BindVertexArray(gpu.VAO)
	gl.DrawElements(gl.TRIANGLES, int32(surf.Count), gl.UNSIGNED_INT, gl.PtrOffset(int(surf.Start)*4))
	gl.BindVertexArray(0)
}

// applyMaterial sets all material-related shader uniforms and binds textures.
// Must be called while r.program is active.
func (r *Renderer) applyMaterial(mat *scene.Material) {
	gl.Uniform3f(r.matColorLoc, mat.Color.R, mat.Color.G, mat.Color.B)
	opacity := float32(1)
	if mat.Transparent {
		opacity = mat.Opacity
	}
	gl.Uniform1f(r.matOpacityLoc, opacity)

	var emissive mgl32.Vec3
	if mat.HasEmissive {
		emissive = mat.Emissive.Vec3().Mul(mat.EmissiveIntensity)
	}
	gl.Uniform3f(r.matEmissiveLoc, emissive[0], emissive[1], emissive[2])
	gl.Uniform1i(r.unlitLoc, boolToInt(mat.Kind == scene.MaterialBasic))

	switch mat.Side {
	case scene.SideDouble:
		gl.Disable(gl.CULL_FACE)
	case scene.SideBack:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	default:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	}

	// Albedo texture (unit 0)
	if tex := r.textures.bind(mat.AlbedoTexture); tex != 0 {
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, tex)
		gl.Uniform1i(r.hasAlbedoTexLoc, 1)
	} else {
		gl.Uniform1i(r.hasAlbedoTexLoc, 0)
	}

	// Emissive texture (unit 1)
	if tex := r.textures.bind(mat.EmissiveTexture); mat.HasEmissive && tex != 0 {
		gl.ActiveTexture(gl.TEXTURE1)
		gl.BindTexture(gl.TEXTURE_2D, tex)
		gl.Uniform1i(r.hasEmissiveTexLoc, 1)
	} else {
		gl.Uniform1i(r.hasEmissiveTexLoc, 0)
	}
}

// ── Resource management ───────────────────────────────────────────────────────

// ReleaseMesh frees GPU buffers for the given mesh.
func (r *Renderer) ReleaseMesh(mesh *scene.Mesh) {
	if gpu, ok := r.gpuMeshes[mesh]; ok {
		gl.DeleteVertexArrays(1, &gpu.VAO)
		gl.DeleteBuffers(1, &gpu.VBO)
		gl.DeleteBuffers(1, &gpu.EBO)
		delete(r.gpuMeshes, mesh)
	}
	mesh.GPUData = nil
}

// ReleaseTexture frees the GPU copy of tex, if it was uploaded.
func (r *Renderer) ReleaseTexture(tex *scene.Texture) {
	r.textures.release(tex)
}

// Destroy releases all GPU resources.
func (r *Renderer) Destroy() {
	for mesh := range r.gpuMeshes {
		r.ReleaseMesh(mesh)
	}
	r.textures.releaseAll()
	r.post.destroy()
	gl.DeleteProgram(r.program)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// ensureUploaded uploads vertex/index data if not already done.
func (r *Renderer) ensureUploaded(mesh *scene.Mesh) *GPUMesh {
	if gpu, ok := r.gpuMeshes[mesh]; ok {
		return gpu
	}
	if !mesh.Valid() {
		return nil
	}

	stride := int32(unsafe.Sizeof(core.Vertex{}))

	gpu := &GPUMesh{IndexCount: int32(len(mesh.Indices))}

	gl.GenVertexArrays(1, &gpu.VAO)
	gl.GenBuffers(1, &gpu.VBO)
	gl.BindVertexArray(gpu.VAO)

	gl.BindBuffer(gl.ARRAY_BUFFER, gpu.VBO)
	gl.BufferData(gl.ARRAY_BUFFER,
		len(mesh.Vertices)*int(stride),
		gl.Ptr(mesh.Vertices),
		gl.STATIC_DRAW)

	var v core.Vertex
	posOff := int(unsafe.Offsetof(v.Position))
	normOff := int(unsafe.Offsetof(v.Normal))
	uvOff := int(unsafe.Offsetof(v.UV))
	colorOff := int(unsafe.Offsetof(v.Color))

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, stride, gl.PtrOffset(posOff))

	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, stride, gl.PtrOffset(normOff))

	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointer(2, 2, gl.FLOAT, false, stride, gl.PtrOffset(uvOff))

	gl.EnableVertexAttribArray(3)
	gl.VertexAttribPointer(3, 4, gl.FLOAT, false, stride, gl.PtrOffset(colorOff))

	gl.GenBuffers(1, &gpu.EBO)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, gpu.EBO)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER,
		len(mesh.Indices)*4,
		gl.Ptr(mesh.Indices),
		gl.STATIC_DRAW)

	gl.BindVertexArray(0)

	r.gpuMeshes[mesh] = gpu
	mesh.GPUData = gpu
	return gpu
}

// ── Shader helpers ────────────────────────────────────────────────────────────

func newProgram(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex: %w", err)
	}
	frag, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vert)
		return 0, fmt.Errorf("fragment: %w", err)
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)
	gl.DeleteShader(vert)
	gl.DeleteShader(frag)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link failed: %v", log)
	}
	return prog, nil
}

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile failed: %v", log)
	}
	return shader, nil
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
