package raster

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"glow-viewer/bloom"
	"glow-viewer/core"
	"glow-viewer/scene"
)

// Renderer rasterizes scenes on the CPU. It implements bloom.Backend and
// scene.Releaser.
type Renderer struct {
	log *zap.Logger

	// MaxPixels caps the size of a single target; 0 means unlimited.
	MaxPixels int

	bright  *Buffer
	scratch *Buffer
	output  *image.RGBA

	frames           int
	releasedMeshes   int
	releasedTextures int
}

func NewRenderer(log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{log: log.Named("raster")}
}

func (r *Renderer) NewTarget(width, height int) (bloom.Target, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid target size %dx%d", width, height)
	}
	if r.MaxPixels > 0 && width*height > r.MaxPixels {
		return nil, fmt.Errorf("raster: %dx%d: %w", width, height, ErrTargetTooLarge)
	}
	return NewBuffer(width, height), nil
}

func (r *Renderer) ReleaseTarget(t bloom.Target) {
	if b, ok := t.(*Buffer); ok && b != nil {
		b.pix, b.depth = nil, nil
	}
}

func (r *Renderer) ReleaseMesh(m *scene.Mesh) {
	m.GPUData = nil
	r.releasedMeshes++
}

func (r *Renderer) ReleaseTexture(t *scene.Texture) {
	r.releasedTextures++
}

// Released reports how many meshes and textures were handed back.
func (r *Renderer) Released() (meshes, textures int) {
	return r.releasedMeshes, r.releasedTextures
}

// Frames is the number of composited frames.
func (r *Renderer) Frames() int {
	return r.frames
}

type drawItem struct {
	node    *scene.Node
	surface scene.Surface
}

// DrawScene draws opaque surfaces first, then transparent ones blended in
// traversal order without depth writes.
func (r *Renderer) DrawScene(dst bloom.Target, s *scene.Scene, clear core.Color) error {
	buf, err := asBuffer(dst)
	if err != nil {
		return err
	}
	if s.Camera == nil {
		return fmt.Errorf("raster: scene has no camera")
	}
	buf.Clear(clear)

	cam := s.Camera
	f := frame{
		buf:    buf,
		vp:     cam.GetViewProjectionMatrix(),
		lights: s.CollectLights(),
	}

	var transparent []drawItem
	for _, n := range s.DrawList(cam.Layers) {
		for _, surf := range n.Surfaces() {
			if surf.Material.Transparent {
				transparent = append(transparent, drawItem{n, surf})
				continue
			}
			f.drawSurface(n, surf)
		}
	}
	for _, it := range transparent {
		f.drawSurface(it.node, it.surface)
	}
	return nil
}

type frame struct {
	buf    *Buffer
	vp     mgl32.Mat4
	lights []scene.PlacedLight
}

// clipVertex is a vertex after the vertex stage.
type clipVertex struct {
	x, y, z float32 // screen x, y in pixels and NDC depth
	invW    float32
	color   mgl32.Vec3
	uv      mgl32.Vec2
	ok      bool
}

func (f *frame) drawSurface(n *scene.Node, surf scene.Surface) {
	mesh := n.Mesh
	mat := surf.Material
	model := n.GetWorldMatrix()
	normalMat := model.Mat3().Inv().Transpose()
	w, h := float32(f.buf.w), float32(f.buf.h)

	cache := make(map[uint32]clipVertex)
	vertex := func(idx uint32) clipVertex {
		if v, ok := cache[idx]; ok {
			return v
		}
		var out clipVertex
		if int(idx) < len(mesh.Vertices) {
			src := mesh.Vertices[idx]
			world := model.Mul4x1(src.Position.Vec4(1))
			clip := f.vp.Mul4x1(world)
			if clip[3] > 1e-5 {
				normal := normalMat.Mul3x1(src.Normal)
				if normal.Len() > 0 {
					normal = normal.Normalize()
				}
				inv := 1 / clip[3]
				out = clipVertex{
					x:     (clip[0]*inv*0.5 + 0.5) * w,
					y:     (1 - (clip[1]*inv*0.5 + 0.5)) * h,
					z:     clip[2] * inv,
					invW:  inv,
					color: shade(mat, world.Vec3(), normal, f.lights),
					uv:    src.UV,
					ok:    true,
				}
			}
		}
		cache[idx] = out
		return out
	}

	end := surf.Start + surf.Count
	for i := surf.Start; i+2 < end && int(i+2) < len(mesh.Indices); i += 3 {
		a, b, c := vertex(mesh.Indices[i]), vertex(mesh.Indices[i+1]), vertex(mesh.Indices[i+2])
		if !a.ok || !b.ok || !c.ok {
			continue
		}
		// Screen y points down, so counter-clockwise faces have negative area.
		area := (b.x-a.x)*(c.y-a.y) - (c.x-a.x)*(b.y-a.y)
		if area == 0 {
			continue
		}
		front := area < 0
		if (mat.Side == scene.SideFront && !front) || (mat.Side == scene.SideBack && front) {
			continue
		}
		f.fill(a, b, c, area, mat)
	}
}

func (f *frame) fill(a, b, c clipVertex, area float32, mat *scene.Material) {
	minX := int(math32.Max(0, math32.Floor(min(a.x, b.x, c.x))))
	maxX := int(math32.Min(float32(f.buf.w-1), math32.Ceil(max(a.x, b.x, c.x))))
	minY := int(math32.Max(0, math32.Floor(min(a.y, b.y, c.y))))
	maxY := int(math32.Min(float32(f.buf.h-1), math32.Ceil(max(a.y, b.y, c.y))))

	blend := mat.Transparent
	alpha := mat.Opacity

	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5
			w0 := ((b.x-px)*(c.y-py) - (c.x-px)*(b.y-py)) / area
			w1 := ((c.x-px)*(a.y-py) - (a.x-px)*(c.y-py)) / area
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*a.z + w1*b.z + w2*c.z
			if z < -1 || z > 1 {
				continue
			}
			di := y*f.buf.w + x
			if z >= f.buf.depth[di] {
				continue
			}

			// Perspective-correct interpolation.
			iw := w0*a.invW + w1*b.invW + w2*c.invW
			k0, k1, k2 := w0*a.invW/iw, w1*b.invW/iw, w2*c.invW/iw
			color := a.color.Mul(k0).Add(b.color.Mul(k1)).Add(c.color.Mul(k2))
			if mat.AlbedoTexture != nil {
				uv := a.uv.Mul(k0).Add(b.uv.Mul(k1)).Add(c.uv.Mul(k2))
				color = mulVec(color, sampleTexture(mat.AlbedoTexture, uv))
			}

			if blend {
				dst := f.buf.get(x, y)
				f.buf.set(x, y, color.Mul(alpha).Add(dst.Mul(1-alpha)))
				continue
			}
			f.buf.set(x, y, color)
			f.buf.depth[di] = z
		}
	}
}

// shade evaluates the material at a vertex in linear space.
func shade(mat *scene.Material, pos, normal mgl32.Vec3, lights []scene.PlacedLight) mgl32.Vec3 {
	base := mat.Color.Vec3()
	if mat.Kind == scene.MaterialBasic {
		return base
	}

	var irradiance mgl32.Vec3
	for _, l := range lights {
		radiance := l.Color.Vec3().Mul(l.Intensity)
		switch l.Type {
		case scene.LightAmbient:
			irradiance = irradiance.Add(radiance)
		case scene.LightDirectional:
			ndl := math32.Max(normal.Dot(l.WorldDirection.Mul(-1)), 0)
			irradiance = irradiance.Add(radiance.Mul(ndl))
		case scene.LightPoint, scene.LightSpot:
			toLight := l.WorldPosition.Sub(pos)
			dist := toLight.Len()
			if dist == 0 {
				continue
			}
			dir := toLight.Mul(1 / dist)
			k := math32.Max(normal.Dot(dir), 0) * falloff(dist, l.Distance, l.Decay)
			if l.Type == scene.LightSpot {
				k *= cone(dir.Mul(-1).Dot(l.WorldDirection), l.Angle)
			}
			irradiance = irradiance.Add(radiance.Mul(k))
		}
	}

	out := mulVec(base, irradiance)
	if mat.HasEmissive {
		out = out.Add(mat.Emissive.Vec3().Mul(mat.EmissiveIntensity))
	}
	return out
}

// falloff is inverse-power decay windowed to zero at cutoff (0 = no cutoff).
func falloff(dist, cutoff, decay float32) float32 {
	f := 1 / math32.Max(math32.Pow(dist, decay), 0.01)
	if cutoff > 0 {
		r := dist / cutoff
		w := mgl32.Clamp(1-r*r*r*r, 0, 1)
		f *= w * w
	}
	return f
}

// cone fades a spot light over the outer 15% of its half-angle.
func cone(cosTheta, angle float32) float32 {
	outer := math32.Cos(angle)
	inner := math32.Cos(angle * 0.85)
	if inner <= outer {
		return 0
	}
	t := mgl32.Clamp((cosTheta-outer)/(inner-outer), 0, 1)
	return t * t * (3 - 2*t)
}

func mulVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// sampleTexture is a nearest, repeat-wrapped lookup converted to linear.
func sampleTexture(t *scene.Texture, uv mgl32.Vec2) mgl32.Vec3 {
	if t.Width == 0 || t.Height == 0 || len(t.Pixels) < t.Width*t.Height*4 {
		return mgl32.Vec3{1, 1, 1}
	}
	u := uv[0] - math32.Floor(uv[0])
	v := uv[1] - math32.Floor(uv[1])
	x := min(int(u*float32(t.Width)), t.Width-1)
	y := min(int(v*float32(t.Height)), t.Height-1)
	i := (y*t.Width + x) * 4
	return mgl32.Vec3{
		core.SRGBToLinear(float32(t.Pixels[i]) / 255),
		core.SRGBToLinear(float32(t.Pixels[i+1]) / 255),
		core.SRGBToLinear(float32(t.Pixels[i+2]) / 255),
	}
}
