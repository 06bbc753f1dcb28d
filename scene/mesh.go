package scene

import (
	"glow-viewer/core"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesh holds CPU-side triangle data.
// GPU upload is managed by the renderer backend.
//
// A mesh may be drawn by several nodes (glTF instancing, glow shells). Nodes
// hold a reference through Node.SetMesh; the backend data is released only
// when the last reference is dropped.
type Mesh struct {
	Name       string
	Vertices   []core.Vertex
	Indices    []uint32
	IndexCount uint32

	// Groups splits the index buffer between the slots of Node.Materials.
	// Empty for single-material meshes.
	Groups []MeshGroup

	// Cached local-space AABB (computed by CreateMeshFromData).
	LocalAABB    AABB
	HasLocalAABB bool

	// GPUData is set by the renderer backend (e.g. *opengl.GPUMesh).
	// Do not access directly; use the renderer's API.
	GPUData interface{}

	refs int
}

// MeshGroup is a run of indices drawn with Node.Materials[Material].
type MeshGroup struct {
	Start    uint32
	Count    uint32
	Material int
}

// CreateMeshFromData builds a Mesh and pre-computes its local-space AABB.
func CreateMeshFromData(name string, vertices []core.Vertex, indices []uint32) *Mesh {
	m := &Mesh{
		Name:       name,
		Vertices:   vertices,
		Indices:    indices,
		IndexCount: uint32(len(indices)),
	}
	if len(vertices) > 0 {
		m.LocalAABB = computeLocalAABB(vertices)
		m.HasLocalAABB = true
	}
	return m
}

// Valid reports whether the mesh has drawable triangles.
func (m *Mesh) Valid() bool {
	return m != nil && len(m.Vertices) > 0 && m.IndexCount >= 3
}

// Retain adds a reference and returns m.
func (m *Mesh) Retain() *Mesh {
	m.refs++
	return m
}

// Release drops a reference. It returns true when no references remain.
func (m *Mesh) Release() bool {
	if m.refs > 0 {
		m.refs--
	}
	return m.refs == 0
}

// Refs is the current reference count.
func (m *Mesh) Refs() int {
	return m.refs
}

// computeLocalAABB returns the tight AABB of the given vertex positions.
func computeLocalAABB(vertices []core.Vertex) AABB {
	box := EmptyAABB()
	for _, v := range vertices {
		box = box.ExpandByPoint(v.Position)
	}
	return box
}

// Primitive generation helpers

func CreateQuad() *Mesh {
	n := mgl32.Vec3{0, 0, 1}
	vertices := []core.Vertex{
		{Position: mgl32.Vec3{-0.5, -0.5, 0}, Normal: n, UV: mgl32.Vec2{0, 0}, Color: core.ColorWhite},
		{Position: mgl32.Vec3{0.5, -0.5, 0}, Normal: n, UV: mgl32.Vec2{1, 0}, Color: core.ColorWhite},
		{Position: mgl32.Vec3{0.5, 0.5, 0}, Normal: n, UV: mgl32.Vec2{1, 1}, Color: core.ColorWhite},
		{Position: mgl32.Vec3{-0.5, 0.5, 0}, Normal: n, UV: mgl32.Vec2{0, 1}, Color: core.ColorWhite},
	}
	indices := []uint32{0, 1, 2, 2, 3, 0}
	return CreateMeshFromData("Quad", vertices, indices)
}

// cubeFaces lists normal, u axis and v axis for each face of a unit cube.
var cubeFaces = [6][3]mgl32.Vec3{
	{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
	{{0, 0, -1}, {-1, 0, 0}, {0, 1, 0}},
	{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}},
	{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
	{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}},
	{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
}

func CreateCube(size float32) *Mesh {
	s := size / 2
	vertices := make([]core.Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	corners := [4]mgl32.Vec2{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	for _, f := range cubeFaces {
		normal, u, v := f[0], f[1], f[2]
		base := uint32(len(vertices))
		for _, c := range corners {
			p := normal.Add(u.Mul(c[0])).Add(v.Mul(c[1])).Mul(s)
			vertices = append(vertices, core.Vertex{
				Position: p,
				Normal:   normal,
				UV:       mgl32.Vec2{(c[0] + 1) / 2, (c[1] + 1) / 2},
				Color:    core.ColorWhite,
				Tangent:  u,
			})
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}

	return CreateMeshFromData("Cube", vertices, indices)
}
