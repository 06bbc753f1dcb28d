package scene

import (
	"strings"
	"sync/atomic"

	"glow-viewer/core"

	"github.com/go-gl/mathgl/mgl32"
)

// Node represents an object in the scene graph
type Node struct {
	Name      string
	Transform core.Transform
	Parent    *Node
	Children  []*Node
	Visible   bool
	Id        uint32

	Mesh *Mesh
	// Material is the single surface material of a mesh node. Nodes with
	// several primitive materials use Materials instead and leave this nil.
	Material  *Material
	Materials []*Material
	Light     *Light
	Layers    Layers

	// Generated marks helper nodes created by effects (glow shells).
	Generated bool

	// Cached world transform
	worldMatrixDirty bool
	worldMatrix      mgl32.Mat4
}

// Loads build graphs off the render thread.
var nodeIdCounter atomic.Uint32

func NewNode(name string) *Node {
	return &Node{
		Name:             name,
		Transform:        core.NewTransform(),
		Children:         make([]*Node, 0),
		Visible:          true,
		Id:               nodeIdCounter.Add(1),
		Layers:           LayerMask(LayerBase),
		worldMatrixDirty: true,
	}
}

// NewMeshNode creates a node drawing mesh with a single material.
func NewMeshNode(name string, mesh *Mesh, material *Material) *Node {
	n := NewNode(name)
	n.SetMesh(mesh)
	n.Material = material
	return n
}

// NewLightNode creates a node carrying light at the node origin.
func NewLightNode(name string, light *Light) *Node {
	n := NewNode(name)
	n.Light = light
	return n
}

func (n *Node) AddChild(child *Node) {
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	child.Parent = n
	n.Children = append(n.Children, child)
	child.MarkWorldMatrixDirty()
}

func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.Parent = nil
			child.MarkWorldMatrixDirty()
			return
		}
	}
}

// Detach removes the node from its parent, if any.
func (n *Node) Detach() {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// SetMesh retains mesh and releases the previously attached one.
func (n *Node) SetMesh(mesh *Mesh) {
	if n.Mesh != nil {
		n.Mesh.Release()
	}
	n.Mesh = nil
	if mesh != nil {
		n.Mesh = mesh.Retain()
	}
}

func (n *Node) GetWorldMatrix() mgl32.Mat4 {
	if n.worldMatrixDirty {
		localMatrix := n.Transform.GetMatrix()
		if n.Parent != nil {
			n.worldMatrix = n.Parent.GetWorldMatrix().Mul4(localMatrix)
		} else {
			n.worldMatrix = localMatrix
		}
		n.worldMatrixDirty = false
	}
	return n.worldMatrix
}

func (n *Node) MarkWorldMatrixDirty() {
	n.worldMatrixDirty = true
	for _, child := range n.Children {
		child.MarkWorldMatrixDirty()
	}
}

// WorldPosition is the node origin in world space.
func (n *Node) WorldPosition() mgl32.Vec3 {
	return n.GetWorldMatrix().Col(3).Vec3()
}

func (n *Node) SetPosition(pos mgl32.Vec3) {
	n.Transform.Position = pos
	n.MarkWorldMatrixDirty()
}

func (n *Node) SetRotation(rot mgl32.Quat) {
	n.Transform.Rotation = rot
	n.MarkWorldMatrixDirty()
}

func (n *Node) SetScale(scale mgl32.Vec3) {
	n.Transform.Scale = scale
	n.MarkWorldMatrixDirty()
}

func (n *Node) Rotate(axis mgl32.Vec3, angle float32) {
	rotation := mgl32.QuatRotate(angle, axis.Normalize())
	n.Transform.Rotation = n.Transform.Rotation.Mul(rotation).Normalize()
	n.MarkWorldMatrixDirty()
}

// Traverse visits all nodes in the graph, parents before children.
// The children slice is copied first so the callback may attach siblings.
func (n *Node) Traverse(callback func(*Node)) {
	callback(n)
	children := append([]*Node(nil), n.Children...)
	for _, child := range children {
		child.Traverse(callback)
	}
}

// TraverseVisible is Traverse restricted to visible subtrees.
func (n *Node) TraverseVisible(callback func(*Node)) {
	if !n.Visible {
		return
	}
	callback(n)
	for _, child := range n.Children {
		child.TraverseVisible(callback)
	}
}

// Find finds a node by name
func (n *Node) Find(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// LowerName is the node name folded to lower case, as used by name matching.
func (n *Node) LowerName() string {
	return strings.ToLower(n.Name)
}

// Surface is one indexed range of a mesh drawn with a single material.
type Surface struct {
	Material *Material
	Start    uint32
	Count    uint32
}

// Surfaces lists the draw ranges of a mesh node. A node with Material set
// draws the whole mesh; otherwise each mesh group is drawn with its slot in
// Materials. Disposed materials and missing slots are skipped.
func (n *Node) Surfaces() []Surface {
	if !n.Mesh.Valid() {
		return nil
	}
	if n.Material != nil {
		if n.Material.Disposed() {
			return nil
		}
		return []Surface{{Material: n.Material, Count: n.Mesh.IndexCount}}
	}
	var out []Surface
	for _, g := range n.Mesh.Groups {
		if g.Material < 0 || g.Material >= len(n.Materials) || n.Materials[g.Material].Disposed() {
			continue
		}
		if g.Start+g.Count > n.Mesh.IndexCount {
			continue
		}
		out = append(out, Surface{Material: n.Materials[g.Material], Start: g.Start, Count: g.Count})
	}
	return out
}

// Releaser frees backend resources that belong to meshes and textures.
type Releaser interface {
	ReleaseMesh(mesh *Mesh)
	ReleaseTexture(tex *Texture)
}

// DisposeTree detaches root and releases every mesh reference, material and
// texture it holds. Shared meshes are handed to r only when their last
// reference goes away. r may be nil.
func DisposeTree(root *Node, r Releaser) {
	if root == nil {
		return
	}
	root.Detach()
	textures := make(map[*Texture]struct{})
	root.Traverse(func(n *Node) {
		if n.Mesh != nil {
			if n.Mesh.Release() && r != nil {
				r.ReleaseMesh(n.Mesh)
			}
			n.Mesh = nil
		}
		mats := n.Materials
		if n.Material != nil {
			mats = append([]*Material{n.Material}, mats...)
		}
		for _, m := range mats {
			for _, tex := range m.Textures() {
				textures[tex] = struct{}{}
			}
			m.Dispose()
		}
	})
	if r == nil {
		return
	}
	for tex := range textures {
		r.ReleaseTexture(tex)
	}
}
