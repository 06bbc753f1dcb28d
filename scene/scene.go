package scene

import (
	"glow-viewer/core"

	"github.com/go-gl/mathgl/mgl32"
)

// Scene manages a collection of nodes and the active camera
type Scene struct {
	Root       *Node
	Camera     *Camera
	Lights     []*Light // world-space lights not owned by any asset
	Background core.Color
}

func NewScene() *Scene {
	return &Scene{
		Root:       NewNode("Root"),
		Lights:     make([]*Light, 0),
		Background: core.ColorFromHex(0x0a0a0a),
	}
}

func (s *Scene) SetCamera(camera *Camera) {
	s.Camera = camera
}

func (s *Scene) AddNode(node *Node) {
	s.Root.AddChild(node)
}

func (s *Scene) RemoveNode(node *Node) {
	s.Root.RemoveChild(node)
}

func (s *Scene) AddLight(light *Light) {
	if s.HasLight(light) {
		return
	}
	s.Lights = append(s.Lights, light)
}

func (s *Scene) RemoveLight(light *Light) {
	for i, l := range s.Lights {
		if l == light {
			s.Lights = append(s.Lights[:i], s.Lights[i+1:]...)
			return
		}
	}
}

func (s *Scene) HasLight(light *Light) bool {
	for _, l := range s.Lights {
		if l == light {
			return true
		}
	}
	return false
}

// CollectLights resolves every visible light to world space: scene-level
// lights first, then lights attached to visible nodes in traversal order.
func (s *Scene) CollectLights() []PlacedLight {
	out := make([]PlacedLight, 0, len(s.Lights))
	for _, l := range s.Lights {
		if l.Visible {
			out = append(out, PlacedLight{Light: l, WorldPosition: l.Position, WorldDirection: l.Direction()})
		}
	}
	s.Root.TraverseVisible(func(n *Node) {
		l := n.Light
		if l == nil || !l.Visible {
			return
		}
		world := n.GetWorldMatrix()
		pos := mgl32.TransformCoordinate(l.Position, world)
		dir := l.Target.Sub(pos)
		if dir.Len() == 0 {
			dir = mgl32.Vec3{0, -1, 0}
		}
		out = append(out, PlacedLight{Light: l, WorldPosition: pos, WorldDirection: dir.Normalize()})
	})
	return out
}

// DrawList returns the visible mesh nodes sharing a layer with mask, in
// traversal order.
func (s *Scene) DrawList(mask Layers) []*Node {
	var visible []*Node
	s.Root.TraverseVisible(func(node *Node) {
		if node.Mesh.Valid() && node.Layers.Test(mask) {
			visible = append(visible, node)
		}
	})
	return visible
}
