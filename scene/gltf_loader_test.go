package scene

import (
	"bytes"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// encodeTriangleGLB builds a binary asset with one triangle mesh used by two
// nodes and a blended emissive material.
func encodeTriangleGLB(t *testing.T) []byte {
	t.Helper()
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2})

	doc.Materials = []*gltf.Material{{
		Name:      "Glass",
		AlphaMode: gltf.AlphaBlend,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{1, 1, 1, 0.5},
		},
		EmissiveFactor: [3]float64{1, 0.5, 0},
	}}
	doc.Meshes = []*gltf.Mesh{{
		Name: "Tri",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: map[string]int{gltf.POSITION: pos},
			Material:   gltf.Index(0),
		}},
	}}
	doc.Nodes = []*gltf.Node{
		{Name: "Eye_L", Mesh: gltf.Index(0), Translation: [3]float64{2, 0, 0}},
		{Name: "Eye_R", Mesh: gltf.Index(0)},
	}
	doc.Scenes[0].Nodes = []int{0, 1}

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	require.NoError(t, enc.Encode(doc))
	return buf.Bytes()
}

func TestDecodeGLTF(t *testing.T) {
	asset, err := DecodeGLTF("Robot.glb", bytes.NewReader(encodeTriangleGLB(t)), zaptest.NewLogger(t))
	require.NoError(t, err)

	root := asset.Root
	assert.Equal(t, "Robot.glb", root.Name)
	require.Len(t, root.Children, 2)

	left := root.Find("Eye_L")
	right := root.Find("Eye_R")
	require.NotNil(t, left)
	require.NotNil(t, right)

	assert.Same(t, left.Mesh, right.Mesh, "mesh instances share geometry")
	assert.Equal(t, 2, left.Mesh.Refs())
	assert.Equal(t, uint32(3), left.Mesh.IndexCount)

	mat := left.Material
	require.NotNil(t, mat)
	assert.True(t, mat.Transparent)
	assert.InDelta(t, 0.5, mat.Opacity, 1e-6)
	assert.Equal(t, uint32(0xffbc00), mat.EmissiveHex(), "glTF factors are linear")

	assert.InDelta(t, 2, left.WorldPosition()[0], 1e-6)

	box := ComputeBounds(root)
	assert.InDelta(t, 0, box.Min[0], 1e-6)
	assert.InDelta(t, 3, box.Max[0], 1e-6)
}

func TestDecodeGLTFRejectsGarbage(t *testing.T) {
	_, err := DecodeGLTF("broken.glb", bytes.NewReader([]byte("not a model")), nil)
	assert.Error(t, err)
}

func TestIsGLTFName(t *testing.T) {
	assert.True(t, IsGLTFName("House 17 Model.GLB"))
	assert.True(t, IsGLTFName("chair.gltf"))
	assert.False(t, IsGLTFName("chair.obj"))
}
