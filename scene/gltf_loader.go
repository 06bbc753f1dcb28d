package scene

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"glow-viewer/core"
)

// GLTFAsset is a loaded .glb / .gltf file. Root owns the whole node graph;
// Textures lists every decoded image for backends that upload eagerly.
type GLTFAsset struct {
	Name     string
	Root     *Node
	Textures []*Texture
}

// LoadGLTF opens a .glb or .gltf file and returns a ready-to-use scene graph.
// External buffers and images are resolved relative to the file.
func LoadGLTF(path string, log *zap.Logger) (*GLTFAsset, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gltf open %q: %w", path, err)
	}
	return buildGLTF(doc, filepath.Base(path), filepath.Dir(path), log)
}

// DecodeGLTF reads a self-contained asset (binary GLB or glTF with embedded
// buffers) from r. name is used for the root node.
func DecodeGLTF(name string, r io.Reader, log *zap.Logger) (*GLTFAsset, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("gltf decode %q: %w", name, err)
	}
	return buildGLTF(doc, name, "", log)
}

// IsGLTFName reports whether name has a .glb or .gltf extension.
func IsGLTFName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".glb", ".gltf":
		return true
	}
	return false
}

func buildGLTF(doc *gltf.Document, name, dir string, log *zap.Logger) (*GLTFAsset, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("asset", name))
	asset := &GLTFAsset{Name: name}

	// Textures
	texCache := make([]*Texture, len(doc.Textures))
	for i, gt := range doc.Textures {
		if gt.Source == nil || *gt.Source >= len(doc.Images) {
			continue
		}
		tex, err := loadGLTFImage(doc, *gt.Source, dir)
		if err != nil {
			log.Warn("skipping image", zap.Int("image", *gt.Source), zap.Error(err))
			continue
		}
		if tex != nil {
			texCache[i] = tex
			asset.Textures = append(asset.Textures, tex)
		}
	}
	textureAt := func(idx int) *Texture {
		if idx >= 0 && idx < len(texCache) {
			return texCache[idx]
		}
		return nil
	}

	// Materials
	matCache := make([]*Material, len(doc.Materials))
	for i, gm := range doc.Materials {
		matCache[i] = convertGLTFMaterial(gm, textureAt)
	}

	// Mesh primitives, each paired with its material.
	type primitive struct {
		mesh     *Mesh
		material *Material
	}
	meshPrims := make([][]primitive, len(doc.Meshes))
	for mi, gm := range doc.Meshes {
		for pi, prim := range gm.Primitives {
			m, err := loadGLTFPrimitive(doc, gm.Name, pi, prim)
			if err != nil {
				log.Warn("skipping primitive", zap.Int("mesh", mi), zap.Int("primitive", pi), zap.Error(err))
				continue
			}
			ComputeTangents(m)
			mat := NewStandardMaterial("Default", core.ColorWhite)
			if prim.Material != nil && *prim.Material < len(matCache) {
				mat = matCache[*prim.Material]
			}
			meshPrims[mi] = append(meshPrims[mi], primitive{mesh: m, material: mat})
		}
	}

	// Nodes
	nodes := make([]*Node, len(doc.Nodes))
	for i, gn := range doc.Nodes {
		nodeName := gn.Name
		if nodeName == "" {
			nodeName = fmt.Sprintf("node_%d", i)
		}
		n := NewNode(nodeName)

		t := gn.TranslationOrDefault()
		n.SetPosition(mgl32.Vec3{float32(t[0]), float32(t[1]), float32(t[2])})
		sc := gn.ScaleOrDefault()
		n.SetScale(mgl32.Vec3{float32(sc[0]), float32(sc[1]), float32(sc[2])})
		r := gn.RotationOrDefault() // [x, y, z, w]
		n.SetRotation(mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}})

		if gn.Mesh != nil && *gn.Mesh < len(meshPrims) {
			prims := meshPrims[*gn.Mesh]
			switch len(prims) {
			case 0:
			case 1:
				n.SetMesh(prims[0].mesh)
				n.Material = prims[0].material
			default:
				// One child node per primitive, each with a single material.
				for pi, p := range prims {
					n.AddChild(NewMeshNode(fmt.Sprintf("%s_prim%d", nodeName, pi), p.mesh, p.material))
				}
			}
		}
		nodes[i] = n
	}

	for i, gn := range doc.Nodes {
		for _, childIdx := range gn.Children {
			if childIdx < len(nodes) && childIdx != i {
				nodes[i].AddChild(nodes[childIdx])
			}
		}
	}

	root := NewNode(name)
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		for _, rootIdx := range doc.Scenes[*doc.Scene].Nodes {
			if rootIdx < len(nodes) {
				root.AddChild(nodes[rootIdx])
			}
		}
	} else {
		// No default scene: collect all parentless nodes
		for _, n := range nodes {
			if n.Parent == nil {
				root.AddChild(n)
			}
		}
	}
	asset.Root = root

	log.Debug("gltf loaded",
		zap.Int("nodes", len(nodes)),
		zap.Int("materials", len(matCache)),
		zap.Int("textures", len(asset.Textures)))
	return asset, nil
}

func convertGLTFMaterial(gm *gltf.Material, textureAt func(int) *Texture) *Material {
	mat := NewStandardMaterial(gm.Name, core.ColorWhite)
	mat.Roughness = 1
	mat.Metallic = 1

	if pbr := gm.PBRMetallicRoughness; pbr != nil {
		cf := pbr.BaseColorFactorOrDefault()
		mat.Color = core.Color{R: float32(cf[0]), G: float32(cf[1]), B: float32(cf[2]), A: float32(cf[3])}
		mat.Opacity = float32(cf[3])
		mat.Roughness = float32(pbr.RoughnessFactorOrDefault())
		mat.Metallic = float32(pbr.MetallicFactorOrDefault())
		if pbr.BaseColorTexture != nil {
			mat.AlbedoTexture = textureAt(pbr.BaseColorTexture.Index)
		}
		if pbr.MetallicRoughnessTexture != nil {
			mat.MetallicRoughnessTexture = textureAt(pbr.MetallicRoughnessTexture.Index)
		}
	}
	if gm.NormalTexture != nil && gm.NormalTexture.Index != nil {
		mat.NormalTexture = textureAt(*gm.NormalTexture.Index)
	}

	ef := gm.EmissiveFactor
	mat.Emissive = core.Color{R: float32(ef[0]), G: float32(ef[1]), B: float32(ef[2]), A: 1}
	if gm.EmissiveTexture != nil {
		mat.EmissiveTexture = textureAt(gm.EmissiveTexture.Index)
	}

	mat.Transparent = gm.AlphaMode == gltf.AlphaBlend
	if gm.DoubleSided {
		mat.Side = SideDouble
	}
	return mat
}

func loadGLTFImage(doc *gltf.Document, idx int, dir string) (*Texture, error) {
	img := doc.Images[idx]
	name := img.Name
	if name == "" {
		name = fmt.Sprintf("gltf_img_%d", idx)
	}
	switch {
	case img.BufferView != nil:
		// Binary GLB: image data lives in a buffer view
		raw, err := modeler.ReadBufferView(doc, doc.BufferViews[*img.BufferView])
		if err != nil {
			return nil, fmt.Errorf("bufferview: %w", err)
		}
		return DecodeTexture(name, bytes.NewReader(raw))
	case img.IsEmbeddedResource():
		raw, err := img.MarshalData()
		if err != nil {
			return nil, fmt.Errorf("data uri: %w", err)
		}
		return DecodeTexture(name, bytes.NewReader(raw))
	case img.URI != "" && dir != "":
		return LoadTexture(filepath.Join(dir, img.URI))
	}
	return nil, nil
}

// loadGLTFPrimitive converts one glTF mesh primitive into a scene.Mesh.
func loadGLTFPrimitive(doc *gltf.Document, meshName string, primIdx int, prim *gltf.Primitive) (*Mesh, error) {
	if prim.Mode != gltf.PrimitiveTriangles {
		return nil, fmt.Errorf("unsupported primitive mode %d", prim.Mode)
	}
	name := fmt.Sprintf("%s_p%d", meshName, primIdx)
	if meshName == "" {
		name = fmt.Sprintf("prim_%d", primIdx)
	}

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	var normals [][3]float32
	var uvs [][2]float32
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		normals, _ = modeler.ReadNormal(doc, doc.Accessors[idx], nil)
	}
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		uvs, _ = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil)
	}

	verts := make([]core.Vertex, len(positions))
	for i, p := range positions {
		v := core.Vertex{
			Position: mgl32.Vec3{p[0], p[1], p[2]},
			Normal:   mgl32.Vec3{0, 1, 0},
			Color:    core.ColorWhite,
		}
		if i < len(normals) {
			v.Normal = mgl32.Vec3(normals[i])
		}
		if i < len(uvs) {
			v.UV = mgl32.Vec2(uvs[i])
		}
		verts[i] = v
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(verts))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	return CreateMeshFromData(name, verts, indices), nil
}
