package scene

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ComputeTangents generates per-vertex tangents for tangent-space normal
// mapping. The bitangent is rebuilt in the shader as cross(N, T).
// Triangles with a degenerate UV area contribute nothing.
func ComputeTangents(m *Mesh) {
	accum := make([]mgl32.Vec3, len(m.Vertices))

	for i := 0; i+2 < len(m.Indices); i += 3 {
		i0, i1, i2 := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		if int(i0) >= len(accum) || int(i1) >= len(accum) || int(i2) >= len(accum) {
			continue
		}
		v0, v1, v2 := m.Vertices[i0], m.Vertices[i1], m.Vertices[i2]

		e1 := v1.Position.Sub(v0.Position)
		e2 := v2.Position.Sub(v0.Position)
		du1, dv1 := v1.UV[0]-v0.UV[0], v1.UV[1]-v0.UV[1]
		du2, dv2 := v2.UV[0]-v0.UV[0], v2.UV[1]-v0.UV[1]

		denom := du1*dv2 - du2*dv1
		if denom == 0 {
			continue
		}
		t := e1.Mul(dv2 / denom).Sub(e2.Mul(dv1 / denom))
		accum[i0] = accum[i0].Add(t)
		accum[i1] = accum[i1].Add(t)
		accum[i2] = accum[i2].Add(t)
	}

	// Gram-Schmidt against the normal.
	for i := range m.Vertices {
		n := m.Vertices[i].Normal
		t := accum[i].Sub(n.Mul(n.Dot(accum[i])))
		if t.LenSqr() < 1e-8 {
			if math32.Abs(n[0]) < 0.9 {
				t = mgl32.Vec3{1, 0, 0}.Sub(n.Mul(n[0]))
			} else {
				t = mgl32.Vec3{0, 1, 0}.Sub(n.Mul(n[1]))
			}
		}
		m.Vertices[i].Tangent = t.Normalize()
	}
}
