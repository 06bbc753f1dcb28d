package scene

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera looking from Position at Target.
type Camera struct {
	Position    mgl32.Vec3
	Target      mgl32.Vec3
	Up          mgl32.Vec3
	FOV         float32 // vertical field of view in radians
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32

	// Layers selects which nodes the camera draws.
	Layers Layers

	// Cached matrices
	viewMatrix       mgl32.Mat4
	projectionMatrix mgl32.Mat4
	viewProjMatrix   mgl32.Mat4
	dirty            bool
}

func NewCamera(fov, aspectRatio, nearPlane, farPlane float32) *Camera {
	return &Camera{
		Position:    mgl32.Vec3{0, 0, 1},
		Up:          mgl32.Vec3{0, 1, 0},
		FOV:         fov,
		AspectRatio: aspectRatio,
		NearPlane:   nearPlane,
		FarPlane:    farPlane,
		Layers:      LayerMask(LayerBase),
		dirty:       true,
	}
}

func (c *Camera) UpdateAspectRatio(width, height float32) {
	if height > 0 {
		c.AspectRatio = width / height
		c.dirty = true
	}
}

func (c *Camera) SetPosition(pos mgl32.Vec3) {
	c.Position = pos
	c.dirty = true
}

func (c *Camera) LookAt(target mgl32.Vec3) {
	c.Target = target
	c.dirty = true
}

func (c *Camera) GetViewMatrix() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.viewMatrix
}

func (c *Camera) GetProjectionMatrix() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.projectionMatrix
}

func (c *Camera) GetViewProjectionMatrix() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.viewProjMatrix
}

func (c *Camera) GetForward() mgl32.Vec3 {
	return c.Target.Sub(c.Position).Normalize()
}

func (c *Camera) updateMatrices() {
	c.viewMatrix = mgl32.LookAtV(c.Position, c.Target, c.Up)
	c.projectionMatrix = mgl32.Perspective(c.FOV, c.AspectRatio, c.NearPlane, c.FarPlane)
	c.viewProjMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
	c.dirty = false
}

// OrbitControls orbits a camera around a target point with inertia.
// Input accumulates deltas; Update applies a DampingFactor share of them per
// call and decays the rest.
type OrbitControls struct {
	Camera        *Camera
	Target        mgl32.Vec3
	DampingFactor float32
	MinDistance   float32
	MaxDistance   float32

	distance float32
	yaw      float32
	pitch    float32

	deltaYaw   float32
	deltaPitch float32
	zoomScale  float32
}

const maxPitch = math32.Pi/2 - 0.01

// NewOrbitControls derives the orbit from the camera's current position.
func NewOrbitControls(camera *Camera, target mgl32.Vec3) *OrbitControls {
	o := &OrbitControls{
		Camera:        camera,
		Target:        target,
		DampingFactor: 0.05,
		MinDistance:   3,
		MaxDistance:   20,
		zoomScale:     1,
	}
	offset := camera.Position.Sub(target)
	o.distance = offset.Len()
	if o.distance > 0 {
		o.yaw = math32.Atan2(offset[0], offset[2])
		o.pitch = math32.Asin(offset[1] / o.distance)
	}
	o.apply()
	return o
}

// Rotate queues an orbit by yaw and pitch radians.
func (o *OrbitControls) Rotate(deltaYaw, deltaPitch float32) {
	o.deltaYaw += deltaYaw
	o.deltaPitch += deltaPitch
}

// Zoom queues a dolly step; positive values move the camera closer.
func (o *OrbitControls) Zoom(steps float32) {
	o.zoomScale *= math32.Pow(0.95, steps)
}

func (o *OrbitControls) Distance() float32 {
	return o.distance
}

// Update advances the damped motion and repositions the camera.
func (o *OrbitControls) Update() {
	k := o.DampingFactor
	if k <= 0 || k > 1 {
		k = 1
	}
	o.yaw += o.deltaYaw * k
	o.pitch += o.deltaPitch * k
	o.deltaYaw *= 1 - k
	o.deltaPitch *= 1 - k

	o.distance *= o.zoomScale
	o.zoomScale = 1

	o.apply()
}

func (o *OrbitControls) apply() {
	o.pitch = clampf(o.pitch, -maxPitch, maxPitch)
	o.distance = clampf(o.distance, o.MinDistance, o.MaxDistance)

	cosPitch := math32.Cos(o.pitch)
	offset := mgl32.Vec3{
		o.distance * cosPitch * math32.Sin(o.yaw),
		o.distance * math32.Sin(o.pitch),
		o.distance * cosPitch * math32.Cos(o.yaw),
	}
	o.Camera.SetPosition(o.Target.Add(offset))
	o.Camera.LookAt(o.Target)
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
