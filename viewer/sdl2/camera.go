package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	minOrbitRadius = 1.5
	maxOrbitRadius = 20
	maxPitch       = math.Pi/2 - 0.01
)

// orbitCamera circles a target at a fixed radius. Z is up.
type orbitCamera struct {
	target mgl32.Vec3
	radius float32
	yaw    float32
	pitch  float32
	fovy   float32
	near   float32
	far    float32
}

func newOrbitCamera() *orbitCamera {
	return &orbitCamera{
		radius: 4,
		yaw:    mgl32.DegToRad(45),
		pitch:  mgl32.DegToRad(30),
		fovy:   mgl32.DegToRad(45),
		near:   0.1,
		far:    100,
	}
}

func (c *orbitCamera) Position() mgl32.Vec3 {
	cosPitch := float32(math.Cos(float64(c.pitch)))
	return c.target.Add(mgl32.Vec3{
		c.radius * cosPitch * float32(math.Cos(float64(c.yaw))),
		c.radius * cosPitch * float32(math.Sin(float64(c.yaw))),
		c.radius * float32(math.Sin(float64(c.pitch))),
	})
}

func (c *orbitCamera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position(), c.target, mgl32.Vec3{0, 0, 1})
}

// Projection flips Y for Vulkan clip space.
func (c *orbitCamera) Projection(aspect float32) mgl32.Mat4 {
	proj := mgl32.Perspective(c.fovy, aspect, c.near, c.far)
	proj[5] *= -1
	return proj
}

// rotate turns the camera by a mouse drag of dx, dy pixels.
func (c *orbitCamera) rotate(dx, dy int32) {
	c.yaw -= float32(dx) * 0.01
	c.pitch += float32(dy) * 0.01
	c.pitch = mgl32.Clamp(c.pitch, -maxPitch, maxPitch)
}

func (c *orbitCamera) zoom(steps int32) {
	c.radius = mgl32.Clamp(c.radius-float32(steps)*0.25, minOrbitRadius, maxOrbitRadius)
}
