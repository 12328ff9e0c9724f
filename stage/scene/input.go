package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/thinfilm/renderer/descriptor"
	"github.com/thinfilm/renderer/resource"
	"github.com/thinfilm/renderer/settings"
)

// Camera is the view the scene is rendered from.
type Camera interface {
	Position() mgl32.Vec3
	View() mgl32.Mat4
	Projection(aspect float32) mgl32.Mat4
}

// UBCamera is the uniform block bound at S0.
type UBCamera struct {
	View mgl32.Mat4
	Proj mgl32.Mat4
}

// UBLights is the uniform block bound at S1. Only the first Total positions
// are meaningful.
type UBLights struct {
	Position [settings.MaxLights]mgl32.Vec4
	Color    mgl32.Vec4
	Radiance float32
	Total    int32
}

// PCMisc is the per-draw push constant block shared by both stages.
type PCMisc struct {
	Model        mgl32.Mat4
	ViewPosition mgl32.Vec3
	Reflectance  float32
	IsLight      uint32
}

// LightPositions places total lights evenly on a horizontal circle. The
// circle turns by one radian every hundred iterations.
func LightPositions(total int, distance settings.Distance, iteration int64) []mgl32.Vec3 {
	if total <= 0 {
		return nil
	}

	interval := mgl32.DegToRad(360 / float32(total))
	positions := make([]mgl32.Vec3, total)
	for i := range positions {
		angle := float64(float32(iteration)/100 + float32(i)*interval)
		positions[i] = mgl32.Vec3{
			float32(math.Sin(angle)) * distance.Radius,
			float32(math.Cos(angle)) * distance.Radius,
			distance.Height,
		}
	}
	return positions
}

// LightModel is the model matrix of the marker sphere drawn at a light.
func LightModel(position mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(position.X(), position.Y(), position.Z()).Mul4(mgl32.Scale3D(0.2, 0.2, 0.2))
}

// UpdateCameraInput uploads the view and projection of camera for the
// current frame aspect ratio.
func (s *Stage) UpdateCameraInput(camera Camera) error {
	if err := s.ready("update camera"); err != nil {
		return err
	}

	extent := s.frame.Extent()
	s.misc.ViewPosition = camera.Position()
	s.camera = UBCamera{
		View: camera.View(),
		Proj: camera.Projection(float32(extent.Width) / float32(extent.Height)),
	}
	return s.cameraBuffer.WriteValue(s.camera)
}

// UpdateLightInput recomputes the light block from the settings snapshot and
// uploads it.
func (s *Stage) UpdateLightInput() error {
	if err := s.ready("update lights"); err != nil {
		return err
	}

	cfg := s.ctx.Settings
	total := cfg.TotalLights
	if total > settings.MaxLights {
		total = settings.MaxLights
	}

	s.lights = UBLights{
		Color:    mgl32.Vec4{cfg.LightColor[0], cfg.LightColor[1], cfg.LightColor[2], 1},
		Radiance: cfg.Radiance,
		Total:    int32(total),
	}
	for i, position := range LightPositions(total, cfg.Distance, cfg.Iteration) {
		s.lights.Position[i] = position.Vec4(1)
	}
	return s.lightBuffer.WriteValue(s.lights)
}

// UpdateHeightmapInput moves image to shader read layout and binds it at S3.
// The scene does not take ownership of image.
func (s *Stage) UpdateHeightmapInput(image *resource.Image) error {
	err := s.bindInput(descriptor.S3, image)
	if err != nil {
		return err
	}
	s.heightmap = image
	return nil
}

// UpdateInterferenceInput moves image to shader read layout and binds it at
// S4. The scene does not take ownership of image.
func (s *Stage) UpdateInterferenceInput(image *resource.Image) error {
	err := s.bindInput(descriptor.S4, image)
	if err != nil {
		return err
	}
	s.interference = image
	return nil
}

func (s *Stage) bindInput(slot descriptor.Slot, image *resource.Image) error {
	if err := s.ready("bind " + image.Name()); err != nil {
		return err
	}

	err := image.TransitionNow(resource.ToShaderRead)
	if err != nil {
		return err
	}
	err = s.descriptors.BindImage(slot, 0, image.DescriptorInfo(0))
	if err != nil {
		return err
	}
	return s.descriptors.Flush(slot)
}
