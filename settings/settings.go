package settings

import (
	"bytes"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// MaxLights is the size of the light array in the lights uniform block.
const MaxLights = 10

type Distance struct {
	Radius float32 `toml:"radius"`
	Height float32 `toml:"height"`
}

type Window struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

type Settings struct {
	OPDSamples  uint32     `toml:"opd_samples"`
	RSamples    uint32     `toml:"r_samples"`
	TotalLights int        `toml:"total_lights"`
	LightColor  [3]float32 `toml:"light_color"`
	Radiance    float32    `toml:"radiance"`
	Distance    Distance   `toml:"distance"`
	Reflectance float32    `toml:"reflectance"`

	ClearColor   [4]float32 `toml:"clear_color"`
	ClearDepth   float32    `toml:"clear_depth"`
	ClearStencil uint32     `toml:"clear_stencil"`

	// Iteration drives the light animation. The frame loop owns it.
	Iteration int64 `toml:"-"`

	Material    string `toml:"material"`
	PBRDir      string `toml:"pbr_dir"`
	ShaderDir   string `toml:"shader_dir"`
	Heightmap   string `toml:"heightmap"`
	Environment string `toml:"environment"`
	Mesh        string `toml:"mesh"`

	Window Window `toml:"window"`

	Validation    bool   `toml:"validation"`
	StrictLayouts bool   `toml:"strict_layouts"`
	LogLevel      string `toml:"log_level"`
}

func Default() *Settings {
	return &Settings{
		OPDSamples:  512,
		RSamples:    256,
		TotalLights: 4,
		LightColor:  [3]float32{1, 1, 1},
		Radiance:    30,
		Distance:    Distance{Radius: 2, Height: 5},
		Reflectance: 0.04,

		ClearColor: [4]float32{0, 0, 0, 1},
		ClearDepth: 1,

		Material:  "rustediron",
		PBRDir:    "assets/pbr",
		ShaderDir: "shaders",

		Window: Window{Width: 1280, Height: 720, Title: "Thin Film"},

		LogLevel: "info",
	}
}

// Decode overlays the TOML document in r on top of Default.
func Decode(r io.Reader) (*Settings, error) {
	s := Default()

	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads path with Decode. An empty path yields the defaults.
func Load(path string) (*Settings, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read settings")
	}
	return Decode(bytes.NewReader(data))
}

func (s *Settings) Validate() error {
	if s.OPDSamples == 0 || s.RSamples == 0 {
		return errors.Newf("sample counts must be positive, got opd=%d r=%d", s.OPDSamples, s.RSamples)
	}
	if s.TotalLights < 1 || s.TotalLights > MaxLights {
		return errors.Newf("total_lights must be in [1, %d], got %d", MaxLights, s.TotalLights)
	}
	if s.Material == "" {
		return errors.New("material must not be empty")
	}
	return nil
}

// Clone returns a copy that can be handed to a frame without sharing state.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}
