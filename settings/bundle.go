// Package settings holds the user-tunable parameters of the viewer, their
// file formats and the explicit save/restore store.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"glow-viewer/bloom"
	"glow-viewer/core"
	"glow-viewer/glow"
	"glow-viewer/lighting"
	"glow-viewer/pulse"
)

var ErrUnsupportedFormat = errors.New("unsupported settings format")

// Glow groups the glow effect parameters.
type Glow struct {
	Mode       string                `yaml:"mode" toml:"mode"`
	Params     glow.Params           `yaml:"params" toml:"params"`
	Pulse      glow.PulseParams      `yaml:"pulse" toml:"pulse"`
	Classifier glow.ClassifierConfig `yaml:"classifier" toml:"classifier"`
}

type Bloom struct {
	Mode   string       `yaml:"mode" toml:"mode"`
	Params bloom.Params `yaml:"params" toml:"params"`
}

// PulseDefaults mirrors pulse.Defaults with the color as a hex string.
type PulseDefaults struct {
	Color         string  `yaml:"color" toml:"color"`
	BaseIntensity float32 `yaml:"base_intensity" toml:"base_intensity"`
	Distance      float32 `yaml:"distance" toml:"distance"`
	Decay         float32 `yaml:"decay" toml:"decay"`
	Speed         float32 `yaml:"speed" toml:"speed"`
	Amplitude     float32 `yaml:"amplitude" toml:"amplitude"`
}

type Lighting struct {
	SceneLights  bool               `yaml:"scene_lights" toml:"scene_lights"`
	CustomLights bool               `yaml:"custom_lights" toml:"custom_lights"`
	Profiles     []lighting.Profile `yaml:"profiles,omitempty" toml:"profiles,omitempty"`
}

// Bundle is the complete parameter set.
type Bundle struct {
	Glow     Glow          `yaml:"glow" toml:"glow"`
	Bloom    Bloom         `yaml:"bloom" toml:"bloom"`
	Pulse    PulseDefaults `yaml:"pulse" toml:"pulse"`
	Lighting Lighting      `yaml:"lighting" toml:"lighting"`
}

func Default() Bundle {
	return Bundle{
		Glow: Glow{
			Mode:       string(glow.ModeEmissive),
			Params:     glow.DefaultParams(),
			Pulse:      glow.DefaultPulseParams(),
			Classifier: glow.DefaultClassifierConfig(),
		},
		Bloom: Bloom{
			Mode:   string(bloom.ModeSimple),
			Params: bloom.DefaultParams(),
		},
		Pulse:    FromPulseDefaults(pulse.DefaultDefaults()),
		Lighting: Lighting{CustomLights: true, Profiles: lighting.DefaultProfiles()},
	}
}

// FromPulseDefaults converts scheduler defaults to their file form.
func FromPulseDefaults(d pulse.Defaults) PulseDefaults {
	return PulseDefaults{
		Color:         fmt.Sprintf("#%06x", d.Color.Hex()),
		BaseIntensity: d.BaseIntensity,
		Distance:      d.Distance,
		Decay:         d.Decay,
		Speed:         d.Speed,
		Amplitude:     d.Amplitude,
	}
}

// PulseDefaults parses the file form back into scheduler defaults.
func (b Bundle) PulseDefaults() (pulse.Defaults, error) {
	c, err := core.ParseHexColor(b.Pulse.Color)
	if err != nil {
		return pulse.Defaults{}, fmt.Errorf("pulse color: %w", err)
	}
	return pulse.Defaults{
		Color:         c,
		BaseIntensity: b.Pulse.BaseIntensity,
		Distance:      b.Pulse.Distance,
		Decay:         b.Pulse.Decay,
		Speed:         b.Pulse.Speed,
		Amplitude:     b.Pulse.Amplitude,
	}, nil
}

func (b Bundle) GlowMode() (glow.Mode, error) {
	return glow.ParseMode(b.Glow.Mode)
}

func (b Bundle) BloomMode() (bloom.Mode, error) {
	return bloom.ParseMode(b.Bloom.Mode)
}

// Validate checks the fields that have a closed set of values.
func (b Bundle) Validate() error {
	if _, err := b.GlowMode(); err != nil {
		return err
	}
	if _, err := b.BloomMode(); err != nil {
		return err
	}
	if _, err := b.PulseDefaults(); err != nil {
		return err
	}
	return nil
}

type format int

const (
	formatYAML format = iota
	formatTOML
)

func formatOf(name string) (format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
}

// Decode parses data in the format implied by name's extension. Fields
// missing from data keep their defaults.
func Decode(name string, data []byte) (Bundle, error) {
	f, err := formatOf(name)
	if err != nil {
		return Bundle{}, err
	}
	b := Default()
	switch f {
	case formatTOML:
		err = toml.Unmarshal(data, &b)
	default:
		err = yaml.Unmarshal(data, &b)
	}
	if err != nil {
		return Bundle{}, fmt.Errorf("decode %s: %w", name, err)
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return b, nil
}

// Encode serializes b in the format implied by name's extension.
func Encode(name string, b Bundle) ([]byte, error) {
	f, err := formatOf(name)
	if err != nil {
		return nil, err
	}
	if f == formatTOML {
		return toml.Marshal(b)
	}
	return yaml.Marshal(b)
}

func ReadFile(path string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("read settings: %w", err)
	}
	return Decode(path, data)
}

func WriteFile(path string, b Bundle) error {
	data, err := Encode(path, b)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
