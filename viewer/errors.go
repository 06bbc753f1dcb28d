package viewer

import (
	"errors"
	"fmt"
)

// ErrUnsupportedAsset is returned for files that are not glTF assets.
var ErrUnsupportedAsset = errors.New("only .glb and .gltf files are supported")

// LoadError is a failed asset load. The previously shown asset is kept.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// EffectError is a failed stage of ApplyEffects. Stages that completed keep
// their effect.
type EffectError struct {
	Stage string
	Err   error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.Stage, e.Err)
}

func (e *EffectError) Unwrap() error { return e.Err }

// Effect stages, in the order ApplyEffects runs them.
const (
	StageLighting = "lighting"
	StageGlow     = "glow"
	StageLayers   = "layers"
)
