// Package pulse animates light intensity (and optionally range) with a
// sine wave driven by elapsed wall-clock time.
package pulse

import (
	"math"

	"go.uber.org/zap"

	"glow-viewer/core"
	"glow-viewer/scene"
)

// Defaults configure lights started without explicit options and are
// applied to every registered light when updated.
type Defaults struct {
	Color         core.Color
	BaseIntensity float32
	Distance      float32
	Decay         float32
	Speed         float32 // cycles per second
	Amplitude     float32
}

func DefaultDefaults() Defaults {
	return Defaults{
		Color:         core.ColorFromHex(0xffddaa),
		BaseIntensity: 0.5,
		Distance:      6,
		Decay:         2,
		Speed:         1.0,
		Amplitude:     1.2,
	}
}

// DefaultsUpdate carries the fields to change; nil fields are kept.
type DefaultsUpdate struct {
	Color         *core.Color
	BaseIntensity *float32
	Distance      *float32
	Decay         *float32
	Speed         *float32
	Amplitude     *float32
}

// Options are the per-light pulse parameters.
type Options struct {
	BaseIntensity float32
	Amplitude     float32
	Speed         float32
	PhaseOffset   float32 // seconds
	// DistanceRange, when set, swings the light range between [0] and [1]
	// in phase with the intensity.
	DistanceRange *[2]float32
}

// Entry is one registered light and its last computed values.
type Entry struct {
	Light         *scene.Light
	BaseIntensity float32
	Amplitude     float32
	Speed         float32
	PhaseOffset   float32
	HasDistance   bool
	DistanceMin   float32
	DistanceMax   float32

	Intensity float32
	Distance  float32
}

// Scheduler drives registered lights in registration order.
type Scheduler struct {
	log      *zap.Logger
	defaults Defaults
	entries  []*Entry
	index    map[*scene.Light]*Entry
}

func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		log:      log.Named("pulse"),
		defaults: DefaultDefaults(),
		index:    make(map[*scene.Light]*Entry),
	}
}

func (s *Scheduler) Defaults() Defaults {
	return s.defaults
}

// DefaultOptions builds options from the current defaults.
func (s *Scheduler) DefaultOptions() Options {
	return Options{
		BaseIntensity: s.defaults.BaseIntensity,
		Amplitude:     s.defaults.Amplitude,
		Speed:         s.defaults.Speed,
	}
}

// Register adds light or replaces its parameters, keeping its position in
// the update order.
func (s *Scheduler) Register(light *scene.Light, opts Options) *Entry {
	e, ok := s.index[light]
	if !ok {
		e = &Entry{Light: light}
		s.entries = append(s.entries, e)
		s.index[light] = e
	}
	e.BaseIntensity = opts.BaseIntensity
	e.Amplitude = opts.Amplitude
	e.Speed = opts.Speed
	e.PhaseOffset = opts.PhaseOffset
	e.HasDistance = opts.DistanceRange != nil
	if e.HasDistance {
		e.DistanceMin, e.DistanceMax = opts.DistanceRange[0], opts.DistanceRange[1]
	}
	e.Intensity = light.Intensity
	e.Distance = light.Distance
	s.log.Debug("light registered", zap.String("light", light.Name), zap.Int("pulsing", len(s.entries)))
	return e
}

// Unregister removes light. Unknown lights are ignored.
func (s *Scheduler) Unregister(light *scene.Light) {
	if _, ok := s.index[light]; !ok {
		return
	}
	delete(s.index, light)
	for i, e := range s.entries {
		if e.Light == light {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.log.Debug("light unregistered", zap.String("light", light.Name), zap.Int("pulsing", len(s.entries)))
}

// Start registers light with the default options unless it already pulses.
// It reports whether the light was newly registered.
func (s *Scheduler) Start(light *scene.Light) bool {
	if s.IsPulsing(light) {
		return false
	}
	s.Register(light, s.DefaultOptions())
	return true
}

// Stop unregisters light. The light keeps the intensity and distance
// computed by the last Advance.
func (s *Scheduler) Stop(light *scene.Light) {
	s.Unregister(light)
}

func (s *Scheduler) IsPulsing(light *scene.Light) bool {
	_, ok := s.index[light]
	return ok
}

func (s *Scheduler) Len() int {
	return len(s.entries)
}

// Entry returns a copy of the entry for light.
func (s *Scheduler) Entry(light *scene.Light) (Entry, bool) {
	e, ok := s.index[light]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Wave is 0.5 + 0.5·sin(2π·(elapsed+offset)·speed). The cycle count is
// reduced to its fractional part in float64 before taking the sine, so the
// result is as precise after days of runtime as after a second.
func Wave(elapsed float64, offset, speed float32) float64 {
	cycles := (elapsed + float64(offset)) * float64(speed)
	cycles -= math.Floor(cycles)
	return 0.5 + 0.5*math.Sin(cycles*2*math.Pi)
}

// Advance sets every registered light to its value at elapsed seconds.
func (s *Scheduler) Advance(elapsed float64) {
	for _, e := range s.entries {
		w := Wave(elapsed, e.PhaseOffset, e.Speed)
		e.Intensity = e.BaseIntensity + e.Amplitude*float32(w)
		e.Light.Intensity = e.Intensity
		if e.HasDistance {
			e.Distance = e.DistanceMin + (e.DistanceMax-e.DistanceMin)*float32(w)
			e.Light.Distance = e.Distance
		}
	}
}

// UpdateDefaults merges u into the defaults and pushes the provided fields
// to every registered light. A new base intensity also becomes the live
// intensity until the next Advance.
func (s *Scheduler) UpdateDefaults(u DefaultsUpdate) {
	d := &s.defaults
	if u.Color != nil {
		d.Color = *u.Color
	}
	if u.BaseIntensity != nil {
		d.BaseIntensity = *u.BaseIntensity
	}
	if u.Distance != nil {
		d.Distance = *u.Distance
	}
	if u.Decay != nil {
		d.Decay = *u.Decay
	}
	if u.Speed != nil {
		d.Speed = *u.Speed
	}
	if u.Amplitude != nil {
		d.Amplitude = *u.Amplitude
	}

	for _, e := range s.entries {
		if u.BaseIntensity != nil {
			e.BaseIntensity = *u.BaseIntensity
			e.Intensity = e.BaseIntensity
			e.Light.Intensity = e.BaseIntensity
		}
		if u.Distance != nil {
			e.Light.Distance = *u.Distance
		}
		if u.Decay != nil {
			e.Light.Decay = *u.Decay
		}
		if u.Color != nil {
			e.Light.Color = *u.Color
		}
		if u.Speed != nil {
			e.Speed = *u.Speed
		}
		if u.Amplitude != nil {
			e.Amplitude = *u.Amplitude
		}
	}
	s.log.Debug("pulse defaults updated", zap.Int("lights", len(s.entries)))
}
