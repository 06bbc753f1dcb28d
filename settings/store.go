package settings

import (
	"errors"
	"fmt"

	"github.com/quasilyte/gdata/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrNoSavedSettings is returned by Load when nothing was saved yet.
var ErrNoSavedSettings = errors.New("no saved settings")

const (
	settingsObject   = "settings"
	settingsProperty = "bundle"
)

// Store persists one Bundle in the per-user data directory. It is never
// read implicitly: callers decide when saved settings replace the defaults.
type Store struct {
	log     *zap.Logger
	manager *gdata.Manager
}

// OpenStore opens the data directory of appName.
func OpenStore(log *zap.Logger, appName string) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	return &Store{log: log.Named("settings"), manager: m}, nil
}

func (s *Store) Exists() bool {
	return s.manager.ObjectPropExists(settingsObject, settingsProperty)
}

func (s *Store) Save(b Bundle) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.manager.SaveObjectProp(settingsObject, settingsProperty, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.log.Info("settings saved")
	return nil
}

// Load returns the saved bundle. Fields absent from the saved data keep
// their defaults.
func (s *Store) Load() (Bundle, error) {
	if !s.Exists() {
		return Bundle{}, ErrNoSavedSettings
	}
	data, err := s.manager.LoadObjectProp(settingsObject, settingsProperty)
	if err != nil {
		return Bundle{}, fmt.Errorf("load settings: %w", err)
	}
	b := Default()
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, fmt.Errorf("saved settings: %w", err)
	}
	s.log.Info("settings loaded")
	return b, nil
}
