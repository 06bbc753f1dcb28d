// Command glowviewer shows glTF models with glow, bloom and light pulse
// effects, in a window or rendered headless to PNG.
package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glow-viewer/bloom"
	"glow-viewer/glow"
	"glow-viewer/internal/logger"
	"glow-viewer/settings"
	"glow-viewer/viewer"
)

const appName = "glowviewer"

// options are the flags shared by every command.
type options struct {
	debug        bool
	glowMode     string
	bloomMode    string
	settingsPath string
	restore      bool
	width        int
	height       int
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          appName,
		Short:        "glTF viewer with glow, bloom and pulsing lights",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			var err error
			opts.settingsPath, err = expandPath(opts.settingsPath)
			return err
		},
	}
	f := root.PersistentFlags()
	f.BoolVar(&opts.debug, "debug", false, "verbose development logging")
	f.StringVar(&opts.glowMode, "glow-mode", "", "glow mode: emissive or separate")
	f.StringVar(&opts.bloomMode, "bloom-mode", "", "bloom mode: simple or selective")
	f.StringVar(&opts.settingsPath, "settings", "", "parameter file (.yaml, .yml or .toml)")
	f.BoolVar(&opts.restore, "restore", false, "start from the settings saved in the user data store")
	f.IntVar(&opts.width, "width", 1280, "frame width in screen coordinates")
	f.IntVar(&opts.height, "height", 720, "frame height in screen coordinates")

	root.AddCommand(newViewCommand(opts), newRenderCommand(opts))
	return root
}

// expandPath resolves a leading "~" to the user's home directory.
func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	out, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", p, err)
	}
	return out, nil
}

func (o *options) logger() (*zap.Logger, error) {
	log, err := logger.New(o.debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}

// configure applies the persisted settings, then the parameter file, then
// the mode flags. Later sources override earlier ones.
func (o *options) configure(log *zap.Logger, v *viewer.Viewer, store *settings.Store) error {
	if o.restore {
		if store == nil {
			return fmt.Errorf("--restore: settings store unavailable")
		}
		b, err := store.Load()
		if err != nil {
			return fmt.Errorf("restore settings: %w", err)
		}
		if err := v.RestoreSettings(b); err != nil {
			return err
		}
		log.Info("settings restored from store")
	}
	if o.settingsPath != "" {
		b, err := settings.ReadFile(o.settingsPath)
		if err != nil {
			return err
		}
		if err := v.RestoreSettings(b); err != nil {
			return err
		}
		log.Info("settings loaded", zap.String("path", o.settingsPath))
	}
	if o.glowMode != "" {
		mode, err := glow.ParseMode(o.glowMode)
		if err != nil {
			return err
		}
		if err := v.SetGlowMode(mode); err != nil {
			return err
		}
	}
	if o.bloomMode != "" {
		mode, err := bloom.ParseMode(o.bloomMode)
		if err != nil {
			return err
		}
		if err := v.SetBloomMode(mode); err != nil {
			return err
		}
	}
	return nil
}

// openStore opens the user data store. A missing store only disables
// save and restore.
func openStore(log *zap.Logger) *settings.Store {
	store, err := settings.OpenStore(log, appName)
	if err != nil {
		log.Warn("settings store unavailable", zap.Error(err))
		return nil
	}
	return store
}
