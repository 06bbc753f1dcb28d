package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glow-viewer/bloom"
	"glow-viewer/core"
	"glow-viewer/glow"
	"glow-viewer/internal/opengl"
	"glow-viewer/lighting"
	"glow-viewer/settings"
	"glow-viewer/viewer"
)

// Orbit sensitivity in radians per cursor pixel.
const orbitSpeed = 0.005

func newViewCommand(opts *options) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "view [model.glb|model.gltf]",
		Short: "Open a window; drop glTF files on it to load them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				var err error
				if path, err = expandPath(args[0]); err != nil {
					return err
				}
			}
			return runView(opts, path, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the model when its file changes")
	return cmd
}

func runView(opts *options, path string, watch bool) error {
	log, err := opts.logger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	cfg := core.DefaultWindowConfig()
	cfg.Width, cfg.Height = opts.width, opts.height
	win, err := core.NewWindow(cfg)
	if err != nil {
		return err
	}
	defer win.Destroy()

	backend, err := opengl.NewRenderer(log)
	if err != nil {
		return err
	}
	defer backend.Destroy()

	status := &windowStatus{win: win, log: log.Named("status"), title: cfg.Title}
	v, err := viewer.New(viewer.Config{
		Log:     log,
		Backend: backend,
		Canvas:  win,
		Status:  status,
	})
	if err != nil {
		return err
	}
	defer v.Close()

	store := openStore(log)
	if err := opts.configure(log, v, store); err != nil {
		return err
	}

	var watcher *assetWatcher
	if watch {
		if watcher, err = newAssetWatcher(log); err != nil {
			return err
		}
		defer watcher.Close()
	}
	load := func(p string) {
		v.RequestLoad(p)
		if watcher != nil {
			if err := watcher.Watch(p); err != nil {
				log.Warn("watch failed", zap.String("path", p), zap.Error(err))
			}
		}
	}
	if path != "" {
		load(path)
	}

	backend.SetPresentSize(win.GetFramebufferSize())
	win.OnResize(func(int, int) {
		backend.SetPresentSize(win.GetFramebufferSize())
		if err := v.Resize(); err != nil {
			log.Warn("resize failed", zap.Error(err))
		}
	})
	win.OnDrop(func(paths []string) {
		if len(paths) == 0 {
			return
		}
		p := paths[0]
		f, err := os.Open(p)
		if err != nil {
			status.Notify(viewer.NotifyError, err.Error())
			return
		}
		defer f.Close()
		// The reader is consumed on a loader goroutine; hand it a copy.
		data, err := io.ReadAll(f)
		if err != nil {
			status.Notify(viewer.NotifyError, err.Error())
			return
		}
		v.RequestLoadReader(filepath.Base(p), bytes.NewReader(data))
		if watcher != nil {
			if err := watcher.Watch(p); err != nil {
				log.Warn("watch failed", zap.String("path", p), zap.Error(err))
			}
		}
	})
	win.OnKey(func(key, mods int) {
		handleKey(win, v, store, opts, status, key, mods)
	})
	win.SetScrollCallback(func(_, yoff float64) {
		v.Orbit().Zoom(float32(yoff))
	})

	var lastX, lastY float64
	dragging := false
	for !win.ShouldClose() {
		win.PollEvents()

		if win.IsMouseButtonPressed(0) {
			x, y := win.GetCursorPos()
			if dragging {
				v.Orbit().Rotate(float32(lastX-x)*orbitSpeed, float32(y-lastY)*orbitSpeed)
			}
			lastX, lastY, dragging = x, y, true
		} else {
			dragging = false
		}

		if watcher != nil {
			select {
			case p := <-watcher.Changed():
				log.Info("model changed on disk", zap.String("path", p))
				v.RequestLoad(p)
			default:
			}
		}

		_ = v.Tick()
		win.SwapBuffers()
	}
	return nil
}

func handleKey(win *core.Window, v *viewer.Viewer, store *settings.Store, opts *options, status *windowStatus, key, mods int) {
	switch key {
	case core.KeyEscape:
		win.SetShouldClose(true)
	case core.KeyG:
		next := glow.ModeSeparate
		if v.GlowMode() == glow.ModeSeparate {
			next = glow.ModeEmissive
		}
		if err := v.SetGlowMode(next); err != nil {
			status.Notify(viewer.NotifyError, err.Error())
			return
		}
		status.Notify(viewer.NotifyInfo, "glow mode: "+string(next))
	case core.KeyB:
		next := bloom.ModeSelective
		if v.BloomMode() == bloom.ModeSelective {
			next = bloom.ModeSimple
		}
		if err := v.SetBloomMode(next); err != nil {
			status.Notify(viewer.NotifyError, err.Error())
			return
		}
		status.Notify(viewer.NotifyInfo, "bloom mode: "+string(next))
	case core.KeyP:
		enabled := !v.Glow().PulseEnabled()
		v.SetPulseEnabled(enabled)
		status.Notify(viewer.NotifyInfo, fmt.Sprintf("glow pulse: %t", enabled))
	case core.KeyL:
		enabled := !v.Rig().SceneLightsEnabled()
		v.ToggleSceneLights(enabled)
		status.Notify(viewer.NotifyInfo, fmt.Sprintf("scene lights: %t", enabled))
	case core.KeyC:
		enabled := !v.Rig().CustomEnabled()
		v.UpdateCustomLighting(lighting.CustomUpdate{Enabled: &enabled})
		status.Notify(viewer.NotifyInfo, fmt.Sprintf("custom lights: %t", enabled))
	case core.KeyH:
		special := v.SpecialLight()
		if special == nil {
			status.Notify(viewer.NotifyInfo, "no special light for this model")
			return
		}
		if v.IsPulsing(special) {
			v.Rig().StopSpecialPulse()
		} else {
			v.Rig().StartSpecialPulse()
		}
		status.Notify(viewer.NotifyInfo, fmt.Sprintf("special light pulse: %t", v.IsPulsing(special)))
	case core.KeyS:
		b := v.CurrentSettings()
		if mods&core.ModControl != 0 || mods&core.ModSuper != 0 {
			if opts.settingsPath == "" {
				status.Notify(viewer.NotifyError, "no --settings file to write")
				return
			}
			if err := settings.WriteFile(opts.settingsPath, b); err != nil {
				status.Notify(viewer.NotifyError, err.Error())
				return
			}
			status.Notify(viewer.NotifySuccess, "settings written to "+opts.settingsPath)
			return
		}
		if store == nil {
			status.Notify(viewer.NotifyError, "settings store unavailable")
			return
		}
		if err := store.Save(b); err != nil {
			status.Notify(viewer.NotifyError, err.Error())
			return
		}
		status.Notify(viewer.NotifySuccess, "settings saved")
	case core.KeyR:
		if store == nil {
			status.Notify(viewer.NotifyError, "settings store unavailable")
			return
		}
		b, err := store.Load()
		if err == nil {
			err = v.RestoreSettings(b)
		}
		if err != nil {
			status.Notify(viewer.NotifyError, err.Error())
			return
		}
		status.Notify(viewer.NotifySuccess, "settings restored")
	}
}

// windowStatus shows the loading state and the last notification in the
// window title.
type windowStatus struct {
	win     *core.Window
	log     *zap.Logger
	title   string
	loading bool
	message string
}

func (s *windowStatus) Loading(active bool) {
	s.loading = active
	s.refresh()
}

func (s *windowStatus) Notify(kind viewer.NotifyKind, msg string) {
	switch kind {
	case viewer.NotifyError:
		s.log.Error(msg)
	default:
		s.log.Info(msg, zap.Stringer("kind", kind))
	}
	s.message = msg
	s.refresh()
}

func (s *windowStatus) refresh() {
	title := s.title
	if s.loading {
		title += " - loading…"
	} else if s.message != "" {
		title += " - " + s.message
	}
	s.win.SetTitle(title)
}
