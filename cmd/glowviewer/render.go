package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glow-viewer/core"
	"glow-viewer/internal/raster"
	"glow-viewer/scene"
	"glow-viewer/settings"
	"glow-viewer/viewer"
)

// demoName is loaded when render is given no model. It matches the house17
// lighting profile so the special light shows up.
const demoName = "house17_demo.glb"

type renderOptions struct {
	out        string
	at         time.Duration
	pixelRatio float64
	timeout    time.Duration
}

func newRenderCommand(opts *options) *cobra.Command {
	ro := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render [model.glb|model.gltf]",
		Short: "Render one frame with the software backend and write it as PNG",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := demoName
			if len(args) == 1 {
				var err error
				if path, err = expandPath(args[0]); err != nil {
					return err
				}
			}
			return runRender(opts, ro, path)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&ro.out, "out", "o", "frame.png", "output PNG file")
	f.DurationVar(&ro.at, "at", 0, "animation time of the frame")
	f.Float64Var(&ro.pixelRatio, "pixel-ratio", 1, "device pixel ratio of the virtual canvas")
	f.DurationVar(&ro.timeout, "timeout", 30*time.Second, "give up when the model takes longer to load")
	return cmd
}

// fixedCanvas is a headless canvas of constant size.
type fixedCanvas struct {
	width, height int
	ratio         float64
}

func (c fixedCanvas) Size() (int, int)    { return c.width, c.height }
func (c fixedCanvas) PixelRatio() float64 { return c.ratio }

func runRender(opts *options, ro *renderOptions, path string) error {
	log, err := opts.logger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if opts.width <= 0 || opts.height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", opts.width, opts.height)
	}

	epoch := time.Unix(0, 0)
	clock := epoch
	backend := raster.NewRenderer(log)
	v, err := viewer.New(viewer.Config{
		Log:     log,
		Backend: backend,
		Canvas:  fixedCanvas{width: opts.width, height: opts.height, ratio: ro.pixelRatio},
		Loader:  demoLoader{next: viewer.GLTFLoader{Log: log}},
		Now:     func() time.Time { return clock },
	})
	if err != nil {
		return err
	}
	defer v.Close()

	var store *settings.Store
	if opts.restore {
		store = openStore(log)
	}
	if err := opts.configure(log, v, store); err != nil {
		return err
	}

	v.RequestLoad(path)
	deadline := time.Now().Add(ro.timeout)
	for v.Loading() {
		if time.Now().After(deadline) {
			return fmt.Errorf("load %s: timed out after %s", path, ro.timeout)
		}
		time.Sleep(5 * time.Millisecond)
		_ = v.Tick()
	}
	if v.Asset() == nil {
		return fmt.Errorf("load %s failed", path)
	}

	clock = epoch.Add(ro.at)
	if err := v.Tick(); err != nil {
		return err
	}

	f, err := os.Create(ro.out)
	if err != nil {
		return err
	}
	if err := backend.WritePNG(f, opts.width, opts.height); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info("frame written", zap.String("path", ro.out), zap.Duration("at", ro.at))
	return nil
}

// demoLoader serves a built-in scene for demoName and defers everything
// else to next.
type demoLoader struct {
	next viewer.Loader
}

func (l demoLoader) Load(ctx context.Context, path string) (*scene.GLTFAsset, error) {
	if path != demoName {
		return l.next.Load(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return demoAsset(), nil
}

func (l demoLoader) LoadReader(ctx context.Context, name string, r io.Reader) (*scene.GLTFAsset, error) {
	if name == demoName {
		return nil, errors.New("demo scene has no file form")
	}
	return l.next.LoadReader(ctx, name, r)
}

// demoAsset is a floor with a lamp, a pair of eyes, a glass pane and a
// plain crate. The lamp, eyes and glass are glow candidates.
func demoAsset() *scene.GLTFAsset {
	root := scene.NewNode(demoName)

	floor := scene.NewMeshNode("Floor", scene.CreatePlane(8, 8, 1),
		scene.NewStandardMaterial("Concrete", core.ColorFromHex(0x808080)))
	floor.SetPosition(mgl32.Vec3{0, -1, 0})
	root.AddChild(floor)

	lamp := scene.NewMeshNode("Lamp_Bulb", scene.CreateSphere(0.4, 24, 16),
		scene.NewStandardMaterial("Bulb", core.ColorFromHex(0xfff2cc)))
	lamp.SetPosition(mgl32.Vec3{-1.5, 0.5, 0})
	root.AddChild(lamp)

	for i, x := range []float32{0.8, 1.4} {
		eye := scene.NewMeshNode(fmt.Sprintf("Eye_%d", i), scene.CreateSphere(0.2, 16, 12),
			scene.NewStandardMaterial("Eye", core.ColorFromHex(0xffffff)))
		eye.SetPosition(mgl32.Vec3{x, 0.8, 0.5})
		root.AddChild(eye)
	}

	glassMat := scene.NewStandardMaterial("Glass", core.ColorFromHex(0x88ccff))
	glassMat.Transparent = true
	glassMat.Opacity = 0.4
	glassMat.Side = scene.SideDouble
	glass := scene.NewMeshNode("Pane", scene.CreateQuad(), glassMat)
	glass.SetScale(mgl32.Vec3{1.5, 1.5, 1})
	glass.SetPosition(mgl32.Vec3{0, 0.2, 1.5})
	root.AddChild(glass)

	crate := scene.NewMeshNode("Crate", scene.CreateCube(1),
		scene.NewStandardMaterial("Wood", core.ColorFromHex(0x8b5a2b)))
	crate.SetPosition(mgl32.Vec3{1.2, -0.5, -1})
	root.AddChild(crate)

	return &scene.GLTFAsset{Name: demoName, Root: root}
}
