package viewer

import (
	"context"
	"io"

	"go.uber.org/zap"

	"glow-viewer/scene"
)

// Loader produces a scene graph for an asset.
type Loader interface {
	Load(ctx context.Context, path string) (*scene.GLTFAsset, error)
	LoadReader(ctx context.Context, name string, r io.Reader) (*scene.GLTFAsset, error)
}

// GLTFLoader loads glTF and GLB files.
type GLTFLoader struct {
	Log *zap.Logger
}

func (l GLTFLoader) Load(ctx context.Context, path string) (*scene.GLTFAsset, error) {
	if !scene.IsGLTFName(path) {
		return nil, ErrUnsupportedAsset
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	asset, err := scene.LoadGLTF(path, l.Log)
	if err != nil {
		return nil, err
	}
	return finish(ctx, asset)
}

func (l GLTFLoader) LoadReader(ctx context.Context, name string, r io.Reader) (*scene.GLTFAsset, error) {
	if !scene.IsGLTFName(name) {
		return nil, ErrUnsupportedAsset
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	asset, err := scene.DecodeGLTF(name, r, l.Log)
	if err != nil {
		return nil, err
	}
	return finish(ctx, asset)
}

// finish drops an asset that completed after its request was cancelled.
func finish(ctx context.Context, asset *scene.GLTFAsset) (*scene.GLTFAsset, error) {
	if err := ctx.Err(); err != nil {
		scene.DisposeTree(asset.Root, nil)
		return nil, err
	}
	return asset, nil
}
