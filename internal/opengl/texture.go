package opengl

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"glow-viewer/scene"
)

// textureCache owns the GL objects of the scene textures drawn so far.
// A texture is uploaded the first time a material samples it and lives
// until the scene releases it. Textures that fail to upload are remembered
// so the failure is logged once.
type textureCache struct {
	log    *zap.Logger
	ids    map[*scene.Texture]uint32
	failed map[*scene.Texture]struct{}
}

func newTextureCache(log *zap.Logger) *textureCache {
	return &textureCache{
		log:    log,
		ids:    make(map[*scene.Texture]uint32),
		failed: make(map[*scene.Texture]struct{}),
	}
}

// bind returns the GL name of tex, uploading it on first use. 0 means the
// material should sample nothing.
func (c *textureCache) bind(tex *scene.Texture) uint32 {
	if tex == nil {
		return 0
	}
	if id, ok := c.ids[tex]; ok {
		return id
	}
	if _, ok := c.failed[tex]; ok {
		return 0
	}
	id, err := uploadSRGB(tex)
	if err != nil {
		c.failed[tex] = struct{}{}
		c.log.Warn("texture upload failed", zap.String("texture", tex.Name), zap.Error(err))
		return 0
	}
	c.ids[tex] = id
	tex.GLID = id
	return id
}

// release deletes the GL copy of tex and forgets a past upload failure.
func (c *textureCache) release(tex *scene.Texture) {
	delete(c.failed, tex)
	id, ok := c.ids[tex]
	if !ok {
		return
	}
	delete(c.ids, tex)
	gl.DeleteTextures(1, &id)
	if tex.GLID == id {
		tex.GLID = 0
	}
}

func (c *textureCache) releaseAll() {
	for tex := range c.ids {
		c.release(tex)
	}
	clear(c.failed)
}

// checkPixels rejects textures whose pixel slice cannot back a
// Width×Height RGBA8 image.
func checkPixels(tex *scene.Texture) error {
	if tex.Width <= 0 || tex.Height <= 0 {
		return fmt.Errorf("texture %q: invalid size %dx%d", tex.Name, tex.Width, tex.Height)
	}
	if want := tex.Width * tex.Height * 4; len(tex.Pixels) < want {
		return fmt.Errorf("texture %q: %d bytes of pixel data, need %d", tex.Name, len(tex.Pixels), want)
	}
	return nil
}

// uploadSRGB stores the RGBA8 pixels as SRGB8_ALPHA8 so the shaders sample
// linear values, matching the linear material colors.
func uploadSRGB(tex *scene.Texture) (uint32, error) {
	if err := checkPixels(tex); err != nil {
		return 0, err
	}

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)

	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.SRGB8_ALPHA8,
		int32(tex.Width), int32(tex.Height), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(tex.Pixels))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteTextures(1, &id)
		return 0, fmt.Errorf("texture %q: gl error 0x%x", tex.Name, code)
	}
	return id, nil
}
