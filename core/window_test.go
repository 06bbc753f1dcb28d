package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPixelRatio(t *testing.T) {
	assert.Equal(t, 2.0, pixelRatio(1280, 2560, 2), "retina: framebuffer doubles the window")
	assert.Equal(t, 1.0, pixelRatio(1920, 1920, 1.5), "monitor-scaled window is already in pixels")
	assert.Equal(t, 1.5, pixelRatio(0, 0, 1.5), "content scale before the first size")
	assert.Equal(t, 1.0, pixelRatio(0, 0, 0))
}
