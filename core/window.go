package core

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

// Window is a GLFW window with a current OpenGL 4.1 core context.
type Window struct {
	Handle *glfw.Window
	Width  int // logical size in screen coordinates
	Height int
	Title  string

	onResize func(width, height int)
	onKey    func(key, mods int)
	onDrop   func(paths []string)
}

type WindowConfig struct {
	Width     int
	Height    int
	Title     string
	Resizable bool
	VSync     bool
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:     1280,
		Height:    720,
		Title:     "Glow Viewer",
		Resizable: true,
		VSync:     true,
	}
}

func NewWindow(config WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, boolToInt(config.Resizable))
	glfw.WindowHint(glfw.ScaleToMonitor, glfw.True)

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	handle.MakeContextCurrent()
	if config.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	window := &Window{
		Handle: handle,
		Title:  config.Title,
	}
	window.Width, window.Height = handle.GetSize()

	resized := func() {
		if window.onResize != nil {
			window.onResize(window.Width, window.Height)
		}
	}
	handle.SetSizeCallback(func(_ *glfw.Window, width, height int) {
		window.Width = width
		window.Height = height
		resized()
	})
	// Moving to a monitor with another scale changes the framebuffer but
	// not always the window size.
	handle.SetFramebufferSizeCallback(func(*glfw.Window, int, int) { resized() })
	handle.SetContentScaleCallback(func(*glfw.Window, float32, float32) { resized() })
	handle.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, mods glfw.ModifierKey) {
		if action == glfw.Press && window.onKey != nil {
			window.onKey(int(key), int(mods))
		}
	})
	handle.SetDropCallback(func(_ *glfw.Window, names []string) {
		if window.onDrop != nil {
			window.onDrop(names)
		}
	})

	return window, nil
}

// Size returns the logical window size in screen coordinates.
func (w *Window) Size() (int, int) {
	return w.Width, w.Height
}

// PixelRatio is framebuffer pixels per screen coordinate.
func (w *Window) PixelRatio() float64 {
	fbw, _ := w.Handle.GetFramebufferSize()
	sx, _ := w.Handle.GetContentScale()
	return pixelRatio(w.Width, fbw, sx)
}

// pixelRatio prefers the measured framebuffer to window ratio. With
// ScaleToMonitor on Windows and X11 screen coordinates are already pixels,
// so the content scale only serves before the window has a size.
func pixelRatio(windowWidth, framebufferWidth int, contentScale float32) float64 {
	if windowWidth > 0 && framebufferWidth > 0 {
		return float64(framebufferWidth) / float64(windowWidth)
	}
	if contentScale > 0 {
		return float64(contentScale)
	}
	return 1
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

func (w *Window) SetShouldClose(v bool) {
	w.Handle.SetShouldClose(v)
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

func (w *Window) SwapBuffers() {
	w.Handle.SwapBuffers()
}

// GetFramebufferSize is the back buffer size in pixels.
func (w *Window) GetFramebufferSize() (int, int) {
	return w.Handle.GetFramebufferSize()
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

// OnResize registers the handler invoked after the window size changes.
func (w *Window) OnResize(fn func(width, height int)) { w.onResize = fn }

// OnKey registers the handler invoked on key presses.
func (w *Window) OnKey(fn func(key, mods int)) { w.onKey = fn }

// OnDrop registers the handler invoked when files are dropped on the window.
func (w *Window) OnDrop(fn func(paths []string)) { w.onDrop = fn }

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

func (w *Window) IsMouseButtonPressed(button int) bool {
	return w.Handle.GetMouseButton(glfw.MouseButton(button)) == glfw.Press
}

func (w *Window) GetCursorPos() (float64, float64) {
	return w.Handle.GetCursorPos()
}

// ScrollCallback is the type for scroll event handlers
type ScrollCallback func(xoff, yoff float64)

func (w *Window) SetScrollCallback(cb ScrollCallback) {
	w.Handle.SetScrollCallback(func(win *glfw.Window, xoff, yoff float64) {
		cb(xoff, yoff)
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const (
	ModShift   = int(glfw.ModShift)
	ModControl = int(glfw.ModControl)
	ModSuper   = int(glfw.ModSuper)
)

const (
	KeyB      = int(glfw.KeyB)
	KeyC      = int(glfw.KeyC)
	KeyG      = int(glfw.KeyG)
	KeyH      = int(glfw.KeyH)
	KeyL      = int(glfw.KeyL)
	KeyP      = int(glfw.KeyP)
	KeyR      = int(glfw.KeyR)
	KeyS      = int(glfw.KeyS)
	KeyEscape = int(glfw.KeyEscape)
)
