package scene

// Layer channels used by the renderer.
const (
	LayerBase  = 0 // every drawable node
	LayerBloom = 1 // nodes that feed the selective bloom pass
)

// Layers is a 32-channel visibility mask. A node is drawn by a camera when
// the two masks share at least one channel.
type Layers uint32

// LayerMask builds a mask with the given channels enabled.
func LayerMask(channels ...int) Layers {
	var l Layers
	for _, ch := range channels {
		l.Enable(ch)
	}
	return l
}

func (l *Layers) Enable(channel int) {
	*l |= 1 << uint(channel)
}

func (l *Layers) Disable(channel int) {
	*l &^= 1 << uint(channel)
}

// Set replaces the mask with a single channel.
func (l *Layers) Set(channel int) {
	*l = 1 << uint(channel)
}

func (l Layers) Has(channel int) bool {
	return l&(1<<uint(channel)) != 0
}

// Test reports whether l and other share a channel.
func (l Layers) Test(other Layers) bool {
	return l&other != 0
}
