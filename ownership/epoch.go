package ownership

import (
	"github.com/radeon-kms/adapter/kms"
)

// Output is the configuration of one CRTC
type Output struct {
	CRTC       uint32
	Connectors []uint32
	// Mode is nil for a disabled CRTC
	Mode *kms.Mode
	// X and Y are the scanout origin within the framebuffer
	X int
	Y int
	// Cursor is the buffer object bound as this CRTC's hardware cursor, or 0
	Cursor kms.BufferHandle
}

// Epoch is the complete output configuration that is in effect while display
// ownership is held
type Epoch struct {
	Framebuffer  kms.FramebufferID
	CursorWidth  int
	CursorHeight int
	Outputs      []Output
}

// Copy returns a deep copy so callers cannot modify the machine's epoch through shared slices
func (e Epoch) Copy() Epoch {
	out := e
	out.Outputs = make([]Output, len(e.Outputs))
	for i, output := range e.Outputs {
		output.Connectors = append([]uint32(nil), output.Connectors...)
		if output.Mode != nil {
			mode := *output.Mode
			output.Mode = &mode
		}
		out.Outputs[i] = output
	}
	return out
}

// Active returns the number of outputs with a mode
func (e Epoch) Active() int {
	count := 0
	for _, output := range e.Outputs {
		if output.Mode != nil {
			count++
		}
	}
	return count
}
