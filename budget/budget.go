// Package budget partitions an adapter's video memory between the scanout
// framebuffer, one hardware cursor image per output, and the residual pool left for
// the rendering layer.
//
// A plan is computed from scratch for every mode-set epoch. Nothing is carried over
// from the previous plan because the framebuffer geometry can change arbitrarily.
package budget

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/memutils"
)

const (
	DefaultPageSize       = 4096
	DefaultRowAlignment   = 16
	DefaultPitchAlignment = 64
	DefaultCursorWidth    = 64
	DefaultCursorHeight   = 64

	// CursorBytesPerPixel is fixed: cursor images are always ARGB8888
	CursorBytesPerPixel = 4
)

// Ratio is a fraction applied to byte counts
type Ratio struct {
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

// DefaultEmitLimit leaves a tenth of the residual pool as headroom for fragmentation
// and bookkeeping the planner does not see
var DefaultEmitLimit = Ratio{Numerator: 9, Denominator: 10}

// Apply returns floor(bytes * Numerator / Denominator)
func (r Ratio) Apply(bytes int) int {
	return int(int64(bytes) * int64(r.Numerator) / int64(r.Denominator))
}

func (r Ratio) Validate() error {
	if r.Denominator <= 0 {
		return errors.Newf("ratio denominator must be positive, got %d", r.Denominator)
	}
	if r.Numerator < 0 || r.Numerator > r.Denominator {
		return errors.Newf("ratio %d/%d must be between 0 and 1", r.Numerator, r.Denominator)
	}
	return nil
}

// Geometry is the framebuffer the plan must hold
type Geometry struct {
	// Width is the virtual screen width in pixels
	Width int
	// Height is the virtual screen height in rows
	Height int
	// BitsPerPixel must be a multiple of 8
	BitsPerPixel int
	// Stride overrides the computed row pitch in bytes when non-zero
	Stride int
}

// Options holds the device granularities the planner aligns to. Zero fields take the
// package defaults.
type Options struct {
	PageSize       int
	RowAlignment   int
	PitchAlignment int
	CursorWidth    int
	CursorHeight   int
	EmitLimit      Ratio
}

func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.RowAlignment == 0 {
		o.RowAlignment = DefaultRowAlignment
	}
	if o.PitchAlignment == 0 {
		o.PitchAlignment = DefaultPitchAlignment
	}
	if o.CursorWidth == 0 {
		o.CursorWidth = DefaultCursorWidth
	}
	if o.CursorHeight == 0 {
		o.CursorHeight = DefaultCursorHeight
	}
	if o.EmitLimit == (Ratio{}) {
		o.EmitLimit = DefaultEmitLimit
	}
	return o
}

// MemoryBudget is the partition computed for one mode-set epoch. The invariant
// FramebufferSize + CursorSize*CursorCount == Reserved <= total VRAM always holds, and
// Residual == total VRAM - Reserved.
type MemoryBudget struct {
	TotalVRAM int
	TotalGART int

	// Stride is the framebuffer row pitch in bytes
	Stride int
	// FramebufferSize is rows aligned to the row alignment times Stride, page aligned
	FramebufferSize int
	// CursorSize is the page aligned size of one output's cursor image
	CursorSize  int
	CursorCount int

	Reserved int
	Residual int

	// EmitLimit is the VRAM ceiling installed on the command channel
	EmitLimit int
	// GTTLimit is the GTT ceiling installed on the command channel
	GTTLimit int
}

// CursorBytes returns the space reserved for every output's cursor
func (b MemoryBudget) CursorBytes() int {
	return b.CursorSize * b.CursorCount
}

// Plan computes the partition of totalVRAM. totalVRAM should be the CPU-visible part of
// video memory since every region planned here is mapped.
//
// A plan that does not fit returns an error marked kms.ErrOutOfMemory along with the
// sizes it could not place, with EmitLimit left at zero. There is no retry with a
// smaller configuration.
func Plan(totalVRAM, totalGART int, geometry Geometry, outputs int, options Options) (MemoryBudget, error) {
	options = options.withDefaults()

	if outputs <= 0 {
		return MemoryBudget{}, errors.Newf("at least one output is required, got %d", outputs)
	}
	if err := memutils.CheckSize(totalVRAM, "total VRAM"); err != nil {
		return MemoryBudget{}, err
	}
	if err := memutils.CheckSize(totalGART, "total GART"); err != nil {
		return MemoryBudget{}, err
	}
	if err := memutils.CheckPow2(options.PageSize, "page size"); err != nil {
		return MemoryBudget{}, err
	}
	if err := memutils.CheckPow2(options.RowAlignment, "row alignment"); err != nil {
		return MemoryBudget{}, err
	}
	if err := memutils.CheckPow2(options.PitchAlignment, "pitch alignment"); err != nil {
		return MemoryBudget{}, err
	}
	if err := options.EmitLimit.Validate(); err != nil {
		return MemoryBudget{}, err
	}
	if geometry.Width <= 0 || geometry.Height <= 0 {
		return MemoryBudget{}, errors.Newf("invalid framebuffer geometry %dx%d", geometry.Width, geometry.Height)
	}
	if geometry.BitsPerPixel <= 0 || geometry.BitsPerPixel%8 != 0 {
		return MemoryBudget{}, errors.Newf("unsupported bits per pixel %d", geometry.BitsPerPixel)
	}

	stride := geometry.Stride
	if stride == 0 {
		stride = Stride(geometry.Width, geometry.BitsPerPixel, options.PitchAlignment)
	}
	if stride < geometry.Width*geometry.BitsPerPixel/8 {
		return MemoryBudget{}, errors.Newf("stride %d is too small for %d pixels at %d bpp", stride, geometry.Width, geometry.BitsPerPixel)
	}

	plan := MemoryBudget{
		TotalVRAM:   totalVRAM,
		TotalGART:   totalGART,
		Stride:      stride,
		CursorCount: outputs,
		GTTLimit:    totalGART,
	}

	rows := memutils.AlignUp(geometry.Height, options.RowAlignment)
	plan.FramebufferSize = memutils.AlignUp(rows*stride, options.PageSize)
	plan.CursorSize = memutils.AlignUp(options.CursorWidth*options.CursorHeight*CursorBytesPerPixel, options.PageSize)
	plan.Reserved = plan.FramebufferSize + plan.CursorBytes()
	plan.Residual = totalVRAM - plan.Reserved

	if plan.Residual < 0 {
		return plan, errors.Mark(
			errors.Newf("%d bytes of VRAM cannot hold a %d byte framebuffer and %d cursors of %d bytes",
				totalVRAM, plan.FramebufferSize, outputs, plan.CursorSize),
			kms.ErrOutOfMemory)
	}

	plan.EmitLimit = options.EmitLimit.Apply(plan.Residual)
	return plan, nil
}

// Stride returns the row pitch in bytes for width pixels, with the pixel count aligned
// up to pitchAlignment
func Stride(width, bitsPerPixel, pitchAlignment int) int {
	return memutils.AlignUp(width, pitchAlignment) * bitsPerPixel / 8
}

// PrintParameters writes the plan into json
func (b MemoryBudget) PrintParameters(json *jwriter.ObjectState) {
	json.Name("TotalVRAM").Int(b.TotalVRAM)
	json.Name("TotalGART").Int(b.TotalGART)
	json.Name("Stride").Int(b.Stride)
	json.Name("FramebufferSize").Int(b.FramebufferSize)
	json.Name("CursorSize").Int(b.CursorSize)
	json.Name("CursorCount").Int(b.CursorCount)
	json.Name("Reserved").Int(b.Reserved)
	json.Name("Residual").Int(b.Residual)
	json.Name("EmitLimit").Int(b.EmitLimit)
	json.Name("GTTLimit").Int(b.GTTLimit)
}
