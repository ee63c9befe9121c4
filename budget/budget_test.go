package budget

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/radeon-kms/adapter/kms"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

func TestPlanSingleOutput32MiB(t *testing.T) {
	// 1024 pixels at 32bpp is a 4096 byte stride, 1024 rows is 4MiB
	plan, err := Plan(32*mib, 256*mib, Geometry{Width: 1024, Height: 1024, BitsPerPixel: 32}, 1, Options{})
	require.NoError(t, err)

	require.Equal(t, 4096, plan.Stride)
	require.Equal(t, 4*mib, plan.FramebufferSize)
	require.Equal(t, 16384, plan.CursorSize)
	require.Equal(t, 1, plan.CursorCount)
	require.Equal(t, 4*mib+16384, plan.Reserved)
	require.Equal(t, 29343744, plan.Residual)
	require.Equal(t, 26409369, plan.EmitLimit)
	require.Equal(t, 256*mib, plan.GTTLimit)
}

func TestPlanResidualAndCeiling(t *testing.T) {
	testCases := map[string]struct {
		totalVRAM int
		geometry  Geometry
		outputs   int
	}{
		"VGA":          {totalVRAM: 8 * mib, geometry: Geometry{Width: 640, Height: 480, BitsPerPixel: 16}, outputs: 1},
		"OddWidth":     {totalVRAM: 16 * mib, geometry: Geometry{Width: 1366, Height: 768, BitsPerPixel: 32}, outputs: 2},
		"DualHead":     {totalVRAM: 64 * mib, geometry: Geometry{Width: 3840, Height: 1200, BitsPerPixel: 32}, outputs: 2},
		"ExactFit":     {totalVRAM: 4*mib + 16384, geometry: Geometry{Width: 1024, Height: 1024, BitsPerPixel: 32}, outputs: 1},
		"ManyOutputs":  {totalVRAM: 128 * mib, geometry: Geometry{Width: 1920, Height: 1080, BitsPerPixel: 24}, outputs: 6},
		"ExplicitPad":  {totalVRAM: 32 * mib, geometry: Geometry{Width: 1000, Height: 700, BitsPerPixel: 32, Stride: 8192}, outputs: 1},
		"OddRowCount":  {totalVRAM: 32 * mib, geometry: Geometry{Width: 800, Height: 601, BitsPerPixel: 32}, outputs: 1},
		"Large8bppRow": {totalVRAM: 32 * mib, geometry: Geometry{Width: 4096, Height: 3, BitsPerPixel: 8}, outputs: 1},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			plan, err := Plan(testCase.totalVRAM, 0, testCase.geometry, testCase.outputs, Options{})
			require.NoError(t, err)

			require.Equal(t, plan.FramebufferSize+plan.CursorSize*plan.CursorCount, plan.Reserved)
			require.LessOrEqual(t, plan.Reserved, testCase.totalVRAM)
			require.Equal(t, testCase.totalVRAM-plan.Reserved, plan.Residual)
			require.Equal(t, plan.Residual*9/10, plan.EmitLimit)

			require.Zero(t, plan.FramebufferSize%DefaultPageSize)
			require.Zero(t, plan.CursorSize%DefaultPageSize)

			// Rounded up, never down
			rows := testCase.geometry.Height
			require.GreaterOrEqual(t, plan.FramebufferSize, rows*plan.Stride)
			require.GreaterOrEqual(t, plan.Stride, testCase.geometry.Width*testCase.geometry.BitsPerPixel/8)
		})
	}
}

func TestPlanRowAlignment(t *testing.T) {
	plan, err := Plan(32*mib, 0, Geometry{Width: 1024, Height: 1, BitsPerPixel: 32}, 1, Options{})
	require.NoError(t, err)
	// One row is padded to 16 rows of 4096 bytes
	require.Equal(t, 65536, plan.FramebufferSize)
}

func TestPlanInsufficientMemory(t *testing.T) {
	plan, err := Plan(4*mib, 0, Geometry{Width: 1024, Height: 1024, BitsPerPixel: 32}, 1, Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, kms.ErrOutOfMemory))
	require.Less(t, plan.Residual, 0)
	require.Zero(t, plan.EmitLimit)
}

func TestPlanInvalidArguments(t *testing.T) {
	geometry := Geometry{Width: 1024, Height: 768, BitsPerPixel: 32}

	testCases := map[string]func() (MemoryBudget, error){
		"NoOutputs": func() (MemoryBudget, error) {
			return Plan(32*mib, 0, geometry, 0, Options{})
		},
		"NegativeVRAM": func() (MemoryBudget, error) {
			return Plan(-1, 0, geometry, 1, Options{})
		},
		"ZeroHeight": func() (MemoryBudget, error) {
			return Plan(32*mib, 0, Geometry{Width: 1024, BitsPerPixel: 32}, 1, Options{})
		},
		"OddBitsPerPixel": func() (MemoryBudget, error) {
			return Plan(32*mib, 0, Geometry{Width: 1024, Height: 768, BitsPerPixel: 15}, 1, Options{})
		},
		"NarrowStride": func() (MemoryBudget, error) {
			return Plan(32*mib, 0, Geometry{Width: 1024, Height: 768, BitsPerPixel: 32, Stride: 1024}, 1, Options{})
		},
		"PageSizeNotPow2": func() (MemoryBudget, error) {
			return Plan(32*mib, 0, geometry, 1, Options{PageSize: 3000})
		},
		"RatioAboveOne": func() (MemoryBudget, error) {
			return Plan(32*mib, 0, geometry, 1, Options{EmitLimit: Ratio{Numerator: 11, Denominator: 10}})
		},
	}

	for name, plan := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := plan()
			require.Error(t, err)
			require.False(t, errors.Is(err, kms.ErrOutOfMemory))
		})
	}
}

func TestPlanConfigurableEmitLimit(t *testing.T) {
	geometry := Geometry{Width: 1024, Height: 1024, BitsPerPixel: 32}

	plan, err := Plan(32*mib, 0, geometry, 1, Options{EmitLimit: Ratio{Numerator: 1, Denominator: 1}})
	require.NoError(t, err)
	require.Equal(t, plan.Residual, plan.EmitLimit)

	plan, err = Plan(32*mib, 0, geometry, 1, Options{EmitLimit: Ratio{Numerator: 0, Denominator: 4}})
	require.NoError(t, err)
	require.Zero(t, plan.EmitLimit)
}

func TestPlanIsRecomputedFromScratch(t *testing.T) {
	small, err := Plan(32*mib, 0, Geometry{Width: 800, Height: 600, BitsPerPixel: 32}, 1, Options{})
	require.NoError(t, err)
	large, err := Plan(32*mib, 0, Geometry{Width: 1920, Height: 1200, BitsPerPixel: 32}, 2, Options{})
	require.NoError(t, err)
	again, err := Plan(32*mib, 0, Geometry{Width: 800, Height: 600, BitsPerPixel: 32}, 1, Options{})
	require.NoError(t, err)

	require.NotEqual(t, small, large)
	require.Equal(t, small, again)
}

func TestPrintParameters(t *testing.T) {
	plan, err := Plan(32*mib, 0, Geometry{Width: 1024, Height: 1024, BitsPerPixel: 32}, 1, Options{})
	require.NoError(t, err)

	w := jwriter.NewWriter()
	obj := w.Object()
	plan.PrintParameters(&obj)
	obj.End()

	require.Contains(t, string(w.Bytes()), `"Residual":29343744`)
	require.Contains(t, string(w.Bytes()), `"EmitLimit":26409369`)
}
