package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/radeon-kms/adapter/budget"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	o := Default()
	require.NoError(t, o.Validate())

	require.Equal(t, "/dev/dri/card0", o.DevicePath)
	require.Equal(t, 4096, o.PageSize)
	require.Equal(t, 16, o.RowAlignment)
	require.Equal(t, 64, o.PitchAlignment)
	require.Equal(t, 64, o.CursorWidth)
	require.Equal(t, 64, o.CursorHeight)
	require.Equal(t, 64*1024, o.CommandBufferSize)
	require.Equal(t, budget.Ratio{Numerator: 9, Denominator: 10}, o.EmitLimit)
	require.False(t, o.SWCursor)
	require.False(t, o.NoAccel)
}

func TestParse(t *testing.T) {
	o, err := Parse([]byte(`
devicePath: /dev/dri/card1
commandBufferSize: 16384
emitLimit:
  numerator: 3
  denominator: 4
swCursor: true
`))
	require.NoError(t, err)

	require.Equal(t, "/dev/dri/card1", o.DevicePath)
	require.Equal(t, 16384, o.CommandBufferSize)
	require.Equal(t, budget.Ratio{Numerator: 3, Denominator: 4}, o.EmitLimit)
	require.True(t, o.SWCursor)
	require.Equal(t, 4096, o.PageSize)

	plannerOptions := o.BudgetOptions()
	require.Equal(t, o.EmitLimit, plannerOptions.EmitLimit)
	require.Equal(t, 16, plannerOptions.RowAlignment)
}

func TestParseRejects(t *testing.T) {
	testCases := map[string]string{
		"UnknownField":    "noSuchOption: true\n",
		"NotYAML":         "devicePath: [\n",
		"PageSizeNotPow2": "pageSize: 3000\n",
		"OddBufferSize":   "commandBufferSize: 1001\n",
		"RatioAboveOne":   "emitLimit: {numerator: 5, denominator: 4}\n",
		"ZeroDenominator": "emitLimit: {numerator: 5}\n",
		"NegativeCursor":  "cursorWidth: -64\n",
	}

	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			require.Error(t, err)
		})
	}
}

func TestLoadRoundTrip(t *testing.T) {
	o := Default()
	o.NoAccel = true
	o.DevicePath = "/dev/dri/card2"

	data, err := o.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "radeon.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, o, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
