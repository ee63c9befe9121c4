// Package config holds the driver's user-tunable options and loads them from YAML.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/radeon-kms/adapter/budget"
	"github.com/radeon-kms/adapter/memutils"
	"sigs.k8s.io/yaml"
)

const (
	DefaultDevicePath        = "/dev/dri/card0"
	DefaultCommandBufferSize = 64 * 1024
)

// Options configures one driver instance. Zero fields take their defaults in Normalize.
type Options struct {
	// DevicePath is the DRM character device to open
	DevicePath string `json:"devicePath,omitempty"`

	// PageSize is the kernel's buffer object granularity in bytes
	PageSize int `json:"pageSize,omitempty"`
	// RowAlignment is the framebuffer row count granularity
	RowAlignment int `json:"rowAlignment,omitempty"`
	// PitchAlignment is the framebuffer row width granularity in pixels
	PitchAlignment int `json:"pitchAlignment,omitempty"`

	CursorWidth  int `json:"cursorWidth,omitempty"`
	CursorHeight int `json:"cursorHeight,omitempty"`

	// CommandBufferSize is the command channel's buffer size in bytes
	CommandBufferSize int `json:"commandBufferSize,omitempty"`
	// EmitLimit is the fraction of the residual pool installed as the command
	// channel's VRAM ceiling
	EmitLimit budget.Ratio `json:"emitLimit,omitempty"`

	// SWCursor disables hardware cursors. Cursor buffers are still allocated and
	// budgeted but never bound to a CRTC.
	SWCursor bool `json:"swCursor,omitempty"`
	// NoAccel keeps the rendering layer detached
	NoAccel bool `json:"noAccel,omitempty"`
	// ExternallySynchronized disables internal locking. The host must call every
	// entry point from a single goroutine.
	ExternallySynchronized bool `json:"externallySynchronized,omitempty"`
}

// Default returns Options with every field at its default
func Default() Options {
	var o Options
	o.Normalize()
	return o
}

// Normalize fills zero fields with their defaults
func (o *Options) Normalize() {
	if o.DevicePath == "" {
		o.DevicePath = DefaultDevicePath
	}
	if o.PageSize == 0 {
		o.PageSize = budget.DefaultPageSize
	}
	if o.RowAlignment == 0 {
		o.RowAlignment = budget.DefaultRowAlignment
	}
	if o.PitchAlignment == 0 {
		o.PitchAlignment = budget.DefaultPitchAlignment
	}
	if o.CursorWidth == 0 {
		o.CursorWidth = budget.DefaultCursorWidth
	}
	if o.CursorHeight == 0 {
		o.CursorHeight = budget.DefaultCursorHeight
	}
	if o.CommandBufferSize == 0 {
		o.CommandBufferSize = DefaultCommandBufferSize
	}
	if o.EmitLimit == (budget.Ratio{}) {
		o.EmitLimit = budget.DefaultEmitLimit
	}
}

// Validate reports the first invalid field of normalized Options
func (o Options) Validate() error {
	if o.DevicePath == "" {
		return errors.New("devicePath must not be empty")
	}
	if err := memutils.CheckPow2(o.PageSize, "pageSize"); err != nil {
		return err
	}
	if err := memutils.CheckPow2(o.RowAlignment, "rowAlignment"); err != nil {
		return err
	}
	if err := memutils.CheckPow2(o.PitchAlignment, "pitchAlignment"); err != nil {
		return err
	}
	if o.CursorWidth <= 0 || o.CursorHeight <= 0 {
		return errors.Newf("cursor size %dx%d must be positive", o.CursorWidth, o.CursorHeight)
	}
	if o.CommandBufferSize <= 0 || o.CommandBufferSize%4 != 0 {
		return errors.Newf("commandBufferSize %d must be a positive multiple of 4", o.CommandBufferSize)
	}
	if err := o.EmitLimit.Validate(); err != nil {
		return errors.Wrap(err, "emitLimit")
	}
	return nil
}

// BudgetOptions returns the planner settings these Options describe
func (o Options) BudgetOptions() budget.Options {
	return budget.Options{
		PageSize:       o.PageSize,
		RowAlignment:   o.RowAlignment,
		PitchAlignment: o.PitchAlignment,
		CursorWidth:    o.CursorWidth,
		CursorHeight:   o.CursorHeight,
		EmitLimit:      o.EmitLimit,
	}
}

// Parse decodes YAML into normalized, validated Options. Unknown fields are errors.
func Parse(data []byte) (Options, error) {
	var o Options
	if err := yaml.UnmarshalStrict(data, &o); err != nil {
		return Options{}, errors.Wrap(err, "cannot parse configuration")
	}

	o.Normalize()
	if err := o.Validate(); err != nil {
		return Options{}, errors.Wrap(err, "invalid configuration")
	}
	return o, nil
}

// Load reads and parses the YAML file at path
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrapf(err, "reading %s", path)
	}
	return Parse(data)
}

// Marshal encodes o as YAML
func (o Options) Marshal() ([]byte, error) {
	return yaml.Marshal(o)
}
