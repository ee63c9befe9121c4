//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/radeon-kms/adapter/kms/drm"
)

func registerPlatformCommands() {
	subcommands.Register(&Probe{}, "")
}

// Probe implements subcommands.Command for the "probe" command.
type Probe struct {
	path string
}

// Name implements subcommands.Command.
func (*Probe) Name() string {
	return "probe"
}

// Synopsis implements subcommands.Command.
func (*Probe) Synopsis() string {
	return "reports the kernel driver version and memory sizes of a DRM device"
}

// Usage implements subcommands.Command.
func (*Probe) Usage() string {
	return "probe [flags]\n"
}

// SetFlags implements subcommands.Command.
func (p *Probe) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.path, "device", "", "device node, overriding the configured path.")
}

// Execute implements subcommands.Command.Execute.
func (p *Probe) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	options, err := loadOptions()
	if err != nil {
		return fatalf("error loading options: %v", err)
	}
	path := options.DevicePath
	if p.path != "" {
		path = p.path
	}

	device, err := drm.Opener{Logger: newLogger()}.Open(ctx, path)
	if err != nil {
		return fatalf("error opening %s: %v", path, err)
	}
	defer device.Close()

	version, err := device.Version()
	if err != nil {
		return fatalf("error querying version: %v", err)
	}
	memory, err := device.MemoryInfo()
	if err != nil {
		return fatalf("error querying memory sizes: %v", err)
	}

	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("Path").String(path)
	v := obj.Name("Version").Object()
	v.Name("Name").String(version.Name)
	v.Name("Major").Int(version.Major)
	v.Name("Minor").Int(version.Minor)
	v.Name("Patch").Int(version.Patch)
	v.Name("Date").String(version.Date)
	v.End()
	m := obj.Name("Memory").Object()
	m.Name("VRAMSize").Int(memory.VRAMSize)
	m.Name("VRAMVisible").Int(memory.VRAMVisible)
	m.Name("GARTSize").Int(memory.GARTSize)
	m.End()
	obj.End()
	fmt.Println(string(w.Bytes()))
	return subcommands.ExitSuccess
}
