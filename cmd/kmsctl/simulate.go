package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/subcommands"
	"github.com/radeon-kms/adapter/driver"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/kms/simkms"
	"golang.org/x/exp/slog"
)

// Simulate implements subcommands.Command for the "simulate" command.
type Simulate struct {
	vramMiB  int
	gartMiB  int
	width    int
	height   int
	outputs  int
	deviceID uint
	fault    string
	vtSwitch bool
}

// Name implements subcommands.Command.
func (*Simulate) Name() string {
	return "simulate"
}

// Synopsis implements subcommands.Command.
func (*Simulate) Synopsis() string {
	return "runs a screen lifecycle against the simulated kernel"
}

// Usage implements subcommands.Command.
func (*Simulate) Usage() string {
	return "simulate [flags]\n"
}

// SetFlags implements subcommands.Command.
func (s *Simulate) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.vramMiB, "vram", 32, "simulated VRAM in MiB.")
	f.IntVar(&s.gartMiB, "gart", 64, "simulated GART aperture in MiB.")
	f.IntVar(&s.width, "width", 1024, "virtual screen width in pixels.")
	f.IntVar(&s.height, "height", 768, "virtual screen height in pixels.")
	f.IntVar(&s.outputs, "outputs", 1, "number of active outputs.")
	f.UintVar(&s.deviceID, "chip", 0x5159, "PCI device id.")
	f.StringVar(&s.fault, "fault", "", "kernel call to fail, e.g. SetMaster or CreateBuffer.")
	f.BoolVar(&s.vtSwitch, "vt-switch", false, "leave and re-enter the VT after initialization.")
}

// Execute implements subcommands.Command.Execute.
func (s *Simulate) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	options, err := loadOptions()
	if err != nil {
		return fatalf("error loading options: %v", err)
	}

	device := simkms.New(kms.MemoryInfo{VRAMSize: s.vramMiB << 20, GARTSize: s.gartMiB << 20})
	if s.fault != "" {
		device.InjectFault(simkms.Op(s.fault), errors.Newf("simulated %s failure", s.fault))
	}

	logger := newLogger()
	screen, err := driver.New(logger, nil, device.Opener(), driver.NewChipTable(driver.KnownChips...), options)
	if err != nil {
		return fatalf("error creating screen: %v", err)
	}

	mode := kms.Mode{
		Name:     fmt.Sprintf("%dx%d", s.width, s.height),
		HDisplay: uint16(s.width),
		VDisplay: uint16(s.height),
	}
	request := driver.PreInitRequest{
		DeviceID:     uint16(s.deviceID),
		Width:        s.width,
		Height:       s.height,
		BitsPerPixel: 32,
		Depth:        24,
		Modes:        []kms.Mode{mode},
	}
	for i := 0; i < s.outputs; i++ {
		request.Outputs = append(request.Outputs, driver.OutputRequest{CRTC: uint32(i), Connectors: []uint32{uint32(i + 1)}})
	}

	if err := screen.Initialize(ctx, request); err != nil {
		fmt.Println(screen.BuildStatsString())
		return fatalf("initialization failed, live buffers %d, device closed %t: %v",
			device.LiveBuffers(), device.Closed(), err)
	}

	if s.vtSwitch {
		screen.LeaveVT()
		device.ResetDisplay()
		if err := screen.EnterVT(); err != nil {
			logger.Error("EnterVT failed", slog.Any("error", err))
		}
	}
	screen.BlockHandler(nil)

	fmt.Println(screen.BuildStatsString())
	if err := printMetrics(screen); err != nil {
		return fatalf("error gathering metrics: %v", err)
	}

	if err := screen.FreeScreen(); err != nil {
		return fatalf("teardown failed: %v", err)
	}
	return subcommands.ExitSuccess
}

func printMetrics(screen *driver.Screen) error {
	families, err := screen.Metrics().Gather()
	if err != nil {
		return err
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			var labels []string
			for _, label := range metric.GetLabel() {
				labels = append(labels, label.GetName()+"="+label.GetValue())
			}

			value := metric.GetGauge().GetValue()
			if metric.GetCounter() != nil {
				value = metric.GetCounter().GetValue()
			}
			fmt.Printf("%s{%s} %g\n", family.GetName(), strings.Join(labels, ","), value)
		}
	}
	return nil
}
