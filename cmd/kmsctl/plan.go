package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/radeon-kms/adapter/budget"
)

// Plan implements subcommands.Command for the "plan" command.
type Plan struct {
	vramMiB int
	gartMiB int
	width   int
	height  int
	bpp     int
	outputs int
}

// Name implements subcommands.Command.
func (*Plan) Name() string {
	return "plan"
}

// Synopsis implements subcommands.Command.
func (*Plan) Synopsis() string {
	return "computes the video memory partition for a screen"
}

// Usage implements subcommands.Command.
func (*Plan) Usage() string {
	return "plan [flags]\n"
}

// SetFlags implements subcommands.Command.
func (p *Plan) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.vramMiB, "vram", 32, "CPU-visible VRAM in MiB.")
	f.IntVar(&p.gartMiB, "gart", 64, "GART aperture in MiB.")
	f.IntVar(&p.width, "width", 1024, "virtual screen width in pixels.")
	f.IntVar(&p.height, "height", 768, "virtual screen height in pixels.")
	f.IntVar(&p.bpp, "bpp", 32, "bits per pixel.")
	f.IntVar(&p.outputs, "outputs", 1, "number of active outputs.")
}

// Execute implements subcommands.Command.Execute.
func (p *Plan) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	options, err := loadOptions()
	if err != nil {
		return fatalf("error loading options: %v", err)
	}

	plan, err := budget.Plan(p.vramMiB<<20, p.gartMiB<<20, budget.Geometry{
		Width:        p.width,
		Height:       p.height,
		BitsPerPixel: p.bpp,
	}, p.outputs, options.BudgetOptions())
	if err != nil {
		return fatalf("error planning video memory: %v", err)
	}

	w := jwriter.NewWriter()
	obj := w.Object()
	plan.PrintParameters(&obj)
	obj.End()
	fmt.Println(string(w.Bytes()))
	return subcommands.ExitSuccess
}
