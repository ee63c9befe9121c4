// Command kmsctl inspects the radeon kernel modesetting driver core from the shell:
// it plans video memory for a screen, probes a real device, or runs a full screen
// lifecycle against the simulated kernel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/radeon-kms/adapter/config"
	"golang.org/x/exp/slog"
)

var (
	configPath = flag.String("config", "", "YAML file with driver options.")
	debug      = flag.Bool("debug", false, "log at debug level.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&Plan{}, "")
	subcommands.Register(&Simulate{}, "")
	registerPlatformCommands()

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))
}

func loadOptions() (config.Options, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	return config.Load(*configPath)
}

func fatalf(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}
