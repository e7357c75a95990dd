// dpmcore drives simulated devices through system power transitions and
// runs a reactive DVFS governor next to them.
//
//	dpmcore serve --config configs/config.yaml
//	dpmcore cycle --event suspend --trace
//	dpmcore validate --manifest configs/devices.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides the default configuration path.
const configEnv = "DPMCORE_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Each call returns a fresh tree so
// tests can run commands independently.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dpmcore",
		Short:         "Device power management orchestrator",
		Long:          "dpmcore sequences device suspend and resume callbacks across the prepare, suspend, noirq, resume and complete phases, and runs a step-table DVFS governor.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfig(), "path to config.yaml (env "+configEnv+")")

	root.AddCommand(
		newServeCmd(&configPath),
		newCycleCmd(&configPath),
		newValidateCmd(),
	)
	return root
}

// defaultConfig returns the configuration path used when --config is not
// given.
func defaultConfig() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
