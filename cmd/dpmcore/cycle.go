package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/drowningchild/dpmcore/internal/dpm"
	"github.com/drowningchild/dpmcore/internal/infrastructure/config"
	"github.com/drowningchild/dpmcore/internal/infrastructure/logging"
)

// cycleFlags holds the options of the cycle command.
type cycleFlags struct {
	event    string
	manifest string
	sleep    time.Duration
	trace    bool
	sync     bool
}

func newCycleCmd(configPath *string) *cobra.Command {
	var f cycleFlags

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one transition against the manifest and print the callback order",
		Long: "cycle builds the devices from the manifest, runs a single suspend/resume " +
			"transition in-process, and prints the phase results followed by every " +
			"callback in the order it ran. It exits non-zero when the transition fails.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if f.manifest != "" {
				cfg.Power.Manifest = f.manifest
			}
			if cmd.Flags().Changed("sleep") {
				cfg.Power.SleepDuration = f.sleep
			}
			if f.sync {
				cfg.Power.Async = false
			}
			return cycle(cmd.Context(), cfg, logging.New(cfg.Logging, version), f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.event, "event", "suspend", "transition to run (freeze, suspend, hibernate, quiesce)")
	cmd.Flags().StringVar(&f.manifest, "manifest", "", "device manifest (defaults to power.manifest)")
	cmd.Flags().DurationVar(&f.sleep, "sleep", 0, "time spent asleep between suspend and resume")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "resume synchronously so the callback order is reproducible")
	cmd.Flags().BoolVar(&f.sync, "sync", false, "disable asynchronous suspend and resume")
	return cmd
}

// cycle runs a single transition and writes a report to out. A watchdog
// expiry is reported and releases the hung callbacks instead of aborting
// the process.
func cycle(ctx context.Context, cfg *config.Config, log *logging.Logger, f cycleFlags, out io.Writer) error {
	msg, err := dpm.ParseEvent(f.event)
	if err != nil {
		return err
	}

	release := make(chan struct{})
	var once sync.Once
	expire := func(dev *dpm.Device, _ []byte) {
		fmt.Fprintf(out, "watchdog: %s (%s) did not finish suspending within %v\n",
			dev.Name(), dev.Driver(), cfg.Power.WatchdogTimeout)
		once.Do(func() { close(release) })
	}

	st, err := buildStack(cfg, log, stackOptions{
		expire:  expire,
		release: release,
		trace:   f.trace,
	})
	if err != nil {
		return err
	}
	defer st.close()

	var sleep func(context.Context) error
	if d := cfg.Power.SleepDuration; d > 0 {
		sleep = func(ctx context.Context) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	tr, err := st.manager.Enter(ctx, msg, sleep)
	if tr != nil {
		printTransition(out, tr)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, st.recorder.Format())
	if st.regulator != nil {
		uv, mhz := st.regulator.Current()
		fmt.Fprintf(out, "\ndvfs: %d MHz at %d uV\n", mhz, uv)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", msg.Verb(), err)
	}
	return nil
}

func printTransition(out io.Writer, tr *dpm.Transition) {
	fmt.Fprintf(out, "transition %s: %s %s in %v\n",
		tr.ID, tr.Event, tr.Result, tr.Duration().Round(time.Microsecond))
	if tr.FailedDevice != "" {
		fmt.Fprintf(out, "  failed device: %s (rolled back: %v)\n", tr.FailedDevice, tr.RolledBack)
	}
	for _, p := range tr.Phases {
		line := fmt.Sprintf("  %-14s %-10s %v", p.Phase, p.Verb, p.Duration.Round(time.Microsecond))
		if p.Error != "" {
			line += "  error: " + p.Error
		}
		fmt.Fprintln(out, line)
	}
}
