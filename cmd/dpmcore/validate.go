package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drowningchild/dpmcore/internal/device"
)

func newValidateCmd() *cobra.Command {
	var manifest string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a device manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := device.LoadManifest(manifest)
			if err != nil {
				return err
			}
			var async int
			for _, d := range defs {
				if d.Async {
					async++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d devices (%d async) OK\n", manifest, len(defs), async)
			return nil
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "configs/devices.yaml", "device manifest to validate")
	return cmd
}
