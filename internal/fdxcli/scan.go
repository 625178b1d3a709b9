package fdxcli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScanCmd(flags *rootFlags) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "trigger an indexing cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			var resp struct {
				Kind      string `json:"kind"`
				Triggered bool   `json:"triggered"`
			}
			if err := c.Call("scan.trigger", map[string]any{"kind": kind}, &resp); err != nil {
				return err
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if resp.Triggered {
				fmt.Fprintf(cmd.OutOrStdout(), "%s scan triggered\n", resp.Kind)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s scan already running\n", resp.Kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "full", "cycle kind (full, incremental, cleanup)")
	return cmd
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			var resp map[string]any
			if err := c.Call("status", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}
