package fdxcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"filedex/internal/model"
)

func newReportCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "storage reports",
	}
	cmd.AddCommand(
		newReportDuplicatesCmd(flags),
		newReportLargeCmd(flags),
		newReportOldCmd(flags),
	)
	return cmd
}

func newReportDuplicatesCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "groups of files with identical content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			var resp struct {
				Groups []model.DuplicateGroup `json:"groups"`
			}
			if err := c.Call("report.duplicates", map[string]any{"limit": limit}, &resp); err != nil {
				return err
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Groups) == 0 {
				fmt.Fprintln(out, "no duplicates found")
				return nil
			}
			for _, g := range resp.Groups {
				fmt.Fprintf(out, "%s  %d copies\n", humanSize(g.SizeBytes), len(g.Paths))
				for _, p := range g.Paths {
					fmt.Fprintf(out, "    %s\n", p)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max groups")
	return cmd
}

func newReportLargeCmd(flags *rootFlags) *cobra.Command {
	var (
		minMB int64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "large",
		Short: "largest indexed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			var resp struct {
				Files []model.FileRecord `json:"files"`
			}
			params := map[string]any{"min_size_bytes": minMB << 20, "limit": limit}
			if err := c.Call("report.large", params, &resp); err != nil {
				return err
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderFiles(cmd.OutOrStdout(), resp.Files)
			return nil
		},
	}

	cmd.Flags().Int64Var(&minMB, "min-mb", 100, "minimum size in MiB")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max results")
	return cmd
}

func newReportOldCmd(flags *rootFlags) *cobra.Command {
	var (
		days  int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "old",
		Short: "files untouched the longest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			var resp struct {
				Files []model.FileRecord `json:"files"`
			}
			if err := c.Call("report.old", map[string]any{"days": days, "limit": limit}, &resp); err != nil {
				return err
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderFiles(cmd.OutOrStdout(), resp.Files)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 365, "minimum age in days")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max results")
	return cmd
}
