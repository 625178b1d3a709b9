package fdxcli

import (
	"github.com/spf13/cobra"

	"filedex/internal/model"
)

func newDeletedCmd(flags *rootFlags) *cobra.Command {
	var (
		limit    int
		query    string
		daysBack int
		stats    bool
	)

	cmd := &cobra.Command{
		Use:   "deleted",
		Short: "inspect deletion history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			if stats {
				var st model.DeletionStats
				if err := c.Call("deletion.stats", nil, &st); err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(cmd.OutOrStdout(), st)
				}
				renderDeletionStats(cmd.OutOrStdout(), st)
				return nil
			}

			var resp struct {
				Deletions []model.DeletionRecord `json:"deletions"`
			}
			if query != "" {
				err = c.Call("deletion.search", map[string]any{"query": query, "days_back": daysBack}, &resp)
			} else {
				err = c.Call("deletion.recent", map[string]any{"limit": limit}, &resp)
			}
			if err != nil {
				return err
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderDeletions(cmd.OutOrStdout(), resp.Deletions)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max results")
	cmd.Flags().StringVarP(&query, "query", "q", "", "search deleted files by name or path")
	cmd.Flags().IntVar(&daysBack, "days", 30, "search window in days")
	cmd.Flags().BoolVar(&stats, "stats", false, "show summary statistics")
	return cmd
}

func newMovedCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "moved",
		Short: "list recent file movements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			var resp struct {
				Movements []model.MovementRecord `json:"movements"`
			}
			if err := c.Call("movement.recent", map[string]any{"limit": limit}, &resp); err != nil {
				return err
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderMovements(cmd.OutOrStdout(), resp.Movements)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max results")
	return cmd
}
