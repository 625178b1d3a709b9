package fdxcli

import (
	"github.com/spf13/cobra"

	"filedex/internal/model"
)

func newRecentCmd(flags *rootFlags) *cobra.Command {
	var (
		hours      int
		limit      int
		category   string
		extensions []string
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "list recently modified files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			params := map[string]any{"hours": hours, "limit": limit}
			if category != "" {
				params["category"] = category
			}
			if len(extensions) > 0 {
				params["extensions"] = extensions
			}

			var resp struct {
				Files []model.FileRecord `json:"files"`
			}
			if err := c.Call("recent", params, &resp); err != nil {
				return err
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderFiles(cmd.OutOrStdout(), resp.Files)
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "lookback window in hours")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "max results")
	cmd.Flags().StringVarP(&category, "category", "c", "", "filter by category")
	cmd.Flags().StringSliceVarP(&extensions, "ext", "e", nil, "filter by extension")
	return cmd
}
