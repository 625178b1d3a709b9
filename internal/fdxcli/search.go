package fdxcli

import (
	"github.com/spf13/cobra"

	"filedex/internal/core/pipeline"
)

func newSearchCmd(flags *rootFlags) *cobra.Command {
	var (
		limit      int
		category   string
		extensions []string
		recent     int
		quick      bool
		noSemantic bool
		noRerank   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "search indexed files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			req := pipeline.Request{
				Query:       args[0],
				Limit:       limit,
				Category:    category,
				Extensions:  extensions,
				RecentHours: recent,
			}
			if noSemantic {
				off := false
				req.UseSemantic = &off
			}
			if noRerank {
				off := false
				req.UseRerank = &off
			}
			method := "search"
			if quick {
				method = "quick_search"
			}

			var resp pipeline.Response
			if err := c.Call(method, req, &resp); err != nil {
				return err
			}
			if flags.asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderHits(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "max results")
	cmd.Flags().StringVarP(&category, "category", "c", "", "filter by category (document, image, video, audio, code, archive, other)")
	cmd.Flags().StringSliceVarP(&extensions, "ext", "e", nil, "filter by extension")
	cmd.Flags().IntVar(&recent, "recent-hours", 0, "only files modified in the last N hours")
	cmd.Flags().BoolVarP(&quick, "quick", "q", false, "lexical stage only")
	cmd.Flags().BoolVar(&noSemantic, "no-semantic", false, "skip the semantic stage for this query")
	cmd.Flags().BoolVar(&noRerank, "no-rerank", false, "skip the rerank stage for this query")
	return cmd
}
