package fdxcli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"filedex/internal/config"
	"filedex/internal/fdxd"
	"filedex/internal/version"
)

type rootFlags struct {
	addr    string
	timeout time.Duration
	asJSON  bool
}

// NewRootCmd builds the fdx command tree. Every subcommand talks to a
// running daemon over the wire protocol.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "fdx",
		Short:         "query the filedex indexing daemon",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("fdx {{.Version}}\n")

	root.PersistentFlags().StringVar(&flags.addr, "addr", config.Default().Listen, "daemon address")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 5*time.Second, "dial timeout")
	root.PersistentFlags().BoolVar(&flags.asJSON, "json", false, "print raw JSON")

	root.AddCommand(
		newSearchCmd(flags),
		newRecentCmd(flags),
		newDeletedCmd(flags),
		newMovedCmd(flags),
		newReportCmd(flags),
		newScanCmd(flags),
		newStatusCmd(flags),
	)
	return root
}

func (f *rootFlags) dial() (*fdxd.Client, error) {
	c, err := fdxd.Dial(f.addr, f.timeout)
	if err != nil {
		return nil, fmt.Errorf("cannot reach daemon at %s (is fdxd running?): %w", f.addr, err)
	}
	return c, nil
}
