// Command rpkivet validates RPKI repository data against a set of trust
// anchors and emits router-consumable VRP output.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/rpkivet/pkg/rlog"
)

var (
	logLevel  string
	logFormat string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rpkivet",
		Short: "RPKI relying-party validator",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format: console or json")

	cobra.OnInitialize(func() {
		if err := rlog.Init(rlog.Config{Level: logLevel, Format: logFormat}); err != nil {
			fmt.Fprintf(os.Stderr, "rpkivet: invalid --log-level %q: %v\n", logLevel, err)
			os.Exit(1)
		}
	})

	root.AddCommand(newValidateCmd())
	root.AddCommand(newTalCmd())
	return root
}
