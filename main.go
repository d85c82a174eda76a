package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// rootFlags 所有子命令共享的全局参数
type rootFlags struct {
	configPath string
	verbose    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "srsgen",
		Short: "Generate a Software Requirements Specification from a project description",
		Long: `srsgen drafts the six sections of an SRS with a text-generation backend,
renders activity, sequence and class diagrams with PlantUML, and writes a
numbered .docx document with a table of contents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default ./srsgen.yaml or $HOME/.config/srsgen/config.yaml)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logs")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides logging.level)")

	root.AddCommand(
		newGenerateCmd(flags),
		newRenderCmd(flags),
		newServeCmd(flags),
		newDiagramsCmd(flags),
	)
	return root
}
