// Command distill turns RSS/Atom feeds and article links into a Markdown
// digest of structured LLM summaries.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/distill/internal/config"
	"github.com/hoanghai1803/distill/internal/httpclient"
	"github.com/hoanghai1803/distill/internal/logging"
)

const defaultConfigPath = "distill.toml"

const usageGuide = `Usage:
  distill digest [OPTIONS]
  distill serve [--port N]
  distill init [--config PATH]

Examples:
  distill digest --feed https://example.com/rss --max-items 5
  distill digest --feeds-file feeds.txt --since 2026-02-01 --out digest-output/digest.md
  distill digest --url https://example.com/post --dry-run --json
  distill serve --history-db ~/.cache/distill-feed/history.db

Tips:
  - Use --help (or -h) to see all options.
  - --feed/--feeds-file and --url/--urls-file can be combined.
  - Output file name is date-suffixed automatically.
`

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		showUsage  bool
	)

	root := &cobra.Command{
		Use:           "distill",
		Short:         "Distill feed entries into a Markdown digest",
		Version:       httpclient.Version,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			if showUsage {
				fmt.Fprint(stdout, usageGuide)
				return
			}
			_ = cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to a TOML or YAML config file")
	root.Flags().BoolVar(&showUsage, "usage", false, "Show usage guide and examples")

	root.AddCommand(
		newDigestCmd(&configPath, stdout, stderr),
		newServeCmd(&configPath, stderr),
		newInitCmd(&configPath, stdout, stderr),
	)
	return root
}

func newInitCmd(configPath *string, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Run: func(cmd *cobra.Command, args []string) {
			if err := config.WriteDefault(*configPath); err != nil {
				fmt.Fprintf(stderr, "configuration error: %v\n", err)
				return
			}
			fmt.Fprintf(stdout, "wrote %s\n", *configPath)
		},
	}
}

// setupLogger installs the process logger on stderr.
func setupLogger(stderr io.Writer, verbose bool) {
	slog.SetDefault(logging.New(logging.Level(verbose), stderr))
}
