package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jrsteele09/lm-mcp-gateway/internal/config"
	"github.com/jrsteele09/lm-mcp-gateway/internal/logging"
	"github.com/jrsteele09/lm-mcp-gateway/scopes"
	"github.com/jrsteele09/lm-mcp-gateway/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lm-mcp",
		Short:         "MCP gateway with OAuth 2.1 access control",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("LM_MCP_CONFIG"), "Path to YAML config")
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Logging level (debug, info, warn, error); overrides the config")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the gateway on the configured transport",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "scopes",
			Short: "List the scopes each tool requires",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				printScopes(cmd)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				cmd.Println(version)
			},
		},
	)
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	displayAppname(cfg.AppName)

	if err := run(cmd.Context(), cfg); err != nil {
		log.Err(err).Msg("gateway stopped with an error")
		return err
	}
	log.Info().Msg("gateway stopped")
	return nil
}

func printScopes(cmd *cobra.Command) {
	manager := tools.NewScopeManager()

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"TOOL", "REQUIRED SCOPES"})
	for _, tool := range manager.Tools() {
		t.AppendRow(table.Row{tool, strings.Join(manager.RequiredFor(tool), " ")})
	}
	t.Render()

	described := make([]string, 0, len(scopes.Descriptions))
	for scope := range scopes.Descriptions {
		described = append(described, scope)
	}
	sort.Strings(described)

	d := table.NewWriter()
	d.SetOutputMirror(cmd.OutOrStdout())
	d.SetStyle(table.StyleRounded)
	d.AppendHeader(table.Row{"SCOPE", "DESCRIPTION"})
	for _, scope := range described {
		d.AppendRow(table.Row{scope, scopes.Descriptions[scope]})
	}
	d.Render()
}

// displayAppname prints the banner to stderr so stdio transports keep stdout clean.
func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(os.Stderr, myFigure.String())
}
