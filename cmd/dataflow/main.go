// Command dataflow calls one analyst tool directly, the way an analyst
// would during a run, and prints its output.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/internal/dataflows"
	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/internal/tools"
)

func main() {
	var (
		analyst string
		tool    string
		args    string
		offline bool
		list    bool
	)
	cmd := &cobra.Command{
		Use:          "dataflow",
		Short:        "Call an analyst tool outside a run",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			cfg := config.DefaultConfig()
			log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

			registry := tools.NewRegistry(
				tools.ProvidersFrom(dataflows.NewSources(cfg, false, log)),
				tools.ProvidersFrom(dataflows.NewSources(cfg, true, log)),
			)
			ts, err := registry.For(ctx, analyst, !offline)
			if err != nil {
				return err
			}
			if list || tool == "" {
				for _, info := range ts.Infos() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.Name, info.Desc)
				}
				return nil
			}

			out, err := ts.Execute(ctx, tools.ToolName(tool, !offline), args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&analyst, "analyst", "market", "Analyst whose toolset is used")
	cmd.Flags().StringVar(&tool, "tool", "", "Base tool name, e.g. get_market_data")
	cmd.Flags().StringVar(&args, "args", "{}", `JSON arguments, e.g. {"ticker":"NVDA","start_date":"2024-05-01","end_date":"2024-05-10"}`)
	cmd.Flags().BoolVar(&offline, "offline", false, "Use the cached data variant")
	cmd.Flags().BoolVar(&list, "list", false, "List the analyst's tools")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
