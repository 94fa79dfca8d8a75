package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/internal/app"
	"github.com/dyike/tradeflow/internal/display"
	"github.com/dyike/tradeflow/internal/logging"
)

// env is what every command shares once flags are parsed.
type env struct {
	configPath string
	logLevel   string

	mgr *config.Manager
	log *logrus.Logger
}

func (e *env) setup(cmd *cobra.Command) error {
	mgr, err := config.NewManager(config.WithConfigPath(e.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	level := cfg.LogLevel
	if e.logLevel != "" {
		level = e.logLevel
	} else if cfg.Debug {
		level = "debug"
	}
	e.log = logging.New(level, cfg.LogFormat, cmd.ErrOrStderr())
	e.mgr = mgr
	return nil
}

func (e *env) runtime() (*app.Runtime, error) {
	return app.NewRuntime(e.mgr, app.WithLogger(e.log))
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:   "tradeflow",
		Short: "tradeflow - multi-agent trading analysis",
		Long: `tradeflow runs a fixed team of language-model agents over a ticker and a date:
analysts gather data, researchers debate, a trader proposes and a risk team
decides. Every step is streamed and recorded.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd)
		},
	}

	rootCmd.AddCommand(newAnalyzeCmd(e))
	rootCmd.AddCommand(newReflectCmd(e))
	rootCmd.AddCommand(newRunsCmd(e))
	rootCmd.AddCommand(newServeCmd(e))
	rootCmd.AddCommand(newConfigCmd(e))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&e.configPath, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "Override the configured log level")

	return rootCmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tradeflow %s\n", Version)
		},
	}
}

// newConfigCmd creates the config command
func newConfigCmd(e *env) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.mgr.Get()
			if asJSON {
				return writeRedactedJSON(cmd.OutOrStdout(), cfg)
			}
			showConfig(cmd.OutOrStdout(), e.mgr.Path(), cfg)
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "Print the configuration as JSON")
	configCmd.AddCommand(show)

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), e.mgr.Get())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), e.mgr.Path())
		},
	})

	return configCmd
}

func writeRedactedJSON(w io.Writer, cfg config.Config) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg.Redact())
}

// showConfig displays the current configuration
func showConfig(w io.Writer, path string, cfg config.Config) {
	p := display.NewPrinter(w)
	p.Title("Current tradeflow configuration")

	lines := []string{
		fmt.Sprintf("Config File:          %s", path),
		fmt.Sprintf("Results Directory:    %s", cfg.ResultsDir),
		fmt.Sprintf("Data Directory:       %s", cfg.DataDir),
		fmt.Sprintf("Memory DB:            %s", orNone(cfg.MemoryDBPath)),
		fmt.Sprintf("Runs DB:              %s", orNone(cfg.RunsDBPath)),
		"",
		fmt.Sprintf("LLM Provider:         %s", cfg.LLMProvider),
		fmt.Sprintf("Deep Think Model:     %s", cfg.DeepThinkLLM),
		fmt.Sprintf("Quick Think Model:    %s", cfg.QuickThinkLLM),
		fmt.Sprintf("Backend URL:          %s", cfg.BackendURL),
		fmt.Sprintf("LLM API Key:          %s", configured(cfg.LLMAPIKey)),
		"",
		fmt.Sprintf("Analysts:             %s", strings.Join(cfg.SelectedAnalysts, ", ")),
		fmt.Sprintf("Max Debate Rounds:    %d", cfg.MaxDebateRounds),
		fmt.Sprintf("Max Risk Rounds:      %d", cfg.MaxRiskDiscussRounds),
		fmt.Sprintf("Max Tool Iterations:  %d", cfg.MaxToolIterations),
		fmt.Sprintf("Online Tools:         %t", cfg.OnlineTools),
		"",
		fmt.Sprintf("Finnhub API:          %s", configured(cfg.FinnhubAPIKey)),
		fmt.Sprintf("Longport API:         %s", configured(cfg.LongportAccessToken)),
		fmt.Sprintf("Server Address:       %s", cfg.ServerAddr),
		fmt.Sprintf("Eino Debug:           %t", cfg.EinoDebugEnabled),
	}
	if cfg.EinoDebugEnabled {
		lines = append(lines, fmt.Sprintf("Debug URL:            http://localhost:%d", cfg.EinoDebugPort))
	}
	p.Panel(strings.Join(lines, "\n"))
}

// validateConfig validates the configuration and reports missing
// credentials as warnings.
func validateConfig(w io.Writer, cfg config.Config) error {
	p := display.NewPrinter(w)
	if err := cfg.Validate(); err != nil {
		p.Error(err)
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		p.Error(err)
		return fmt.Errorf("directory validation failed: %w", err)
	}

	var warnings []string
	if cfg.LLMAPIKey == "" {
		warnings = append(warnings, "LLM API key not configured")
	}
	if cfg.FinnhubAPIKey == "" {
		warnings = append(warnings, "Finnhub API key not configured, news and insider tools will fail")
	}
	if cfg.LongportAccessToken == "" {
		warnings = append(warnings, "Longport credentials not configured, market data uses Yahoo only")
	}
	for _, warning := range warnings {
		p.Info("warning: " + warning)
	}
	if len(warnings) == 0 {
		p.Success("Configuration validation completed successfully")
	} else {
		p.Success(fmt.Sprintf("Configuration valid with %d warnings", len(warnings)))
	}
	return nil
}

func configured(v string) string {
	if v == "" {
		return "not configured"
	}
	return "configured"
}

func orNone(v string) string {
	if v == "" {
		return "(in memory)"
	}
	return v
}
