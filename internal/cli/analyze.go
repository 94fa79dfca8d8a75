package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/internal/display"
	"github.com/dyike/tradeflow/internal/workflow"
	"github.com/dyike/tradeflow/models"
)

type analyzeOptions struct {
	date        string
	analysts    string
	depth       string
	debate      int
	risk        int
	offline     bool
	interactive bool
	quiet       bool
}

// newAnalyzeCmd creates the analyze command
func newAnalyzeCmd(e *env) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [SYMBOL]",
		Short: "Run trading analysis for a stock symbol",
		Long: `Run the full agent pipeline for a ticker and a trade date.
Without a symbol, or with --interactive, the missing choices are prompted.
Ctrl-C stops the run at the next step boundary; a second Ctrl-C aborts.
Example: tradeflow analyze NVDA --date=2024-05-10 --analysts=market,news`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, e, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.date, "date", "", "Analysis date in YYYY-MM-DD format (today if not provided)")
	cmd.Flags().StringVar(&opts.analysts, "analysts", "", "Comma separated analysts: market,social,news,fundamentals")
	cmd.Flags().StringVar(&opts.depth, "depth", "", "Research depth: shallow, medium or deep")
	cmd.Flags().IntVar(&opts.debate, "debate-rounds", -1, "Research debate rounds (overrides depth)")
	cmd.Flags().IntVar(&opts.risk, "risk-rounds", -1, "Risk debate rounds (overrides depth)")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use cached data tools only")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Prompt for every choice")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print only the final report")
	return cmd
}

// resolve applies flags, then prompts, onto the configured run settings.
func (o *analyzeOptions) resolve(base config.RunConfig, args []string) (string, time.Time, config.RunConfig, error) {
	rc := base
	var ticker string
	if len(args) > 0 {
		ticker = args[0]
	}
	prompting := o.interactive || ticker == ""

	if ticker == "" {
		t, err := PromptForTicker()
		if err != nil {
			return "", time.Time{}, rc, err
		}
		ticker = t
	} else if err := validateTicker(ticker); err != nil {
		return "", time.Time{}, rc, err
	}

	var (
		date time.Time
		err  error
	)
	if o.date == "" && prompting {
		date, err = PromptForAnalysisDate()
	} else {
		date, err = parseAnalysisDate(o.date, time.Now())
	}
	if err != nil {
		return "", time.Time{}, rc, err
	}

	switch {
	case o.analysts != "":
		if rc.SelectedAnalysts, err = parseAnalysts(o.analysts); err != nil {
			return "", time.Time{}, rc, err
		}
	case prompting:
		if rc.SelectedAnalysts, err = PromptForAnalysts(base.SelectedAnalysts); err != nil {
			return "", time.Time{}, rc, err
		}
	}

	depth := ResearchDepth(strings.ToLower(o.depth))
	if depth == "" && prompting {
		if depth, err = PromptForResearchDepth(); err != nil {
			return "", time.Time{}, rc, err
		}
	}
	if depth != "" {
		rc.MaxDebateRounds = depth.Rounds()
		rc.MaxRiskDiscussRounds = depth.Rounds()
	}
	if o.debate >= 0 {
		rc.MaxDebateRounds = o.debate
	}
	if o.risk >= 0 {
		rc.MaxRiskDiscussRounds = o.risk
	}
	if o.offline {
		rc.OnlineTools = false
	}
	return strings.ToUpper(strings.TrimSpace(ticker)), date, rc, rc.Validate()
}

func summary(ticker string, date time.Time, rc config.RunConfig) string {
	return fmt.Sprintf(`Analysis configuration
  Ticker:         %s
  Date:           %s
  Analysts:       %s
  Debate rounds:  %d research, %d risk
  Tools:          %s`,
		ticker, date.Format(time.DateOnly), strings.Join(rc.SelectedAnalysts, ", "),
		rc.MaxDebateRounds, rc.MaxRiskDiscussRounds, toolMode(rc.OnlineTools))
}

func toolMode(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

// runAnalyze executes the main analysis workflow
func runAnalyze(cmd *cobra.Command, e *env, opts *analyzeOptions, args []string) error {
	base := e.mgr.Get().RunConfig()
	ticker, date, rc, err := opts.resolve(base, args)
	if err != nil {
		return err
	}
	if opts.interactive {
		ok, err := PromptForConfirmation(summary(ticker, date, rc))
		if err != nil || !ok {
			return err
		}
	}

	rt, err := e.runtime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	p := display.NewPrinter(cmd.OutOrStdout())
	p.Title(fmt.Sprintf("Starting analysis for %s on %s", ticker, date.Format(time.DateOnly)))
	sess, err := rt.Start(ctx, ticker, date, &rc)
	if err != nil {
		return err
	}

	// first interrupt stops at the next boundary, the second one aborts
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			p.Info("Stopping after the current step, press Ctrl-C again to abort")
			sess.Run.Cancel()
		case <-sess.Run.Done():
			return
		}
		select {
		case <-sig:
			cancel()
		case <-sess.Run.Done():
		}
	}()

	progress := display.NewProgress(rc.SelectedAnalysts)
	res, perr := sess.Stream(func(c workflow.Chunk) {
		progress.Observe(c)
		if !opts.quiet {
			p.Chunk(c)
		}
	})

	fmt.Fprintln(cmd.OutOrStdout())
	p.Panel(progress.Render())
	p.Result(res)
	for _, path := range sess.Reports() {
		p.Info("Report written: " + path)
	}
	if perr != nil {
		p.Error(fmt.Errorf("run %s was not fully recorded: %w", res.RunID, perr))
	}

	switch res.Status {
	case models.StatusFailed:
		return fmt.Errorf("analysis failed: %w", res.Err)
	case models.StatusStopped:
		p.Info(fmt.Sprintf("Run %s stopped early", res.RunID))
	default:
		p.Success(fmt.Sprintf("Run %s completed: %s", res.RunID, res.Action))
	}
	return nil
}
