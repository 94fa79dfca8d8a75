package cli

import (
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/tradeflow/internal/debug"
	"github.com/dyike/tradeflow/internal/display"
	"github.com/dyike/tradeflow/internal/server"
	"github.com/dyike/tradeflow/internal/storage"
	"github.com/dyike/tradeflow/internal/workflow"
	"github.com/dyike/tradeflow/pkg/sqlite"
)

// openStore opens the run store without building models.
func (e *env) openStore() (*storage.Store, error) {
	path := e.mgr.Get().RunsDBPath
	if strings.TrimSpace(path) == "" {
		path = sqlite.MemoryPath
	}
	return storage.Open(path)
}

func newRunsCmd(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := e.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print the report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := e.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			rec, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			state, err := store.FinalState(cmd.Context(), rec.ID)
			if err != nil {
				return err
			}
			display.NewPrinter(cmd.OutOrStdout()).Result(workflow.Result{
				RunID:  rec.ID,
				State:  state,
				Action: rec.Action,
				Status: rec.Status,
			})
			return nil
		},
	})
	return cmd
}

func printRuns(w io.Writer, runs []storage.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTICKER\tDATE\tSTATUS\tACTION\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Ticker, r.TradeDate, r.Status, r.Action, r.CreatedAt.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}

func newReflectCmd(e *env) *cobra.Command {
	var returns string
	cmd := &cobra.Command{
		Use:   "reflect RUN_ID",
		Short: "Store lessons from a finished run given its realized return",
		Long: `Reflect feeds the realized return of a run's decision back to the bull and
bear researchers, the trader and both judges. Each writes a lesson to its
memory, which later runs retrieve for similar situations.
Example: tradeflow reflect 5f0c... --returns=-0.031`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(returns, 64)
			if err != nil {
				return fmt.Errorf("invalid --returns %q: %w", returns, err)
			}
			rt, err := e.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			p := display.NewPrinter(cmd.OutOrStdout())
			lessons, err := rt.Reflect(cmd.Context(), args[0], value)
			for _, l := range lessons {
				p.Success(fmt.Sprintf("%s -> %s", l.Role, l.Partition))
			}
			if err != nil {
				return err
			}
			p.Info(fmt.Sprintf("%d lessons stored", len(lessons)))
			return nil
		},
	}
	cmd.Flags().StringVar(&returns, "returns", "", "Realized return of the decision, e.g. 0.042")
	_ = cmd.MarkFlagRequired("returns")
	return cmd
}

func newServeCmd(e *env) *cobra.Command {
	var (
		addr      string
		einoDebug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API and websocket stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.mgr.Get()
			if addr == "" {
				addr = cfg.ServerAddr
			}
			if einoDebug {
				cfg.EinoDebugEnabled = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := debug.NewEinoDebugger(&cfg, e.log).Initialize(ctx); err != nil {
				return err
			}

			rt, err := e.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()
			return server.New(rt, e.log).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (server_addr when empty)")
	cmd.Flags().BoolVar(&einoDebug, "eino-debug", false, "Start the eino visual debug plugin")
	return cmd
}
