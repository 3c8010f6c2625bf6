package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/ranking"
	"github.com/eddiefleurent/strike_engine/internal/scanner"
	"github.com/eddiefleurent/strike_engine/internal/storage"
)

func newScanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [symbol...]",
		Short: "Build and rank strategies for each symbol",
		Long: `Fetch a snapshot per symbol, fit the volatility smile, build every strategy
the direction policy allows and rank the results.

Symbols default to scanner.symbols from the configuration.`,
		Example: `  scanner scan SPY QQQ
  scanner scan --config config.yaml --json
  scanner scan IWM --workers 2 --timeout 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := args
			if len(symbols) == 0 {
				symbols = a.cfg.Scanner.Symbols
			}
			if len(symbols) == 0 {
				return fmt.Errorf("no symbols given and scanner.symbols is empty")
			}

			scanCfg := a.cfg.Scanner.Config
			if cmd.Flags().Changed("workers") {
				scanCfg.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("timeout") {
				scanCfg.SymbolTimeout, _ = cmd.Flags().GetDuration("timeout")
			}

			provider, err := newProvider(a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("market data: %w", err)
			}
			eng, err := newEngine(a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("engine: %w", err)
			}
			store, err := storage.NewStorage(a.cfg.Storage.Backend, a.cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("storage: %w", err)
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					a.logger.Warn().Err(cerr).Msg("failed to close storage")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := scanner.New(provider, eng, ranking.NewSmileAwareRanker(a.cfg.Ranking), store, scanCfg, a.logger)
			report, err := s.Scan(ctx, symbols)
			if err != nil && report == nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
					return werr
				}
			} else {
				writeReport(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}

			if failed := len(report.Failures()); failed == len(report.Results) && failed > 0 {
				return fmt.Errorf("all %d symbols failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().Int("workers", 0, "concurrent symbols (overrides scanner.workers)")
	cmd.Flags().Duration("timeout", 0, "per-symbol deadline (overrides scanner.symbol_timeout)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeReport(w io.Writer, report *scanner.Report) {
	fmt.Fprintf(w, "Run %s  %d symbols  %s\n", report.RunID, len(report.Results), report.Duration.Round(time.Millisecond))

	for _, sym := range report.Symbols() {
		res := report.Results[sym]
		fmt.Fprintln(w)
		if res.Err != nil {
			fmt.Fprintf(w, "%s  FAILED: %v\n", sym, res.Err)
			continue
		}
		an := res.Analysis
		em := an.ExpectedMove
		fmt.Fprintf(w, "%s  spot %.2f  %s  ATM IV %.1f%%  IV rank %.0f%%  1σ %.2f [%.2f, %.2f]  smile %s\n",
			sym, an.Spot, an.Direction, an.ATMIV*100, an.IVRank*100, em.OneSD, em.Lower1SD, em.Upper1SD, an.Smile.Quality)

		built := len(an.Strategies)
		fmt.Fprintf(w, "  built %d of %d attempted", built, len(an.Outcomes))
		var failed []string
		for _, o := range an.Outcomes {
			if !o.Success {
				failed = append(failed, fmt.Sprintf("%s (%s)", o.Strategy, o.Reason))
			}
		}
		if len(failed) > 0 {
			fmt.Fprintf(w, "; skipped %s", strings.Join(failed, ", "))
		}
		fmt.Fprintln(w)

		if len(res.Ranked) == 0 {
			continue
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  #\tSTRATEGY\tSTRIKES\tPREMIUM\tMAX PROFIT\tMAX LOSS\tPOP\tSCORE")
		for _, r := range res.Ranked {
			st := r.Strategy
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%.2f\t%s\t%s\t%.1f%%\t%.3f\n",
				r.Rank, st.Name, legStrikes(st), st.NetPremium, money(st.MaxProfit), money(st.MaxLoss),
				st.ProbabilityOfProfit*100, r.Score)
		}
		_ = tw.Flush()
	}
}

func legStrikes(s *models.Strategy) string {
	parts := make([]string, 0, len(s.Legs))
	for _, l := range s.Legs {
		sign := "+"
		if l.Side == models.Short {
			sign = "-"
		}
		suffix := "C"
		if l.Type == models.Put {
			suffix = "P"
		}
		parts = append(parts, fmt.Sprintf("%s%g%s", sign, l.Strike, suffix))
	}
	return strings.Join(parts, "/")
}

func money(v float64) string {
	if models.IsUnbounded(v) {
		return "unlimited"
	}
	return fmt.Sprintf("%.2f", v)
}
