package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/strike_engine/internal/marketdata"
)

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <symbol...>",
		Short: "Write synthetic snapshots as YAML files for the file source",
		Long: `Generate one synthetic market snapshot per symbol and write it to
<dir>/<SYMBOL>.yaml. The files can be edited and replayed with
market_data.source: file.`,
		Example: `  scanner snapshot SPY QQQ --out snapshots`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("out")
			if dir == "" {
				dir = a.cfg.MarketData.SnapshotDir
			}
			if dir == "" {
				return fmt.Errorf("no output directory: pass --out or set market_data.snapshot_dir")
			}

			provider := marketdata.NewSyntheticProvider(a.cfg.MarketData.Synthetic)
			for _, sym := range args {
				sym = strings.ToUpper(strings.TrimSpace(sym))
				snap, err := provider.Snapshot(cmd.Context(), sym)
				if err != nil {
					return fmt.Errorf("snapshot %s: %w", sym, err)
				}
				if err := marketdata.WriteSnapshot(dir, snap); err != nil {
					return err
				}
				a.logger.Info().Str("symbol", sym).Str("dir", dir).Int("quotes", len(snap.Chain.Quotes)).Msg("snapshot written")
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d quotes\tspot %.2f\n", sym, len(snap.Chain.Quotes), snap.Chain.Spot)
			}
			return nil
		},
	}
	cmd.Flags().String("out", "", "output directory (defaults to market_data.snapshot_dir)")
	return cmd
}
