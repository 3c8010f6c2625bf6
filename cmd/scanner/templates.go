package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/strike_engine/internal/models"
	"github.com/eddiefleurent/strike_engine/internal/strategy"
)

type templateView struct {
	Name        string             `json:"name"`
	Family      models.Family      `json:"family"`
	Premium     string             `json:"premium"`
	Description string             `json:"description"`
	Directions  []string           `json:"directions,omitempty"`
	Legs        []strategy.LegSpec `json:"legs"`
}

func newTemplatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the strategy templates and the directions that attempt them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.cfg.Registry()
			if err != nil {
				return err
			}

			directions := make(map[string][]string)
			for dir, names := range a.cfg.EngineConfig().Policy {
				for _, n := range names {
					directions[n] = append(directions[n], string(dir))
				}
			}

			views := make([]templateView, 0, len(reg.Names()))
			for _, name := range reg.Names() {
				t, err := reg.Get(name)
				if err != nil {
					return err
				}
				dirs := directions[name]
				sort.Strings(dirs)
				views = append(views, templateView{
					Name:        t.Name,
					Family:      t.Family,
					Premium:     t.Premium.String(),
					Description: t.Description,
					Directions:  dirs,
					Legs:        t.Legs,
				})
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), views)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFAMILY\tPREMIUM\tDIRECTIONS\tLEGS\tDESCRIPTION")
			for _, v := range views {
				legs := make([]string, 0, len(v.Legs))
				for _, l := range v.Legs {
					legs = append(legs, l.Name)
				}
				dirs := strings.Join(v.Directions, ",")
				if dirs == "" {
					dirs = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", v.Name, v.Family, v.Premium, dirs, strings.Join(legs, ","), v.Description)
			}
			return tw.Flush()
		},
	}
}
