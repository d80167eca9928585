package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pinwise/pinwise-go/pkg/compat"
)

func newRulesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect compatibility rules",
	}

	var category string
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rules with their effective severity and state",
		Long: `Lists every compatibility rule in registration order, after the
config file's category switches, rule switches and severity overrides.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.engine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			reg := e.Registry()
			list := reg.AllRules()
			if category != "" {
				c, err := compat.ParseCategory(category)
				if err != nil {
					return err
				}
				list = reg.RulesByCategory(c)
			}
			return writeRules(cmd.OutOrStdout(), reg, list, opts.jsonOut)
		},
	})
	cmd.PersistentFlags().StringVar(&category, "category", "", "Only rules of this category")
	return cmd
}

type ruleRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Enabled  bool   `json:"enabled"`
}

func writeRules(w io.Writer, reg *compat.Registry, list []compat.Rule, asJSON bool) error {
	rows := make([]ruleRow, len(list))
	for i, r := range list {
		rows[i] = ruleRow{
			ID:       r.ID(),
			Name:     r.Name(),
			Category: string(r.Category()),
			Severity: reg.Severity(r.ID()).String(),
			Enabled:  reg.IsEnabled(r.ID()),
		}
	}
	if asJSON {
		return writeJSON(w, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tSEVERITY\tENABLED\tNAME")
	for _, r := range rows {
		state := "yes"
		if !r.Enabled {
			state = "no"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Category, r.Severity, state, r.Name)
	}
	return tw.Flush()
}
