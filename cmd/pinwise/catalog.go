package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pinwise/pinwise-go/pkg/catalog"
)

func newCatalogCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate component catalogs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List catalog components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.engine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			return listCatalog(cmd.OutOrStdout(), e.Catalog(), opts.jsonOut)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate catalog files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateCatalogs(cmd.OutOrStdout(), args)
		},
	})
	return cmd
}

type catalogRow struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Tier     int      `json:"tier"`
	Protocol string   `json:"protocol"`
	Voltage  string   `json:"voltage"`
	Slots    []string `json:"slots"`
}

func listCatalog(w io.Writer, c *catalog.Catalog, asJSON bool) error {
	var rows []catalogRow
	for _, spec := range c.All() {
		r := catalogRow{
			ID:       spec.ID,
			Name:     spec.Name,
			Tier:     spec.Tier,
			Protocol: string(spec.Protocol),
			Voltage:  string(spec.Voltage),
		}
		for i := range spec.Slots {
			r.Slots = append(r.Slots, spec.Slots[i].Name+": "+spec.Slots[i].Describe())
		}
		rows = append(rows, r)
	}
	if asJSON {
		return writeJSON(w, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIER\tPROTOCOL\tVOLTAGE\tSLOTS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.ID, r.Tier, r.Protocol, r.Voltage, strings.Join(r.Slots, "; "))
	}
	return tw.Flush()
}

func validateCatalogs(w io.Writer, paths []string) error {
	var failed int
	for _, path := range paths {
		c, err := catalog.LoadFile(path)
		if err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(w, "ok   %s: %d components, %d rules\n", path, c.Len(), len(c.Rules()))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d catalogs invalid", failed, len(paths))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
