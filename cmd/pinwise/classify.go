package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pinwise/pinwise-go/pkg/classify"
)

func newClassifyCmd(opts *globalOptions) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "classify <batch.yaml>",
		Short: "Classify an observation batch",
		Long: `Reads a YAML batch of observations (digital traces, bus scan results,
1-Wire ids) and prints the ranked component hypotheses for each.

Example batch:

  observations:
    - trace: {pin: 17, pull: up, samples: "1111 1111"}
    - scan: {bus: i2c, address: 0x48, probe: {register: 0xd0, value: 0x58}}
    - onewire: {bus: w1, id: 28-00000a1b2c3d}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := classify.DecodeBatchFile(args[0])
			if err != nil {
				return err
			}
			e, err := opts.engine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			results := e.Classify(batch)
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), classificationJSON(results, top))
			}
			writeClassifications(cmd.OutOrStdout(), results, top)
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 3, "Hypotheses to show per observation (0 for all)")
	return cmd
}

type classificationRow struct {
	Observation string                `json:"observation"`
	Hypotheses  []classify.Hypothesis `json:"hypotheses"`
}

func limit(hs []classify.Hypothesis, n int) []classify.Hypothesis {
	if n > 0 && len(hs) > n {
		return hs[:n]
	}
	return hs
}

func classificationJSON(results []classify.Classification, top int) []classificationRow {
	rows := make([]classificationRow, len(results))
	for i, r := range results {
		rows[i] = classificationRow{Observation: r.Observation.String(), Hypotheses: limit(r.Hypotheses, top)}
	}
	return rows
}

func writeClassifications(w io.Writer, results []classify.Classification, top int) {
	for _, r := range results {
		fmt.Fprintf(w, "%s\n", r.Observation)
		if len(r.Hypotheses) == 0 {
			fmt.Fprintln(w, "  (not recognized)")
			continue
		}
		for i, h := range limit(r.Hypotheses, top) {
			fmt.Fprintf(w, "  %d. %-24s %.2f\n", i+1, h.SpecID, h.Confidence)
		}
	}
}
