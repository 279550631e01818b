package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	ierrors "wcscan/internal/errors"
	"wcscan/pkg/memscan"
)

func newRegionsCmd(g *globals) *cobra.Command {
	var (
		candidates bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "regions <pid>",
		Short: "Enumerate the memory regions of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			proc, err := openPID(args[0])
			if err != nil {
				return err
			}
			defer ierrors.DeferClose(g.log, proc, "failed to close process")

			classifier := memscan.Classifier{MaxRegionSize: g.cfg.Scanner.MaxRegionSize}
			var out []memscan.MemoryRegion
			for r, err := range memscan.Enumerate(ctx, proc) {
				if err != nil {
					return fmt.Errorf("enumerate regions: %w", err)
				}
				if candidates && !classifier.IsCandidate(r) {
					continue
				}
				out = append(out, r)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "BASE\tSIZE\tPROTECTION\tSTATE\tKIND\tCANDIDATE")
			for _, r := range out {
				_, _ = fmt.Fprintf(w, "0x%012X\t%d\t%s\t%s\t%s\t%t\n",
					r.BaseAddress, r.Size, r.Protection, r.State, r.Kind, classifier.IsCandidate(r))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&candidates, "candidates", false, "Only show regions that would be scanned")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
