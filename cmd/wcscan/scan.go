package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	ierrors "wcscan/internal/errors"
	"wcscan/pkg/memscan"
)

func newScanCmd(g *globals) *cobra.Command {
	var (
		out         string
		analyze     bool
		analyzeSize int
		all         bool
	)

	cmd := &cobra.Command{
		Use:   "scan <pid>",
		Short: "Scan a process for the configured signatures",
		Long: `Scan every candidate region of the process (committed, writable, private,
at most scanner.max_region_size bytes) for the configured signatures and
print the addresses that meet scanner.min_confidence (--all prints every
match). The report written by --out always holds every match. Interrupting
the scan keeps the results found so far.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			proc, err := openPID(args[0])
			if err != nil {
				return err
			}
			defer ierrors.DeferClose(g.log, proc, "failed to close process")

			s, err := g.newScanner(g.log)
			if err != nil {
				return err
			}

			started := time.Now()
			found, scanErr := s.Scan(ctx, proc)
			if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
				g.log.Error().Err(scanErr).Msg("scan stopped")
			}

			shown := found
			if !all {
				shown = aboveThreshold(found, g.cfg.Scanner.MinConfidence)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PATTERN\tADDRESS\tCONFIDENCE\tDESCRIPTION")
			for _, f := range shown {
				_, _ = fmt.Fprintf(w, "%s\t0x%X\t%.2f\t%s\n", f.PatternName, f.Address, f.Confidence, f.Description)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if hidden := len(found) - len(shown); hidden > 0 {
				g.log.Info().Int("hidden", hidden).Float64("min_confidence", g.cfg.Scanner.MinConfidence).
					Msg("matches below threshold not shown, use --all")
			}

			if analyze {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				for _, f := range shown {
					a, err := s.Analyze(ctx, proc, f, analyzeSize)
					if err != nil {
						g.log.Warn().Err(err).Uint64("address", f.Address).Msg("analyze failed")
						continue
					}
					if err := enc.Encode(a); err != nil {
						return err
					}
				}
			}

			if out != "" {
				rep := memscan.NewReport(proc.PID(), started, s, scanErr)
				if err := rep.WriteFile(out); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				g.log.Info().Str("path", out).Str("id", rep.ID.String()).Msg("report written")
			}
			return scanErr
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write a JSON report to this file")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "Decode the structure behind each hit")
	cmd.Flags().IntVar(&analyzeSize, "analyze-size", memscan.DefaultAnalyzeSize, "Bytes to decode per hit")
	cmd.Flags().BoolVar(&all, "all", false, "Print matches below scanner.min_confidence too")
	return cmd
}

func aboveThreshold(found []memscan.FoundAddress, minConfidence float64) []memscan.FoundAddress {
	out := make([]memscan.FoundAddress, 0, len(found))
	for _, f := range found {
		if f.Confidence >= minConfidence {
			out = append(out, f)
		}
	}
	return out
}
