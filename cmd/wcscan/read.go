package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	ierrors "wcscan/internal/errors"
	"wcscan/pkg/memscan"
)

func newReadCmd(g *globals) *cobra.Command {
	var (
		typ       string
		strMin    int
		asStrings bool
	)

	cmd := &cobra.Command{
		Use:   "read <pid> <addr> <size>",
		Short: "Read and decode process memory",
		Long: `Read size bytes at addr. Without --type the bytes are hex dumped; with
--type they are decoded as that structure (game_state, unit_data,
resource_data, ...) and printed as JSON.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			addr, err := memscan.ParseAddress(args[1])
			if err != nil {
				return err
			}
			size, err := strconv.Atoi(args[2])
			if err != nil || size <= 0 {
				return fmt.Errorf("invalid size %q", args[2])
			}
			var t memscan.AnalysisType
			if typ != "" {
				if t, err = memscan.ParseAnalysisType(typ); err != nil {
					return err
				}
			}

			proc, err := openPID(args[0])
			if err != nil {
				return err
			}
			defer ierrors.DeferClose(g.log, proc, "failed to close process")

			buf, err := memscan.ReadBytes(ctx, proc, addr, size)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asStrings:
				return json.NewEncoder(out).Encode(memscan.ExtractStrings(buf, strMin))
			case typ != "":
				return json.NewEncoder(out).Encode(memscan.Extract(buf, t))
			default:
				_, err = fmt.Fprint(out, hex.Dump(buf))
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "Decode as this structure type")
	cmd.Flags().BoolVar(&asStrings, "strings", false, "Print printable ASCII runs")
	cmd.Flags().IntVar(&strMin, "min-len", 4, "Minimum string length for --strings")
	return cmd
}
