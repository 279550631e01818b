package main

import (
	"fmt"

	"github.com/spf13/cobra"

	ierrors "wcscan/internal/errors"
	"wcscan/pkg/memscan"
)

func newResolveCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <pid> <base> [offset...]",
		Short: "Follow a 32-bit pointer chain",
		Long: `Follow a pointer chain: for each offset, read the 32-bit little-endian
pointer at the current address and add the offset. Addresses accept 0x
prefixes, an h suffix and underscores.`,
		Example: "  wcscan resolve 4242 0x6F000000 0x10 0x4",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			chain := memscan.PointerChain{}
			base, err := memscan.ParseAddress(args[1])
			if err != nil {
				return err
			}
			chain.Base = base
			for _, a := range args[2:] {
				off, err := memscan.ParseAddress(a)
				if err != nil {
					return err
				}
				chain.Offsets = append(chain.Offsets, off)
			}

			proc, err := openPID(args[0])
			if err != nil {
				return err
			}
			defer ierrors.DeferClose(g.log, proc, "failed to close process")

			addr, err := chain.Resolve(ctx, proc)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = 0x%X\n", chain, addr)
			return nil
		},
	}
	return cmd
}
