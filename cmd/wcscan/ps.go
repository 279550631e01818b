package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wcscan/pkg/process"
)

func newPsCmd(g *globals) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ps [name...]",
		Short: "List Warcraft processes",
		Long: `List running processes whose name matches one of the known Warcraft
executables, or the given names. Use --all to list every process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := process.List()
			if err != nil {
				return fmt.Errorf("list processes: %w", err)
			}
			if !all {
				procs = process.Find(procs, args...)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PID\tPPID\tNAME\tEXE")
			for _, p := range procs {
				_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", p.PID, p.ParentPID, p.Name, p.Exe)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			g.log.Debug().Int("count", len(procs)).Msg("processes listed")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "List every process")
	return cmd
}
