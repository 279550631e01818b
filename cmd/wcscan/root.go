package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wcscan/internal/config"
	"wcscan/internal/logging"
	"wcscan/pkg/memscan"
	"wcscan/pkg/process"
)

// globals carries what every subcommand needs once flags are parsed.
type globals struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "wcscan",
		Short: "Locate Warcraft game structures in a running process",
		Long: `wcscan searches the private writable memory of a running Warcraft II or
Warcraft III client for known byte signatures, scores each hit and decodes
the structure behind it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load()
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", config.DefaultPath(), "Config file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newPsCmd(g),
		newRegionsCmd(g),
		newScanCmd(g),
		newResolveCmd(g),
		newReadCmd(g),
		newTUICmd(g),
		newConfigCmd(g),
	)
	return cmd
}

func (g *globals) load() error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	g.cfg = cfg
	g.log = logging.NewWithComponent(cfg.Logging(), "wcscan")
	return nil
}

// newScanner builds a scanner from the config and registers its catalog.
func (g *globals) newScanner(log zerolog.Logger) (*memscan.Scanner, error) {
	patterns, err := g.cfg.Patterns()
	if err != nil {
		return nil, err
	}
	s := memscan.NewScanner(g.cfg.ScannerOptions(log)...)
	if err := s.RegisterPatterns(patterns...); err != nil {
		return nil, err
	}
	return s, nil
}

func openPID(arg string) (*process.Process, error) {
	pid, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid pid %q: %w", arg, err)
	}
	return process.Open(uint32(pid))
}

// signalContext is cancelled on the first interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
