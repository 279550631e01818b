package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"wcscan/internal/config"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the wcscan configuration",
		Long: `Manage the wcscan configuration.

Values are resolved in this order (highest first):
  1. WCSCAN_* environment variables
  2. The config file (--config)
  3. Built-in defaults`,
	}
	cmd.AddCommand(newConfigInitCmd(g), newConfigViewCmd(g))
	return cmd
}

func newConfigInitCmd(g *globals) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the config file",
		Args:  cobra.NoArgs,
		// An existing file may be invalid; init must not depend on loading it.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, g.configPath, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func initConfig(cmd *cobra.Command, path string, force bool) error {
	if path == "" {
		return errors.New("no config path: pass --config")
	}
	if !force {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

func newConfigViewCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(g.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
