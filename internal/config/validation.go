package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"wcscan/internal/logging"
	"wcscan/pkg/memscan"
)

func (c *Config) Validate() error {
	s := c.Scanner
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("scanner.min_confidence %v outside [0, 1]", s.MinConfidence)
	}
	if s.NullPenalty < 0 || s.MisalignPenalty < 0 {
		return fmt.Errorf("scanner penalties must not be negative")
	}
	if s.ContextWindow < 0 {
		return fmt.Errorf("scanner.context_window %d must not be negative", s.ContextWindow)
	}
	if s.Alignment < 1 {
		return fmt.Errorf("scanner.alignment %d must be at least 1", s.Alignment)
	}
	if s.MaxRegionSize == 0 {
		return fmt.Errorf("scanner.max_region_size must be positive")
	}
	if s.ReadTimeout < 0 {
		return fmt.Errorf("scanner.read_timeout %v must not be negative", s.ReadTimeout)
	}
	return nil
}

func (c *Config) Scorer() memscan.Scorer {
	return memscan.Scorer{
		NullPenalty:     c.Scanner.NullPenalty,
		MisalignPenalty: c.Scanner.MisalignPenalty,
		Window:          c.Scanner.ContextWindow,
		Alignment:       c.Scanner.Alignment,
	}
}

// ScannerOptions translates the scanner section into memscan options.
func (c *Config) ScannerOptions(logger zerolog.Logger) []memscan.Option {
	return []memscan.Option{
		memscan.WithLogger(logger),
		memscan.WithScorer(c.Scorer()),
		memscan.WithClassifier(memscan.Classifier{MaxRegionSize: c.Scanner.MaxRegionSize}),
		memscan.WithMinConfidence(c.Scanner.MinConfidence),
		memscan.WithReadTimeout(c.Scanner.ReadTimeout),
	}
}

// Patterns returns the configured catalog, or the built-in one.
func (c *Config) Patterns() ([]memscan.ScanPattern, error) {
	if c.Catalog == "" {
		return memscan.DefaultCatalog(), nil
	}
	ps, err := memscan.LoadCatalogFile(c.Catalog)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", c.Catalog, err)
	}
	return ps, nil
}

func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Pretty = c.Log.Pretty
	return cfg
}
