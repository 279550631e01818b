package config

import (
	"time"

	"wcscan/pkg/memscan"
)

const DefaultReadTimeout = 2 * time.Second

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		Scanner: ScannerConfig{
			MinConfidence:   memscan.DefaultMinConfidence,
			NullPenalty:     memscan.DefaultScorer.NullPenalty,
			MisalignPenalty: memscan.DefaultScorer.MisalignPenalty,
			ContextWindow:   memscan.DefaultScorer.Window,
			Alignment:       memscan.DefaultScorer.Alignment,
			MaxRegionSize:   memscan.DefaultMaxRegionSize,
			ReadTimeout:     DefaultReadTimeout,
		},
	}
}
