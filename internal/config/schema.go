// Package config loads the wcscan configuration file.
package config

import "time"

// Config is the top-level configuration. Every field can be overridden by
// the environment variable named in its env tag.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Scanner ScannerConfig `yaml:"scanner"`
	// Catalog is an optional YAML pattern catalog. Empty selects the
	// built-in signatures.
	Catalog string `yaml:"catalog" env:"WCSCAN_CATALOG"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"WCSCAN_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"WCSCAN_LOG_PRETTY"`
}

type ScannerConfig struct {
	MinConfidence   float64       `yaml:"min_confidence" env:"WCSCAN_MIN_CONFIDENCE"`
	NullPenalty     float64       `yaml:"null_penalty"`
	MisalignPenalty float64       `yaml:"misalign_penalty"`
	ContextWindow   int           `yaml:"context_window"`
	Alignment       int           `yaml:"alignment"`
	MaxRegionSize   uint64        `yaml:"max_region_size" env:"WCSCAN_MAX_REGION_SIZE"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"WCSCAN_READ_TIMEOUT"`
}
