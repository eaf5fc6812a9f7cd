package sched

import (
	"os"

	yaml "github.com/goccy/go-yaml"

	"github.com/sirupsen/logrus"
)

// Config mirrors config.yaml
type Config struct {
	TimerVector uint8  `yaml:"timer_vector"` // 0x20 (by default)
	TickMS      int    `yaml:"tick_ms"`      // 5 (by default)
	StackSize   uint64 `yaml:"stack_size"`   // 16 KiB (by default)
	LogLevel    string `yaml:"log_level"`    // "info" (by default)
}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		TimerVector: 0x20,
		TickMS:      5,
		StackSize:   16 * 1024,
		LogLevel:    "info",
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps
	if cfg.TimerVector < 0x20 {
		// vectors below 0x20 are reserved for CPU exceptions
		cfg.TimerVector = 0x20
	}
	if cfg.TickMS <= 0 {
		cfg.TickMS = 5
	}
	if cfg.StackSize == 0 {
		cfg.StackSize = 16 * 1024
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		cfg.LogLevel = "info"
	}

	return cfg
}
