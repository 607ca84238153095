// Package config loads tool configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the bake defaults and runtime settings.
type Config struct {
	BaseQuality    int     `yaml:"base_quality"`
	GainmapQuality int     `yaml:"gainmap_quality"`
	GainmapScale   int     `yaml:"gainmap_scale"`
	Multichannel   bool    `yaml:"multichannel"`
	TargetPeakNits float64 `yaml:"target_peak_nits"`
	PeakMargin     float64 `yaml:"peak_margin"`
	LogLevel       string  `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseQuality:    95,
		GainmapQuality: 95,
		GainmapScale:   1,
		PeakMargin:     1.10,
		LogLevel:       "info",
	}
}

// Load builds the effective configuration. A .env file in the working
// directory is applied to the environment first; yamlPath may be empty.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.BaseQuality, err = envInt("UHDRBAKE_BASE_QUALITY", c.BaseQuality); err != nil {
		return err
	}
	if c.GainmapQuality, err = envInt("UHDRBAKE_GAINMAP_QUALITY", c.GainmapQuality); err != nil {
		return err
	}
	if c.GainmapScale, err = envInt("UHDRBAKE_GAINMAP_SCALE", c.GainmapScale); err != nil {
		return err
	}
	if c.Multichannel, err = envBool("UHDRBAKE_MULTICHANNEL", c.Multichannel); err != nil {
		return err
	}
	if c.TargetPeakNits, err = envFloat("UHDRBAKE_TARGET_PEAK_NITS", c.TargetPeakNits); err != nil {
		return err
	}
	if c.PeakMargin, err = envFloat("UHDRBAKE_PEAK_MARGIN", c.PeakMargin); err != nil {
		return err
	}
	if v := os.Getenv("UHDRBAKE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func envFloat(name string, def float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

func envBool(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}
