package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseQuality != 95 || cfg.GainmapQuality != 95 {
		t.Errorf("qualities %d/%d, want 95/95", cfg.BaseQuality, cfg.GainmapQuality)
	}
	if cfg.GainmapScale != 1 {
		t.Errorf("scale %d, want 1", cfg.GainmapScale)
	}
	if cfg.PeakMargin != 1.10 {
		t.Errorf("peak margin %v, want 1.10", cfg.PeakMargin)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level %q, want info", cfg.LogLevel)
	}
}

func TestLoad_yaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("base_quality: 80\nmultichannel: true\ntarget_peak_nits: 1000\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseQuality != 80 {
		t.Errorf("base quality %d, want 80", cfg.BaseQuality)
	}
	if !cfg.Multichannel {
		t.Error("multichannel not set from file")
	}
	if cfg.TargetPeakNits != 1000 {
		t.Errorf("target peak %v, want 1000", cfg.TargetPeakNits)
	}
	// Untouched keys keep their defaults.
	if cfg.GainmapQuality != 95 {
		t.Errorf("gainmap quality %d, want default 95", cfg.GainmapQuality)
	}
}

func TestLoad_envOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("base_quality: 80\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("UHDRBAKE_BASE_QUALITY", "70")
	t.Setenv("UHDRBAKE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseQuality != 70 {
		t.Errorf("base quality %d, want env override 70", cfg.BaseQuality)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_badValues(t *testing.T) {
	t.Setenv("UHDRBAKE_BASE_QUALITY", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Error("invalid env value loaded without error")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing config file loaded without error")
	}
}
