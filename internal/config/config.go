package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig holds tool-wide settings, loaded from an optional YAML file
// and overridable from CLI flags.
type GlobalConfig struct {
	Workers  int           `yaml:"workers"`
	CacheDir string        `yaml:"cacheDir"`
	WorkDir  string        `yaml:"workDir"`
	Logging  LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Build-scoped globals, set once the recipe is loaded.
var (
	GlConfig = DefaultGlobalConfig()

	TargetOs   string
	TargetDist string
	TargetArch string
)

// DefaultGlobalConfig returns the built-in defaults.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Workers:  4,
		CacheDir: "cache",
		WorkDir:  "workspace",
		Logging:  LoggingConfig{Level: "info"},
	}
}

// LoadGlobalConfig reads the tool configuration from a YAML file into
// GlConfig. A missing file leaves the defaults in place.
func LoadGlobalConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultGlobalConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("config file %s: workers must be positive, got %d", path, cfg.Workers)
	}
	GlConfig = cfg
	return nil
}

// WorkDir returns the absolute path to the work directory.
func WorkDir() (string, error) {
	return filepath.Abs(GlConfig.WorkDir)
}

// CacheDir returns the absolute path to the cache directory.
func CacheDir() (string, error) {
	return filepath.Abs(GlConfig.CacheDir)
}

// Workers returns the number of concurrent download workers.
func Workers() int {
	return GlConfig.Workers
}

// CreateWorkDirs ensures the work and cache directories exist.
func CreateWorkDirs() error {
	workDir, err := WorkDir()
	if err != nil {
		return fmt.Errorf("resolving work directory: %w", err)
	}
	if err := createDirIfNotExists(workDir); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	cacheDir, err := CacheDir()
	if err != nil {
		return fmt.Errorf("resolving cache directory: %w", err)
	}
	if err := createDirIfNotExists(cacheDir); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return nil
}

func createDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
