// Package config holds the run configuration shared by the analyzer,
// converter, and transaction passes. A Config is built once in main from
// defaults, the optional YAML defaults file, and command line flags, then
// passed explicitly; nothing in this package is global.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDPI is the resolution passed to the OCR engine.
	DefaultDPI = 300
	// DefaultPages is the maximum number of leading pages analyzed per document.
	DefaultPages = 10
	// DefaultWords is the minimum qualifying word count for a text block to
	// count toward text coverage.
	DefaultWords = 3
	// DefaultTextPercent marks a page unsearchable when text coverage does
	// not exceed it.
	DefaultTextPercent = 5.0
	// DefaultImagePercent marks a page unsearchable when image coverage
	// exceeds it.
	DefaultImagePercent = 100.0
	// DefaultConcurrency bounds the conversion worker pool.
	DefaultConcurrency = 4

	// MinWordLength is the fixed qualifying word length. It is deliberately
	// independent of the Words count threshold.
	MinWordLength = 5
)

// Config is the full run configuration.
type Config struct {
	DPI             int     `yaml:"dpi"`
	Pages           int     `yaml:"pages"`
	Words           int     `yaml:"words"`
	TextPercent     float64 `yaml:"text"`
	ImagePercent    float64 `yaml:"image"`
	Force           bool    `yaml:"force"`
	MaxUnsearchable int     `yaml:"unsearchable"`
	Concurrency     int     `yaml:"concurrency"`
	OCRCommand      string  `yaml:"ocr_cmd"`
	Quiet           bool    `yaml:"quiet"`
	Debug           bool    `yaml:"debug"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		DPI:          DefaultDPI,
		Pages:        DefaultPages,
		Words:        DefaultWords,
		TextPercent:  DefaultTextPercent,
		ImagePercent: DefaultImagePercent,
		Concurrency:  DefaultConcurrency,
	}
}

// Dir returns the tool's state directory (~/.batchocr). Logs, the defaults
// file, and the batch lock live here.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".batchocr"), nil
}

// DefaultsPath returns the path of the optional YAML defaults file.
func DefaultsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ApplyFile overlays values from the YAML file at path onto c. A missing
// file is not an error; a malformed one is.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations no pass can run with. Validation errors
// abort the run before any document is touched.
func (c Config) Validate() error {
	if c.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %d", c.DPI)
	}
	if c.Pages <= 0 {
		return fmt.Errorf("pages must be positive, got %d", c.Pages)
	}
	if c.Words < 0 {
		return fmt.Errorf("words must not be negative, got %d", c.Words)
	}
	if c.TextPercent < 0 || c.TextPercent > 100 {
		return fmt.Errorf("text percent must be in [0,100], got %g", c.TextPercent)
	}
	if c.ImagePercent < 0 || c.ImagePercent > 100 {
		return fmt.Errorf("image percent must be in [0,100], got %g", c.ImagePercent)
	}
	if c.MaxUnsearchable < 0 {
		return fmt.Errorf("unsearchable must not be negative, got %d", c.MaxUnsearchable)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}
