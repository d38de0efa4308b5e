// Package config handles configuration loading and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	OCR     OCRConfig     `yaml:"ocr"`
	Tools   ToolsConfig   `yaml:"tools"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address         string `yaml:"address"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
	CORSOrigins     string `yaml:"cors_origins"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

// OCRConfig holds recognition settings.
type OCRConfig struct {
	// Languages selects tesseract trained data, e.g. ["eng"] or ["eng","deu"].
	Languages  []string `yaml:"languages"`
	DefaultDPI int      `yaml:"default_dpi"`
	MinDPI     int      `yaml:"min_dpi"`
	MaxDPI     int      `yaml:"max_dpi"`
	// TimeoutSeconds bounds one full processing request, external tools
	// included.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ToolsConfig names the external binaries the pipeline shells out to.
type ToolsConfig struct {
	Pdftoppm string `yaml:"pdftoppm"`
	Pdfinfo  string `yaml:"pdfinfo"`
	OCRmyPDF string `yaml:"ocrmypdf"`
}

// HistoryConfig controls job-history persistence.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, pretty
}

// Default returns sensible defaults for a single-container deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8000",
			MaxUploadMB:     50,
			CORSOrigins:     "*",
			ShutdownSeconds: 10,
		},
		OCR: OCRConfig{
			Languages:      []string{"eng"},
			DefaultDPI:     300,
			MinDPI:         72,
			MaxDPI:         600,
			TimeoutSeconds: 300,
		},
		Tools: ToolsConfig{
			Pdftoppm: "pdftoppm",
			Pdfinfo:  "pdfinfo",
			OCRmyPDF: "ocrmypdf",
		},
		History: HistoryConfig{
			Enabled: true,
			DataDir: "data",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path (optional), then applies environment
// overrides. A missing file is not an error; an unreadable or malformed one
// is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Address = ":" + v
	}
	if v := os.Getenv("OCR_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("OCR_LANGUAGES"); v != "" {
		c.OCR.Languages = splitList(v)
	}
	if v := os.Getenv("OCR_DATA_DIR"); v != "" {
		c.History.DataDir = v
	}
	if v := os.Getenv("OCR_HISTORY_ENABLED"); v != "" {
		c.History.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OCR_MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.MaxUploadMB = n
		}
	}
	if v := os.Getenv("OCR_DEFAULT_DPI"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.OCR.DefaultDPI = n
		}
	}
	if v := os.Getenv("OCR_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.OCR.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("OCR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("OCR_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) validate() error {
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.OCR.MinDPI <= 0 || c.OCR.MaxDPI < c.OCR.MinDPI {
		return fmt.Errorf("invalid dpi bounds [%d, %d]", c.OCR.MinDPI, c.OCR.MaxDPI)
	}
	if c.OCR.DefaultDPI < c.OCR.MinDPI || c.OCR.DefaultDPI > c.OCR.MaxDPI {
		return fmt.Errorf("ocr.default_dpi %d outside [%d, %d]", c.OCR.DefaultDPI, c.OCR.MinDPI, c.OCR.MaxDPI)
	}
	if len(c.OCR.Languages) == 0 {
		return fmt.Errorf("ocr.languages must not be empty")
	}
	return nil
}

// MaxUploadBytes is the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) * 1024 * 1024
}

func splitList(v string) []string {
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' || r == ' ' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
