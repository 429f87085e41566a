package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/labreport/internal/domain/labtest"
)

type Config struct {
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	CatalogEdition   string        `mapstructure:"CATALOG_EDITION"`
	OutputDir        string        `mapstructure:"OUTPUT_DIR"`
	ReportTitle      string        `mapstructure:"REPORT_TITLE"`
	LogoPath         string        `mapstructure:"LOGO_PATH"`
	WatermarkPath    string        `mapstructure:"WATERMARK_PATH"`
	WatermarkOpacity float64       `mapstructure:"WATERMARK_OPACITY"`
	ImageLoadTimeout time.Duration `mapstructure:"IMAGE_LOAD_TIMEOUT"`
}

var keys = []string{
	"ENV",
	"LOG_LEVEL",
	"CATALOG_EDITION",
	"OUTPUT_DIR",
	"REPORT_TITLE",
	"LOGO_PATH",
	"WATERMARK_PATH",
	"WATERMARK_OPACITY",
	"IMAGE_LOAD_TIMEOUT",
}

// Load reads configuration from a .env file in the working directory and the
// environment. Environment variables win over the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit .env path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CATALOG_EDITION", labtest.DefaultEdition)
	v.SetDefault("OUTPUT_DIR", "./reports")
	v.SetDefault("REPORT_TITLE", "THDC Health Report")
	v.SetDefault("WATERMARK_OPACITY", 0.1)
	v.SetDefault("IMAGE_LOAD_TIMEOUT", "5s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level returns the zerolog level for LOG_LEVEL.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration can produce reports.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
	}

	known := false
	for _, name := range labtest.Editions() {
		if name == c.CatalogEdition {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("CATALOG_EDITION %q is unknown, expected one of: %s",
			c.CatalogEdition, strings.Join(labtest.Editions(), ", "))
	}

	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.WatermarkOpacity <= 0 || c.WatermarkOpacity > 1 {
		return fmt.Errorf("WATERMARK_OPACITY must be in (0, 1], got %g", c.WatermarkOpacity)
	}
	if c.ImageLoadTimeout <= 0 {
		return fmt.Errorf("IMAGE_LOAD_TIMEOUT must be positive, got %s", c.ImageLoadTimeout)
	}

	return nil
}
