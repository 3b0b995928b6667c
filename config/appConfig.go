package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LoggerConfig struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"`
	Development bool   `yaml:"development"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint. Empty disables it.
	Listen string `yaml:"listen"`
	// JWTSecret, when set, requires scrapers to present a signed bearer token.
	JWTSecret string `yaml:"jwt_secret"`
}

type AppConfig struct {
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logger   LoggerConfig   `yaml:"logger"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LoadConfig reads the YAML file, loads an optional .env next to the process and
// fills defaults. The returned config is validated.
func LoadConfig(filename string) (*AppConfig, error) {
	_ = godotenv.Load()

	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	config := &AppConfig{}
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	config.applyDefaults()
	if err := config.Crawler.Validate(); err != nil {
		return nil, fmt.Errorf("crawler config: %w", err)
	}
	return config, nil
}

func (c *AppConfig) applyDefaults() {
	c.Crawler.ApplyDefaults()
	c.Postgres.applyEnv()
	c.Logger.Level = firstNonEmpty(c.Logger.Level, getEnv("LOGGER_LEVEL", "info"))
	c.Logger.Encoding = firstNonEmpty(c.Logger.Encoding, getEnv("LOGGER_ENCODING", "json"))
	c.Metrics.Listen = firstNonEmpty(c.Metrics.Listen, getEnv("METRICS_LISTEN", ""))
	c.Metrics.JWTSecret = firstNonEmpty(c.Metrics.JWTSecret, getEnv("METRICS_JWT_SECRET", ""))
}
