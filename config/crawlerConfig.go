package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ModeDefault = "default"
	ModePolite  = "polite"
	ModeFast    = "fast"
)

const (
	DefaultBaseURL        = "https://tienda.mercadona.es"
	DefaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	DefaultAcceptLanguage = "es-ES,es;q=0.9,en;q=0.8"
)

// MaxRetryAttempts bounds how long one identifier can hold a worker.
const MaxRetryAttempts = 10

type politeness struct {
	concurrency int
	interval    float64
}

// presets mirror the three crawl profiles the storefront tolerates.
var presets = map[string]politeness{
	ModeDefault: {concurrency: 1, interval: 2.0},
	ModePolite:  {concurrency: 1, interval: 3.0},
	ModeFast:    {concurrency: 20, interval: 0.1},
}

type RangeConfig struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

type CrawlerConfig struct {
	BaseURL         string       `yaml:"base_url"`
	Mode            string       `yaml:"mode"`
	IdentifierRange *RangeConfig `yaml:"identifier_range"`
	UseSitemap      bool         `yaml:"use_sitemap"`

	// Zero values take the mode preset.
	Concurrency               int      `yaml:"concurrency"`
	MinRequestIntervalSeconds *float64 `yaml:"min_request_interval_seconds"`

	RequestTimeoutSeconds float64 `yaml:"request_timeout_seconds"`
	RetryAttempts         int     `yaml:"retry_attempts"`
	RetryBackoffSeconds   float64 `yaml:"retry_backoff_seconds"`
	// TargetSuccessCount of 0 means unbounded.
	TargetSuccessCount int `yaml:"target_success_count"`

	UserAgent      string `yaml:"user_agent"`
	AcceptLanguage string `yaml:"accept_language"`
}

func (c *CrawlerConfig) ApplyDefaults() {
	c.BaseURL = strings.TrimRight(firstNonEmpty(c.BaseURL, getEnv("CRAWLER_BASE_URL", DefaultBaseURL)), "/")
	c.Mode = firstNonEmpty(strings.ToLower(c.Mode), ModeDefault)

	preset, ok := presets[c.Mode]
	if !ok {
		return
	}
	if c.Concurrency == 0 {
		c.Concurrency = preset.concurrency
	}
	if c.MinRequestIntervalSeconds == nil {
		interval := preset.interval
		c.MinRequestIntervalSeconds = &interval
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 10
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoffSeconds == 0 {
		c.RetryBackoffSeconds = 1
	}
	c.UserAgent = firstNonEmpty(c.UserAgent, DefaultUserAgent)
	c.AcceptLanguage = firstNonEmpty(c.AcceptLanguage, DefaultAcceptLanguage)
}

func (c *CrawlerConfig) Validate() error {
	if _, ok := presets[c.Mode]; !ok {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch {
	case c.IdentifierRange != nil && c.UseSitemap:
		return errors.New("identifier_range and use_sitemap are mutually exclusive")
	case c.IdentifierRange == nil && !c.UseSitemap:
		return errors.New("one of identifier_range or use_sitemap is required")
	}
	if r := c.IdentifierRange; r != nil && r.Start >= r.End {
		return fmt.Errorf("identifier_range start (%d) must be less than end (%d)", r.Start, r.End)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MinRequestIntervalSeconds != nil && *c.MinRequestIntervalSeconds < 0 {
		return errors.New("min_request_interval_seconds must not be negative")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return errors.New("request_timeout_seconds must be positive")
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > MaxRetryAttempts {
		return fmt.Errorf("retry_attempts must be between 1 and %d, got %d", MaxRetryAttempts, c.RetryAttempts)
	}
	if c.RetryBackoffSeconds < 0 {
		return errors.New("retry_backoff_seconds must not be negative")
	}
	if c.TargetSuccessCount < 0 {
		return errors.New("target_success_count must not be negative")
	}
	return nil
}

func (c *CrawlerConfig) MinRequestInterval() time.Duration {
	if c.MinRequestIntervalSeconds == nil {
		return 0
	}
	return seconds(*c.MinRequestIntervalSeconds)
}

func (c *CrawlerConfig) RequestTimeout() time.Duration {
	return seconds(c.RequestTimeoutSeconds)
}

func (c *CrawlerConfig) RetryBackoff() time.Duration {
	return seconds(c.RetryBackoffSeconds)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
