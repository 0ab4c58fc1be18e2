package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the album crawler
type Config struct {
	// Target site settings
	Site SiteConfig `yaml:"site" json:"site"`

	// Listing crawl settings
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Image download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Inter-request pacing
	Pacing PacingConfig `yaml:"pacing" json:"pacing"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SiteConfig holds target-site specific configuration
type SiteConfig struct {
	BaseURL           string          `yaml:"base_url" json:"base_url"`
	UserAgent         string          `yaml:"user_agent" json:"user_agent"`
	AcceptLanguage    string          `yaml:"accept_language" json:"accept_language"`
	RequestsPerMinute int             `yaml:"requests_per_minute" json:"requests_per_minute"`
	Selectors         SelectorConfig  `yaml:"selectors" json:"selectors"`
}

// SelectorConfig holds the CSS selectors the site parser uses. The markup of
// any particular site is not core logic; swapping these retargets the crawler.
type SelectorConfig struct {
	ListingCard  string `yaml:"listing_card" json:"listing_card"`
	ListingTitle string `yaml:"listing_title" json:"listing_title"`
	Pagination   string `yaml:"pagination" json:"pagination"`
	Image        string `yaml:"image" json:"image"`
}

// CrawlConfig holds listing-page crawl configuration
type CrawlConfig struct {
	StartPage int `yaml:"start_page" json:"start_page"`
	// EndPage 0 means discover the last page from the listing pagination
	EndPage     int           `yaml:"end_page" json:"end_page"`
	PageWorkers int           `yaml:"page_workers" json:"page_workers"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Workers    int           `yaml:"workers" json:"workers"`
	Retries    int           `yaml:"retries" json:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	Overwrite  bool          `yaml:"overwrite" json:"overwrite"`
}

// PacingConfig holds the randomized delay applied between listing fetches
// and between albums
type PacingConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	MinDelay time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL: "https://meirentu.cc/",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
				"(KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
			AcceptLanguage:    "en-US,en;q=0.9",
			RequestsPerMinute: 0, // 0 means unlimited
			Selectors: SelectorConfig{
				ListingCard:  "li.i_list > a",
				ListingTitle: ".postlist-imagenum span",
				Pagination:   ".page a",
				Image:        ".content_left img",
			},
		},
		Crawl: CrawlConfig{
			StartPage:   1,
			EndPage:     1,
			PageWorkers: 1,
			Timeout:     10 * time.Second,
		},
		Download: DownloadConfig{
			Workers:    3,
			Retries:    3,
			RetryDelay: 1 * time.Second,
			Overwrite:  false,
		},
		Pacing: PacingConfig{
			Enabled:  true,
			MinDelay: 500 * time.Millisecond,
			MaxDelay: 1500 * time.Millisecond,
		},
		Output: OutputConfig{
			BaseDirectory: "./downloads",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("ALBUMGRAB_BASE_URL"); baseURL != "" {
		c.Site.BaseURL = baseURL
	}
	if userAgent := os.Getenv("ALBUMGRAB_USER_AGENT"); userAgent != "" {
		c.Site.UserAgent = userAgent
	}
	if outputDir := os.Getenv("ALBUMGRAB_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if workers := os.Getenv("ALBUMGRAB_DOWNLOAD_WORKERS"); workers != "" {
		if val, err := strconv.Atoi(workers); err == nil && val > 0 {
			c.Download.Workers = val
		}
	}
	if rpm := os.Getenv("ALBUMGRAB_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.Site.RequestsPerMinute = val
		}
	}
	if logLevel := os.Getenv("ALBUMGRAB_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".albumgrab.yaml",
		".albumgrab.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "albumgrab", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".albumgrab.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Site.BaseURL == "" {
		errs = append(errs, errors.New("site base URL is required"))
	}
	if c.Site.Selectors.ListingCard == "" || c.Site.Selectors.Image == "" {
		errs = append(errs, errors.New("listing card and image selectors are required"))
	}

	if c.Crawl.StartPage < 1 {
		errs = append(errs, errors.New("start page must be at least 1"))
	}
	if c.Crawl.EndPage < 0 {
		errs = append(errs, errors.New("end page cannot be negative"))
	}
	if c.Crawl.EndPage > 0 && c.Crawl.EndPage < c.Crawl.StartPage {
		errs = append(errs, errors.New("end page cannot be before start page"))
	}
	if c.Crawl.PageWorkers <= 0 {
		errs = append(errs, errors.New("page workers must be positive"))
	}
	if c.Crawl.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("download workers must be positive"))
	}
	if c.Download.Retries < 1 {
		errs = append(errs, errors.New("download retries must be at least 1"))
	}
	if c.Download.RetryDelay < 0 {
		errs = append(errs, errors.New("retry delay cannot be negative"))
	}

	if c.Pacing.Enabled {
		if c.Pacing.MinDelay < 0 || c.Pacing.MaxDelay < c.Pacing.MinDelay {
			errs = append(errs, errors.New("pacing delay range is invalid"))
		}
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if baseURL, ok := flags["base-url"].(string); ok && baseURL != "" {
		c.Site.BaseURL = baseURL
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if start, ok := flags["start"].(int); ok && start > 0 {
		c.Crawl.StartPage = start
	}
	if end, ok := flags["end"].(int); ok && end >= 0 {
		c.Crawl.EndPage = end
	}
	if workers, ok := flags["download-workers"].(int); ok && workers > 0 {
		c.Download.Workers = workers
	}
	if workers, ok := flags["page-workers"].(int); ok && workers > 0 {
		c.Crawl.PageWorkers = workers
	}
	if retries, ok := flags["retries"].(int); ok && retries > 0 {
		c.Download.Retries = retries
	}
	if timeout, ok := flags["timeout"].(time.Duration); ok && timeout > 0 {
		c.Crawl.Timeout = timeout
	}
	if rpm, ok := flags["requests-per-minute"].(int); ok && rpm > 0 {
		c.Site.RequestsPerMinute = rpm
	}
	if noPacing, ok := flags["no-pacing"].(bool); ok && noPacing {
		c.Pacing.Enabled = false
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".albumgrab.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
