package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the guideline interface configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Repository RepositoryConfig `yaml:"repository"`
	Storage    StorageConfig    `yaml:"storage"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// RepositoryConfig describes the GitHub repository publishing guideline releases.
type RepositoryConfig struct {
	URL             string   `yaml:"url"`
	Username        string   `yaml:"username"`
	Token           string   `yaml:"token"`
	IncludeVersions []string `yaml:"include_versions"` // empty = all releases
	APIBaseURL      string   `yaml:"api_base_url"`
	FetchOnStart    bool     `yaml:"fetch_on_start"`
}

// StorageConfig holds the release storage root.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// FetchConfig holds upstream download settings.
type FetchConfig struct {
	TimeoutSec         int  `yaml:"timeout_sec"`
	Concurrency        int  `yaml:"concurrency"`
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes a YAML document, substituting ${VAR} references, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Repository.APIBaseURL == "" {
		c.Repository.APIBaseURL = "https://api.github.com"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data"
	}
	if c.Fetch.TimeoutSec <= 0 {
		c.Fetch.TimeoutSec = 10
	}
	if c.Fetch.Concurrency <= 0 {
		c.Fetch.Concurrency = 1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Repository.URL == "" {
		return fmt.Errorf("repository.url is required")
	}
	if u, err := url.Parse(c.Repository.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("repository.url must be an absolute URL, got %q", c.Repository.URL)
	}
	if (c.Repository.Username == "") != (c.Repository.Token == "") {
		return fmt.Errorf("repository.username and repository.token must be set together")
	}
	if c.Fetch.Concurrency > 16 {
		return fmt.Errorf("fetch.concurrency must be at most 16, got %d", c.Fetch.Concurrency)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
