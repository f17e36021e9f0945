package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/swiss-ai-center/text2audio/pkg/common"
)

// Config holds the runtime configuration of the service. Values come from
// defaults, then an optional YAML file, then T2A_* environment variables,
// strongest last.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// URL under which engines and their frontends reach this service
	ServiceURL string `yaml:"service_url"`

	EngineURLs               []string `yaml:"engine_urls"`
	EngineAnnounceRetries    int      `yaml:"engine_announce_retries"`
	EngineAnnounceRetryDelay int      `yaml:"engine_announce_retry_delay"` // seconds

	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`

	StorageDir    string `yaml:"storage_dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Host:                     "0.0.0.0",
		Port:                     9090,
		ServiceURL:               "http://localhost:9090",
		EngineURLs:               []string{"http://localhost:8080"},
		EngineAnnounceRetries:    5,
		EngineAnnounceRetryDelay: 3,
		Workers:                  1,
		QueueSize:                16,
		StorageDir:               "data",
		MaxUploadSize:            common.MaxUploadSize,
		LogLevel:                 "info",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file: %v", err)
	}
	return cfg, nil
}

// FromEnv overlays T2A_* environment variables onto the configuration.
func (c *Config) FromEnv() error {
	if v := os.Getenv("T2A_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("T2A_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid T2A_PORT %q: %v", v, err)
		}
		c.Port = p
	}
	if v := os.Getenv("T2A_SERVICE_URL"); v != "" {
		c.ServiceURL = v
	}
	if v := os.Getenv("T2A_ENGINE_URLS"); v != "" {
		urls := []string{}
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		c.EngineURLs = urls
	}
	if v := os.Getenv("T2A_ENGINE_ANNOUNCE_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid T2A_ENGINE_ANNOUNCE_RETRIES %q: %v", v, err)
		}
		c.EngineAnnounceRetries = n
	}
	if v := os.Getenv("T2A_ENGINE_ANNOUNCE_RETRY_DELAY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid T2A_ENGINE_ANNOUNCE_RETRY_DELAY %q: %v", v, err)
		}
		c.EngineAnnounceRetryDelay = n
	}
	if v := os.Getenv("T2A_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid T2A_WORKERS %q: %v", v, err)
		}
		c.Workers = n
	}
	if v := os.Getenv("T2A_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid T2A_QUEUE_SIZE %q: %v", v, err)
		}
		c.QueueSize = n
	}
	if v := os.Getenv("T2A_STORAGE_DIR"); v != "" {
		c.StorageDir = v
	}
	if v := os.Getenv("T2A_MAX_UPLOAD_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid T2A_MAX_UPLOAD_SIZE %q: %v", v, err)
		}
		c.MaxUploadSize = n
	}
	if v := os.Getenv("T2A_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ServiceURL == "" {
		return fmt.Errorf("service_url not set")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1")
	}
	if c.EngineAnnounceRetries < 1 {
		return fmt.Errorf("engine_announce_retries must be at least 1")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir not set")
	}
	return nil
}

// Addr is the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AnnounceRetryDelay converts the configured delay into a duration.
func (c *Config) AnnounceRetryDelay() time.Duration {
	return time.Duration(c.EngineAnnounceRetryDelay) * time.Second
}
