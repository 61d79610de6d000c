// Package config holds the service configuration.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Anomaly backends.
const (
	BackendAutoencoder = "autoencoder"
	BackendIForest     = "iforest"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the root configuration.
type Config struct {
	Server Server `yaml:"server"`
	Models Models `yaml:"models"`
	Cache  Cache  `yaml:"cache"`
	Log    Log    `yaml:"log"`
}

// Server configures the HTTP listener.
type Server struct {
	Address         string        `yaml:"address"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORS          `yaml:"cors"`
}

// CORS configures cross-origin access.
type CORS struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// Models locates the pre-trained artifacts.
type Models struct {
	Dir             string `yaml:"dir"`
	Scaler          string `yaml:"scaler"`
	Classifier      string `yaml:"classifier"`
	Reconstruction  string `yaml:"reconstruction"`
	AnomalyBackend  string `yaml:"anomaly_backend"`
	IsolationForest string `yaml:"isolation_forest"`
}

// Cache configures the optional result cache.
type Cache struct {
	Backend   string        `yaml:"backend"`
	Size      int           `yaml:"size"`
	TTL       time.Duration `yaml:"ttl"`
	Addrs     []string      `yaml:"addrs"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Address:         ":8000",
			MaxUploadBytes:  50 << 20,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    300 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			CORS: CORS{
				AllowedOrigins:   []string{"http://localhost:8080", "http://127.0.0.1:8080"},
				AllowCredentials: true,
			},
		},
		Models: Models{
			Dir:             "models",
			Scaler:          "scaler.json",
			Classifier:      "xgboost_model.json",
			Reconstruction:  "autoencoder.json",
			AnomalyBackend:  BackendAutoencoder,
			IsolationForest: "iforest.gob",
		},
		Cache: Cache{
			Backend:   CacheNone,
			Size:      128,
			TTL:       10 * time.Minute,
			Addrs:     []string{"localhost:6379"},
			KeyPrefix: "fraudshield:",
		},
		Log: Log{
			Level:  "info",
			Format: FormatText,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening config file: %s", path)
	}
	defer f.Close()

	if err := c.decode(f); err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}
	return c, nil
}

// Parse reads YAML from r over the defaults.
func Parse(r io.Reader) (*Config, error) {
	c := Default()
	if err := c.decode(r); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "error decoding yaml")
	}
	return c.Validate()
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Models.AnomalyBackend) {
	case BackendAutoencoder, BackendIForest:
	default:
		return errors.Errorf("unknown anomaly backend %q", c.Models.AnomalyBackend)
	}

	switch strings.ToLower(c.Cache.Backend) {
	case CacheNone, "":
	case CacheMemory:
		if c.Cache.Size <= 0 {
			return errors.Errorf("cache size must be positive, got %d", c.Cache.Size)
		}
	case CacheRedis:
		if len(c.Cache.Addrs) == 0 {
			return errors.New("redis cache requires at least one address")
		}
	default:
		return errors.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return errors.Errorf("negative cache ttl %s", c.Cache.TTL)
	}

	switch strings.ToLower(c.Log.Format) {
	case FormatText, FormatJSON, "":
	default:
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return errors.Errorf("max upload bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}
	return nil
}
