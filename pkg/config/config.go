// Package config loads service configuration.
//
// Sources are applied in order, later ones overriding earlier ones:
//
//  1. built-in defaults
//  2. a config file, TOML (.toml) or YAML (.yaml, .yml) chosen by extension
//  3. a .env file in the working directory, if present
//  4. CLUSTERMAP_* environment variables
//
// Configuration is read once by the hosting process and passed down
// explicitly. Library packages never consult the environment themselves.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/clustermap/pkg/cluster"
	"github.com/matzehuels/clustermap/pkg/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLUSTERMAP_"

// Cache backend names.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheFile   = "file"
	CacheRedis  = "redis"
)

// Config is the complete service configuration.
type Config struct {
	ScratchDir string     `toml:"scratch_dir" yaml:"scratch_dir"`
	LogLevel   string     `toml:"log_level" yaml:"log_level"`
	Server     Server     `toml:"server" yaml:"server"`
	Cache      Cache      `toml:"cache" yaml:"cache"`
	Clustering Clustering `toml:"clustering" yaml:"clustering"`
}

// Server configures the HTTP service.
type Server struct {
	Addr         string   `toml:"addr" yaml:"addr"`
	ReadTimeout  Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout" yaml:"write_timeout"`
}

// Cache selects and configures the memoization backend.
type Cache struct {
	Backend       string   `toml:"backend" yaml:"backend"`
	Dir           string   `toml:"dir" yaml:"dir"`
	RedisAddr     string   `toml:"redis_addr" yaml:"redis_addr"`
	RedisPassword string   `toml:"redis_password" yaml:"redis_password"`
	RedisDB       int      `toml:"redis_db" yaml:"redis_db"`
	Prefix        string   `toml:"prefix" yaml:"prefix"`
	TTL           Duration `toml:"ttl" yaml:"ttl"`
}

// Clustering holds defaults applied when a request omits them.
type Clustering struct {
	DistMetric    string `toml:"dist_metric" yaml:"dist_metric"`
	LinkageMethod string `toml:"linkage_method" yaml:"linkage_method"`
	MaxLeaves     int    `toml:"max_leaves" yaml:"max_leaves"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ScratchDir: filepath.Join(os.TempDir(), "clustermap"),
		LogLevel:   "info",
		Server: Server{
			Addr:         ":5000",
			ReadTimeout:  Duration{30 * time.Second},
			WriteTimeout: Duration{5 * time.Minute},
		},
		Cache: Cache{
			Backend:   CacheMemory,
			RedisAddr: "localhost:6379",
			TTL:       Duration{7 * 24 * time.Hour},
		},
		Clustering: Clustering{
			DistMetric:    cluster.MetricEuclidean,
			LinkageMethod: cluster.MethodWard,
			MaxLeaves:     cluster.DefaultMaxLeaves,
		},
	}
}

// Load builds the configuration from defaults, path (optional), .env and the
// environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read .env")
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(c); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unsupported config format %q", ext)
	}
	return nil
}

// applyEnv overrides fields from CLUSTERMAP_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s%s", EnvPrefix, key)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s%s", EnvPrefix, key)
		}
		return nil
	}

	str("SCRATCH_DIR", &c.ScratchDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("ADDR", &c.Server.Addr)
	str("CACHE_BACKEND", &c.Cache.Backend)
	str("CACHE_DIR", &c.Cache.Dir)
	str("CACHE_PREFIX", &c.Cache.Prefix)
	str("REDIS_ADDR", &c.Cache.RedisAddr)
	str("REDIS_PASSWORD", &c.Cache.RedisPassword)
	str("DIST_METRIC", &c.Clustering.DistMetric)
	str("LINKAGE_METHOD", &c.Clustering.LinkageMethod)

	for _, f := range []func() error{
		func() error { return num("REDIS_DB", &c.Cache.RedisDB) },
		func() error { return num("MAX_LEAVES", &c.Clustering.MaxLeaves) },
		func() error { return dur("CACHE_TTL", &c.Cache.TTL) },
		func() error { return dur("READ_TIMEOUT", &c.Server.ReadTimeout) },
		func() error { return dur("WRITE_TIMEOUT", &c.Server.WriteTimeout) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks value ranges and names.
func (c Config) Validate() error {
	if c.ScratchDir == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "scratch_dir is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "invalid log_level %q", c.LogLevel)
	}
	switch c.Cache.Backend {
	case CacheNone, CacheMemory, CacheFile, CacheRedis:
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "invalid cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisAddr == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "redis cache requires redis_addr")
	}
	if _, ok := cluster.Metrics[c.Clustering.DistMetric]; !ok {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown dist_metric %q", c.Clustering.DistMetric)
	}
	if c.Clustering.MaxLeaves < 2 {
		return errors.New(errors.ErrCodeInvalidConfig, "max_leaves must be at least 2")
	}
	// the pair itself is checked per request; here only the method name
	if err := cluster.CheckCombination(cluster.MetricEuclidean, c.Clustering.LinkageMethod); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "linkage_method")
	}
	return nil
}

// String renders the configuration with secrets masked.
func (c Config) String() string {
	masked := c
	if masked.Cache.RedisPassword != "" {
		masked.Cache.RedisPassword = "***"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(masked); err != nil {
		return fmt.Sprintf("%+v", masked)
	}
	return buf.String()
}
