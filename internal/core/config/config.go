// Package config loads service settings from the environment and an
// optional TOML file. Environment variables override file values.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type KafkaTriggerCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int
	BaseURL    string

	CollectionsHref  string
	StoreHrefs       []string
	ReloadInterval   time.Duration
	WatchCollections bool

	DefaultLimit int
	MaxLimit     int
	StoreHandles int

	RedisAddr    string
	RefreshKafka KafkaTriggerCfg
	Metrics      MetricsCfg
}

func Defaults() Config {
	return Config{
		Addr:           ":8090",
		LogLevel:       "info",
		ReloadInterval: 60 * time.Second,
		DefaultLimit:   10,
		MaxLimit:       10_000,
		StoreHandles:   64,
		RefreshKafka: KafkaTriggerCfg{
			Topic:   "stac-collections",
			Brokers: "localhost:9092",
			GroupID: "stac-federation",
		},
		Metrics: MetricsCfg{Addr: ":9090", Path: "/metrics"},
	}
}

func FromEnv() Config { return overlayEnv(Defaults()) }

// Load reads path as TOML on top of the defaults and applies the
// environment. Relative store paths in the file are resolved against the
// file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var f fileConfig
	if err := toml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Config{}, fmt.Errorf("config directory: %w", err)
	}
	cfg := f.apply(Defaults(), dir)
	return overlayEnv(cfg), nil
}

func overlayEnv(c Config) Config {
	c.Addr = getenv("ADDR", c.Addr)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.LogConsole = getbool("LOG_CONSOLE", c.LogConsole)
	c.LogSampleN = getint("LOG_SAMPLE_N", c.LogSampleN)
	c.BaseURL = getenv("BASE_URL", c.BaseURL)

	c.CollectionsHref = getenv("STAC_COLLECTIONS_HREF", c.CollectionsHref)
	if v := os.Getenv("STAC_STORE_HREFS"); v != "" {
		c.StoreHrefs = splitList(v)
	}
	c.ReloadInterval = getduration("STAC_COLLECTIONS_RELOAD", c.ReloadInterval)
	c.WatchCollections = getbool("STAC_COLLECTIONS_WATCH", c.WatchCollections)

	c.DefaultLimit = getint("STAC_DEFAULT_LIMIT", c.DefaultLimit)
	c.MaxLimit = getint("STAC_MAX_LIMIT", c.MaxLimit)
	c.StoreHandles = getint("STAC_STORE_HANDLES", c.StoreHandles)

	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)
	c.RefreshKafka = KafkaTriggerCfg{
		Enabled: getbool("REFRESH_KAFKA_ENABLED", c.RefreshKafka.Enabled),
		Topic:   getenv("REFRESH_KAFKA_TOPIC", c.RefreshKafka.Topic),
		Brokers: getenv("REFRESH_KAFKA_BROKERS", c.RefreshKafka.Brokers),
		GroupID: getenv("REFRESH_KAFKA_GROUP_ID", c.RefreshKafka.GroupID),
	}
	c.Metrics = MetricsCfg{
		Enabled: getbool("METRICS_ENABLED", c.Metrics.Enabled),
		Addr:    getenv("METRICS_ADDR", c.Metrics.Addr),
		Path:    getenv("METRICS_PATH", c.Metrics.Path),
	}
	return c
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	if c.CollectionsHref == "" && len(c.StoreHrefs) == 0 {
		return fmt.Errorf("no collections source: set STAC_COLLECTIONS_HREF or STAC_STORE_HREFS")
	}
	if c.MaxLimit <= 0 || c.DefaultLimit <= 0 {
		return fmt.Errorf("limits must be positive (default=%d max=%d)", c.DefaultLimit, c.MaxLimit)
	}
	if c.ReloadInterval <= 0 {
		return fmt.Errorf("reload interval must be positive, got %s", c.ReloadInterval)
	}
	if strings.HasPrefix(c.CollectionsHref, "redis://") && c.RedisAddr == "" {
		return fmt.Errorf("redis collections source %q needs REDIS_ADDR", c.CollectionsHref)
	}
	return nil
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

type fileConfig struct {
	Addr     string `toml:"addr"`
	LogLevel string `toml:"log_level"`
	BaseURL  string `toml:"base_url"`

	Collections struct {
		Href   string   `toml:"href"`
		Reload Duration `toml:"reload"`
		Watch  *bool    `toml:"watch"`
	} `toml:"collections"`
	// Hrefs lists store files whose embedded collections are registered.
	Hrefs []string `toml:"hrefs"`

	Search struct {
		DefaultLimit int `toml:"default_limit"`
		MaxLimit     int `toml:"max_limit"`
		StoreHandles int `toml:"store_handles"`
	} `toml:"search"`

	Redis struct {
		Addr string `toml:"addr"`
	} `toml:"redis"`

	Kafka struct {
		Enabled *bool  `toml:"enabled"`
		Topic   string `toml:"topic"`
		Brokers string `toml:"brokers"`
		GroupID string `toml:"group_id"`
	} `toml:"kafka"`

	Metrics struct {
		Enabled *bool  `toml:"enabled"`
		Addr    string `toml:"addr"`
		Path    string `toml:"path"`
	} `toml:"metrics"`
}

func (f fileConfig) apply(c Config, dir string) Config {
	set(&c.Addr, f.Addr)
	set(&c.LogLevel, f.LogLevel)
	set(&c.BaseURL, f.BaseURL)

	if f.Collections.Href != "" {
		c.CollectionsHref = resolve(dir, f.Collections.Href)
	}
	if f.Collections.Reload.Duration > 0 {
		c.ReloadInterval = f.Collections.Reload.Duration
	}
	if f.Collections.Watch != nil {
		c.WatchCollections = *f.Collections.Watch
	}
	for _, h := range f.Hrefs {
		if h = strings.TrimSpace(h); h != "" {
			c.StoreHrefs = append(c.StoreHrefs, resolve(dir, h))
		}
	}

	if f.Search.DefaultLimit > 0 {
		c.DefaultLimit = f.Search.DefaultLimit
	}
	if f.Search.MaxLimit > 0 {
		c.MaxLimit = f.Search.MaxLimit
	}
	if f.Search.StoreHandles > 0 {
		c.StoreHandles = f.Search.StoreHandles
	}

	set(&c.RedisAddr, f.Redis.Addr)
	if f.Kafka.Enabled != nil {
		c.RefreshKafka.Enabled = *f.Kafka.Enabled
	}
	set(&c.RefreshKafka.Topic, f.Kafka.Topic)
	set(&c.RefreshKafka.Brokers, f.Kafka.Brokers)
	set(&c.RefreshKafka.GroupID, f.Kafka.GroupID)

	if f.Metrics.Enabled != nil {
		c.Metrics.Enabled = *f.Metrics.Enabled
	}
	set(&c.Metrics.Addr, f.Metrics.Addr)
	set(&c.Metrics.Path, f.Metrics.Path)
	return c
}

func set(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// resolve joins relative filesystem paths onto dir and leaves URLs alone.
func resolve(dir, href string) string {
	if u, err := url.Parse(href); err == nil && len(u.Scheme) > 1 {
		return href
	}
	if filepath.IsAbs(href) {
		return href
	}
	return filepath.Join(dir, href)
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
