package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"screener/internal/decision"
	"screener/internal/filter"
	"screener/internal/matcher"
	"screener/internal/normalize"
	"screener/internal/similarity"
	dErrors "screener/pkg/domain-errors"
)

const envPrefix = "SCREENER_"

// DefaultPath is the config file read when none is named. It is the only path
// allowed to be missing.
const DefaultPath = "screener.yaml"

// Server captures the ops HTTP server.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Normalization pins the normalizer behaviour.
type Normalization struct {
	Version         string   `yaml:"version"`
	MinLength       int      `yaml:"min_length"`
	ExtraHonorifics []string `yaml:"extra_honorifics"`
}

// Matching tunes candidate generation.
type Matching struct {
	Floor            float64            `yaml:"match_floor"`
	MaxCandidates    int                `yaml:"max_candidates"`
	LengthRatio      float64            `yaml:"length_prefilter_ratio"`
	Workers          int                `yaml:"workers"`
	ChunkSize        int                `yaml:"chunk_size"`
	BatchConcurrency int                `yaml:"batch_concurrency"`
	Weights          similarity.Weights `yaml:"weights"`
}

// Options converts the section to matcher options.
func (m Matching) Options() matcher.Options {
	return matcher.Options{
		Floor:         m.Floor,
		MaxCandidates: m.MaxCandidates,
		LengthRatio:   m.LengthRatio,
		Workers:       m.Workers,
		ChunkSize:     m.ChunkSize,
		Weights:       m.Weights,
	}
}

// Filter toggles the candidate filter that runs before the decision ladder.
type Filter struct {
	Enabled        bool `yaml:"enabled"`
	filter.Options `yaml:",inline"`
}

// Snapshot selects where reference entries come from.
type Snapshot struct {
	Source       string        `yaml:"source"` // file or postgres
	Path         string        `yaml:"path"`
	Watch        bool          `yaml:"watch"`
	Debounce     time.Duration `yaml:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval"` // postgres only
}

// Cache selects the candidate cache backend.
type Cache struct {
	Backend  string        `yaml:"backend"` // none, memory or redis
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	Partitions  int32    `yaml:"partitions"`
	Replication int16    `yaml:"replication"`
}

// Audit selects the audit sink.
type Audit struct {
	Sink          string  `yaml:"sink"` // memory, postgres or kafka
	AsyncBuffer   int     `yaml:"async_buffer"`
	OpsSampleRate float64 `yaml:"ops_sample_rate"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Config is the complete daemon configuration.
type Config struct {
	Server        Server              `yaml:"server"`
	Normalization Normalization       `yaml:"normalization"`
	Matching      Matching            `yaml:"matching"`
	Decision      decision.Thresholds `yaml:"decision"`
	Filter        Filter              `yaml:"filter"`
	Snapshot      Snapshot            `yaml:"snapshot"`
	Cache         Cache               `yaml:"cache"`
	Redis         RedisConfig         `yaml:"redis"`
	Postgres      Postgres            `yaml:"postgres"`
	Kafka         Kafka               `yaml:"kafka"`
	Audit         Audit               `yaml:"audit"`
	Log           Log                 `yaml:"log"`
}

// Default returns a config that screens a local snapshot file with in-memory
// cache and audit.
func Default() *Config {
	opts := matcher.DefaultOptions()
	return &Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Normalization: Normalization{
			Version:   normalize.DefaultVersion,
			MinLength: normalize.DefaultMinLength,
		},
		Matching: Matching{
			Floor:         opts.Floor,
			MaxCandidates: opts.MaxCandidates,
			LengthRatio:   opts.LengthRatio,
			ChunkSize:     opts.ChunkSize,
			Weights:       opts.Weights,
		},
		Decision: decision.DefaultThresholds(),
		Filter:   Filter{Enabled: true, Options: filter.DefaultOptions()},
		Snapshot: Snapshot{
			Source:       "file",
			Path:         "snapshot.yaml",
			Watch:        true,
			Debounce:     500 * time.Millisecond,
			PollInterval: time.Minute,
		},
		Cache:    Cache{Backend: "memory", TTL: 10 * time.Minute, Capacity: 10_000},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Kafka: Kafka{Topic: "screening.audit", Partitions: 3, Replication: 1},
		Audit: Audit{Sink: "memory", AsyncBuffer: 256, OpsSampleRate: 1},
		Log:   Log{Level: "info", Format: "json"},
	}
}

// Load builds the config from defaults, then the YAML file at path, then
// SCREENER_* environment variables. An empty path, or a missing DefaultPath,
// skips the file; any other missing file is a configuration error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err) && path == DefaultPath:
		case os.IsNotExist(err):
			return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "config file "+path+" not found")
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "parse config")
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	var errs []string
	float := func(key string, dst *float64) {
		if v, ok := lookup(envPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q", envPrefix, key, v))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q", envPrefix, key, v))
				return
			}
			*dst = n
		}
	}

	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("SNAPSHOT_SOURCE", &c.Snapshot.Source)
	str("SNAPSHOT_PATH", &c.Snapshot.Path)
	str("CACHE_BACKEND", &c.Cache.Backend)
	str("REDIS_URL", &c.Redis.URL)
	str("POSTGRES_DSN", &c.Postgres.DSN)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("AUDIT_SINK", &c.Audit.Sink)
	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	float("BLOCK_THRESHOLD", &c.Decision.Block)
	float("ESCALATE_THRESHOLD", &c.Decision.Escalate)
	float("MATCH_FLOOR", &c.Matching.Floor)
	float("LENGTH_PREFILTER_RATIO", &c.Matching.LengthRatio)
	integer("MAX_CANDIDATES", &c.Matching.MaxCandidates)
	integer("WORKERS", &c.Matching.Workers)

	if len(errs) > 0 {
		return dErrors.Newf(dErrors.CodeConfiguration, "invalid environment overrides: %s", strings.Join(errs, ", "))
	}
	return nil
}

// Validate checks every section. Threshold, floor and weight errors carry
// CodeConfiguration so the daemon refuses to start.
func (c *Config) Validate() error {
	if err := c.Decision.Validate(); err != nil {
		return err
	}
	if err := c.Matching.Options().Validate(); err != nil {
		return err
	}
	if c.Matching.Floor >= c.Decision.Escalate {
		return dErrors.Newf(dErrors.CodeConfiguration,
			"match_floor must be below the escalate threshold, got floor=%v escalate=%v", c.Matching.Floor, c.Decision.Escalate)
	}
	if c.Filter.Enabled {
		if err := c.Filter.Validate(); err != nil {
			return err
		}
	}
	if c.Normalization.MinLength < 1 {
		return dErrors.New(dErrors.CodeConfiguration, "normalization min_length must be positive")
	}

	switch c.Snapshot.Source {
	case "file":
		if c.Snapshot.Path == "" {
			return dErrors.New(dErrors.CodeConfiguration, "snapshot.path is required for the file source")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return dErrors.New(dErrors.CodeConfiguration, "postgres.dsn is required for the postgres snapshot source")
		}
		if c.Snapshot.PollInterval <= 0 {
			return dErrors.New(dErrors.CodeConfiguration, "snapshot.poll_interval must be positive for the postgres source")
		}
	default:
		return dErrors.Newf(dErrors.CodeConfiguration, "unknown snapshot source %q", c.Snapshot.Source)
	}

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Redis.URL == "" {
			return dErrors.New(dErrors.CodeConfiguration, "redis.url is required for the redis cache")
		}
	default:
		return dErrors.Newf(dErrors.CodeConfiguration, "unknown cache backend %q", c.Cache.Backend)
	}

	switch c.Audit.Sink {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return dErrors.New(dErrors.CodeConfiguration, "postgres.dsn is required for the postgres audit sink")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return dErrors.New(dErrors.CodeConfiguration, "kafka.brokers is required for the kafka audit sink")
		}
	default:
		return dErrors.Newf(dErrors.CodeConfiguration, "unknown audit sink %q", c.Audit.Sink)
	}
	if c.Audit.OpsSampleRate < 0 || c.Audit.OpsSampleRate > 1 {
		return dErrors.Newf(dErrors.CodeConfiguration, "audit.ops_sample_rate must be in [0, 1], got %v", c.Audit.OpsSampleRate)
	}
	return nil
}

// Fingerprint hashes every setting that can change a decision, so two
// deployments with equal fingerprints decide identically on the same snapshot.
func (c *Config) Fingerprint() (string, error) {
	data, err := yaml.Marshal(struct {
		Normalization Normalization       `yaml:"normalization"`
		Matching      string              `yaml:"matching"`
		Decision      decision.Thresholds `yaml:"decision"`
		Filter        string              `yaml:"filter"`
	}{c.Normalization, c.Matching.Options().Fingerprint(), c.Decision, c.filterFingerprint()})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "fingerprint config")
	}
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

func (c *Config) filterFingerprint() string {
	if !c.Filter.Enabled {
		return "filter:off"
	}
	return c.Filter.Fingerprint()
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
