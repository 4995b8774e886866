package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"github.com/route-beacon/peer-stats/internal/catalog"
	"github.com/route-beacon/peer-stats/internal/codec"
	"github.com/route-beacon/peer-stats/internal/ribstats"
)

const envPrefix = "PEER_STATS_"

// Error reports an invalid configuration value or command-line window.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	Batch    BatchConfig    `koanf:"batch"`
	Fetch    FetchConfig    `koanf:"fetch"`
	Tier1    Tier1Config    `koanf:"tier1"`
	Merge    MergeConfig    `koanf:"merge"`
	Postgres PostgresConfig `koanf:"postgres"`
	Kafka    KafkaConfig    `koanf:"kafka"`
}

type ServiceConfig struct {
	LogLevel               string `koanf:"log_level"`
	MetricsListen          string `koanf:"metrics_listen"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type BatchConfig struct {
	OutputDir  string           `koanf:"output_dir"`
	ArchiveDir string           `koanf:"archive_dir"`
	Workers    int              `koanf:"workers"`
	Codec      string           `koanf:"codec"`
	OnlyDaily  bool             `koanf:"only_daily"`
	Force      bool             `koanf:"force"`
	Snapshots  []SnapshotConfig `koanf:"snapshots"`
}

// SnapshotConfig is one statically configured RIB dump.
type SnapshotConfig struct {
	Collector string `koanf:"collector"`
	Timestamp string `koanf:"timestamp"`
	URL       string `koanf:"url"`
}

type FetchConfig struct {
	TimeoutSeconds int `koanf:"timeout_seconds"`
	MaxRetries     int `koanf:"max_retries"`
}

type Tier1Config struct {
	Global []uint32 `koanf:"global"`
	V4     []uint32 `koanf:"v4"`
	V6     []uint32 `koanf:"v6"`
}

type MergeConfig struct {
	DataDir          string `koanf:"data_dir"`
	OutputDir        string `koanf:"output_dir"`
	AllowPreviousDay bool   `koanf:"allow_previous_day"`
	Timezone         string `koanf:"timezone"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

type KafkaConfig struct {
	Brokers  []string   `koanf:"brokers"`
	ClientID string     `koanf:"client_id"`
	Topic    string     `koanf:"topic"`
	TLS      TLSConfig  `koanf:"tls"`
	SASL     SASLConfig `koanf:"sasl"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

// defaults leaves list fields empty: koanf decodes a shorter list over an
// existing slice element by element, so list defaults are applied after
// unmarshalling.
func defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Batch: BatchConfig{
			OutputDir: "./results",
			Codec:     "bz2",
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 60,
			MaxRetries:     3,
		},
		Merge: MergeConfig{
			Timezone: "UTC",
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
			MinConns: 0,
		},
		Kafka: KafkaConfig{
			ClientID: "peer-stats",
			Topic:    "peer-stats.snapshots",
		},
	}
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: PEER_STATS_BATCH__OUTPUT_DIR → batch.output_dir
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Tier1.fillDefaults()
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if cfg.Batch.Workers == 0 {
		if v := os.Getenv("MAX_THREADS"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, &Error{Field: "MAX_THREADS", Reason: "is not an integer", Err: err}
			}
			cfg.Batch.Workers = n
		}
	}
	if cfg.Merge.DataDir == "" {
		cfg.Merge.DataDir = cfg.Batch.OutputDir
	}
	if cfg.Merge.OutputDir == "" {
		cfg.Merge.OutputDir = cfg.Merge.DataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Batch.OutputDir == "" {
		return invalid("batch.output_dir", "is required")
	}
	if c.Batch.Workers < 0 {
		return invalid("batch.workers", "must be >= 0 (got %d)", c.Batch.Workers)
	}
	if _, err := codec.ByName(c.Batch.Codec); err != nil {
		return &Error{Field: "batch.codec", Reason: "is invalid", Err: err}
	}
	for i, s := range c.Batch.Snapshots {
		if s.Collector == "" || s.URL == "" {
			return invalid(fmt.Sprintf("batch.snapshots[%d]", i), "needs collector and url")
		}
		if _, err := ParseTime(s.Timestamp); err != nil {
			return &Error{Field: fmt.Sprintf("batch.snapshots[%d].timestamp", i), Reason: "is invalid", Err: err}
		}
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return invalid("fetch.timeout_seconds", "must be > 0 (got %d)", c.Fetch.TimeoutSeconds)
	}
	if c.Fetch.MaxRetries < 0 {
		return invalid("fetch.max_retries", "must be >= 0 (got %d)", c.Fetch.MaxRetries)
	}
	if len(c.Tier1.Global) == 0 || len(c.Tier1.V4) == 0 || len(c.Tier1.V6) == 0 {
		return invalid("tier1", "lists must not be empty")
	}
	if c.Merge.DataDir == "" {
		return invalid("merge.data_dir", "is required")
	}
	if _, err := time.LoadLocation(c.Merge.Timezone); err != nil {
		return &Error{Field: "merge.timezone", Reason: "is invalid", Err: err}
	}
	if c.Postgres.MaxConns <= 0 {
		return invalid("postgres.max_conns", "must be > 0 (got %d)", c.Postgres.MaxConns)
	}
	if c.Postgres.MinConns < 0 {
		return invalid("postgres.min_conns", "must be >= 0 (got %d)", c.Postgres.MinConns)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return invalid("kafka.topic", "is required when kafka.brokers is set")
	}
	if c.Kafka.SASL.Enabled && c.Kafka.BuildSASLMechanism() == nil {
		return invalid("kafka.sasl.mechanism", "is unsupported (%q)", c.Kafka.SASL.Mechanism)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return invalid("service.shutdown_timeout_seconds", "must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	return nil
}

// RequirePostgres is checked by commands that write to the keyed store.
func (c *Config) RequirePostgres() error {
	if c.Postgres.DSN == "" {
		return invalid("postgres.dsn", "is required")
	}
	return nil
}

// WorkerCount resolves batch.workers, where 0 means one per CPU.
func (b *BatchConfig) WorkerCount() int {
	if b.Workers > 0 {
		return b.Workers
	}
	return runtime.NumCPU()
}

// StaticDescriptors converts batch.snapshots into catalog descriptors.
func (b *BatchConfig) StaticDescriptors() (catalog.StaticCatalog, error) {
	out := make(catalog.StaticCatalog, 0, len(b.Snapshots))
	for i, s := range b.Snapshots {
		ts, err := ParseTime(s.Timestamp)
		if err != nil {
			return nil, &Error{Field: fmt.Sprintf("batch.snapshots[%d].timestamp", i), Reason: "is invalid", Err: err}
		}
		out = append(out, catalog.Descriptor{Collector: s.Collector, Timestamp: ts, URL: s.URL})
	}
	return out, nil
}

func (t *Tier1Config) fillDefaults() {
	d := ribstats.DefaultTier1()
	if len(t.Global) == 0 {
		t.Global = d.Global
	}
	if len(t.V4) == 0 {
		t.V4 = d.V4
	}
	if len(t.V6) == 0 {
		t.V6 = d.V6
	}
}

func (t Tier1Config) Lists() ribstats.Tier1Lists {
	return ribstats.Tier1Lists{Global: t.Global, V4: t.V4, V6: t.V6}
}

func (m *MergeConfig) Location() *time.Location {
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	case "SCRAM-SHA-256":
		return scram.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsSha256Mechanism()
	case "SCRAM-SHA-512":
		return scram.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsSha512Mechanism()
	default:
		return nil
	}
}
