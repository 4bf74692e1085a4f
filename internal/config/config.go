package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/listing-search/pkg/config"
	"github.com/utafrali/listing-search/pkg/database"
	"github.com/utafrali/listing-search/pkg/tracing"
)

// Engine kinds.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Config holds all configuration for the listing search service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"listing-search"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	RequestTimeout  time.Duration `env:"SEARCH_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SEARCH_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CORSOrigins     []string      `env:"SEARCH_CORS_ORIGINS" envDefault:"*" envSeparator:","`
	CacheMaxAge     int           `env:"SEARCH_CACHE_MAX_AGE" envDefault:"30"`
	PprofEnabled    bool          `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowlist  []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`

	// Search engine
	SearchEngine        string        `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURLs   []string      `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUser   string        `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPass   string        `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchWait   time.Duration `env:"ELASTICSEARCH_STARTUP_WAIT" envDefault:"60s"`
	IndexName           string        `env:"SEARCH_INDEX" envDefault:"marketplace_listings"`
	Shards              int           `env:"SEARCH_INDEX_SHARDS" envDefault:"1"`
	Replicas            int           `env:"SEARCH_INDEX_REPLICAS" envDefault:"0"`
	Synonyms            string        `env:"SEARCH_SYNONYMS" envDefault:"truck, lorry, hgv;tractor unit, tractor, cab;refrigerated, reefer;trailer, semi-trailer;van, lcv"`
	AutocompleteMinGram int           `env:"SEARCH_AUTOCOMPLETE_MIN_GRAM" envDefault:"2"`
	AutocompleteMaxGram int           `env:"SEARCH_AUTOCOMPLETE_MAX_GRAM" envDefault:"15"`
	PriceBuckets        []float64     `env:"SEARCH_PRICE_BUCKETS" envDefault:"10000,25000,50000,100000" envSeparator:","`
	YearBuckets         []float64     `env:"SEARCH_YEAR_BUCKETS" envDefault:"2010,2015,2020" envSeparator:","`
	BatchSize           int           `env:"SEARCH_REINDEX_BATCH_SIZE" envDefault:"200"`
	SuggestOverfetch    int           `env:"SEARCH_SUGGEST_OVERFETCH" envDefault:"3"`
	SuggestCacheTTL     time.Duration `env:"SEARCH_SUGGEST_CACHE_TTL" envDefault:"60s"`
	Locale              string        `env:"SEARCH_LOCALE" envDefault:"en"`
	BreakerFailureRatio float64       `env:"SEARCH_BREAKER_FAILURE_RATIO" envDefault:"0.6"`
	BreakerOpenTimeout  time.Duration `env:"SEARCH_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	BreakerMinRequests  uint32        `env:"SEARCH_BREAKER_MIN_REQUESTS" envDefault:"10"`

	// PostgreSQL listing source
	DBHost          string        `env:"SEARCH_DB_HOST" envDefault:"localhost"`
	DBPort          int           `env:"SEARCH_DB_PORT" envDefault:"5432"`
	DBUser          string        `env:"SEARCH_DB_USER" envDefault:"marketplace"`
	DBPassword      string        `env:"SEARCH_DB_PASSWORD" envDefault:"marketplace_secret"`
	DBName          string        `env:"SEARCH_DB_NAME" envDefault:"marketplace"`
	DBSSLMode       string        `env:"SEARCH_DB_SSLMODE" envDefault:"disable"`
	DBMaxConns      int32         `env:"SEARCH_DB_MAX_CONNS" envDefault:"10"`
	DBSlowThreshold time.Duration `env:"SEARCH_DB_SLOW_QUERY" envDefault:"200ms"`

	// Redis suggestion cache; empty host disables it.
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka; empty brokers disable the consumer and the DLQ.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"listing-search-indexer"`

	// Tracing
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingEnabled  bool    `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	TraceSampleRate float64 `env:"OTEL_TRACE_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if c.SearchEngine != EngineElasticsearch && c.SearchEngine != EngineMemory {
		errs = append(errs, fmt.Errorf("SEARCH_ENGINE must be %q or %q, got %q", EngineElasticsearch, EngineMemory, c.SearchEngine))
	}
	if strings.TrimSpace(c.IndexName) == "" {
		errs = append(errs, errors.New("SEARCH_INDEX is required"))
	}
	if c.Shards < 1 || c.Replicas < 0 {
		errs = append(errs, fmt.Errorf("invalid shard/replica counts: %d/%d", c.Shards, c.Replicas))
	}
	if c.AutocompleteMinGram < 1 || c.AutocompleteMaxGram < c.AutocompleteMinGram {
		errs = append(errs, fmt.Errorf("invalid autocomplete n-gram bounds: %d-%d", c.AutocompleteMinGram, c.AutocompleteMaxGram))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("SEARCH_REINDEX_BATCH_SIZE must be positive, got %d", c.BatchSize))
	}
	if c.SuggestOverfetch < 1 {
		errs = append(errs, fmt.Errorf("SEARCH_SUGGEST_OVERFETCH must be at least 1, got %d", c.SuggestOverfetch))
	}
	if !ascending(c.PriceBuckets) {
		errs = append(errs, errors.New("SEARCH_PRICE_BUCKETS must be strictly ascending"))
	}
	if !ascending(c.YearBuckets) {
		errs = append(errs, errors.New("SEARCH_YEAR_BUCKETS must be strictly ascending"))
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		errs = append(errs, fmt.Errorf("SEARCH_BREAKER_FAILURE_RATIO must be in (0,1], got %v", c.BreakerFailureRatio))
	}
	return errors.Join(errs...)
}

func ascending(values []float64) bool {
	return sort.SliceIsSorted(values, func(i, j int) bool { return values[i] < values[j] }) && distinct(values)
}

func distinct(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] == values[i-1] {
			return false
		}
	}
	return true
}

// SynonymGroups splits SEARCH_SYNONYMS into comma separated groups.
func (c *Config) SynonymGroups() []string {
	var groups []string
	for _, g := range strings.Split(c.Synonyms, ";") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// Postgres returns the pool configuration for the listing source.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.DBHost
	pg.Port = c.DBPort
	pg.User = c.DBUser
	pg.Password = c.DBPassword
	pg.DBName = c.DBName
	pg.SSLMode = c.DBSSLMode
	pg.MaxConns = c.DBMaxConns
	return pg
}

// Redis returns the cache configuration and whether caching is enabled.
func (c *Config) Redis() (database.RedisConfig, bool) {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}, c.RedisHost != ""
}

// Tracing returns the OpenTelemetry configuration.
func (c *Config) Tracing() tracing.Config {
	t := tracing.DefaultConfig(c.ServiceName)
	t.Environment = c.Environment
	t.OTLPEndpoint = c.OTLPEndpoint
	t.Enabled = c.TracingEnabled
	t.SampleRate = c.TraceSampleRate
	return t
}
