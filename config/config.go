package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"inventory-analytics/internal/resample"
	"inventory-analytics/internal/table"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks fatal configuration problems. No partial run is attempted
// when Load or Validate returns an error wrapping it.
var ErrConfig = errors.New("invalid configuration")

// labelPattern keeps movement_trend_<label> usable as a SQL table name.
var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Run modes.
const (
	ModeCSV      = "csv"
	ModeDatabase = "database"
)

// Watermark backends and persistence policies.
const (
	WatermarkBackendFile  = "file"
	WatermarkBackendRedis = "redis"

	WatermarkPolicyAtomic  = "atomic"
	WatermarkPolicyPartial = "partial"
)

type Config struct {
	Run              RunConfig           `yaml:"run"`
	Sources          SourcesConfig       `yaml:"sources"`
	TimestampColumns map[string]string   `yaml:"timestamp_columns"`
	DataQuality      DataQualityConfig   `yaml:"data_quality"`
	Business         BusinessConfig      `yaml:"business_rules"`
	Metrics          MetricsConfig       `yaml:"metrics"`
	Targets          TargetsConfig       `yaml:"targets"`
	Redis            RedisConfig         `yaml:"redis"`
	Observ           ObservabilityConfig `yaml:"observability"`
	Server           ServerConfig        `yaml:"server"`
}

type RunConfig struct {
	Env              string `yaml:"env"`
	Mode             string `yaml:"mode"`
	ChunkSize        int    `yaml:"chunk_size"`
	WatermarkBackend string `yaml:"watermark_backend"`
	WatermarkState   string `yaml:"watermark_state"`
	WatermarkKey     string `yaml:"watermark_key"`
	WatermarkPolicy  string `yaml:"watermark_policy"`
	OutputDir        string `yaml:"output_dir"`
	ReportDir        string `yaml:"report_dir"`
	LockTTLSeconds   int    `yaml:"lock_ttl_seconds"`
}

type SourcesConfig struct {
	CSV      CSVSourceConfig      `yaml:"csv"`
	Database DatabaseSourceConfig `yaml:"database"`
}

type CSVSourceConfig struct {
	BasePath string            `yaml:"base_path"`
	Files    map[string]string `yaml:"files"`
}

type DatabaseSourceConfig struct {
	Driver string            `yaml:"driver"`
	URL    string            `yaml:"url"`
	Tables map[string]string `yaml:"tables"`
	// ParamLayout formats the watermark bound as text before binding it.
	// Empty binds a time.Time, which suits drivers with native timestamps.
	ParamLayout     string `yaml:"param_layout"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

type BusinessConfig struct {
	DeadStockDays         int     `yaml:"dead_stock_days"`
	HoldingCostRateAnnual float64 `yaml:"holding_cost_rate_annual"`
	StockoutCostPerUnit   float64 `yaml:"stockout_cost_per_unit"`
}

type MetricsConfig struct {
	Resample ResampleRules `yaml:"resample"`
}

type TargetsConfig struct {
	Export   ExportConfig         `yaml:"export"`
	Database DatabaseTargetConfig `yaml:"database"`
	Kafka    KafkaConfig          `yaml:"kafka"`
}

type ExportConfig struct {
	Path   string   `yaml:"path"`
	Format []string `yaml:"format"`
}

type DatabaseTargetConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Driver            string `yaml:"driver"`
	URL               string `yaml:"url"`
	MaterializedViews bool   `yaml:"materialized_views"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	TopicEvents   string   `yaml:"topic_events"`
	TopicTriggers string   `yaml:"topic_triggers"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ObservabilityConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	PushgatewayURL string `yaml:"pushgateway_url"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// Default returns the configuration a bare YAML file is decoded over.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Env:              "development",
			Mode:             ModeCSV,
			ChunkSize:        50000,
			WatermarkBackend: WatermarkBackendFile,
			WatermarkState:   "./state/watermarks.json",
			WatermarkKey:     "inventory-analytics:watermarks",
			WatermarkPolicy:  WatermarkPolicyAtomic,
			OutputDir:        "./output",
			ReportDir:        "./reports",
			LockTTLSeconds:   3600,
		},
		Sources: SourcesConfig{
			CSV: CSVSourceConfig{BasePath: "./data"},
			Database: DatabaseSourceConfig{
				Driver:          "postgres",
				MaxOpenConns:    5,
				ConnMaxLifetime: 300,
			},
		},
		TimestampColumns: map[string]string{
			"movements":       "movement_time",
			"stock":           "last_update",
			"purchases":       "created_at",
			"purchase_lines":  "created_at",
			"physical_counts": "count_time",
		},
		Business: BusinessConfig{
			DeadStockDays:         180,
			HoldingCostRateAnnual: 0.2,
			StockoutCostPerUnit:   5.0,
		},
		Metrics: MetricsConfig{
			Resample: ResampleRules{
				{Label: "daily", Rule: "D"},
				{Label: "weekly", Rule: "W"},
				{Label: "monthly", Rule: "MS"},
			},
		},
		Targets: TargetsConfig{
			Export: ExportConfig{Path: "./output/export", Format: []string{"csv"}},
			Database: DatabaseTargetConfig{
				Driver: "postgres",
			},
			Kafka: KafkaConfig{
				Brokers:       []string{"localhost:9092"},
				TopicEvents:   "inventory-analytics.events",
				TopicTriggers: "inventory-analytics.triggers",
				ConsumerGroup: "inventory-analytics",
			},
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Observ: ObservabilityConfig{
			JaegerEndpoint: "http://localhost:14268/api/traces",
		},
		Server: ServerConfig{Port: "8080"},
	}
}

// Load reads .env (when present), decodes the YAML file at path over the
// defaults, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Run.Env = getEnv("ETL_ENV", c.Run.Env)
	c.Run.Mode = getEnv("ETL_MODE", c.Run.Mode)
	c.Sources.Database.URL = getEnv("DATABASE_URL", c.Sources.Database.URL)
	c.Targets.Database.URL = getEnv("RESULTS_DATABASE_URL", c.Targets.Database.URL)
	c.Targets.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", c.Targets.Kafka.Enabled)
	c.Targets.Kafka.Brokers = getEnvSlice("KAFKA_BROKERS", c.Targets.Kafka.Brokers)
	c.Targets.Kafka.TopicEvents = getEnv("KAFKA_TOPIC_EVENTS", c.Targets.Kafka.TopicEvents)
	c.Targets.Kafka.TopicTriggers = getEnv("KAFKA_TOPIC_TRIGGERS", c.Targets.Kafka.TopicTriggers)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Observ.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", c.Observ.JaegerEndpoint)
	c.Observ.PushgatewayURL = getEnv("PUSHGATEWAY_URL", c.Observ.PushgatewayURL)
	c.Server.Port = getEnv("PORT", c.Server.Port)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Run.Mode {
	case ModeCSV:
		if c.Sources.CSV.BasePath == "" {
			return fmt.Errorf("%w: sources.csv.base_path is required", ErrConfig)
		}
	case ModeDatabase:
		if c.Sources.Database.URL == "" {
			return fmt.Errorf("%w: sources.database.url is required", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown run.mode %q", ErrConfig, c.Run.Mode)
	}
	if c.Run.ChunkSize <= 0 {
		return fmt.Errorf("%w: run.chunk_size must be > 0", ErrConfig)
	}
	switch c.Run.WatermarkBackend {
	case WatermarkBackendFile:
		if c.Run.WatermarkState == "" {
			return fmt.Errorf("%w: run.watermark_state is required", ErrConfig)
		}
	case WatermarkBackendRedis:
		if c.Run.WatermarkKey == "" {
			return fmt.Errorf("%w: run.watermark_key is required", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown run.watermark_backend %q", ErrConfig, c.Run.WatermarkBackend)
	}
	switch c.Run.WatermarkPolicy {
	case WatermarkPolicyAtomic, WatermarkPolicyPartial:
	default:
		return fmt.Errorf("%w: unknown run.watermark_policy %q", ErrConfig, c.Run.WatermarkPolicy)
	}
	for tbl, cols := range c.DataQuality.Dtypes {
		for col, dtype := range cols {
			if _, err := table.ParseDType(dtype); err != nil {
				return fmt.Errorf("%w: data_quality.dtypes.%s.%s: %v", ErrConfig, tbl, col, err)
			}
		}
	}
	seen := make(map[string]bool)
	for _, r := range c.Metrics.Resample {
		if _, err := resample.Parse(r.Rule); err != nil {
			return fmt.Errorf("%w: metrics.resample.%s: %v", ErrConfig, r.Label, err)
		}
		if !labelPattern.MatchString(r.Label) {
			return fmt.Errorf("%w: metrics.resample: label %q must match %s", ErrConfig, r.Label, labelPattern)
		}
		if seen[r.Label] {
			return fmt.Errorf("%w: metrics.resample: duplicate label %q", ErrConfig, r.Label)
		}
		seen[r.Label] = true
	}
	if c.Business.DeadStockDays < 0 {
		return fmt.Errorf("%w: business_rules.dead_stock_days must be >= 0", ErrConfig)
	}
	for _, f := range c.Targets.Export.Format {
		switch strings.ToLower(f) {
		case "csv", "xlsx":
		default:
			return fmt.Errorf("%w: unsupported targets.export.format %q", ErrConfig, f)
		}
	}
	return nil
}

// SourceTables returns the configured logical table names for the active
// mode, sorted so extraction order is stable.
func (c *Config) SourceTables() []string {
	var names []string
	if c.Run.Mode == ModeDatabase {
		for name := range c.Sources.Database.Tables {
			names = append(names, name)
		}
	} else {
		for name := range c.Sources.CSV.Files {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return strings.Split(value, ",")
	}
	return fallback
}
