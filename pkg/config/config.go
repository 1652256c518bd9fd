package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ExoScan/internal/services/heuristic"
	"ExoScan/internal/services/inference"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		BodyLimit       string        `yaml:"body_limit" default:"16M"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Logging struct {
		Level   string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format  string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output  string `yaml:"output" default:"stdout"`
		Collect struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"exoscan.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collect"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Evaluator struct {
		Backend       string `yaml:"backend" default:"auto" validate:"oneof=model heuristic auto"`
		MaxCandidates int    `yaml:"max_candidates" default:"100" validate:"gte=1"`
		MinPoints     int    `yaml:"min_points" default:"100" validate:"gte=1"`
		// Limits of the classifier-only deployment.
		HeuristicMaxCandidates int           `yaml:"heuristic_max_candidates" default:"0" validate:"gte=0"`
		HeuristicMinPoints     int           `yaml:"heuristic_min_points" default:"1" validate:"gte=1"`
		Seed                   int64         `yaml:"seed"`
		ResultCacheTTL         time.Duration `yaml:"result_cache_ttl" default:"10m"`
	} `yaml:"evaluator"`
	Inference inference.Config `yaml:"inference"`
	Heuristic heuristic.Params `yaml:"heuristic"`
	Cache     struct {
		Type          string `yaml:"type" default:"memory" validate:"oneof=none memory redis layered"`
		MemoryMaxSize int    `yaml:"memory_max_size" default:"1000"`
	} `yaml:"cache"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"exoscan"`
	} `yaml:"redis"`
	History struct {
		Sink          string        `yaml:"sink" default:"none" validate:"oneof=none clickhouse kafka"`
		BufferSize    int           `yaml:"buffer_size" default:"1024" validate:"gte=1"`
		BatchSize     int           `yaml:"batch_size" default:"100" validate:"gte=1"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"2s" validate:"gt=0"`
		Table         string        `yaml:"table" default:"evaluations"`
	} `yaml:"history"`
	Kafka struct {
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		Topic        string   `yaml:"topic" default:"exoscan.evaluations"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"500ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"exoscan-history"`
			Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"exoscan"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
		RetryLimit int           `yaml:"retry_limit" default:"0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		ResultTTL  time.Duration `yaml:"result_ttl" default:"1h" validate:"gt=0"`
	} `yaml:"queue"`
	RateLimit struct {
		Enabled bool          `yaml:"enabled" default:"true"`
		RPS     float64       `yaml:"rps" default:"5" validate:"gt=0"`
		Burst   int           `yaml:"burst" default:"10" validate:"gte=1"`
		IdleTTL time.Duration `yaml:"idle_ttl" default:"10m"`
	} `yaml:"rate_limit"`
	Feed struct {
		Enabled      bool          `yaml:"enabled" default:"true"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		SendBuffer   int           `yaml:"send_buffer" default:"64"`
	} `yaml:"feed"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Parse applies defaults, then overlays the YAML document.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment
// variables before validating.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// ApplyEnv overrides fields from the environment. getenv is os.Getenv in
// production.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("EXOSCAN_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("EXOSCAN_BACKEND"); v != "" {
		c.Evaluator.Backend = v
	}
	if v := getenv("EXOSCAN_MODEL_PATH"); v != "" {
		c.Inference.ModelPath = v
	}
	if v := getenv("EXOSCAN_WORKER_SCRIPT"); v != "" {
		c.Inference.ScriptPath = v
	}
	if v := getenv("EXOSCAN_INTERPRETER"); v != "" {
		c.Inference.Interpreter = v
	}
	if v := getenv("EXOSCAN_WORKER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Inference.Timeout = d
		}
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
}

// Validate checks struct rules and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Evaluator.Backend != "heuristic" {
		if c.Inference.Interpreter == "" || c.Inference.ScriptPath == "" {
			return fmt.Errorf("inference.interpreter and inference.script_path are required for backend %q", c.Evaluator.Backend)
		}
	}
	if c.History.Sink == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when history.sink is kafka")
	}
	if c.Kafka.Consumer.Enabled && c.History.Sink != "kafka" {
		return fmt.Errorf("kafka.consumer requires history.sink kafka")
	}
	if (c.Queue.Enabled || c.Cache.Type == "redis" || c.Cache.Type == "layered") && c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required")
	}
	if c.Queue.Enabled && c.Cache.Type == "none" {
		return fmt.Errorf("queue requires a cache to hold job results")
	}
	return nil
}
