package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development test production"`
	ClientURL   string `yaml:"client_url" default:"http://localhost:3000" validate:"required,url"`

	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Redis     RedisConfig     `yaml:"redis"`
	Broker    BrokerConfig    `yaml:"broker"`
	Retry     RetryConfig     `yaml:"retry"`
	Queues    []QueueConfig   `yaml:"queues" validate:"dive"`
	Cache     CacheConfig     `yaml:"cache"`
	Mail      MailConfig      `yaml:"mail"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Password  PasswordConfig  `yaml:"password"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"5000" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	CORS            bool          `yaml:"cors" default:"true"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size" default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
}

// BrokerConfig controls the job broker and worker runtime shared by all queues.
type BrokerConfig struct {
	Driver            string        `yaml:"driver" default:"redis" validate:"oneof=redis memory"`
	KeyPrefix         string        `yaml:"key_prefix" default:"socially:queue"`
	PollInterval      time.Duration `yaml:"poll_interval" default:"1s" validate:"gt=0"`
	SchedulerInterval time.Duration `yaml:"scheduler_interval" default:"1s" validate:"gt=0"`
	StallTimeout      time.Duration `yaml:"stall_timeout" default:"5m" validate:"gt=0"`
	BatchSize         int           `yaml:"batch_size" default:"100" validate:"min=1"`
	DeadRetention     int           `yaml:"dead_retention" default:"1000" validate:"min=1"`
	Unregistered      string        `yaml:"unregistered" default:"backlog" validate:"oneof=backlog reject"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"min=1"`
	Strategy    string        `yaml:"strategy" default:"exponential" validate:"oneof=exponential linear constant"`
	Min         time.Duration `yaml:"min" default:"1s" validate:"gt=0"`
	Max         time.Duration `yaml:"max" default:"1m" validate:"gtefield=Min"`
}

// QueueConfig is the audited list of processors a queue runs.
type QueueConfig struct {
	Name       string            `yaml:"name" validate:"required"`
	Processors []ProcessorConfig `yaml:"processors" validate:"dive"`
}

type ProcessorConfig struct {
	Job         string `yaml:"job" validate:"required"`
	Concurrency int    `yaml:"concurrency" default:"1" validate:"min=1"`
}

type CacheConfig struct {
	Driver  string        `yaml:"driver" default:"redis" validate:"oneof=redis memory"`
	Prefix  string        `yaml:"prefix" default:"socially"`
	MaxSize int           `yaml:"max_size" default:"10000"`
	Cleanup time.Duration `yaml:"cleanup" default:"1m"`
	UserTTL time.Duration `yaml:"user_ttl" default:"24h"`
}

type MailConfig struct {
	SenderName     string        `yaml:"sender_name" default:"Socially App"`
	SenderEmail    string        `yaml:"sender_email" validate:"omitempty,email"`
	SenderPassword string        `yaml:"sender_password"`
	SMTPHost       string        `yaml:"smtp_host" default:"smtp.ethereal.email"`
	SMTPPort       int           `yaml:"smtp_port" default:"587"`
	SendGridAPIKey string        `yaml:"sendgrid_api_key"`
	SendGridURL    string        `yaml:"sendgrid_url" default:"https://api.sendgrid.com/v3/mail/send" validate:"url"`
	Timeout        time.Duration `yaml:"timeout" default:"15s"`
}

type KafkaConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Brokers         []string `yaml:"brokers"`
	DeadLetterTopic string   `yaml:"dead_letter_topic" default:"socially.jobs.dead"`
	ReplayTopic     string   `yaml:"replay_topic" default:"socially.jobs.replay"`
	LogTopic        string   `yaml:"log_topic"`
	RequiredAcks    int      `yaml:"required_acks" default:"-1"`
	Compression     string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer        struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"socially-replay"`
		Workers    int           `yaml:"workers" default:"1" validate:"min=1"`
		BufferSize int           `yaml:"buffer_size" default:"100"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic"`
	} `yaml:"consumer"`
}

type PasswordConfig struct {
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl" default:"1h" validate:"gt=0"`
	BcryptCost    int           `yaml:"bcrypt_cost" default:"10" validate:"min=4,max=31"`
}

// RateLimitConfig is a token bucket per email address for forgot-password.
type RateLimitConfig struct {
	ForgotPasswordBurst  float64 `yaml:"forgot_password_burst" default:"3"`
	ForgotPasswordPerMin float64 `yaml:"forgot_password_per_min" default:"1"`
}

// DefaultQueues is the processor list used when the config file names none.
func DefaultQueues() []QueueConfig {
	return []QueueConfig{
		{Name: "email", Processors: []ProcessorConfig{{Job: "forgotPasswordEmail", Concurrency: 5}}},
		{Name: "user", Processors: []ProcessorConfig{{Job: "addUserToDB", Concurrency: 5}}},
		{Name: "auth", Processors: []ProcessorConfig{{Job: "addAuthUserToDB", Concurrency: 5}}},
	}
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes YAML on top of the defaults.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(c.Queues) == 0 {
		c.Queues = DefaultQueues()
	}
	for i := range c.Queues {
		for j := range c.Queues[i].Processors {
			if err := defaults.Set(&c.Queues[i].Processors[j]); err != nil {
				return nil, fmt.Errorf("set processor defaults: %w", err)
			}
		}
	}
	return &c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("CLIENT_URL"); v != "" {
		c.ClientURL = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("SENDER_EMAIL"); v != "" {
		c.Mail.SenderEmail = v
	}
	if v := getenv("SENDER_EMAIL_PASSWORD"); v != "" {
		c.Mail.SenderPassword = v
	}
	if v := getenv("SENDGRID_API_KEY"); v != "" {
		c.Mail.SendGridAPIKey = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Queues))
	for _, q := range c.Queues {
		if seen[q.Name] {
			return fmt.Errorf("queues: %q listed twice", q.Name)
		}
		seen[q.Name] = true

		jobs := make(map[string]bool, len(q.Processors))
		for _, p := range q.Processors {
			if jobs[p.Job] {
				return fmt.Errorf("queues.%s: processor %q listed twice", q.Name, p.Job)
			}
			jobs[p.Job] = true
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Environment == "production" && c.Mail.SendGridAPIKey == "" {
		return fmt.Errorf("mail.sendgrid_api_key is required in production")
	}
	return nil
}

// IsProduction reports whether mail goes through SendGrid.
func (c *Config) IsProduction() bool { return c.Environment == "production" }
