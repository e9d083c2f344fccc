package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Defaults observed in production
const (
	DefaultConcurrency         = 5
	DefaultPollInterval        = 20 * time.Second
	DefaultPollTimeout         = 15 * time.Minute
	DefaultFaceSwapTimeout     = 90 * time.Second
	DefaultVendorTimeout       = 60 * time.Second
	DefaultSignedURLTTL        = time.Hour
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultLockTTL             = 2 * time.Minute
	DefaultVendorRatePerSecond = 5.0
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Redis       RedisConfig       `yaml:"redis"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Vendors     VendorsConfig     `yaml:"vendors"`
	Polling     PollingConfig     `yaml:"polling"`
	Share       ShareConfig       `yaml:"share"`
	Logging     LoggingConfig     `yaml:"logging"`
	App         AppConfig         `yaml:"app"`
	Worker      WorkerConfig      `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	DeadLetter string           `yaml:"dead_letter_exchange"`
	Queues     QueuesConfig     `yaml:"queues"`
	Connection ConnectionConfig `yaml:"connection"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	RoutingKey string `yaml:"routing_key"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// RoutingKeyOrName returns the routing key, defaulting to the queue name
func (q QueueConfig) RoutingKeyOrName() string {
	if q.RoutingKey != "" {
		return q.RoutingKey
	}
	return q.Name
}

// QueuesConfig names one queue per job kind plus the notification queue
type QueuesConfig struct {
	FaceSwap      QueueConfig `yaml:"faceswap"`
	AIVideoCard   QueueConfig `yaml:"ai_video_card"`
	SlideshowCard QueueConfig `yaml:"slideshow_card"`
	Notifications QueueConfig `yaml:"notifications"`
}

// ForKind returns the queue of a job kind
func (q QueuesConfig) ForKind(kind domain.JobKind) QueueConfig {
	switch kind {
	case domain.KindFaceSwap:
		return q.FaceSwap
	case domain.KindAIVideoCard:
		return q.AIVideoCard
	case domain.KindSlideshowCard:
		return q.SlideshowCard
	default:
		return QueueConfig{}
	}
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// RedisConfig holds the job lock store settings
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// ObjectStoreConfig holds S3-compatible blob store settings
type ObjectStoreConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	AccessKey    string        `yaml:"access_key"`
	SecretKey    string        `yaml:"secret_key"`
	Region       string        `yaml:"region"`
	UseSSL       bool          `yaml:"use_ssl"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
	Buckets      BucketsConfig `yaml:"buckets"`
}

// BucketsConfig names a bucket per asset category
type BucketsConfig struct {
	Characters        string `yaml:"characters"`
	Voices            string `yaml:"voices"`
	Music             string `yaml:"music"`
	FaceSwapTemplates string `yaml:"faceswap_templates"`
	UserContent       string `yaml:"user_content"`
}

// VendorConfig holds one vendor's endpoint and credentials
type VendorConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
}

// RenderVendorConfig adds template routing to the render vendor
type RenderVendorConfig struct {
	VendorConfig `yaml:",inline"`
	OwnerID      string            `yaml:"owner_id"`
	Templates    map[string]string `yaml:"templates"` // template key or genre -> vendor template id
}

// VendorsConfig groups all vendor settings
type VendorsConfig struct {
	FaceSwap VendorConfig       `yaml:"faceswap"`
	Avatar   VendorConfig       `yaml:"avatar"`
	Render   RenderVendorConfig `yaml:"render"`
}

// PollingConfig holds polling driver settings
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ShareConfig holds public share link settings
type ShareConfig struct {
	SiteURL string `yaml:"site_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       map[string]int `yaml:"concurrency"` // job kind -> pool size
	Kinds             []string       `yaml:"kinds"`       // kinds served by this process, empty means all
	JobTimeout        time.Duration  `yaml:"job_timeout"`
	HeartbeatInterval time.Duration  `yaml:"heartbeat_interval"`
	StaleAfter        time.Duration  `yaml:"stale_after"` // heartbeat age at which a redelivered job counts as abandoned
	ShutdownTimeout   time.Duration  `yaml:"shutdown_timeout"`
	MetricsPort       int            `yaml:"metrics_port"`
}

// ConcurrencyFor returns the pool size of a kind
func (w WorkerConfig) ConcurrencyFor(kind domain.JobKind) int {
	if n, ok := w.Concurrency[string(kind)]; ok && n > 0 {
		return n
	}
	return DefaultConcurrency
}

// EnabledKinds returns the kinds this process serves
func (w WorkerConfig) EnabledKinds() []domain.JobKind {
	if len(w.Kinds) == 0 {
		return domain.AllKinds
	}
	kinds := make([]domain.JobKind, 0, len(w.Kinds))
	for _, k := range w.Kinds {
		kinds = append(kinds, domain.JobKind(k))
	}
	return kinds
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()

	return &config, nil
}

// ApplyDefaults fills zero values with production defaults
func (c *Config) ApplyDefaults() {
	if c.Polling.Interval <= 0 {
		c.Polling.Interval = DefaultPollInterval
	}
	if c.Polling.Timeout <= 0 {
		c.Polling.Timeout = DefaultPollTimeout
	}
	if c.Vendors.FaceSwap.RequestTimeout <= 0 {
		c.Vendors.FaceSwap.RequestTimeout = DefaultFaceSwapTimeout
	}
	for _, v := range []*VendorConfig{&c.Vendors.FaceSwap, &c.Vendors.Avatar, &c.Vendors.Render.VendorConfig} {
		if v.RequestTimeout <= 0 {
			v.RequestTimeout = DefaultVendorTimeout
		}
		if v.RatePerSecond <= 0 {
			v.RatePerSecond = DefaultVendorRatePerSecond
		}
	}
	if c.ObjectStore.SignedURLTTL <= 0 {
		c.ObjectStore.SignedURLTTL = DefaultSignedURLTTL
	}
	if c.Redis.LockTTL <= 0 {
		c.Redis.LockTTL = DefaultLockTTL
	}
	if c.Worker.HeartbeatInterval <= 0 {
		c.Worker.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Worker.StaleAfter <= 0 {
		c.Worker.StaleAfter = 2 * c.Redis.LockTTL
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Worker.JobTimeout <= 0 {
		// two polled stages plus asset work
		c.Worker.JobTimeout = 2*c.Polling.Timeout + 5*time.Minute
	}
}

// ValidateAPIConfig checks the settings the status API needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.validateDatabase()
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs.
// Missing credentials or endpoints come back as *domain.ConfigurationError.
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queues.Notifications.Name == "" {
		return fmt.Errorf("rabbitmq notifications queue name is required")
	}

	for _, kind := range c.Worker.EnabledKinds() {
		if !kind.Valid() {
			return fmt.Errorf("unknown worker kind %q", kind)
		}
		if c.RabbitMQ.Queues.ForKind(kind).Name == "" {
			return fmt.Errorf("rabbitmq queue name for %s is required", kind)
		}
	}

	if c.Redis.Addr == "" {
		return &domain.ConfigurationError{Field: "redis.addr"}
	}

	if c.ObjectStore.Endpoint == "" {
		return &domain.ConfigurationError{Field: "object_store.endpoint"}
	}

	if c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" {
		return &domain.ConfigurationError{Field: "object_store credentials"}
	}

	for _, kind := range c.Worker.EnabledKinds() {
		if err := c.validateKind(kind); err != nil {
			return err
		}
	}

	if c.Polling.Interval <= 0 || c.Polling.Timeout <= 0 {
		return fmt.Errorf("polling interval and timeout must be greater than 0")
	}

	if c.Polling.Interval >= c.Polling.Timeout {
		return fmt.Errorf("polling interval must be shorter than polling timeout")
	}

	return nil
}

func (c *Config) validateKind(kind domain.JobKind) error {
	required := map[string]string{}

	switch kind {
	case domain.KindFaceSwap:
		required["vendors.faceswap.base_url"] = c.Vendors.FaceSwap.BaseURL
		required["vendors.faceswap.api_key"] = c.Vendors.FaceSwap.APIKey
		required["object_store.buckets.faceswap_templates"] = c.ObjectStore.Buckets.FaceSwapTemplates
		required["object_store.buckets.user_content"] = c.ObjectStore.Buckets.UserContent
	case domain.KindAIVideoCard:
		required["vendors.avatar.base_url"] = c.Vendors.Avatar.BaseURL
		required["vendors.avatar.api_key"] = c.Vendors.Avatar.APIKey
		required["vendors.render.base_url"] = c.Vendors.Render.BaseURL
		required["vendors.render.api_key"] = c.Vendors.Render.APIKey
		required["object_store.buckets.characters"] = c.ObjectStore.Buckets.Characters
		required["object_store.buckets.voices"] = c.ObjectStore.Buckets.Voices
	case domain.KindSlideshowCard:
		required["vendors.render.base_url"] = c.Vendors.Render.BaseURL
		required["vendors.render.api_key"] = c.Vendors.Render.APIKey
		required["object_store.buckets.music"] = c.ObjectStore.Buckets.Music
	}

	for _, field := range slices.Sorted(maps.Keys(required)) {
		if required[field] == "" {
			return &domain.ConfigurationError{Field: field}
		}
	}

	return nil
}
