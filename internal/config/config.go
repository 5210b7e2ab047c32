package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// envRef matches ${VAR} references; a bare $ is left alone
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
	Chain     ChainConfig     `yaml:"chain"`
	Mint      MintConfig      `yaml:"mint"`
	Uploader  UploaderConfig  `yaml:"uploader"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the mint journal connection configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// RabbitMQConfig holds the mint event publisher configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
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
	UIURL       string `yaml:"ui_url"`
}

// WorkerConfig holds mint queue configuration
type WorkerConfig struct {
	QueueCapacity   int           `yaml:"queue_capacity"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	StatusTTL       time.Duration `yaml:"status_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ChainConfig holds RPC and program addresses
type ChainConfig struct {
	RPCEndpoint      string        `yaml:"rpc_endpoint"`
	PaymentProgramID string        `yaml:"payment_program_id"`
	CandyProgramID   string        `yaml:"candy_program_id"`
	ConfigAddress    string        `yaml:"config_address"`
	CreatorAddress   string        `yaml:"creator_address"`
	WalletKeypair    string        `yaml:"wallet_keypair"`
	ConfirmInterval  time.Duration `yaml:"confirm_interval"`
	ConfirmTimeout   time.Duration `yaml:"confirm_timeout"`
}

// MintConfig holds submission limits and collection metadata
type MintConfig struct {
	MaxNameLength        int    `yaml:"max_name_length"`
	MaxFileSizeKB        int64  `yaml:"max_file_size_kb"`
	Symbol               string `yaml:"symbol"`
	CollectionName       string `yaml:"collection_name"`
	CollectionFamily     string `yaml:"collection_family"`
	SellerFeeBasisPoints uint16 `yaml:"seller_fee_basis_points"`
	AssetGatewayURL      string `yaml:"asset_gateway_url"`
}

// UploaderConfig holds asset gateway configuration
type UploaderConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	RetryWait  time.Duration `yaml:"retry_wait"`
}

// RateLimitConfig holds the per-client limit on submissions
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads and parses the configuration file. ${VAR} references are
// replaced from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Worker.QueueCapacity == 0 {
		c.Worker.QueueCapacity = 100
	}
	if c.Worker.JobTimeout == 0 {
		c.Worker.JobTimeout = 5 * time.Minute
	}
	if c.Worker.StatusTTL == 0 {
		c.Worker.StatusTTL = 60 * time.Minute
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 5 * time.Minute
	}
	if c.Mint.MaxNameLength == 0 {
		c.Mint.MaxNameLength = 24
	}
	if c.Mint.MaxFileSizeKB == 0 {
		c.Mint.MaxFileSizeKB = 1024
	}
	if c.Mint.AssetGatewayURL == "" {
		c.Mint.AssetGatewayURL = "https://www.arweave.net"
	}
	if c.Chain.ConfirmInterval == 0 {
		c.Chain.ConfirmInterval = 500 * time.Millisecond
	}
	if c.Chain.ConfirmTimeout == 0 {
		c.Chain.ConfirmTimeout = 90 * time.Second
	}
	if c.Uploader.Timeout == 0 {
		c.Uploader.Timeout = 60 * time.Second
	}
	if c.Uploader.RetryWait == 0 {
		c.Uploader.RetryWait = time.Second
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 5
	}
}

// Validate checks the configuration of the mint service
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.ValidateAudit(); err != nil {
		return err
	}

	if err := validateAddress("chain payment_program_id", c.Chain.PaymentProgramID); err != nil {
		return err
	}
	if err := validateAddress("chain candy_program_id", c.Chain.CandyProgramID); err != nil {
		return err
	}
	if c.Chain.CreatorAddress != "" {
		if err := validateAddress("chain creator_address", c.Chain.CreatorAddress); err != nil {
			return err
		}
	}
	if c.Chain.WalletKeypair == "" {
		return errors.New("chain wallet_keypair is required")
	}

	if c.Uploader.Endpoint == "" {
		return errors.New("uploader endpoint is required")
	}

	if c.Mint.MaxNameLength <= 0 {
		return errors.New("mint max_name_length must be greater than 0")
	}
	if c.Mint.MaxFileSizeKB <= 0 {
		return errors.New("mint max_file_size_kb must be greater than 0")
	}
	if c.Mint.Symbol == "" {
		return errors.New("mint symbol is required")
	}
	if c.Mint.SellerFeeBasisPoints > 10000 {
		return fmt.Errorf("invalid mint seller_fee_basis_points: %d (must be at most 10000)", c.Mint.SellerFeeBasisPoints)
	}

	if c.Worker.QueueCapacity <= 0 {
		return errors.New("worker queue_capacity must be greater than 0")
	}
	if c.Worker.JobTimeout <= 0 {
		return errors.New("worker job_timeout must be greater than 0")
	}
	if c.Worker.StatusTTL <= 0 {
		return errors.New("worker status_ttl must be greater than 0")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("rate_limit requests_per_second must be greater than 0")
	}

	if c.Database.Enabled {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateAudit checks the subset needed to read the collection config
func (c *Config) ValidateAudit() error {
	if c.Chain.RPCEndpoint == "" {
		return errors.New("chain rpc_endpoint is required")
	}

	return validateAddress("chain config_address", c.Chain.ConfigAddress)
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return errors.New("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return errors.New("rabbitmq exchange name is required")
	}

	return nil
}

func validateAddress(field, address string) error {
	if address == "" {
		return fmt.Errorf("%s is required", field)
	}

	b, err := base58.Decode(address)
	if err != nil || len(b) != 32 {
		return fmt.Errorf("invalid %s: %q is not a base58 public key", field, address)
	}

	return nil
}
