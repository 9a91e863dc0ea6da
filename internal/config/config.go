package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	Cache      CacheConfig
	JWT        JWTConfig
	Ledger     LedgerConfig
	Contract   ContractConfig
	Custody    CustodyConfig
	Resilience ResilienceConfig
	Lottery    LotteryConfig
	LogLevel   string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig selects the cache backend: mongo, redis or none
type CacheConfig struct {
	Driver     string
	TTLSeconds int
}

// JWTConfig holds the secret used to validate boundary tokens
type JWTConfig struct {
	Secret string
}

// LedgerConfig holds the transaction index settings
type LedgerConfig struct {
	IndexURL string
	APIKey   string
	Account  string
	PageSize int
}

// ContractConfig holds the lottery contract settings
type ContractConfig struct {
	RPCURL             string
	APIKey             string
	Address            string
	Mnemonic           string
	WalletVersion      string
	DrawOpcode         uint32
	SetStateOpcode     uint32
	MessageFeeNano     uint64
	RequestsPerSecond  float64
	PropagationSeconds int
	ConfirmPollSeconds int
}

// CustodyConfig holds the custody platform settings
type CustodyConfig struct {
	BaseURL              string
	APIKey               string
	PrivateKeyPath       string
	PaymentAccountID     string
	PaymentAccountType   string
	AffiliateAccountID   string
	AffiliateAccountType string
	AssetID              string
}

// ResilienceConfig holds retry and circuit breaker settings shared by all upstreams
type ResilienceConfig struct {
	MaxRetries       int
	BaseDelayMs      int
	MaxDelayMs       int
	FailureThreshold int
	BreakSeconds     int
}

// LotteryConfig holds draw economics
type LotteryConfig struct {
	TicketPrice float64
}

// CacheTTL returns the cache entry lifetime
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load loads configuration from a .env file, environment variables and config files
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// setDefaults sets default values for configuration. Every key is declared so
// that AutomaticEnv can resolve it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "4000")
	v.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	v.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	v.SetDefault("MongoDB.Database", "lottery-settlement")
	v.SetDefault("Redis.Addr", "localhost:6379")
	v.SetDefault("Redis.Password", "")
	v.SetDefault("Redis.DB", 0)
	v.SetDefault("Cache.Driver", "mongo")
	v.SetDefault("Cache.TTLSeconds", 60)
	v.SetDefault("JWT.Secret", "")
	v.SetDefault("Ledger.IndexURL", "https://toncenter.com/api/v3/transactions")
	v.SetDefault("Ledger.APIKey", "")
	v.SetDefault("Ledger.Account", "")
	v.SetDefault("Ledger.PageSize", 1000)
	v.SetDefault("Contract.RPCURL", "https://toncenter.com/api/v3/runGetMethod")
	v.SetDefault("Contract.APIKey", "")
	v.SetDefault("Contract.Address", "")
	v.SetDefault("Contract.Mnemonic", "")
	v.SetDefault("Contract.WalletVersion", "v4r2")
	v.SetDefault("Contract.DrawOpcode", 0)
	v.SetDefault("Contract.SetStateOpcode", 0)
	v.SetDefault("Contract.MessageFeeNano", 50_000_000)
	v.SetDefault("Contract.RequestsPerSecond", 1.0)
	v.SetDefault("Contract.PropagationSeconds", 60)
	v.SetDefault("Contract.ConfirmPollSeconds", 5)
	v.SetDefault("Custody.BaseURL", "https://api.fireblocks.io/v1")
	v.SetDefault("Custody.APIKey", "")
	v.SetDefault("Custody.PrivateKeyPath", "")
	v.SetDefault("Custody.PaymentAccountID", "0")
	v.SetDefault("Custody.PaymentAccountType", "VAULT_ACCOUNT")
	v.SetDefault("Custody.AffiliateAccountID", "")
	v.SetDefault("Custody.AffiliateAccountType", "VAULT_ACCOUNT")
	v.SetDefault("Custody.AssetID", "TON")
	v.SetDefault("Resilience.MaxRetries", 3)
	v.SetDefault("Resilience.BaseDelayMs", 200)
	v.SetDefault("Resilience.MaxDelayMs", 5000)
	v.SetDefault("Resilience.FailureThreshold", 5)
	v.SetDefault("Resilience.BreakSeconds", 30)
	v.SetDefault("Lottery.TicketPrice", 1.0)
	v.SetDefault("LogLevel", "info")
}

// Validate reports every required key that is missing
func (c *Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	require("JWT.Secret", c.JWT.Secret)
	require("Ledger.IndexURL", c.Ledger.IndexURL)
	require("Ledger.Account", c.Ledger.Account)
	require("Contract.RPCURL", c.Contract.RPCURL)
	require("Contract.Address", c.Contract.Address)
	require("Custody.BaseURL", c.Custody.BaseURL)
	require("Custody.APIKey", c.Custody.APIKey)
	require("Custody.PrivateKeyPath", c.Custody.PrivateKeyPath)
	if c.Contract.Mnemonic != "" && (c.Contract.DrawOpcode == 0 || c.Contract.SetStateOpcode == 0) {
		missing = append(missing, "Contract.DrawOpcode/Contract.SetStateOpcode")
	}

	switch c.Cache.Driver {
	case "mongo", "none":
	case "redis":
		require("Redis.Addr", c.Redis.Addr)
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Cache.Driver)
	}
	if c.Lottery.TicketPrice <= 0 {
		return fmt.Errorf("Lottery.TicketPrice must be positive")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
