package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Keystore   KeystoreConfig
	Blockchain BlockchainConfig
	Oracle     OracleConfig
	Pipeline   PipelineConfig
	Queue      QueueConfig
	Security   SecurityConfig
}

// SecurityConfig holds security encryption keys
type SecurityConfig struct {
	SessionEncryptionKey string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	SessionTTL    time.Duration
}

// KeystoreConfig holds keystore configuration. The master password itself
// is resolved separately and never stored here.
type KeystoreConfig struct {
	Dir                string
	MasterPasswordFile string
}

// BlockchainConfig holds blockchain RPC URLs and network names
type BlockchainConfig struct {
	EthereumRPC     string
	EthereumNetwork string
	SolanaRPC       string
	SolanaNetwork   string
}

// OracleConfig holds price oracle configuration
type OracleConfig struct {
	CoinGeckoURL  string
	PythURL       string
	CacheTTL      time.Duration
	StaleMax      time.Duration
	SourceRPS     float64
	SourceTimeout time.Duration
}

// PipelineConfig holds pipeline tuning
type PipelineConfig struct {
	ConfirmTimeout time.Duration
}

// QueueConfig holds delay/approval queue defaults
type QueueConfig struct {
	DefaultDelay    time.Duration
	DefaultApproval time.Duration
	SweepInterval   time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "agentwallet"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", "change-this-in-production"),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
		Keystore: KeystoreConfig{
			Dir:                getEnv("KEYSTORE_DIR", "./keystore"),
			MasterPasswordFile: getEnv("MASTER_PASSWORD_FILE", ""),
		},
		Blockchain: BlockchainConfig{
			EthereumRPC:     getEnv("ETHEREUM_RPC_URL", "https://ethereum-sepolia-rpc.publicnode.com"),
			EthereumNetwork: getEnv("ETHEREUM_NETWORK", "sepolia"),
			SolanaRPC:       getEnv("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
			SolanaNetwork:   getEnv("SOLANA_NETWORK", "devnet"),
		},
		Oracle: OracleConfig{
			CoinGeckoURL:  getEnv("COINGECKO_URL", "https://api.coingecko.com"),
			PythURL:       getEnv("PYTH_URL", "https://hermes.pyth.network"),
			CacheTTL:      getEnvAsDuration("ORACLE_CACHE_TTL", 30*time.Second),
			StaleMax:      getEnvAsDuration("ORACLE_STALE_MAX", 5*time.Minute),
			SourceRPS:     getEnvAsFloat("ORACLE_SOURCE_RPS", 1),
			SourceTimeout: getEnvAsDuration("ORACLE_SOURCE_TIMEOUT", 5*time.Second),
		},
		Pipeline: PipelineConfig{
			ConfirmTimeout: getEnvAsDuration("CONFIRM_TIMEOUT", 2*time.Minute),
		},
		Queue: QueueConfig{
			DefaultDelay:    getEnvAsDuration("QUEUE_DEFAULT_DELAY", 5*time.Minute),
			DefaultApproval: getEnvAsDuration("QUEUE_DEFAULT_APPROVAL_TIMEOUT", time.Hour),
			SweepInterval:   getEnvAsDuration("QUEUE_SWEEP_INTERVAL", 15*time.Second),
		},
		Security: SecurityConfig{
			SessionEncryptionKey: getEnv("SESSION_ENCRYPTION_KEY", "0000000000000000000000000000000000000000000000000000000000000000"), // 32-bytes hex string
		},
	}
}

// ResolveMasterPassword resolves the keystore master password. Order:
// MASTER_PASSWORD env var, then the configured password file, then an
// interactive prompt on in. The password is never logged.
func (c *Config) ResolveMasterPassword(in io.Reader, out io.Writer) ([]byte, error) {
	if v := os.Getenv("MASTER_PASSWORD"); v != "" {
		return []byte(v), nil
	}
	if c.Keystore.MasterPasswordFile != "" {
		raw, err := os.ReadFile(c.Keystore.MasterPasswordFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read master password file: %w", err)
		}
		pw := bytes.TrimRight(raw, "\r\n")
		if len(pw) == 0 {
			return nil, fmt.Errorf("master password file %s is empty", c.Keystore.MasterPasswordFile)
		}
		return pw, nil
	}
	fmt.Fprint(out, "Keystore master password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("failed to read master password: %w", err)
	}
	pw := []byte(trimEOL(line))
	if len(pw) == 0 {
		return nil, fmt.Errorf("master password must not be empty")
	}
	return pw, nil
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
