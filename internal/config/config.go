package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Scylla        ScyllaConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Token         TokenConfig
	Hashing       HashingConfig
	KMS           KMSConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableTLS   bool
	TLSPort     int
	CertFile    string
	KeyFile     string
	AutoCert    bool
	AutoCertDir string
	Domain      string
	Email       string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ElasticsearchConfig struct {
	URL          string
	Username     string
	Password     string
	ProfileIndex string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

// TokenConfig drives JWT issuance. Validity windows are expressed in days to
// match the issued exp = iat + days*86400 contract.
type TokenConfig struct {
	Issuer                   string
	Audience                 string
	AccessTokenValidityDays  int
	RefreshTokenValidityDays int
	PrivateKeyPath           string
	PublicKeyPath            string
}

type HashingConfig struct {
	BcryptCost int
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

var (
	global *Config
	once   sync.Once
)

// LoadConfig reads .env (if present) and the process environment into a
// Config. Safe to call more than once; the first call wins.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		global = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCert:     getEnvBool("SERVER_AUTOCERT", false),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/lib/autocert"),
				Domain:       getEnv("SERVER_DOMAIN", ""),
				Email:        getEnv("SERVER_ADMIN_EMAIL", ""),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "console"),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvSlice("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "accounts"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
			},
			Kafka: KafkaConfig{
				Brokers: getEnvSlice("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
				Topic:   getEnv("KAFKA_ACCOUNT_EVENTS_TOPIC", "account-events"),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:          getEnv("ELASTICSEARCH_URL", "http://127.0.0.1:9200"),
				Username:     getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:     getEnv("ELASTICSEARCH_PASSWORD", ""),
				ProfileIndex: getEnv("ELASTICSEARCH_PROFILE_INDEX", "profiles"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "http://127.0.0.1:8123"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Database: getEnv("CLICKHOUSE_DATABASE", "audit"),
			},
			Token: TokenConfig{
				Issuer:                   getEnv("TOKEN_ISSUER", "account-service"),
				Audience:                 getEnv("TOKEN_AUDIENCE", "account-service-clients"),
				AccessTokenValidityDays:  getEnvInt("ACCESS_TOKEN_VALIDITY_DAYS", 1),
				RefreshTokenValidityDays: getEnvInt("REFRESH_TOKEN_VALIDITY_DAYS", 30),
				PrivateKeyPath:           getEnv("TOKEN_PRIVATE_KEY_PATH", "keys/private.pem"),
				PublicKeyPath:            getEnv("TOKEN_PUBLIC_KEY_PATH", "keys/public.pem"),
			},
			Hashing: HashingConfig{
				BcryptCost: getEnvInt("BCRYPT_COST", 10),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "us-east-1"),
			},
		}
	})
	return global
}

// Get returns the loaded config, loading defaults if needed.
func Get() *Config {
	if global == nil {
		return LoadConfig()
	}
	return global
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
