package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Environment   string
	AppName       string
	Server        ServerConfig
	Store         StoreConfig
	Mongo         MongoConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Scylla        ScyllaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	JWT           JWTConfig
	OTP           OTPConfig
	Email         EmailConfig
	SMS           SMSConfig
	Auth          AuthConfig
	Events        EventsConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	EnableTLS      bool
	TLSPort        int
	AutoCert       bool
	Domain         string
	CertFile       string
	KeyFile        string
	AutoCertDir    string
	Email          string
}

type StoreConfig struct {
	Driver string
}

type MongoConfig struct {
	URI              string
	Database         string
	UsersCollection  string
	OTPCollection    string
	VendorCollection string
	TTLIndexSeconds  int
	ConnectTimeout   time.Duration
	MaxPoolSize      uint64
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ScyllaConfig struct {
	Enabled  bool
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
	Table    string
}

type KMSConfig struct {
	Enabled  bool
	KeyID    string
	Region   string
	LocalKey string // base64, 32 bytes
}

type BucketingConfig struct {
	EventBuckets int
}

type JWTConfig struct {
	Secret        string
	RefreshSecret string
	Issuer        string
	SessionTTL    time.Duration
	RememberMeTTL time.Duration
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type OTPConfig struct {
	TTL              time.Duration
	PasswordResetTTL time.Duration
	RateWindow       time.Duration
	MaxAttempts      int
	PendingTimeout   time.Duration
	SweepInterval    time.Duration
	SweepGrace       time.Duration
}

type EmailConfig struct {
	Provider       string
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	FromName       string
	SendGridAPIKey string
	SkipTLSVerify  bool
}

type SMSConfig struct {
	ProviderURL     string
	APIKey          string
	SenderID        string
	CountryCode     string
	CarrierGateways []string
	Timeout         time.Duration
}

type AuthConfig struct {
	ExposeDevOTP bool
	DebugErrors  bool
	BcryptCost   int
}

type EventsConfig struct {
	QueueSize int
	Timeout   time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

var defaultCarrierGateways = []string{
	"airtelmail.com",
	"vodafone-sms.de",
	"ideacellular.net",
	"bsnl.in",
	"sms.jio.com",
	"jiomail.com",
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", EnvDevelopment)

	return &Config{
		Environment: env,
		AppName:     getEnv("APP_NAME", "Real Beez"),
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			EnableTLS:      getEnvBool("SERVER_ENABLE_TLS", false),
			TLSPort:        getEnvInt("SERVER_TLS_PORT", 8443),
			AutoCert:       getEnvBool("SERVER_AUTO_CERT", false),
			Domain:         getEnv("SERVER_DOMAIN", "localhost"),
			CertFile:       getEnv("SERVER_CERT_FILE", ""),
			KeyFile:        getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:    getEnv("SERVER_AUTO_CERT_DIR", "./certs"),
			Email:          getEnv("SERVER_ACME_EMAIL", ""),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", StoreMongo),
		},
		Mongo: MongoConfig{
			URI:              getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:         getEnv("MONGODB_DBNAME", "realbeez"),
			UsersCollection:  getEnv("MONGODB_USERS_COLLECTION", "users"),
			OTPCollection:    getEnv("MONGODB_OTP_COLLECTION", "otp_logs"),
			VendorCollection: getEnv("MONGODB_VENDOR_COLLECTION", "cab_vendor"),
			TTLIndexSeconds:  getEnvInt("OTP_TTL_INDEX_SECONDS", 600),
			ConnectTimeout:   getEnvDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
			MaxPoolSize:      uint64(getEnvInt("MONGODB_MAX_POOL_SIZE", 100)),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("AUTH_EVENTS_TOPIC", "auth-events"),
		},
		Scylla: ScyllaConfig{
			Enabled:  getEnvBool("SCYLLA_ENABLED", false),
			Nodes:    getEnvList("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_AUTH_INDEX", "auth-events"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "analytics"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Table:    getEnv("CLICKHOUSE_AUTH_TABLE", "auth_events"),
		},
		KMS: KMSConfig{
			Enabled:  getEnvBool("KMS_ENABLED", false),
			KeyID:    getEnv("KMS_KEY_ID", ""),
			Region:   getEnv("AWS_REGION", "ap-south-1"),
			LocalKey: getEnv("SEAL_LOCAL_KEY", ""),
		},
		Bucketing: BucketingConfig{
			EventBuckets: getEnvInt("EVENT_BUCKETS", 64),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
			Issuer:        getEnv("JWT_ISSUER", "marketplace-auth"),
			SessionTTL:    getEnvDuration("JWT_SESSION_TTL", 7*24*time.Hour),
			RememberMeTTL: getEnvDuration("JWT_REMEMBER_ME_TTL", 30*24*time.Hour),
			AccessTTL:     getEnvDuration("JWT_ACCESS_TTL", time.Hour),
			RefreshTTL:    getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		OTP: OTPConfig{
			TTL:              getEnvDuration("OTP_TTL", 10*time.Minute),
			PasswordResetTTL: getEnvDuration("OTP_PASSWORD_RESET_TTL", 15*time.Minute),
			RateWindow:       getEnvDuration("OTP_RATE_WINDOW", 30*time.Second),
			MaxAttempts:      getEnvInt("OTP_MAX_ATTEMPTS", 5),
			PendingTimeout:   getEnvDuration("OTP_PENDING_TIMEOUT", 2*time.Minute),
			SweepInterval:    getEnvDuration("OTP_SWEEP_INTERVAL", time.Minute),
			SweepGrace:       getEnvDuration("OTP_SWEEP_GRACE", time.Minute),
		},
		Email: EmailConfig{
			Provider:       getEnv("EMAIL_PROVIDER", "smtp"),
			Host:           getEnv("EMAIL_HOST", "smtp.gmail.com"),
			Port:           getEnvInt("EMAIL_PORT", 587),
			Username:       getEnv("EMAIL_USER", ""),
			Password:       getEnv("EMAIL_PASSWORD", ""),
			From:           getEnv("EMAIL_FROM", getEnv("EMAIL_USER", "")),
			FromName:       getEnv("EMAIL_FROM_NAME", getEnv("APP_NAME", "Real Beez")),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			SkipTLSVerify:  getEnvBool("EMAIL_SKIP_TLS_VERIFY", false),
		},
		SMS: SMSConfig{
			ProviderURL:     getEnv("SMS_PROVIDER_URL", ""),
			APIKey:          getEnv("SMS_API_KEY", ""),
			SenderID:        getEnv("SMS_SENDER_ID", ""),
			CountryCode:     getEnv("PHONE_COUNTRY_CODE", "+91"),
			CarrierGateways: getEnvList("SMS_CARRIER_GATEWAYS", defaultCarrierGateways),
			Timeout:         getEnvDuration("SMS_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			ExposeDevOTP: getEnvBool("AUTH_EXPOSE_DEV_OTP", false),
			DebugErrors:  getEnvBool("AUTH_DEBUG_ERRORS", env == EnvDevelopment),
			BcryptCost:   getEnvInt("BCRYPT_COST", 10),
		},
		Events: EventsConfig{
			QueueSize: getEnvInt("EVENTS_QUEUE_SIZE", 1024),
			Timeout:   getEnvDuration("EVENTS_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}
}

// Validate reports configuration that must not reach a running server.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Driver != StoreMongo && c.Store.Driver != StoreMemory {
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if c.OTP.MaxAttempts < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be positive"))
	}
	if c.OTP.RateWindow < 0 || c.OTP.TTL <= 0 || c.OTP.PasswordResetTTL <= 0 {
		errs = append(errs, errors.New("OTP durations must be positive"))
	}

	if c.IsProduction() {
		if c.JWT.Secret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.JWT.RefreshSecret == "" {
			errs = append(errs, errors.New("JWT_REFRESH_SECRET is required in production"))
		}
		if c.Store.Driver == StoreMongo && c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required in production"))
		}
		if c.Store.Driver == StoreMemory {
			errs = append(errs, errors.New("memory store is not allowed in production"))
		}
		if c.Auth.ExposeDevOTP {
			errs = append(errs, errors.New("AUTH_EXPOSE_DEV_OTP must be off in production"))
		}
		if !c.KMS.Enabled && c.KMS.LocalKey == "" {
			errs = append(errs, errors.New("SEAL_LOCAL_KEY or KMS_ENABLED is required in production"))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// EmailConfigured reports whether real email credentials are present.
func (c *Config) EmailConfigured() bool {
	switch c.Email.Provider {
	case "sendgrid":
		return c.Email.SendGridAPIKey != "" && c.Email.From != ""
	default:
		return c.Email.Username != "" && c.Email.Password != ""
	}
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
