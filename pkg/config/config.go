package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is built once at process start and treated as read-only afterwards.
type Config struct {
	App           AppConfig
	Storefront    StorefrontConfig
	Storage       StorageConfig
	Backend       BackendConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	GCP           GCPConfig
	GCS           GCSConfig
	S3            S3Config
	PubSub        PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	cfg.Backend.AvatarStore = strings.ToLower(strings.TrimSpace(cfg.Backend.AvatarStore))
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	PublicOrigin string `envconfig:"STOREFRONT_PUBLIC_ORIGIN" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

// ConsoleLogs reports whether logs should use the human readable writer.
func (a AppConfig) ConsoleLogs() bool {
	return strings.EqualFold(strings.TrimSpace(a.LogFormat), "console")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StorefrontConfig holds the branding values the pages render.
type StorefrontConfig struct {
	AppName        string `envconfig:"STOREFRONT_APP_NAME" default:"PharmaCare"`
	CurrencySymbol string `envconfig:"STOREFRONT_CURRENCY_SYMBOL" default:"$"`
	SupportPhone   string `envconfig:"STOREFRONT_SUPPORT_PHONE" default:"1-800-PHARMA"`
	SupportEmail   string `envconfig:"STOREFRONT_SUPPORT_EMAIL" default:"info@pharmacare.com"`
}

type StorageConfig struct {
	Driver     string `envconfig:"STOREFRONT_CACHE_DRIVER" default:"sqlite"`
	SQLitePath string `envconfig:"STOREFRONT_CACHE_SQLITE_PATH" default:"storefront-cache.db"`
	UserKey    string `envconfig:"STOREFRONT_STORAGE_USER_KEY" default:"pharmacare_user"`
	AuthKey    string `envconfig:"STOREFRONT_STORAGE_AUTH_KEY" default:"pharmacare_auth_token"`
}

// RegistryKey is the fallback user registry key: the user key with a plural marker.
func (s StorageConfig) RegistryKey() string {
	return s.UserKey + "s"
}

func (s StorageConfig) validate() error {
	switch s.Driver {
	case CacheDriverSQLite, CacheDriverRedis:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvCacheDriver, CacheDriverSQLite, CacheDriverRedis)
	}
	if strings.TrimSpace(s.UserKey) == "" {
		return fmt.Errorf("%s is required", EnvStorageUserKey)
	}
	if strings.TrimSpace(s.AuthKey) == "" {
		return fmt.Errorf("%s is required", EnvStorageAuthKey)
	}
	return nil
}

type BackendConfig struct {
	Enabled     bool   `envconfig:"STOREFRONT_BACKEND_ENABLED" default:"false"`
	AutoMigrate bool   `envconfig:"STOREFRONT_BACKEND_AUTO_MIGRATE" default:"false"`
	AvatarStore string `envconfig:"STOREFRONT_AVATAR_STORE" default:"gcs"`
}

func (b BackendConfig) validate() error {
	switch b.AvatarStore {
	case AvatarStoreGCS, AvatarStoreS3:
		return nil
	}
	return fmt.Errorf("%s must be %q or %q", EnvAvatarStore, AvatarStoreGCS, AvatarStoreS3)
}

type DBConfig struct {
	DSN string `envconfig:"STOREFRONT_DB_DSN"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration above which statements are logged as warnings.
	SlowQuery time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"200ms"`
}

// Configured reports whether a DSN is available, either directly or assembled from the legacy fields.
func (db DBConfig) Configured() bool {
	return strings.TrimSpace(db.DSN) != ""
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret                 string `envconfig:"STOREFRONT_JWT_SECRET"`
	Issuer                 string `envconfig:"STOREFRONT_JWT_ISSUER" default:"pharmacare"`
	ExpirationMinutes      int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"STOREFRONT_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
	RecoveryTTLMinutes     int    `envconfig:"STOREFRONT_RECOVERY_TOKEN_TTL_MINUTES" default:"60"`
	ConfirmationTTLMinutes int    `envconfig:"STOREFRONT_CONFIRMATION_TOKEN_TTL_MINUTES" default:"1440"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

func (j JWTConfig) RecoveryTTL() time.Duration {
	return minutesOr(j.RecoveryTTLMinutes, time.Hour)
}

func (j JWTConfig) ConfirmationTTL() time.Duration {
	return minutesOr(j.ConfirmationTTLMinutes, 24*time.Hour)
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOREFRONT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOREFRONT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOREFRONT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOREFRONT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOREFRONT_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	AvatarBucket  string `envconfig:"STOREFRONT_GCS_AVATAR_BUCKET" default:"user-avatars"`
	PublicBaseURL string `envconfig:"STOREFRONT_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

// S3Config targets any S3 compatible store (AWS, MinIO) for avatars.
type S3Config struct {
	AvatarBucket    string `envconfig:"STOREFRONT_S3_AVATAR_BUCKET"`
	Region          string `envconfig:"STOREFRONT_S3_REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"STOREFRONT_S3_ENDPOINT"`
	AccessKeyID     string `envconfig:"STOREFRONT_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"STOREFRONT_S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `envconfig:"STOREFRONT_S3_USE_PATH_STYLE" default:"false"`
	// PublicBaseURL overrides the URL prefix written to profiles, e.g. a CDN.
	PublicBaseURL string `envconfig:"STOREFRONT_S3_PUBLIC_BASE_URL"`
}

type PubSubConfig struct {
	AccountEmailTopic string `envconfig:"STOREFRONT_PUBSUB_ACCOUNT_EMAIL_TOPIC" default:"storefront-account-emails"`
}

func minutesOr(minutes int, fallback time.Duration) time.Duration {
	if minutes <= 0 {
		return fallback
	}
	return time.Duration(minutes) * time.Minute
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	// Backend mode is optional, so a fully absent database section is valid.
	if db.LegacyHost == "" && db.LegacyUser == "" && db.LegacyName == "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
