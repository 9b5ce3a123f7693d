package config

// EnvPrefix is handed to envconfig; every field carries an explicit envconfig tag.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	CacheDriverSQLite = "sqlite"
	CacheDriverRedis  = "redis"
)

const (
	AvatarStoreGCS = "gcs"
	AvatarStoreS3  = "s3"
)

const (
	EnvAppEnv          = "STOREFRONT_APP_ENV"
	EnvPort            = "STOREFRONT_APP_PORT"
	EnvAppName         = "STOREFRONT_APP_NAME"
	EnvCurrencySymbol  = "STOREFRONT_CURRENCY_SYMBOL"
	EnvCacheDriver     = "STOREFRONT_CACHE_DRIVER"
	EnvStorageUserKey  = "STOREFRONT_STORAGE_USER_KEY"
	EnvStorageAuthKey  = "STOREFRONT_STORAGE_AUTH_KEY"
	EnvBackendEnabled  = "STOREFRONT_BACKEND_ENABLED"
	EnvDBDSN           = "STOREFRONT_DB_DSN"
	EnvDBHost          = "STOREFRONT_DB_HOST"
	EnvDBUser          = "STOREFRONT_DB_USER"
	EnvDBName          = "STOREFRONT_DB_NAME"
	EnvRedisURL        = "STOREFRONT_REDIS_URL"
	EnvJWTSecret       = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer       = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins      = "STOREFRONT_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID    = "STOREFRONT_GCP_PROJECT_ID"
	EnvGCSAvatarBucket = "STOREFRONT_GCS_AVATAR_BUCKET"
	EnvAvatarStore     = "STOREFRONT_AVATAR_STORE"
	EnvS3AvatarBucket  = "STOREFRONT_S3_AVATAR_BUCKET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
