// Package config defines the configuration of the override API. It is loaded
// once at startup and treated as immutable afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"github.com/satyaLM/override-api/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers need not
// import types for it.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Components receive only the
// section they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"override-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Snap          SnapConfig
	Providers     ProviderConfig
	Cache         CacheConfig
	Batch         BatchConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"3000"`
	ReadTimeout        time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"5m"`
	RequestTimeout     time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"4m" validate:"gt=0"`
	ShutdownTimeout    time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"gt=0"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"2" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	SearchPath        string        `envconfig:"DB_SEARCH_PATH" default:"public"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// AuditQueueURL receives one event per completed batch. Empty disables
	// publishing.
	AuditQueueURL string `envconfig:"SQS_AUDIT_QUEUE" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SnapConfig tunes the road locator and the snap decision.
type SnapConfig struct {
	InitialRadiusM         float64       `envconfig:"SNAP_INITIAL_RADIUS_M" default:"50" validate:"gt=0"`
	MaxRadiusM             float64       `envconfig:"SNAP_MAX_RADIUS_M" default:"200" validate:"gtefield=InitialRadiusM"`
	GrowthFactor           float64       `envconfig:"SNAP_GROWTH_FACTOR" default:"1.5" validate:"gt=1"`
	RetryDelay             time.Duration `envconfig:"SNAP_RETRY_DELAY" default:"2s" validate:"gte=0"`
	ProviderTimeout        time.Duration `envconfig:"SNAP_PROVIDER_TIMEOUT" default:"15s" validate:"gt=0"`
	HeadingToleranceDeg    float64       `envconfig:"SNAP_HEADING_TOLERANCE_DEG" default:"45" validate:"gte=0,lte=180"`
	ExtrapolationDistanceM float64       `envconfig:"SNAP_EXTRAPOLATION_DISTANCE_M" default:"50" validate:"gt=0"`
	DefaultCountry         string        `envconfig:"SNAP_DEFAULT_COUNTRY" default:"IND" validate:"required"`
}

// ProviderConfig configures the road data sources.
type ProviderConfig struct {
	UserAgent string `envconfig:"PROVIDER_USER_AGENT" default:"OverrideAPI/1.0"`

	OverpassURL              string `envconfig:"OVERPASS_URL" default:"https://overpass-api.de/api/interpreter" validate:"required,url"`
	OverpassServerTimeoutSec int    `envconfig:"OVERPASS_SERVER_TIMEOUT_SEC" default:"30" validate:"gt=0"`

	// RegionalSnapURL is optional. When set, the service handles points whose
	// country is listed in RegionalCountries.
	RegionalSnapURL   string   `envconfig:"REGIONAL_SNAP_URL" validate:"omitempty,url"`
	RegionalSnapName  string   `envconfig:"REGIONAL_SNAP_NAME" default:"usa_snap"`
	RegionalCountries []string `envconfig:"REGIONAL_SNAP_COUNTRIES" default:"USA"`

	GoogleAPIKey    SecretString `envconfig:"GOOGLE_MAPS_API_KEY"`
	GoogleCountries []string     `envconfig:"GOOGLE_ROADS_COUNTRIES"`
}

// CacheConfig configures the shared road-query cache. An empty RedisAddr
// disables caching.
type CacheConfig struct {
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword SecretString  `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL           time.Duration `envconfig:"ROAD_CACHE_TTL" default:"24h" validate:"gt=0"`
}

// BatchConfig holds orchestration limits and policy switches.
type BatchConfig struct {
	MaxItems              int  `envconfig:"BATCH_MAX_ITEMS" default:"500" validate:"gt=0"`
	Concurrency           int  `envconfig:"BATCH_CONCURRENCY" default:"8" validate:"gt=0"`
	AcceptHeadingRejected bool `envconfig:"BATCH_ACCEPT_HEADING_REJECTED" default:"true"`
	StopSignSnap          bool `envconfig:"BATCH_STOP_SIGN_SNAP" default:"true"`

	PersistReserve time.Duration `envconfig:"BATCH_PERSIST_RESERVE" default:"20s" validate:"gte=0"`
	PersistTimeout time.Duration `envconfig:"BATCH_PERSIST_TIMEOUT" default:"30s" validate:"gt=0"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"OverrideAPI"`
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH" default:"false"`
	EnablePrometheus bool   `envconfig:"ENABLE_PROMETHEUS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates envconfig could not parse a value into its field.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
