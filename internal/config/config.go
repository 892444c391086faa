package config

import "time"

type Config struct {
	Env         string       `yaml:"env" env:"APP_ENV"`
	Port        int          `yaml:"port" env:"PORT"`
	DatabaseURL string       `yaml:"database_url" env:"DATABASE_URL"`
	Logger      LoggerConfig `yaml:"logger"`
	Redis       RedisConfig  `yaml:"redis"`

	// Secret names resolved through AWS Secrets Manager when set; the
	// plain values above win when both are present.
	DatabaseURLSecret   string `yaml:"database_url_secret" env:"DATABASE_URL_SECRET"`
	JWTSigningKey       string `yaml:"jwt_signing_key" env:"JWT_SIGNING_KEY"`
	JWTSigningKeySecret string `yaml:"jwt_signing_key_secret" env:"JWT_SIGNING_KEY_SECRET"`

	Geofence   GeofenceConfig   `yaml:"geofence"`
	Biometric  BiometricConfig  `yaml:"biometric"`
	Capture    CaptureConfig    `yaml:"capture"`
	Credential CredentialConfig `yaml:"credential"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GeofenceConfig controls the geolocation fix acquisition around the
// distance check. The distance formula itself has no tunables.
type GeofenceConfig struct {
	FixTimeout time.Duration `yaml:"fix_timeout"`  // position fix wait, default 30s
	FixMaxAge  time.Duration `yaml:"fix_max_age"`  // cached fix acceptance, default 60s
}

// BiometricConfig carries the matcher thresholds. The reference values are
// calibrated for the placeholder pixel-statistics embedder and must be
// re-tuned when a real embedding model is plugged in.
type BiometricConfig struct {
	DescriptorSize    int     `yaml:"descriptor_size"`    // default 128
	DistanceThreshold float64 `yaml:"distance_threshold"` // default 0.6
	MatchThreshold    float64 `yaml:"match_threshold"`    // default 70
}

type CaptureConfig struct {
	ProbeInterval     time.Duration `yaml:"probe_interval"`      // face detection probe, default 300ms
	ModelLoadTimeout  time.Duration `yaml:"model_load_timeout"`  // async load race, default 5s
	ModelPollInterval time.Duration `yaml:"model_poll_interval"` // fallback polling cadence, default 500ms
	ModelPollAttempts int           `yaml:"model_poll_attempts"` // fallback polling bound, default 60
}

type CredentialConfig struct {
	RelyingPartyID   string        `yaml:"relying_party_id"`
	ChallengeSize    int           `yaml:"challenge_size"`    // bytes, default 32
	ChallengeTTL     time.Duration `yaml:"challenge_ttl"`     // default 5m
	PromptTimeout    time.Duration `yaml:"prompt_timeout"`    // authenticator gesture wait, default 60s
}

type TelemetryConfig struct {
	Kafka KafkaAuditConfig `yaml:"kafka"`
}

type KafkaAuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	TopicPunch    string        `yaml:"topic_punch"`
	TopicCred     string        `yaml:"topic_credential"`
	BatchSize     int           `yaml:"batch_size"`
	FlushEvery    time.Duration `yaml:"flush_every"`
	QueueCapacity int           `yaml:"queue_capacity"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	TLS           bool          `yaml:"tls"`
}

type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}
