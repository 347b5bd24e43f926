package config

import "time"

// Sync definition chat_sync YAML structure
type Sync struct {
	Port      string `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`

	Mongo    DatabaseConfig `mapstructure:"mongo"`
	Postgres DatabaseConfig `mapstructure:"pg"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`

	Engine EngineConfig `mapstructure:"engine"`
}

// RedisConfig definition redis setting. Addr empty means sentinel from .env
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	RedisDB  int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// KafkaConfig definition kafka setting, empty brokers disables message events
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// MinIOConfig definition media bucket, empty endpoint passes media refs through
type MinIOConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	User      string        `mapstructure:"user"`
	Password  string        `mapstructure:"password"`
	Bucket    string        `mapstructure:"bucket"`
	Region    string        `mapstructure:"region"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`
}

// EngineConfig tunables for the per-connection sync engine
type EngineConfig struct {
	TypingIdleTimeout    time.Duration `mapstructure:"typing_idle_timeout"`
	MessageLimit         int           `mapstructure:"message_limit"`
	ConversationPageSize int           `mapstructure:"conversation_page_size"`
	TypingTTL            time.Duration `mapstructure:"typing_ttl"`
	PresenceTTL          time.Duration `mapstructure:"presence_ttl"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
}

// WithDefaults fill zero values
func (e EngineConfig) WithDefaults() EngineConfig {
	if e.TypingIdleTimeout <= 0 {
		e.TypingIdleTimeout = 3 * time.Second
	}
	if e.MessageLimit <= 0 {
		e.MessageLimit = 50
	}
	if e.ConversationPageSize <= 0 {
		e.ConversationPageSize = 20
	}
	if e.TypingTTL <= 0 {
		e.TypingTTL = 10 * time.Second
	}
	if e.PresenceTTL <= 0 {
		e.PresenceTTL = 30 * time.Second
	}
	if e.RequestTimeout <= 0 {
		e.RequestTimeout = 10 * time.Second
	}
	return e
}
