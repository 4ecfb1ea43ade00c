package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "GATEHOUSE"

// Config is the full process configuration.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Redis     Redis     `mapstructure:"redis"`
	Auth      Auth      `mapstructure:"auth"`
	GatePass  GatePass  `mapstructure:"gatepass"`
	Notify    Notify    `mapstructure:"notify"`
	Photo     Photo     `mapstructure:"photo"`
	SMS       SMS       `mapstructure:"sms"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database is optional; an empty URL selects in-memory stores.
type Database struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	Migrate      bool   `mapstructure:"migrate"`
}

// Redis is optional; an empty URL selects the in-memory login code store.
type Redis struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type Auth struct {
	JWTSigningKey string        `mapstructure:"jwt_signing_key"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	JWTTTL        time.Duration `mapstructure:"jwt_ttl"`
	LoginCodeTTL  time.Duration `mapstructure:"login_code_ttl"`
}

type GatePass struct {
	GuestPassTTL time.Duration `mapstructure:"guest_pass_ttl"`
	SMSGuestCode bool          `mapstructure:"sms_guest_code"`
}

// Notify selects the push transport. No brokers selects the log gateway.
type Notify struct {
	KafkaBrokers    []string      `mapstructure:"kafka_brokers"`
	KafkaTopic      string        `mapstructure:"kafka_topic"`
	Workers         int           `mapstructure:"workers"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

type Photo struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

// SMS is optional; without credentials codes are written to the log.
type SMS struct {
	TwilioAccountSID string `mapstructure:"twilio_account_sid"`
	TwilioAuthToken  string `mapstructure:"twilio_auth_token"`
	From             string `mapstructure:"from"`
}

type RateLimit struct {
	VerifyOTPPerMinute int `mapstructure:"verify_otp_per_minute"`
	LoginPerMinute     int `mapstructure:"login_per_minute"`
}

// IsProduction reports whether the process runs with production defaults.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from an optional config file and GATEHOUSE_*
// environment variables. Nested keys map to env names with "." replaced by
// "_", e.g. GATEHOUSE_DATABASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("gatehouse")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/gatehouse")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("auth.jwt_signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("auth.jwt_issuer", "gatehouse")
	v.SetDefault("auth.jwt_ttl", 30*24*time.Hour)
	v.SetDefault("auth.login_code_ttl", 5*time.Minute)

	v.SetDefault("gatepass.guest_pass_ttl", 12*time.Hour)
	v.SetDefault("gatepass.sms_guest_code", false)

	v.SetDefault("notify.kafka_brokers", []string{})
	v.SetDefault("notify.kafka_topic", "gatehouse.push")
	v.SetDefault("notify.workers", 16)
	v.SetDefault("notify.dispatch_timeout", 10*time.Second)
	v.SetDefault("notify.breaker_failures", 5)
	v.SetDefault("notify.breaker_cooldown", 30*time.Second)

	v.SetDefault("photo.dir", "./data/photos")
	v.SetDefault("photo.base_url", "/photos")

	v.SetDefault("sms.twilio_account_sid", "")
	v.SetDefault("sms.twilio_auth_token", "")
	v.SetDefault("sms.from", "")

	v.SetDefault("rate_limit.verify_otp_per_minute", 10)
	v.SetDefault("rate_limit.login_per_minute", 5)
}

func (c Config) validate() error {
	if c.IsProduction() && c.Auth.JWTSigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("GATEHOUSE_AUTH_JWT_SIGNING_KEY must be set in production")
	}
	if c.GatePass.GuestPassTTL <= 0 {
		return fmt.Errorf("gatepass.guest_pass_ttl must be positive")
	}
	if c.Notify.Workers <= 0 {
		return fmt.Errorf("notify.workers must be positive")
	}
	return nil
}
