// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr is the address of the gRPC health server; empty disables it.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// AppBaseURL is the public URL of the frontend; password reset links point at it.
	AppBaseURL string `mapstructure:"APP_BASE_URL"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTSecret is the HS256 secret used when no key pair is configured.
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the session token lifetime (e.g. "168h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4 to 31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RegistrationTTLStr is the lifetime of a pending registration (default 30m).
	RegistrationTTLStr string `mapstructure:"REGISTRATION_TTL"`
	// EmailOTPTTLStr is the lifetime of an email code (default 10m).
	EmailOTPTTLStr string `mapstructure:"EMAIL_OTP_TTL"`
	// EmailOTPMaxAttempts locks the email challenge once reached (default 5).
	EmailOTPMaxAttempts int `mapstructure:"EMAIL_OTP_MAX_ATTEMPTS"`
	// RegistrationSweepIntervalStr is how often expired registrations are purged; "0" disables the sweep.
	RegistrationSweepIntervalStr string `mapstructure:"REGISTRATION_SWEEP_INTERVAL"`
	// PasswordResetTTLStr is the lifetime of a password reset token (default 1h).
	PasswordResetTTLStr string `mapstructure:"PASSWORD_RESET_TTL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// SMSProvider selects the mobile verifier: "twilio" (Verify API) or "smslocal" (local codes sent via SMS Local).
	SMSProvider            string `mapstructure:"SMS_PROVIDER"`
	TwilioAccountSID       string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken        string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioVerifyServiceSID string `mapstructure:"TWILIO_VERIFY_SERVICE_SID"`
	TwilioVerifyBaseURL    string `mapstructure:"TWILIO_VERIFY_BASE_URL"`
	// SMSLocalAPIKey is the API key for SMS Local.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// RedisAddr holds mobile codes for the smslocal verifier; empty keeps them in memory.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// OTPReturnToClient when true enables dev OTP mode: codes that could not be delivered are logged,
	// returned by /auth/register and served by GET /dev/otp/{sessionId}. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	VirusTotalAPIKey    string `mapstructure:"VIRUSTOTAL_API_KEY"`
	VirusTotalBaseURL   string `mapstructure:"VIRUSTOTAL_BASE_URL"`
	MetaDefenderAPIKey  string `mapstructure:"METADEFENDER_API_KEY"`
	MetaDefenderBaseURL string `mapstructure:"METADEFENDER_BASE_URL"`
	ZAPBaseURL          string `mapstructure:"ZAP_BASE_URL"`
	ZAPAPIKey           string `mapstructure:"ZAP_API_KEY"`
	// SpeedTestURL is downloaded by the network speed test.
	SpeedTestURL string `mapstructure:"SPEEDTEST_URL"`

	// CORSAllowedOrigin is echoed in Access-Control-Allow-Origin (e.g. chrome-extension://<id>).
	CORSAllowedOrigin string `mapstructure:"CORS_ALLOWED_ORIGIN"`
	// RateLimitAuthPerMin bounds requests per client IP on the public /auth routes.
	RateLimitAuthPerMin int `mapstructure:"RATE_LIMIT_AUTH_PER_MIN"`

	// Telemetry (optional). When Kafka brokers are set, activity events are published to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// ActivityKafkaTopic is the Kafka topic for activity events.
	ActivityKafkaTopic string `mapstructure:"ACTIVITY_KAFKA_TOPIC"`
	// Worker-only: Loki URL for the activity worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the activity worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// OTLPEndpoint enables OpenTelemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                   ":8080",
	"GRPC_HEALTH_ADDR":            "",
	"DATABASE_URL":                "",
	"APP_ENV":                     "",
	"APP_BASE_URL":                "http://localhost:3000",
	"LOG_LEVEL":                   "info",
	"JWT_PRIVATE_KEY":             "",
	"JWT_PUBLIC_KEY":              "",
	"JWT_SECRET":                  "",
	"JWT_ISSUER":                  "onego-auth",
	"JWT_AUDIENCE":                "onego-extension",
	"JWT_ACCESS_TTL":              "168h", // 7d
	"BCRYPT_COST":                 12,
	"REGISTRATION_TTL":            "30m",
	"EMAIL_OTP_TTL":               "10m",
	"EMAIL_OTP_MAX_ATTEMPTS":      5,
	"REGISTRATION_SWEEP_INTERVAL": "5m",
	"PASSWORD_RESET_TTL":          "1h",
	"SMTP_HOST":                   "",
	"SMTP_PORT":                   587,
	"SMTP_USERNAME":               "",
	"SMTP_PASSWORD":               "",
	"SMTP_FROM":                   "",
	"SMS_PROVIDER":                "twilio",
	"TWILIO_ACCOUNT_SID":          "",
	"TWILIO_AUTH_TOKEN":           "",
	"TWILIO_VERIFY_SERVICE_SID":   "",
	"TWILIO_VERIFY_BASE_URL":      "https://verify.twilio.com/v2",
	"SMS_LOCAL_API_KEY":           "",
	"SMS_LOCAL_SENDER":            "",
	"SMS_LOCAL_BASE_URL":          "https://app.smslocal.in/api/smsapi",
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"OTP_RETURN_TO_CLIENT":        false,
	"VIRUSTOTAL_API_KEY":          "",
	"VIRUSTOTAL_BASE_URL":         "https://www.virustotal.com/api/v3",
	"METADEFENDER_API_KEY":        "",
	"METADEFENDER_BASE_URL":       "https://api.metadefender.com/v4",
	"ZAP_BASE_URL":                "",
	"ZAP_API_KEY":                 "",
	"SPEEDTEST_URL":               "https://speed.cloudflare.com/__down?bytes=5000000",
	"CORS_ALLOWED_ORIGIN":         "*",
	"RATE_LIMIT_AUTH_PER_MIN":     20,
	"KAFKA_BROKERS":               "",
	"ACTIVITY_KAFKA_TOPIC":        "onego-activity",
	"LOKI_URL":                    "",
	"KAFKA_GROUP_ID":              "onego-activity-worker",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": true,
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.IsProduction() {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.EmailOTPMaxAttempts <= 0 {
		return nil, errors.New("config: EMAIL_OTP_MAX_ATTEMPTS must be positive")
	}

	switch cfg.SMSProvider {
	case "twilio", "smslocal":
	default:
		return nil, errors.New("config: SMS_PROVIDER must be twilio or smslocal")
	}

	if cfg.IsProduction() && cfg.JWTPrivateKey == "" && len(cfg.JWTSecret) < 32 {
		return nil, errors.New("config: JWT_SECRET must be at least 32 bytes in production when no key pair is set")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 168*time.Hour)
}

// RegistrationTTL returns the pending registration lifetime. Returns 30m if unset or invalid.
func (c *Config) RegistrationTTL() time.Duration {
	return parseDuration(c.RegistrationTTLStr, 30*time.Minute)
}

// EmailOTPTTL returns the email code lifetime. Returns 10m if unset or invalid.
func (c *Config) EmailOTPTTL() time.Duration {
	return parseDuration(c.EmailOTPTTLStr, 10*time.Minute)
}

// PasswordResetTTL returns the reset token lifetime. Returns 1h if unset or invalid.
func (c *Config) PasswordResetTTL() time.Duration {
	return parseDuration(c.PasswordResetTTLStr, time.Hour)
}

// RegistrationSweepInterval returns the sweep period; zero means the sweeper is disabled.
func (c *Config) RegistrationSweepInterval() time.Duration {
	if strings.TrimSpace(c.RegistrationSweepIntervalStr) == "0" {
		return 0
	}
	return parseDuration(c.RegistrationSweepIntervalStr, 5*time.Minute)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event publishing is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
