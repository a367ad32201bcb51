package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
	SMS       SMSConfig
	Redis     RedisConfig
	DynamoDB  DynamoDBConfig
	Download  DownloadConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type OTPConfig struct {
	Expiry        time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
}

type RateLimitConfig struct {
	Backend       string
	MaxRequests   int
	Window        time.Duration
	SweepInterval time.Duration
}

type SMSConfig struct {
	APIURL   string
	APIToken string
	Template int
	Timeout  time.Duration
	DevMode  bool
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type DynamoDBConfig struct {
	Endpoint       string
	Region         string
	LeadsTableName string
}

type DownloadConfig struct {
	TokenSecret string
	TokenExpiry time.Duration
	APKPath     string
	FileName    string
}

type CORSConfig struct {
	AllowedOrigins []string
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "production")

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "5000"),
			Env:          env,
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		OTP: OTPConfig{
			Expiry:        getEnvAsDuration("OTP_EXPIRY", 2*time.Minute),
			MaxAttempts:   getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			SweepInterval: getEnvAsDuration("OTP_SWEEP_INTERVAL", time.Minute),
		},
		RateLimit: RateLimitConfig{
			Backend:       strings.ToLower(getEnv("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
			MaxRequests:   getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 3),
			Window:        getEnvAsDuration("RATE_LIMIT_WINDOW", 5*time.Minute),
			SweepInterval: getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		},
		SMS: SMSConfig{
			APIURL:   getEnv("SMS_API_URL", "https://s.api.ir/api/sw1/SmsOTP"),
			APIToken: getEnv("SMS_API_TOKEN", ""),
			Template: getEnvAsInt("SMS_TEMPLATE", 0),
			Timeout:  getEnvAsDuration("SMS_TIMEOUT", 5*time.Second),
			DevMode:  getEnvAsBool("SMS_DEV_MODE", env == "development"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:       getEnv("DYNAMODB_ENDPOINT", ""),
			Region:         getEnv("DYNAMODB_REGION", "us-east-1"),
			LeadsTableName: getEnv("LEADS_TABLE_NAME", ""),
		},
		Download: DownloadConfig{
			TokenSecret: getEnv("DOWNLOAD_TOKEN_SECRET", ""),
			TokenExpiry: getEnvAsDuration("DOWNLOAD_TOKEN_EXPIRY", 30*time.Minute),
			APKPath:     getEnv("APK_PATH", "./public/app.apk"),
			FileName:    getEnv("APK_FILE_NAME", "jorat-haghighat.apk"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) Validate() error {
	if c.Download.TokenSecret == "" {
		return fmt.Errorf("DOWNLOAD_TOKEN_SECRET environment variable is required")
	}

	if len(c.Download.TokenSecret) < 32 {
		return fmt.Errorf("DOWNLOAD_TOKEN_SECRET must be at least 32 bytes (256 bits)")
	}

	if !c.SMS.DevMode && c.SMS.APIToken == "" {
		return fmt.Errorf("SMS_API_TOKEN environment variable is required outside development mode")
	}

	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}

	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive")
	}

	switch c.RateLimit.Backend {
	case RateLimitBackendMemory, RateLimitBackendRedis:
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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

func getEnvAsSlice(key string, defaultValue []string) []string {
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
