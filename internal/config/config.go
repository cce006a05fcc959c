package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application runtime configuration.
type Config struct {
	Env               string
	ServiceName       string
	HTTPPort          string
	DatabaseURL       string
	DefaultCurrency   string
	JWTSecret         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	GoogleClientID    string
	FirebaseProjectID string
	FirebaseCredFile  string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	CORSOrigins       []string

	// Manager PIN lockout policy.
	PinMaxAttempts   int
	PinLockDuration  time.Duration
	ApprovalTokenTTL time.Duration

	RedisAddr      string
	RedisPassword  string
	IdempotencyTTL time.Duration
	RabbitMQURL    string
	OTLPEndpoint   string
	OTLPInsecure   bool

	// Offline dispatch bridge.
	LocalAPIURL     string
	RemoteAPIURL    string
	JournalPath     string
	DispatchTimeout time.Duration
}

// Load reads environment variables and .env (if present).
func Load() (Config, error) {
	cfg := LoadClient()
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	if cfg.PinMaxAttempts < 1 {
		return cfg, errors.New("PIN_MAX_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

// LoadClient reads the same settings without requiring the server's secrets.
func LoadClient() Config {
	_ = godotenv.Load()

	return Config{
		Env:               getEnv("APP_ENV", "development"),
		ServiceName:       getEnv("SERVICE_NAME", "folio-ledger"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DefaultCurrency:   getEnv("CURRENCY_CODE", "NGN"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", 12*time.Hour),
		RefreshTokenTTL:   getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		GoogleClientID:    os.Getenv("GOOGLE_CLIENT_ID"),
		FirebaseProjectID: os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredFile:  os.Getenv("FIREBASE_CREDENTIALS"),
		ReadTimeout:       getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		CORSOrigins:       getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		PinMaxAttempts:    getInt("PIN_MAX_ATTEMPTS", 3),
		PinLockDuration:   getDuration("PIN_LOCK_DURATION", 15*time.Minute),
		ApprovalTokenTTL:  getDuration("APPROVAL_TOKEN_TTL", 10*time.Minute),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		IdempotencyTTL:    getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		RabbitMQURL:       os.Getenv("RABBITMQ_URL"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:      getEnv("OTEL_EXPORTER_OTLP_INSECURE", "true") == "true",
		LocalAPIURL:       os.Getenv("LOCAL_API_URL"),
		RemoteAPIURL:      getEnv("REMOTE_API_URL", "http://localhost:8080"),
		JournalPath:       getEnv("JOURNAL_PATH", "folio-journal.jsonl"),
		DispatchTimeout:   getDuration("DISPATCH_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Support seconds as integer without suffix.
		if secs, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}
