package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// dev-only signing key, rejected by Validate in every other env.
const devJWTSecret = "devicewatch-dev-secret-change-me-please"

type Config struct {
	Env   string `validate:"required"`
	Port  int    `validate:"min=1,max=65535"`
	DBURL string `validate:"required"`

	JWTSecret string `validate:"required,min=32"`
	BaseURL   string `validate:"required,url"`

	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"min=0"`

	// TraceSampleRatio is the fraction of root spans kept.
	OTLPEndpoint     string
	TraceSampleRatio float64 `validate:"min=0,max=1"`

	// TrustedProxies may set X-Forwarded-For. Empty means the peer address
	// is the client.
	AllowedOrigins []string
	TrustedProxies []string `validate:"dive,cidr|ip"`
	WebDir         string

	AdminEmail    string `validate:"omitempty,email"`
	AdminPassword string `validate:"required_with=AdminEmail,omitempty,min=8"`
	AdminName     string
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")

	secret := os.Getenv("JWT_SECRET")
	if secret == "" && env == "dev" {
		secret = devJWTSecret
	}

	return Config{
		Env:              env,
		Port:             getEnvInt("PORT", 8080),
		DBURL:            getEnv("DATABASE_URL", buildDBURL()),
		JWTSecret:        secret,
		BaseURL:          strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080"}),
		TrustedProxies:   getEnvList("TRUSTED_PROXIES", nil),
		WebDir:           os.Getenv("WEB_DIR"),
		AdminEmail:       os.Getenv("ADMIN_EMAIL"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
		AdminName:        getEnv("ADMIN_NAME", "Administrator"),
	}
}

// Validate rejects configurations the service cannot run with safely.
func (c Config) Validate() error {
	err := validator.New().Struct(c)

	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if !c.IsLocal() && c.JWTSecret == devJWTSecret {
		return fmt.Errorf("invalid config: JWT_SECRET must be set outside dev")
	}

	if !c.IsLocal() && c.UseMemoryStore() {
		return fmt.Errorf("invalid config: in-memory store is only allowed in dev")
	}

	return nil
}

// IsLocal reports local development, where cookies are sent without Secure.
func (c Config) IsLocal() bool {
	return c.Env == "dev"
}

// UseMemoryStore is set with DATABASE_URL=memory for DB-less local runs.
func (c Config) UseMemoryStore() bool {
	return c.DBURL == memoryDBURL
}

const memoryDBURL = "memory"

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "devicewatch")
	pass := getEnv("DB_PASSWORD", "devicewatch")
	name := getEnv("DB_NAME", "devicewatch")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("ignoring non-numeric env value", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)

		if err != nil {
			slog.Warn("ignoring non-numeric env value", "key", key, "value", v)
			return fallback
		}

		return f
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
