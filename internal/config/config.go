// Package config loads configuration from environment variables, an optional
// .env file and an optional YAML file named by CONFIG_FILE.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreDynamo = "dynamodb"
	StoreMemory = "memory"
)

// Env holds the configuration values for the application.
type Env struct {
	AppEnv        string
	HTTPAddr      string
	Region        string
	Bucket        string
	Table         string
	Store         string
	PresignTTL    time.Duration
	DevBypassAuth bool

	JWTSecret string
	JWTTTL    time.Duration

	Stripe StripeEnv
	SMTP   SMTPEnv
	Redis  RedisEnv
	Chat   ChatEnv

	FrontendURL    string
	AllowedOrigins []string

	LogLevel  string
	LogFormat string

	StatusFixCron     string
	OutboxInterval    time.Duration
	OutboxMaxAttempts int
}

// StripeEnv configures the payment adapter.
type StripeEnv struct {
	SecretKey     string
	WebhookSecret string
	APIURL        string
}

// SMTPEnv configures outbound mail.
type SMTPEnv struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// RedisEnv configures the optional Redis used for push and job locks.
type RedisEnv struct {
	Addr     string
	Password string
	DB       int
}

// ChatEnv configures the chat completion endpoint.
type ChatEnv struct {
	APIURL string
	APIKey string
	Model  string
}

// Production reports whether error details must be hidden from callers.
func (e Env) Production() bool { return e.AppEnv == "production" }

var v = newViper()

func newViper() *viper.Viper {
	_ = godotenv.Load()

	vp := viper.New()
	vp.AutomaticEnv()
	if file := os.Getenv("CONFIG_FILE"); file != "" {
		vp.SetConfigFile(file)
		if err := vp.ReadInConfig(); err != nil {
			panic(fmt.Errorf("read config %s: %w", file, err))
		}
	}
	return vp
}

// MustLoad reads the configuration and returns an Env struct.
// It panics when a required key is missing.
func MustLoad() Env {
	e := Env{
		AppEnv:        get("APP_ENV", "development"),
		HTTPAddr:      get("HTTP_ADDR", ":8080"),
		Region:        get("AWS_REGION", "eu-west-3"),
		Store:         get("STORE", StoreDynamo),
		PresignTTL:    seconds("PRESIGN_TTL_SECONDS", 300),
		DevBypassAuth: get("DEV_BYPASS_AUTH", "") == "true",

		JWTSecret: get("JWT_SECRET", ""),
		JWTTTL:    duration("JWT_TTL", time.Hour),

		Stripe: StripeEnv{
			SecretKey:     get("STRIPE_SECRET_KEY", ""),
			WebhookSecret: get("STRIPE_WEBHOOK_SECRET", ""),
			APIURL:        get("STRIPE_API_URL", "https://api.stripe.com"),
		},
		SMTP: SMTPEnv{
			Host: get("SMTP_HOST", "smtp.gmail.com"),
			Port: integer("SMTP_PORT", 587),
			User: get("SMTP_USER", ""),
			Pass: get("SMTP_PASS", ""),
			From: get("SMTP_FROM", "Assurance Portal <no-reply@assurance.local>"),
		},
		Redis: RedisEnv{
			Addr:     get("REDIS_ADDR", ""),
			Password: get("REDIS_PASSWORD", ""),
			DB:       integer("REDIS_DB", 0),
		},
		Chat: ChatEnv{
			APIURL: get("CHAT_API_URL", "https://api.groq.com/openai/v1"),
			APIKey: get("CHAT_API_KEY", ""),
			Model:  get("CHAT_MODEL", "llama-3.1-8b-instant"),
		},

		FrontendURL:    strings.TrimRight(get("FRONTEND_URL", "http://localhost:3000"), "/"),
		AllowedOrigins: list("ALLOWED_ORIGINS", "http://localhost:3000"),

		LogLevel:  get("LOG_LEVEL", "info"),
		LogFormat: get("LOG_FORMAT", "json"),

		StatusFixCron:     get("STATUS_FIX_CRON", "0 3 * * *"),
		OutboxInterval:    seconds("OUTBOX_INTERVAL_SECONDS", 30),
		OutboxMaxAttempts: integer("OUTBOX_MAX_ATTEMPTS", 5),
	}
	if e.Store == StoreMemory {
		e.Table = get("DDB_TABLE", "")
		e.Bucket = get("S3_BUCKET", "")
	} else {
		e.Table = must("DDB_TABLE")
		e.Bucket = must("S3_BUCKET")
	}
	// Signing keys have no usable default once data or money is real.
	if e.Store != StoreMemory || e.Production() {
		e.JWTSecret = must("JWT_SECRET")
		e.Stripe.WebhookSecret = must("STRIPE_WEBHOOK_SECRET")
	}
	return e
}

// get returns the value of key k or def if not set.
func get(k, def string) string {
	if s := strings.TrimSpace(v.GetString(k)); s != "" {
		return s
	}
	return def
}

// must returns the value of key k or panics if not set.
func must(k string) string {
	s := strings.TrimSpace(v.GetString(k))
	if s == "" {
		panic(fmt.Errorf("missing env %s", k))
	}
	return s
}

func integer(k string, def int) int {
	if get(k, "") == "" {
		return def
	}
	return v.GetInt(k)
}

func seconds(k string, def int) time.Duration {
	return time.Duration(integer(k, def)) * time.Second
}

func duration(k string, def time.Duration) time.Duration {
	s := get(k, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Errorf("env %s: %w", k, err))
	}
	return d
}

func list(k, def string) []string {
	var out []string
	for _, p := range strings.Split(get(k, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
