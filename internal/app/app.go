// Package app wires the services shared by the API server, the lambdas and
// the admin CLI from one configuration.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/authz"
	"github.com/kylejryan/insurance-policy-portal/internal/awsutil"
	"github.com/kylejryan/insurance-policy-portal/internal/certificate"
	"github.com/kylejryan/insurance-policy-portal/internal/chat"
	"github.com/kylejryan/insurance-policy-portal/internal/claims"
	"github.com/kylejryan/insurance-policy-portal/internal/config"
	"github.com/kylejryan/insurance-policy-portal/internal/contact"
	"github.com/kylejryan/insurance-policy-portal/internal/contracts"
	"github.com/kylejryan/insurance-policy-portal/internal/dashboard"
	"github.com/kylejryan/insurance-policy-portal/internal/ddb"
	"github.com/kylejryan/insurance-policy-portal/internal/mailer"
	"github.com/kylejryan/insurance-policy-portal/internal/memstore"
	"github.com/kylejryan/insurance-policy-portal/internal/notify"
	"github.com/kylejryan/insurance-policy-portal/internal/outbox"
	"github.com/kylejryan/insurance-policy-portal/internal/payment"
	"github.com/kylejryan/insurance-policy-portal/internal/push"
	"github.com/kylejryan/insurance-policy-portal/internal/s3io"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
	"github.com/kylejryan/insurance-policy-portal/internal/tasks"
	"github.com/kylejryan/insurance-policy-portal/internal/users"
)

const redisPingTimeout = 3 * time.Second

// App holds the wired services.
type App struct {
	Env    config.Env
	Log    *zap.Logger
	Store  store.Store
	Bucket *s3io.Bucket
	Redis  *redis.Client // nil when REDIS_ADDR is unset
	JWT    *authz.JWT

	Push      *push.Hub
	Notify    *notify.Service
	Contracts *contracts.Service
	Claims    *claims.Service
	Users     *users.Service
	Contact   *contact.Service
	Dashboard *dashboard.Service
	Tasks     *tasks.Service
	Chat      *chat.Client // nil when CHAT_API_KEY is unset
	Outbox    *outbox.Dispatcher
}

// New builds every service from env.
func New(ctx context.Context, env config.Env, log *zap.Logger) (*App, error) {
	clients, err := awsutil.Load(ctx, env.Region)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	a := &App{Env: env, Log: log}
	if env.Store == config.StoreMemory {
		log.Warn("using the in-memory store; data is lost on exit")
		a.Store = memstore.New()
	} else {
		a.Store = &ddb.Repo{DB: clients.DynamoDB, Table: env.Table}
	}
	a.Bucket = &s3io.Bucket{
		API:      clients.S3,
		Presign:  clients.Presign,
		Name:     env.Bucket,
		Region:   env.Region,
		Endpoint: clients.Endpoint,
		TTL:      env.PresignTTL,
	}

	if env.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     env.Redis.Addr,
			Password: env.Redis.Password,
			DB:       env.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := a.Redis.Ping(pctx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unreachable, realtime notifications may be delayed",
				zap.String("addr", env.Redis.Addr), zap.Error(err))
		}
	}

	catalog, err := mailer.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	var sender mailer.Sender = mailer.Log{Logger: log.Named("mailer")}
	if env.SMTP.User != "" {
		sender = mailer.NewSMTP(env.SMTP.Host, env.SMTP.Port, env.SMTP.User, env.SMTP.Pass, env.SMTP.From)
	}

	secret, err := jwtSecret(env, log)
	if err != nil {
		return nil, err
	}
	a.JWT = authz.NewJWT(secret, env.JWTTTL)
	a.Push = push.NewHub(a.Redis, log.Named("push"))
	a.Notify = notify.New(a.Store, a.Push, log.Named("notify"))

	pay := payment.NewClient(env.Stripe.APIURL, env.Stripe.SecretKey, env.Stripe.WebhookSecret, log.Named("payment"))
	a.Contracts = contracts.New(a.Store, pay, certificate.New(), log.Named("contracts"),
		contracts.WithFrontendURL(env.FrontendURL))
	a.Claims = claims.New(a.Store, a.Bucket, a.Notify, log.Named("claims"))
	a.Users = users.New(a.Store, a.JWT, a.Bucket, a.Notify,
		users.Config{FrontendURL: env.FrontendURL}, log.Named("users"))
	a.Contact = contact.New(a.Store, a.Notify, log.Named("contact"))
	a.Dashboard = dashboard.New(a.Store, log.Named("dashboard"))
	a.Tasks = tasks.New(a.Store, log.Named("tasks"))
	if env.Chat.APIKey != "" {
		a.Chat = chat.NewClient(env.Chat.APIURL, env.Chat.APIKey, env.Chat.Model, log.Named("chat"))
	}
	a.Outbox = outbox.NewDispatcher(a.Store, catalog, sender, env.OutboxMaxAttempts, log.Named("outbox"))
	return a, nil
}

// jwtSecret returns the configured signing key. The in-memory store gets a
// random per-process key when none is set; every other store refuses to start.
func jwtSecret(env config.Env, log *zap.Logger) (string, error) {
	if env.JWTSecret != "" {
		return env.JWTSecret, nil
	}
	if env.Store != config.StoreMemory || env.Production() {
		return "", errors.New("JWT_SECRET is required")
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	log.Warn("JWT_SECRET unset, using a random key; tokens do not survive a restart")
	return hex.EncodeToString(b), nil
}

// Close releases the Redis connection and flushes the logger.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.Log.Sync()
}
