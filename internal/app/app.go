// Package app wires the gateway's components together: configuration,
// rule store, redis, the routing engine, the forwarding layer, and the
// admin API.
package app

import (
	"context"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"api-gateway/internal/common/logging"
	"api-gateway/internal/config"
	"api-gateway/internal/gateway"
	"api-gateway/internal/handlers"
	"api-gateway/internal/ratelimit"
	"api-gateway/internal/redis"
	"api-gateway/internal/registry"
	"api-gateway/internal/routing"
	"api-gateway/internal/store"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Store       *store.Store
	Router      *routing.Router
	Registry    *registry.Registry
	Forwarder   *gateway.Forwarder
	Handlers    *handlers.Handlers
	RedisClient *redis.Client
	RateLimiter *ratelimit.Limiter
	Logger      logging.Logger

	reloadCron *cron.Cron
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	app.Store = st

	app.Router = routing.New(nil)
	app.Registry = registry.New(cfg.Services)

	if err := app.loadInitialRules(context.Background()); err != nil {
		st.Close()
		return nil, err
	}

	// Redis is optional; without it the rate limiter is disabled.
	app.initializeRedis()

	app.Forwarder = gateway.New(app.Router, app.Registry)

	health := map[string]handlers.HealthChecker{"store": app.Store}
	if app.RedisClient != nil {
		health["redis"] = app.RedisClient
	}
	app.Handlers = handlers.New(app.Store, app.Router, app.Registry, app.Forwarder, health)

	if err := app.startRuleReload(); err != nil {
		app.Cleanup()
		return nil, err
	}

	return app, nil
}

func (a *App) initializeRedis() {
	if !a.Config.RateLimitEnabled {
		a.RateLimiter = ratelimit.NewLimiter(nil, &ratelimit.Config{Enabled: false})
		return
	}

	redisDB, _ := strconv.Atoi(a.Config.RedisDB)
	poolSize, _ := strconv.Atoi(a.Config.RedisPoolSize)

	client, err := redis.NewClient(&redis.Config{
		Address:  a.Config.RedisAddress,
		Password: a.Config.RedisPassword,
		DB:       redisDB,
		PoolSize: poolSize,
	})
	if err != nil {
		a.Logger.Warn("redis unavailable, rate limiting disabled",
			logging.Field{Key: "error", Value: err.Error()})
		a.RateLimiter = ratelimit.NewLimiter(nil, &ratelimit.Config{Enabled: false})
		return
	}

	a.RedisClient = client

	limit, _ := strconv.Atoi(a.Config.RateLimitDefault)
	window, err := time.ParseDuration(a.Config.RateLimitWindow)
	if err != nil {
		window = time.Minute
	}
	a.RateLimiter = ratelimit.NewLimiter(client, &ratelimit.Config{
		DefaultLimit:  limit,
		DefaultWindow: window,
		Enabled:       true,
	})
}

// Cleanup releases application resources
func (a *App) Cleanup() {
	if a.reloadCron != nil {
		a.reloadCron.Stop()
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Warn("failed to close redis client",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("failed to close store",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
}
