package main

import (
	"context"
	"log"
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/BenjaminJSLee/tinyapp/pkg/config"
	tinyhttp "github.com/BenjaminJSLee/tinyapp/pkg/http"
	"github.com/BenjaminJSLee/tinyapp/pkg/logging"
	"github.com/BenjaminJSLee/tinyapp/pkg/middleware"
	"github.com/BenjaminJSLee/tinyapp/pkg/security"
	"github.com/BenjaminJSLee/tinyapp/pkg/service"
	"github.com/BenjaminJSLee/tinyapp/pkg/session"
	"github.com/BenjaminJSLee/tinyapp/pkg/storage"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.LogLevel)

	// Storage: in-memory by default, Postgres when DATABASE_URL is set.
	var userStorage storage.UserStorage = storage.NewMemoryUserStorage()
	var linkStorage storage.LinkStorage = storage.NewMemoryLinkStorage()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		if err := storage.Migrate(context.Background(), pool); err != nil {
			log.Fatal(err)
		}
		userStorage = storage.NewPostgresUserStorage(pool)
		linkStorage = storage.NewPostgresLinkStorage(pool)
	}

	// Sessions and visitor markers: in-memory by default, Redis when
	// REDIS_URL is set.
	var sessionStore session.Store = session.NewMemoryStore(cfg.SessionTTL)
	var markers session.VisitorMarkers = session.NewMemoryVisitorMarkers()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		redisClient := redis.NewClient(opt)
		defer redisClient.Close()
		sessionStore = session.NewRedisStore(redisClient, cfg.SessionTTL)
		markers = session.NewRedisVisitorMarkers(redisClient)
	}

	// Identity: server-side sessions or a signed JWT cookie.
	var resolver middleware.IdentityResolver
	switch cfg.AuthMode {
	case config.AuthModeCookie:
		resolver = middleware.NewJWTResolver([]byte(cfg.JWTSecret), cfg.SessionTTL, false)
	default:
		resolver = middleware.NewSessionResolver(sessionStore, false)
	}

	userService := service.NewUserService(userStorage, logger)
	linkService := service.NewLinkService(linkStorage, markers, logger)

	handler := tinyhttp.NewHandler(userService, linkService, resolver, logger)

	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Identity(resolver))
	if cfg.CSRFEnabled {
		csrfManager := security.NewCSRFTokenManager()
		r.Use(security.CSRFMiddleware(csrfManager))
		r.Get("/csrf-token", security.CSRFTokenHandler(csrfManager))
	}
	tinyhttp.SetupRoutes(r, handler)

	log.Println("Starting tinyapp server on", cfg.Addr)
	log.Fatal(stdhttp.ListenAndServe(cfg.Addr, r))
}
