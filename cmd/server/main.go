package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"evcharge/docs" // swagger docs

	"evcharge/internal/auth"
	"evcharge/internal/cache"
	"evcharge/internal/config"
	"evcharge/internal/db"
	"evcharge/internal/handler"
	"evcharge/internal/logger"
	"evcharge/internal/repository"
	"evcharge/internal/router"
	"evcharge/internal/service"
)

// @title EV Charger API
// @version 1.0
// @description Multi-tenant registry of EV charging stations with JWT authentication and role-based access.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found; relying on existing environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	lg := logger.New(logger.Config{Env: cfg.Env, Level: cfg.LogLevel})

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN, lg)
	if err != nil {
		lg.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database init")
	}
	if err := db.Migrate(gormDB, cfg.ResetDB, lg); err != nil {
		lg.Fatal().Err(err).Msg("migrate")
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, lg)
	defer cacheClient.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	if err := cacheClient.Ping(pingCtx); err != nil {
		lg.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; caching and logout revocation degraded")
	}
	cancelPing()

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	chargerRepo := repository.NewChargerRepository(gormDB)

	// Initialize auth components
	codec := auth.NewTokenCodec(cfg.JWTSecret)
	tokenStore := auth.NewTokenStore(cacheClient)
	guard := auth.NewGuard(auth.GuardConfig{
		Codec:     codec,
		Users:     userRepo,
		Tokens:    tokenStore,
		LiveRoles: cfg.LiveRoles,
		Logger:    lg,
	})

	// Initialize services
	authService := service.NewAuthService(userRepo, codec, tokenStore, cfg.BcryptCost)
	chargerService := service.NewChargerService(chargerRepo, cacheClient)
	userService := service.NewUserService(userRepo, cacheClient)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, lg, guard, router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Charger: handler.NewChargerHandler(chargerService),
		User:    handler.NewUserHandler(userService),
	})

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}
	lg.Info().Str("url", swaggerURL(cfg)).Msg("swagger documentation available")

	go func() {
		lg.Info().Str("addr", cfg.HTTPAddress()).Msg("server listening")
		if err := e.Start(cfg.HTTPAddress()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("server start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("graceful shutdown")
	}
}

func swaggerURL(cfg *config.Config) string {
	host := cfg.SwaggerHost
	if host == "" {
		host = "localhost" + cfg.HTTPAddress()
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return host + "/swagger/index.html"
}
