package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/jacobtartabini/joincircl-sub004/internal/config"
	"github.com/jacobtartabini/joincircl-sub004/internal/handlers/twofactor"
	"github.com/jacobtartabini/joincircl-sub004/internal/services"
	"github.com/jacobtartabini/joincircl-sub004/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	twoFactorStore := store.New(redisClient, cfg.CodeMaxFailures, cfg.CodeLockoutSeconds)
	authService := services.NewAuthService(cfg)
	twoFactorService := services.NewTwoFactorService(cfg, twoFactorStore)
	handler := twofactor.NewHandler(authService, twoFactorService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/auth/2fa", func(r chi.Router) {
		r.Post("/setup", handler.Handle2FASetup)
		r.Post("/verify", handler.Handle2FAVerify)
		r.Post("/disable", handler.Handle2FADisable)
		r.Get("/status", handler.Handle2FAStatus)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("2fa service listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	_ = redisClient.Close()
}
