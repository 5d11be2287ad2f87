package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"

	"lab-monitor-bridge/internal/alerts/notify"
	"lab-monitor-bridge/internal/config"
	endpointsapp "lab-monitor-bridge/internal/endpoints/application"
	"lab-monitor-bridge/internal/endpoints/infrastructure/file"
	"lab-monitor-bridge/internal/endpoints/infrastructure/postgres"
	"lab-monitor-bridge/internal/endpoints/infrastructure/redis"
)

func openStore(ctx context.Context, cfg config.RegistryConfig, logger *slog.Logger) (endpointsapp.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("db open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("db ping: %w", err)
		}
		store, err := postgres.NewStore(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("db schema: %w", err)
		}
		logger.Info("endpoint registry on postgres")
		return store, func() { _ = db.Close() }, nil
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		store, err := redis.NewStore(client, cfg.RedisKey)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		logger.Info("endpoint registry on redis", "addr", cfg.RedisAddr, "key", cfg.RedisKey)
		return store, func() { _ = client.Close() }, nil
	default:
		store, err := file.NewStore(cfg.File, file.WithLogger(logger.With("component", "registry")))
		if err != nil {
			return nil, noop, err
		}
		logger.Info("endpoint registry on file", "path", store.Path())
		return store, noop, nil
	}
}

func buildProvider(ctx context.Context, cfg config.PushConfig, logger *slog.Logger) (notify.Provider, error) {
	log := logger.With("component", "push")
	switch cfg.Provider {
	case config.ProviderFCM:
		return notify.NewFCMProviderFromCredentials(ctx, cfg.FCMCredentialsFile)
	case config.ProviderWebhook:
		return notify.NewWebhookProvider(cfg.WebhookURL)
	case config.ProviderLog:
		return notify.NewLogProvider(log), nil
	}

	if cfg.FCMCredentialsFile != "" {
		if _, err := os.Stat(cfg.FCMCredentialsFile); err == nil {
			provider, err := notify.NewFCMProviderFromCredentials(ctx, cfg.FCMCredentialsFile)
			if err != nil {
				return nil, err
			}
			log.Info("push via fcm")
			return provider, nil
		}
		log.Warn("fcm credentials not found, fcm disabled", "path", cfg.FCMCredentialsFile)
	}
	if cfg.WebhookURL != "" {
		log.Info("push via webhook relay")
		return notify.NewWebhookProvider(cfg.WebhookURL)
	}
	log.Warn("no push provider configured, notifications are logged only")
	return notify.NewLogProvider(log), nil
}

func loggingMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", resp.status,
			"elapsed", time.Since(start))
	})
}

// statusWriter keeps Flush and Hijack reachable for the SSE and websocket handlers.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
