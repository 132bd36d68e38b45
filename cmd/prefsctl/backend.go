package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/secureguard/prefs"
	"github.com/secureguard/prefs/pkg/badger"
	"github.com/secureguard/prefs/pkg/file"
	"github.com/secureguard/prefs/pkg/prometheus"
	"github.com/secureguard/prefs/pkg/redis"
)

// session is one opened backend with the store and manager built on it.
type session struct {
	backend prefs.Backend
	store   *prefs.Store
	manager *prefs.Manager
	watch   func(key string) (prefs.Watcher, error)
	close   func() error
}

// memoryBackend is shared so tests can inspect what commands wrote.
var memoryBackend = prefs.NewMemoryBackend()

// metrics is nil unless a command started the metrics server.
var metrics *prometheus.Metrics

func openBackend() (prefs.Backend, func(key string) (prefs.Watcher, error), func() error, error) {
	noWatch := func(string) (prefs.Watcher, error) {
		return nil, fmt.Errorf("backend %q cannot be watched", backendName)
	}
	nop := func() error { return nil }

	switch backendName {
	case "memory":
		return memoryBackend, noWatch, nop, nil

	case "file":
		b := file.New(filePath)
		watch := func(key string) (prefs.Watcher, error) { return b.WatchKey(key), nil }
		return b, watch, nop, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
		b := redis.New(client)
		watch := func(key string) (prefs.Watcher, error) {
			return redis.NewWatcher(client, b.Key(key)), nil
		}
		return b, watch, client.Close, nil

	case "badger":
		db, err := badger.Open(badger.Config{Path: badgerDir, Logger: logger.Named("badger")})
		if err != nil {
			return nil, nil, nil, err
		}
		b, err := badger.New(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return b, noWatch, b.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown backend %q", backendName)
	}
}

// openSession opens the backend and probes it. With load set the settings
// are loaded, which corrects and rewrites an invalid stored record.
func openSession(ctx context.Context, load bool) (*session, error) {
	backend, watch, closeFn, err := openBackend()
	if err != nil {
		return nil, err
	}

	storeOpts := cfg.StoreOptions()
	managerOpts := cfg.ManagerOptions()
	if metrics != nil {
		storeOpts = append(storeOpts, prefs.WithStoreMetrics(metrics))
		managerOpts = append(managerOpts, prefs.WithManagerMetrics(metrics))
	}

	store := prefs.OpenStore(ctx, backend, storeOpts...)
	if !store.IsAvailable() {
		logger.Warn("storage unavailable, changes will not persist",
			zap.String("backend", backendName),
			zap.Error(store.Error()),
		)
	}
	m := prefs.NewManager(store, managerOpts...)
	if load {
		v := m.Load(ctx)
		logger.Debug("settings loaded",
			zap.String("backend", backendName),
			zap.Bool("valid", v.Valid),
			zap.Strings("violations", v.Errors),
		)
	}
	return &session{
		backend: backend,
		store:   store,
		manager: m,
		watch:   watch,
		close:   closeFn,
	}, nil
}

// serveMetrics registers Prometheus collectors and serves them on addr
// until ctx ends.
func serveMetrics(ctx context.Context, addr string) error {
	reg := promclient.NewRegistry()
	m, err := prometheus.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	metrics = m

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return nil
}
