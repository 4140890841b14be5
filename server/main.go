package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"collabboard/internal/api"
	"collabboard/internal/auth"
	"collabboard/internal/config"
	"collabboard/internal/discovery"
	"collabboard/internal/hub"
	"collabboard/internal/logging"
	"collabboard/internal/metrics"
	"collabboard/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New().Make()
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New().Level(cfg.LogLevel).Format(cfg.LogFormat).Make()

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []hub.Option{hub.WithMetrics(m), hub.WithLogger(logging.Component(log, "hub"))}
	var wg sync.WaitGroup

	// --- Optional Redis relay for running several instances ---
	var relay *hub.RedisRelay
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
		relay = hub.NewRedisRelay(rdb, cfg.InstanceID, logging.Component(log, "relay"))
		opts = append(opts, hub.WithRelay(relay))
	}
	h := hub.New(opts...)
	if relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx, h); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("relay stopped")
			}
		}()
	}
	return serve(ctx, cfg, log, st, h, m, &wg)
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger, st store.Store, h *hub.Hub, m *metrics.Metrics, wg *sync.WaitGroup) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go h.Run(hubCtx)

	if cfg.MDNSAdvertise {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := discovery.Advertise(ctx, cfg.InstanceID, cfg.Port()); err != nil {
				log.Warn().Err(err).Msg("mdns advertise failed")
				return
			}
		}()
		log.Info().Str("service", discovery.Service).Int("port", cfg.Port()).Msg("mdns service registered")
	}

	handler := api.New(st, auth.NewJWTGate(cfg.JWTSecret), h,
		api.WithMetrics(m),
		api.WithLogger(logging.Component(log, "api")),
		api.WithAllowedOrigins(cfg.AllowedOrigins),
	).Handler()
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("collabboard relay starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")

	// Closing the hub drops every websocket so Shutdown is not held up by them.
	stopHub()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}

// openStore uses Postgres when DATABASE_URL is set and the embedded bolt file
// otherwise.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("connected to postgres")
		return pg, nil
	}
	b, err := store.OpenBolt(cfg.BoltPath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.BoltPath).Msg("using embedded board store")
	return b, nil
}
