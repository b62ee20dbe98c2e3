// Command server runs floodgate as a standalone admission-control service.
//
// Downstream proxies call POST /v1/check with a client key and get back an
// admit/reject decision with retry hints. Prometheus metrics are served on
// /metrics.
//
// Configuration is resolved by viper from server.yaml (working directory or
// /etc/floodgate) and FLOODGATE_* environment variables:
//
//	listen_addr: ":8080"
//	log_level: "info"
//	limits_file: "limits.yaml"   # floodgate YAML config; defaults if empty
//	requests_per_second: 10.0    # used when limits_file is empty
//	burst_size: 100
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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/yourusername/floodgate/api"
	"github.com/yourusername/floodgate/metrics"
	"github.com/yourusername/floodgate/pkg/floodgate"
)

func main() {
	v := viper.New()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("limits_file", "")
	v.SetDefault("requests_per_second", 10.0)
	v.SetDefault("burst_size", int64(100))

	v.SetConfigName("server")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/floodgate")
	v.SetEnvPrefix("floodgate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			bootLogger := zerolog.New(os.Stderr)
			bootLogger.Fatal().Err(err).Msg("failed to read server config")
		}
	}

	logger := newLogger(v.GetString("log_level"))

	collector := metrics.NewPrometheusMetrics()
	collector.MustRegister()

	limiter, err := newLimiter(v, logger, collector)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create limiter")
	}

	stopSweep := limiter.StartBackgroundSweep()
	defer stopSweep()

	handler := api.NewHandler(limiter, logger)

	r := chi.NewRouter()
	r.Post("/v1/check", handler.CheckRateLimit)
	r.Get("/v1/status", handler.Status)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	addr := v.GetString("listen_addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("floodgate admission service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func newLimiter(v *viper.Viper, logger zerolog.Logger, collector floodgate.MetricsCollector) (floodgate.Limiter, error) {
	opts := []floodgate.Option{
		floodgate.WithLogger(logger),
		floodgate.WithMetrics(collector),
	}
	if limitsFile := v.GetString("limits_file"); limitsFile != "" {
		opts = append(opts, floodgate.WithConfigFile(limitsFile))
	} else {
		opts = append(opts, floodgate.WithDefaults(
			v.GetFloat64("requests_per_second"),
			v.GetInt64("burst_size"),
		))
	}
	return floodgate.New(opts...)
}
