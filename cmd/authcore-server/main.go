// Command authcore-server serves the authcore HTTP API backed by
// PostgreSQL and Redis.
//
//	authcore-server -config config/local.yaml
//
// The config path may also be given as CONFIG_PATH; every field can be
// overridden from the environment.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/federated"
	"github.com/MrEthical07/authcore/httpapi"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/mail"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/userstore/postgres"
	"github.com/redis/go-redis/v9"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the YAML config file")
	flag.Parse()

	cfg := config.MustLoad(config.ResolvePath(configPath))

	log := setupLogger(cfg.Env)
	log.Info("starting authcore", slog.String("env", cfg.Env))

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	db, err := postgres.Open(cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	mailer, err := newMailer(cfg.SMTP, log)
	if err != nil {
		return err
	}

	builder := authcore.New().
		WithConfig(engineConfig(cfg)).
		WithRedis(rdb).
		WithUserStore(postgres.New(db)).
		WithMailer(mailer).
		WithLogger(log).
		WithAuditSink(authcore.NewSlogSink(log.With(slog.String("component", "audit"))))
	if cfg.Google.ClientID != "" {
		builder = builder.WithIdentityVerifier(federated.NewGoogle(federated.GoogleConfig{ClientID: cfg.Google.ClientID}))
	} else {
		log.Warn("google client id not set, federated login disabled")
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.Handle("/auth/", httpapi.New(engine, httpapi.Options{
		Logger:            log,
		TrustForwardedFor: cfg.HTTPServer.TrustForwardedFor,
	}))
	mux.Handle("GET /metrics", prometheus.New(engine).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func engineConfig(cfg *config.Config) authcore.Config {
	out := authcore.DefaultConfig()
	out.JWT.AccessSecret = cfg.JWT.AccessSecret
	out.JWT.RefreshSecret = cfg.JWT.RefreshSecret
	out.JWT.AccessTTL = cfg.JWT.AccessTTL
	out.JWT.RefreshTTL = cfg.JWT.RefreshTTL
	out.JWT.Issuer = cfg.JWT.Issuer
	out.Verification.EmailTTL = cfg.Verification.EmailTTL
	out.Verification.ResetTTL = cfg.Verification.ResetTTL
	out.Federated.ClientID = cfg.Google.ClientID
	out.Redis.Prefix = cfg.Redis.Prefix
	out.Audit.Enabled = true
	out.Metrics.Enabled = true
	out.Metrics.EnableLatencyHistograms = true
	return out
}

func newMailer(cfg config.SMTP, log *slog.Logger) (authcore.Mailer, error) {
	if cfg.Host == "" {
		log.Warn("smtp host not set, mail is logged instead of sent")
		return mail.NewLog(log), nil
	}
	return mail.NewSMTP(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		AppName:  cfg.AppName,
	})
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return log
}
