package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/justestif/moodmusic/internal/config"
	"github.com/justestif/moodmusic/internal/hostbridge"
	"github.com/justestif/moodmusic/internal/metrics"
	"github.com/justestif/moodmusic/internal/moodmusic"
	"github.com/justestif/moodmusic/internal/proxyclient"
)

func companionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "companion",
		Short: "Run the mood music companion for a chat host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			return runCompanion(ctx, cfg, logger)
		},
	}
}

func runCompanion(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	nc, err := connectNATS(cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	bridge := hostbridge.New(nc, cfg.NATS.SubjectPrefix, cfg.NATS.RequestTimeout, logger.With("component", "hostbridge"))
	proxy := proxyclient.New(cfg.Companion.ProxyURL, proxyclient.WithCSRFToken(cfg.Companion.CSRFToken))
	m := metrics.New()

	ext := moodmusic.New(bridge, proxy, moodmusic.ConfigFrom(cfg.Companion),
		moodmusic.WithLogger(logger),
		moodmusic.WithMetrics(m),
		moodmusic.WithSettingsStore(config.NewSettingsFile(cfg.Companion.SettingsFile)),
	)
	if err := ext.Init(ctx); err != nil {
		return fmt.Errorf("initializing companion: %w", err)
	}
	defer ext.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- bridge.Serve(ctx, ext) }()

	if addr := cfg.Companion.MetricsAddr; addr != "" {
		srv := metricsServer(addr, m)
		go func() {
			logger.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("companion running",
		"nats", cfg.NATS.URL,
		"subject_prefix", cfg.NATS.SubjectPrefix,
		"proxy", cfg.Companion.ProxyURL,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down companion")
		return nil
	case err := <-errCh:
		return err
	}
}

func connectNATS(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(appName+"-companion"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	return nc, nil
}

func metricsServer(addr string, m *metrics.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
