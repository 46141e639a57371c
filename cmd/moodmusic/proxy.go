package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/justestif/moodmusic/internal/auth"
	"github.com/justestif/moodmusic/internal/config"
	"github.com/justestif/moodmusic/internal/db"
	"github.com/justestif/moodmusic/internal/metrics"
	"github.com/justestif/moodmusic/internal/spotify"
	"github.com/justestif/moodmusic/internal/web"
	webfs "github.com/justestif/moodmusic/web"
)

func proxyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "proxy",
		Short: "Run the Spotify OAuth proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			return runProxy(ctx, cfg.Proxy, logger)
		},
	}
}

func runProxy(ctx context.Context, cfg config.ProxyConfig, logger *slog.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	manager := auth.NewManager(st.creds, st.tokens, auth.WithLogger(logger.With("component", "auth")))
	seed := auth.Credentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
	if err := manager.Load(ctx, seed); err != nil {
		return fmt.Errorf("load auth state: %w", err)
	}

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}

	if cfg.CSRFToken == "" {
		logger.Warn("csrf_token is not set, state-changing requests are not protected")
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:        cfg.Addr,
		BasePath:    cfg.BasePath,
		PublicURL:   cfg.PublicURL,
		CSRFToken:   cfg.CSRFToken,
		TemplatesFS: templates,
		Metrics:     metrics.New(),
		Logger:      logger,
	}, manager, web.SpotifyPlayers(logger.With("component", "spotify"), st.spotifyOpts...))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}

type stores struct {
	creds       auth.CredentialStore
	tokens      auth.TokenStore
	spotifyOpts []spotify.Option
	close       func()
}

// openStores returns the Postgres stores when a database URL is configured
// and the file stores otherwise. Track lookups are only cached in Postgres.
func openStores(ctx context.Context, cfg config.ProxyConfig, logger *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using file storage", "credentials", cfg.CredentialsFile, "token", cfg.TokenFile)
		return &stores{
			creds:  auth.NewCredentialFile(cfg.CredentialsFile),
			tokens: auth.NewTokenCache(cfg.TokenFile),
			close:  func() {},
		}, nil
	}

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("using database storage")
	return &stores{
		creds:       database.Credentials(),
		tokens:      database.Tokens(),
		spotifyOpts: []spotify.Option{spotify.WithTrackCache(database.Tracks())},
		close:       database.Close,
	}, nil
}
