package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/justestif/moodmusic/internal/proxyclient"
)

func credentialsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the Spotify app credentials held by a running proxy",
	}
	cmd.AddCommand(credentialsStatusCmd(g), credentialsSetCmd(g), credentialsClearCmd(g))
	return cmd
}

// proxyClient builds a client for the configured proxy.
func (g *globalFlags) proxyClient() (*proxyclient.Client, error) {
	cfg, _, err := g.load()
	if err != nil {
		return nil, err
	}
	return proxyclient.New(cfg.Companion.ProxyURL,
		proxyclient.WithCSRFToken(cfg.Companion.CSRFToken),
		proxyclient.WithRetryDelays(500*time.Millisecond),
	), nil
}

func credentialsStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether credentials are set and Spotify is logged in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.proxyClient()
			if err != nil {
				return err
			}

			creds, err := client.CredentialsStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading credentials status: %w", err)
			}
			status, err := client.AuthStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading auth status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Client ID:     %s\n", valueOrUnset(creds.ClientIDSet, creds.ClientID))
			fmt.Fprintf(out, "Client Secret: %s\n", valueOrUnset(creds.ClientSecretSet, creds.ClientSecret))
			fmt.Fprintf(out, "Logged in:     %t\n", status.LoggedIn)
			return nil
		},
	}
}

func credentialsSetCmd(g *globalFlags) *cobra.Command {
	var clientID, clientSecret string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Save Spotify app credentials on the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if clientID == "" || clientSecret == "" {
				return errors.New("both --client-id and --client-secret are required")
			}
			client, err := g.proxyClient()
			if err != nil {
				return err
			}
			if err := client.SaveCredentials(cmd.Context(), clientID, clientSecret); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials saved. Open the proxy's /auth/login page to log in to Spotify.")
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "Spotify app client ID")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Spotify app client secret")
	return cmd
}

func credentialsClearCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the saved credentials and Spotify login from the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.proxyClient()
			if err != nil {
				return err
			}
			if err := client.ClearCredentials(cmd.Context()); err != nil {
				return fmt.Errorf("clearing credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials cleared.")
			return nil
		},
	}
}

func valueOrUnset(set bool, masked string) string {
	if !set {
		return "(not set)"
	}
	return masked
}
