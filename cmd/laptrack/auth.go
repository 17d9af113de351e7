package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simracing-tools/laptrack/pkg/backend"
	"github.com/simracing-tools/laptrack/pkg/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Start a Discord login",
	Long: `Fetch the Discord OAuth URL from the backend. Open it in a browser,
complete the login, and put the returned token into the client config.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate the configured token",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}

	// Random state ties the redirect back to this login attempt.
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating state: %w", err)
	}

	api := backend.NewClient(log, cfg.Client.BackendURL)

	authURL, err := api.DiscordAuthURL(context.Background(), hex.EncodeToString(buf))
	if err != nil {
		return fmt.Errorf("fetching auth url: %w", err)
	}

	fmt.Println("Open the following URL in a browser to log in:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Println("Then copy the token into the client.token config option.")

	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}

	if cfg.Client.Token == "" {
		return fmt.Errorf("no token configured")
	}

	api := backend.NewClient(log, cfg.Client.BackendURL)
	if err := api.Logout(context.Background(), cfg.Client.Token); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}

	log.Info("Logged out")

	return nil
}

func loadClientConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}

	return cfg, nil
}
