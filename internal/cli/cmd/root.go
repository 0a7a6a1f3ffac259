package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/basket"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/config"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/routeguard"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/session"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
)

var (
	flagJSON      bool
	flagServerURL string
	flagVerbose   bool

	cfg       *config.Config
	apiClient *api.Client
	holder    *session.Holder
)

var rootCmd = &cobra.Command{
	Use:   "shelivery",
	Short: "Shelivery CLI: pool your orders with your dorm",
	Long: `Shelivery lets you add a basket to a shared pool for a shop, and once
the pool reaches the shop's minimum, coordinate the order in a group chat.

Get started:
  shelivery login --email you@example.com      Sign in with a password
  shelivery basket create --shop <id> --amount 25
  shelivery basket list                        Show your active and resolved baskets
  shelivery chat show <chatroom-id>            Show a group chat and its members`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			logger.SetOutput(os.Stderr)
		} else {
			logger.SetOutput(io.Discard)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if flagServerURL != "" {
			cfg.ServerURL = flagServerURL
		}
		apiClient = api.NewClient(cfg.ServerURL, cfg.Session())
		apiClient.OnAuthStateChange(persistSession)
		holder = session.NewHolder(apiClient)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if holder != nil {
			holder.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Override server URL (default: from config or http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Write structured logs to stderr")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// persistSession writes every session change the client sees back to the config file.
func persistSession(event api.AuthEvent, s *api.Session) {
	cfg.SetSession(s)
	if err := config.Save(cfg); err != nil {
		logger.Warn("cli_session_save_failed", map[string]interface{}{
			"event": string(event),
			"error": err.Error(),
		})
	}
}

// requireAuth loads the stored session and fails unless it is still accepted by the server.
func requireAuth(ctx context.Context) error {
	if cfg == nil || !cfg.HasToken() {
		return fmt.Errorf("not authenticated, run \"shelivery login\" first")
	}
	if err := holder.Init(ctx); err != nil {
		return err
	}
	if holder.State() != session.StateAuthenticated && cfg.RefreshToken != "" {
		// The holder follows the client, so a successful refresh authenticates it.
		if _, err := apiClient.RefreshSession(ctx); err != nil {
			logger.Warn("cli_session_refresh_failed", map[string]interface{}{"error": err.Error()})
			return fmt.Errorf("session expired, run \"shelivery login\" again: %w", err)
		}
	}
	if holder.State() != session.StateAuthenticated {
		return fmt.Errorf("session expired, run \"shelivery login\" again")
	}
	return nil
}

// requireProfile runs the route guard: signed in and a dormitory on the profile.
func requireProfile(ctx context.Context) error {
	if err := holder.Init(ctx); err != nil {
		return err
	}
	d := routeguard.New(holder, apiClient).Evaluate(ctx, "")
	switch d.Kind {
	case routeguard.Allow:
		return nil
	case routeguard.RedirectProfile:
		return fmt.Errorf("finish your profile first: shelivery profile set --dormitory <location-id>")
	default:
		return fmt.Errorf("not authenticated, run \"shelivery login\" first")
	}
}

func draftStore() (*basket.FileStore, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return basket.NewFileStore(dir), nil
}

func newAccessor() (*basket.Accessor, error) {
	drafts, err := draftStore()
	if err != nil {
		return nil, err
	}
	return basket.NewAccessor(apiClient, drafts), nil
}

func currentUserID() string {
	if s := holder.Snapshot(); s.User != nil {
		return s.User.ID
	}
	return cfg.UserID
}
