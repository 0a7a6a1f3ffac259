package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/config"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/output"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/relay"
)

var flagDuration time.Duration

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Follow your notifications",
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show unread notifications and follow new ones until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if err := requireAuth(ctx); err != nil {
			return err
		}

		r := relay.New(apiClient, storedDevice(cfg))
		r.Duration = flagDuration

		// Print each banner once, when it reaches the head of the queue.
		var (
			mu   sync.Mutex
			seen = map[string]bool{}
		)
		r.OnChange = func() {
			head, ok := r.Head()
			if !ok {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[head.Notification.ID] {
				return
			}
			seen[head.Notification.ID] = true
			if flagJSON {
				output.JSON(head.Notification)
				return
			}
			output.NotificationLine(head.Notification)
			if head.Persistent {
				// Persistent banners wait for a dismiss; the terminal has already shown it.
				go r.Dismiss()
			}
		}

		if err := r.Start(ctx); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Fprintln(os.Stderr, "Watching for notifications, press Ctrl+C to stop.")
		}
		<-ctx.Done()
		r.Stop()
		return nil
	},
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		n, err := apiClient.MarkAllNotificationsRead(ctx)
		if err != nil {
			return fmt.Errorf("marking notifications read: %w", err)
		}
		fmt.Printf("Marked %d notification(s) as read\n", n)
		return nil
	},
}

var (
	flagPushEndpoint string
	flagPushP256dh   string
	flagPushAuth     string
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Manage Web Push subscriptions",
}

var pushListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered push subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		subs, err := apiClient.ListPushSubscriptions(ctx)
		if err != nil {
			return fmt.Errorf("listing push subscriptions: %w", err)
		}
		if flagJSON {
			output.JSON(subs)
			return nil
		}
		if len(subs) == 0 {
			fmt.Println("No push subscriptions.")
		}
		for _, s := range subs {
			fmt.Printf("%s  %s  %s\n", s.ID, s.Endpoint, output.RelativeTime(s.CreatedAt))
		}
		return nil
	},
}

var pushSubscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Register a push endpoint for this account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		if flagPushEndpoint == "" || flagPushP256dh == "" || flagPushAuth == "" {
			return fmt.Errorf("--endpoint, --p256dh and --auth are required")
		}
		reg := config.PushRegistration{Endpoint: flagPushEndpoint, P256dh: flagPushP256dh, Auth: flagPushAuth}
		if err := apiClient.SubscribePush(ctx, reg.Input()); err != nil {
			return fmt.Errorf("subscribing: %w", err)
		}
		cfg.Push = &reg
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("saving push registration: %w", err)
		}
		fmt.Println("Push subscription registered. \"notifications watch\" will keep it active.")
		return nil
	},
}

var pushUnsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <endpoint>",
	Short: "Remove a push endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		if err := apiClient.UnsubscribePush(ctx, args[0]); err != nil {
			return fmt.Errorf("unsubscribing: %w", err)
		}
		if cfg.Push != nil && cfg.Push.Endpoint == args[0] {
			cfg.Push = nil
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
		}
		fmt.Println("Push subscription removed.")
		return nil
	},
}

// pushDevice replays the registration saved by "push subscribe".
type pushDevice struct {
	reg config.PushRegistration
}

func (d pushDevice) PermissionGranted() bool { return true }

func (d pushDevice) Subscription() (api.PushSubscriptionInput, error) {
	return d.reg.Input(), nil
}

// storedDevice returns nil when this machine never registered for push.
func storedDevice(c *config.Config) relay.Device {
	if c == nil || c.Push == nil || c.Push.Endpoint == "" {
		return nil
	}
	return pushDevice{reg: *c.Push}
}

func init() {
	notificationsWatchCmd.Flags().DurationVar(&flagDuration, "duration", relay.DefaultDuration, "How long each notification stays before the next one")
	pushSubscribeCmd.Flags().StringVar(&flagPushEndpoint, "endpoint", "", "Push service endpoint URL")
	pushSubscribeCmd.Flags().StringVar(&flagPushP256dh, "p256dh", "", "Client public key")
	pushSubscribeCmd.Flags().StringVar(&flagPushAuth, "auth", "", "Client auth secret")

	notificationsCmd.AddCommand(notificationsWatchCmd, notificationsReadAllCmd)
	pushCmd.AddCommand(pushListCmd, pushSubscribeCmd, pushUnsubscribeCmd)
	rootCmd.AddCommand(notificationsCmd, pushCmd)
}
