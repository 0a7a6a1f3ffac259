package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/chatroom"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/output"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
)

var flagMessages int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Coordinate a filled pool in its group chat",
	Long: `Coordinate a filled pool in its group chat.

  shelivery chat show <id>                  Members, state and recent messages
  shelivery chat send <id> "who orders?"
  shelivery chat send-file <id> receipt.jpg
  shelivery chat order <id>                 Admin: the order was placed
  shelivery chat deliver <id>               Admin: the order arrived
  shelivery chat leave <id>`,
}

// openChat loads the chatroom for the signed-in user.
func openChat(ctx context.Context, chatroomID string) (*chatroom.Orchestrator, error) {
	if err := requireAuth(ctx); err != nil {
		return nil, err
	}
	o := chatroom.New(apiClient, chatroomID, currentUserID())
	if err := o.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading chatroom: %w", err)
	}
	return o, nil
}

func printChat(o *chatroom.Orchestrator) {
	room := o.Chatroom()
	members := o.Members()
	if flagJSON {
		output.JSON(map[string]interface{}{"chatroom": room, "members": members, "messages": o.Messages()})
		return
	}

	roster := make([]output.Roster, 0, len(members))
	for _, m := range members {
		roster = append(roster, output.Roster{
			Name:    m.User.DisplayName(),
			UserID:  m.User.ID,
			IsAdmin: m.User.ID == room.AdminID,
			Status:  m.StatusText,
		})
	}
	output.ChatroomDetail(*room, roster)
	if msgs := o.Messages(); len(msgs) > 0 {
		fmt.Println()
		start := 0
		if flagMessages > 0 && len(msgs) > flagMessages {
			start = len(msgs) - flagMessages
		}
		for _, m := range msgs[start:] {
			output.MessageLine(m)
		}
	}
}

// adminAction runs fn against a loaded chatroom and prints the banner it leaves.
func adminAction(fn func(ctx context.Context, o *chatroom.Orchestrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		o, err := openChat(ctx, args[0])
		if err != nil {
			return err
		}
		defer o.Close()

		if err := fn(ctx, o, args); err != nil {
			return err
		}
		if banner := o.Banner(); banner != "" && !flagJSON {
			fmt.Println(banner)
		}
		if flagJSON {
			output.JSON(o.Chatroom())
		}
		return nil
	}
}

var chatShowCmd = &cobra.Command{
	Use:   "show <chatroom-id>",
	Short: "Show a chatroom, its members and recent messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openChat(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer o.Close()
		printChat(o)
		return nil
	},
}

var chatOrderCmd = &cobra.Command{
	Use:   "order <chatroom-id>",
	Short: "Mark the group order as placed (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: adminAction(func(ctx context.Context, o *chatroom.Orchestrator, _ []string) error {
		return o.MarkAsOrdered(ctx)
	}),
}

var chatDeliverCmd = &cobra.Command{
	Use:   "deliver <chatroom-id>",
	Short: "Mark the group order as delivered and resolve every basket (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: adminAction(func(ctx context.Context, o *chatroom.Orchestrator, _ []string) error {
		if err := o.MarkAsDelivered(ctx); err != nil {
			return fmt.Errorf("%w\nrun \"shelivery chat show\" to see what was applied", err)
		}
		return nil
	}),
}

var chatAdminCmd = &cobra.Command{
	Use:   "admin <chatroom-id> <user-id>",
	Short: "Hand admin rights to another member (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: adminAction(func(ctx context.Context, o *chatroom.Orchestrator, args []string) error {
		return o.MakeAdmin(ctx, args[1])
	}),
}

var chatRemoveCmd = &cobra.Command{
	Use:   "remove <chatroom-id> <user-id>",
	Short: "Remove a member from the chatroom (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: adminAction(func(ctx context.Context, o *chatroom.Orchestrator, args []string) error {
		if err := o.RemoveMember(ctx, args[1]); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Printf("Removed %s\n", args[1])
		}
		return nil
	}),
}

var chatLeaveCmd = &cobra.Command{
	Use:   "leave <chatroom-id>",
	Short: "Leave the chatroom and withdraw your basket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		o := chatroom.New(apiClient, args[0], currentUserID())
		defer o.Close()
		if _, err := o.LeaveGroup(ctx); err != nil {
			return fmt.Errorf("leaving chatroom: %w", err)
		}
		fmt.Println("You left the group.")
		return nil
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <chatroom-id> <message>...",
	Short: "Send a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		o := chatroom.New(apiClient, args[0], currentUserID())
		defer o.Close()
		msg, err := o.SendText(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("sending message: %w", err)
		}
		if flagJSON {
			output.JSON(msg)
		}
		return nil
	},
}

var chatSendFileCmd = &cobra.Command{
	Use:   "send-file <chatroom-id> <path>",
	Short: "Send an image or voice message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		kind, err := mediaKind(args[1])
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		o := chatroom.New(apiClient, args[0], currentUserID())
		defer o.Close()
		msg, err := o.SendMedia(ctx, kind, filepath.Base(args[1]), f)
		if err != nil {
			return fmt.Errorf("sending %s: %w", kind, err)
		}
		if flagJSON {
			output.JSON(msg)
			return nil
		}
		fmt.Printf("Sent %s as %s\n", filepath.Base(args[1]), msg.Content)
		return nil
	},
}

var chatMediaCmd = &cobra.Command{
	Use:   "media-url <key>",
	Short: "Resolve a media message to a short-lived download URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		u, err := apiClient.MediaURL(ctx, args[0])
		if err != nil {
			return fmt.Errorf("resolving media: %w", err)
		}
		fmt.Println(u)
		return nil
	},
}

func mediaKind(path string) (lifecycle.MediaType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic":
		return lifecycle.MediaImage, nil
	case ".mp3", ".m4a", ".ogg", ".oga", ".wav", ".webm", ".aac":
		return lifecycle.MediaAudio, nil
	default:
		return "", fmt.Errorf("unsupported file type %q: send an image or audio file", filepath.Ext(path))
	}
}

func init() {
	chatShowCmd.Flags().IntVarP(&flagMessages, "messages", "n", 20, "Number of recent messages to show (0 for all)")
	chatCmd.AddCommand(chatShowCmd, chatOrderCmd, chatDeliverCmd, chatAdminCmd, chatRemoveCmd,
		chatLeaveCmd, chatSendCmd, chatSendFileCmd, chatMediaCmd)
	rootCmd.AddCommand(chatCmd)
}
