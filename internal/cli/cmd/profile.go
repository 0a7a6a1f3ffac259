package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/output"
)

var (
	flagFirstName string
	flagLastName  string
	flagDormitory string
	flagFavorite  string
	flagAvatar    string
	flagToken     string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or complete your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	RunE:  whoamiCmd.RunE,
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update your profile",
	Long: `Update your profile. A dormitory is required before you can create baskets.

  shelivery locations                               List dormitory IDs
  shelivery profile set --dormitory <id> --first-name Ana
  shelivery profile set --avatar me.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}

		var update api.ProfileUpdate
		flags := cmd.Flags()
		if flags.Changed("first-name") {
			update.FirstName = &flagFirstName
		}
		if flags.Changed("last-name") {
			update.LastName = &flagLastName
		}
		if flags.Changed("dormitory") {
			update.DormitoryID = &flagDormitory
		}
		if flags.Changed("favorite-store") {
			update.FavoriteStore = &flagFavorite
		}
		if flagAvatar != "" {
			f, err := os.Open(flagAvatar)
			if err != nil {
				return err
			}
			defer f.Close()
			imageURL, err := apiClient.UploadImage(ctx, "avatars", filepath.Base(flagAvatar), f)
			if err != nil {
				return fmt.Errorf("uploading avatar: %w", err)
			}
			update.Image = &imageURL
		}

		profile, err := apiClient.UpdateProfile(ctx, update)
		if err != nil {
			return fmt.Errorf("updating profile: %w", err)
		}
		if flagJSON {
			output.JSON(profile)
			return nil
		}
		output.UserInfo(profile.Profile)
		return nil
	},
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Reset a forgotten password",
}

var passwordResetCmd = &cobra.Command{
	Use:   "reset <email>",
	Short: "Email a password reset token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.ResetPasswordForEmail(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("requesting reset: %w", err)
		}
		fmt.Println("If an account exists for this email, a reset token is on its way.")
		return nil
	},
}

var passwordConfirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Set a new password with a reset token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagToken == "" {
			return fmt.Errorf("--token is required")
		}
		password, err := passwordOrPrompt()
		if err != nil {
			return err
		}
		if err := apiClient.ConfirmPasswordReset(cmd.Context(), flagToken, password); err != nil {
			return fmt.Errorf("resetting password: %w", err)
		}
		fmt.Println("Password updated. Sign in with \"shelivery login\".")
		return nil
	},
}

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Invite someone to Shelivery",
}

var inviteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a single-use invitation code",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		inv, err := apiClient.CreateInvitation(ctx)
		if err != nil {
			return fmt.Errorf("creating invitation: %w", err)
		}
		if flagJSON {
			output.JSON(inv)
			return nil
		}
		output.InvitationDetail(*inv)
		return nil
	},
}

var inviteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invitations you created",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}
		invitations, err := apiClient.ListInvitations(ctx)
		if err != nil {
			return fmt.Errorf("listing invitations: %w", err)
		}
		if flagJSON {
			output.JSON(invitations)
			return nil
		}
		now := time.Now()
		for _, inv := range invitations {
			status := "valid"
			switch {
			case inv.UsedBy != nil:
				status = "used"
			case !inv.Valid(now):
				status = "expired"
			}
			fmt.Printf("%s  %-7s  expires %s\n", inv.Code, status, inv.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	profileSetCmd.Flags().StringVar(&flagFirstName, "first-name", "", "First name")
	profileSetCmd.Flags().StringVar(&flagLastName, "last-name", "", "Last name")
	profileSetCmd.Flags().StringVar(&flagDormitory, "dormitory", "", "Dormitory location ID")
	profileSetCmd.Flags().StringVar(&flagFavorite, "favorite-store", "", "Favorite store")
	profileSetCmd.Flags().StringVar(&flagAvatar, "avatar", "", "Path to an avatar image")
	passwordConfirmCmd.Flags().StringVar(&flagToken, "token", "", "Reset token from the email")
	passwordConfirmCmd.Flags().StringVar(&flagPassword, "password", "", "New password (prompted when omitted)")

	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
	passwordCmd.AddCommand(passwordResetCmd, passwordConfirmCmd)
	inviteCmd.AddCommand(inviteCreateCmd, inviteListCmd)
	rootCmd.AddCommand(profileCmd, passwordCmd, inviteCmd)
}
