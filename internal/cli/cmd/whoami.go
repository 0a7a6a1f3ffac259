package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/output"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := requireAuth(ctx); err != nil {
			return err
		}

		profile, err := apiClient.GetProfile(ctx)
		if err != nil {
			return fmt.Errorf("fetching profile: %w", err)
		}

		if flagJSON {
			output.JSON(profile)
			return nil
		}

		output.UserInfo(profile.Profile)
		if !profile.ProfileComplete {
			fmt.Println("\nProfile incomplete: set a dormitory with \"shelivery profile set --dormitory <id>\".")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
