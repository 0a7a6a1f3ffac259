package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/config"
)

var flagLocal bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove stored credentials",
	Long: `Sign out on the server, then forget the stored session.

  shelivery logout
  shelivery logout --local     Forget the session without contacting the server`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagLocal || !cfg.HasToken() {
			if err := config.Clear(); err != nil {
				return fmt.Errorf("clearing config: %w", err)
			}
			fmt.Println("Logged out.")
			return nil
		}

		if err := holder.SignOut(cmd.Context()); err != nil {
			return fmt.Errorf("signing out: %w (use --local to forget the session anyway)", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	logoutCmd.Flags().BoolVar(&flagLocal, "local", false, "Only remove local credentials")
	rootCmd.AddCommand(logoutCmd)
}
