package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/basket"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/output"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/session"
)

var (
	flagEmail    string
	flagPassword string
	flagOAuth    string
	flagInvite   string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Shelivery",
	Long: `Sign in with a password or through an OAuth provider.

Password:
  shelivery login --email you@example.com

OAuth:
  shelivery login --oauth google --invite AB12CD34
  Opens your browser; paste the page address you land on afterwards.

A basket staged with "basket create --guest" is submitted once you are signed in.`,
	RunE: runLogin,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account with an invitation code",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if flagEmail == "" || flagInvite == "" {
			return fmt.Errorf("--email and --invite are required")
		}
		password, err := passwordOrPrompt()
		if err != nil {
			return err
		}
		if err := holder.SignUp(ctx, flagEmail, password, flagInvite); err != nil {
			return fmt.Errorf("signing up: %w", err)
		}
		fmt.Printf("Account created for %s\n", flagEmail)
		return afterSignIn(ctx)
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists <email>",
	Short: "Check whether an account exists for an email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exists, err := holder.CheckUserExists(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			output.JSON(map[string]bool{"exists": exists})
			return nil
		}
		if exists {
			fmt.Println("An account exists for this email. Use \"shelivery login\".")
		} else {
			fmt.Println("No account yet. Use \"shelivery signup\" with an invitation code.")
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&flagEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&flagPassword, "password", "", "Account password (prompted when omitted)")
	loginCmd.Flags().StringVar(&flagOAuth, "oauth", "", "Sign in through an OAuth provider (e.g. google)")
	loginCmd.Flags().StringVar(&flagInvite, "invite", "", "Invitation code for a new account")
	signupCmd.Flags().StringVar(&flagEmail, "email", "", "Account email")
	signupCmd.Flags().StringVar(&flagPassword, "password", "", "Account password (prompted when omitted)")
	signupCmd.Flags().StringVar(&flagInvite, "invite", "", "Invitation code")
	rootCmd.AddCommand(loginCmd, signupCmd, existsCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if flagOAuth != "" {
		if err := loginOAuth(ctx, flagOAuth, flagInvite); err != nil {
			return err
		}
		return afterSignIn(ctx)
	}

	if flagEmail == "" {
		return fmt.Errorf("--email is required (or use --oauth)")
	}
	password, err := passwordOrPrompt()
	if err != nil {
		return err
	}
	if err := holder.SignIn(ctx, flagEmail, password); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 401 {
			return fmt.Errorf("invalid email or password")
		}
		return fmt.Errorf("signing in: %w", err)
	}
	return afterSignIn(ctx)
}

func loginOAuth(ctx context.Context, provider, invite string) error {
	authURL, err := holder.SignInWithOAuth(ctx, provider, invite)
	if err != nil {
		if errors.Is(err, session.ErrInvalidInvitation) {
			return fmt.Errorf("invitation code is invalid or expired")
		}
		return fmt.Errorf("starting %s sign-in: %w", provider, err)
	}

	fmt.Printf("Opening browser to complete authentication...\n")
	fmt.Printf("If the browser doesn't open, visit:\n  %s\n\n", authURL)
	_ = openBrowser(authURL)

	fmt.Print("Paste the address of the page you were sent back to: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading callback: %w", err)
	}
	callback, err := url.Parse(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("parsing callback: %w", err)
	}
	q := callback.Query()
	if e := q.Get("error"); e != "" {
		return fmt.Errorf("%s sign-in failed: %s", provider, e)
	}
	if q.Get("code") == "" {
		return fmt.Errorf("callback has no authorization code")
	}
	if _, err := apiClient.CompleteOAuth(ctx, provider, q.Get("code"), q.Get("state")); err != nil {
		return fmt.Errorf("completing %s sign-in: %w", provider, err)
	}
	return nil
}

// afterSignIn greets the user and submits a basket staged while signed out.
func afterSignIn(ctx context.Context) error {
	snap := holder.Snapshot()
	if snap.User != nil {
		fmt.Printf("Logged in as %s (%s)\n", snap.User.DisplayName(), snap.User.Email)
	} else {
		fmt.Println("Logged in successfully.")
	}

	accessor, err := newAccessor()
	if err != nil {
		return err
	}
	draft, err := accessor.Draft()
	if err != nil || draft == nil {
		return nil
	}
	created, err := accessor.SubmitDraft(ctx)
	if err != nil {
		if errors.Is(err, basket.ErrNoDraft) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Your saved basket was kept but could not be submitted: %v\n", err)
		return nil
	}
	fmt.Printf("Submitted your saved basket to pool %s\n", created.Result.PoolID)
	return nil
}

func passwordOrPrompt() (string, error) {
	if flagPassword != "" {
		return flagPassword, nil
	}
	fmt.Print("Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
