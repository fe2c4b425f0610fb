// Command appsaludable is the terminal front end of the session client:
// sign in (password or federated provider), register, inspect the current
// session, change role, and sign out.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phol232/AppSaludable-sub000/internal/api"
	"github.com/phol232/AppSaludable-sub000/internal/app"
	"github.com/phol232/AppSaludable-sub000/internal/auth"
	"github.com/phol232/AppSaludable-sub000/internal/config"
	"github.com/phol232/AppSaludable-sub000/internal/logger"
	"github.com/phol232/AppSaludable-sub000/internal/session"
)

var application *app.App

func main() {
	root := &cobra.Command{
		Use:           "appsaludable",
		Short:         "AppSaludable session client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; real deployments use the environment.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.LogEnv, Level: cfg.LogLevel})

			application, err = app.New(cmd.Context(), cfg, openBrowser, promptPassword)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if application != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = application.Shutdown(ctx)
			}
			_ = logger.Sync()
		},
	}

	root.AddCommand(loginCmd(), registerCmd(), whoamiCmd(), logoutCmd(), roleCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loginCmd() *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a password or a federated provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if providerName != "" {
				kind, err := auth.ParseProviderKind(providerName)
				if err != nil {
					return err
				}
				err = application.Manager.SignInProvider(ctx, kind)
				return reportSignIn(err)
			}

			identifier, err := promptLine("Email or username: ")
			if err != nil {
				return err
			}
			secret, err := promptPassword(ctx, identifier)
			if err != nil {
				return err
			}
			err = application.Manager.SignInPassword(ctx, identifier, secret)
			return reportSignIn(err)
		},
	}

	cmd.Flags().StringVarP(&providerName, "provider", "p", "",
		"federated provider: google, github, facebook or microsoft")
	return cmd
}

func registerCmd() *cobra.Command {
	var req api.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign it in",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := promptPassword(cmd.Context(), req.Email)
			if err != nil {
				return err
			}
			req.Password = secret

			if err := application.Manager.Register(cmd.Context(), req); err != nil {
				return err
			}
			printSnapshot(application.Manager.Snapshot())
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "account username")
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.GivenName, "given-name", "", "given name")
	cmd.Flags().StringVar(&req.FamilyName, "family-name", "", "family name")
	cmd.Flags().StringVar(&req.RoleCode, "role", "", "requested role code")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.Manager.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			printSnapshot(application.Manager.Snapshot())
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.Manager.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("signed out")
			return nil
		},
	}
}

func roleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <user-id> <role-code>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %s", args[0])
			}

			profile, err := application.Manager.ChangeRole(cmd.Context(), userID, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("role updated: %s is now role %d\n", profile.Username, profile.RoleID)
			return nil
		},
	}
}

func reportSignIn(err error) error {
	if errors.Is(err, session.ErrSignInCancelled) {
		fmt.Println("sign-in cancelled")
		return nil
	}
	if err != nil {
		return err
	}
	printSnapshot(application.Manager.Snapshot())
	return nil
}

func printSnapshot(snap session.Snapshot) {
	switch snap.State {
	case session.StateAuthenticated:
		u := snap.User
		if u.Degraded {
			fmt.Printf("signed in as %s (profile temporarily unavailable)\n", u.Username)
			return
		}
		fmt.Printf("signed in as %s <%s> (role %d)\n", u.Username, u.Email, u.RoleID)
	default:
		fmt.Println("not signed in")
	}
}

func promptLine(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(_ context.Context, email string) (string, error) {
	label := "Password: "
	if email != "" {
		label = fmt.Sprintf("Password for %s: ", email)
	}
	return promptLine(label)
}

// openBrowser launches the system browser for interactive provider
// sign-in. Falls back to printing the URL when no launcher exists.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		logger.Named("cli").Warn("could not launch browser", zap.Error(err))
		fmt.Println("open this URL to continue signing in:")
		fmt.Println("  " + url)
	}
	return nil
}
