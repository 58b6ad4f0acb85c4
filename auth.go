package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivescan/internal/gdrive"
)

func newLoginCmd() *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize drivescan to read your Google Drive metadata",
		Long: `Run the OAuth consent flow in a browser and save the token.

The token is stored in oauth.token_file and shared by 'serve' and 'scan'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, noBrowser)
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the consent URL instead of opening a browser")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved authorization token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authorized Google account",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, noBrowser bool) error {
	cc := mustCLIContext(cmd)
	ctx := cmd.Context()
	logger := cc.Logger

	httpClient := newHTTPClient(cc.Cfg)

	auth, err := newAuthenticator(cc, httpClient)
	if err != nil {
		return err
	}

	opener := openBrowser
	if noBrowser {
		opener = func(string) error { return errors.New("browser disabled by --no-browser") }
	}

	logger.Info("login started", slog.String("token_file", cc.Cfg.OAuth.TokenFile))

	err = auth.LoginWithBrowser(ctx, opener, func(url string) {
		// Must stay visible with --quiet: the user has to open it.
		fmt.Fprintf(os.Stderr, "Open this URL in your browser to authorize drivescan:\n%s\n", url)
	})
	if err != nil {
		return err
	}

	user, err := currentUser(cmd, cc, auth)
	if err != nil {
		// The token is saved; the account label is cosmetic.
		logger.Warn("could not read account after login", slog.String("error", err.Error()))
		cc.Statusf("Login successful.\n")

		return nil
	}

	if err := auth.SetAccount(user.Email); err != nil {
		logger.Warn("could not record account name", slog.String("error", err.Error()))
	}

	logger.Info("login successful", slog.String("account", user.Email))
	cc.Statusf("Logged in as %s.\n", user.Email)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd)

	auth, err := newAuthenticator(cc, newHTTPClient(cc.Cfg))
	if err != nil {
		return err
	}

	if err := auth.Logout(); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd)

	auth, err := newAuthenticator(cc, newHTTPClient(cc.Cfg))
	if err != nil {
		return err
	}

	user, err := currentUser(cmd, cc, auth)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(whoamiOutput{DisplayName: user.DisplayName, Email: user.Email})
	}

	fmt.Printf("User:  %s (%s)\n", user.DisplayName, user.Email)

	return nil
}

// currentUser asks Drive who the saved credential belongs to.
func currentUser(cmd *cobra.Command, cc *CLIContext, auth *gdrive.Authenticator) (*gdrive.User, error) {
	ctx := cmd.Context()

	ts, err := auth.Credential(ctx)
	if err != nil {
		var authErr *gdrive.AuthRequiredError
		if errors.As(err, &authErr) {
			return nil, errors.New("not logged in: run 'drivescan login' first")
		}

		return nil, err
	}

	client := gdrive.NewClient(gdrive.DefaultBaseURL, newHTTPClient(cc.Cfg), ts, cc.Logger, cc.Cfg.Network.UserAgent)

	user, err := client.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}

	return user, nil
}

// openBrowser launches the platform URL handler.
func openBrowser(url string) error {
	var name string

	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		name = "xdg-open"
	}

	return exec.Command(name, url).Start()
}
