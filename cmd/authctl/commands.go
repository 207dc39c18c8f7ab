package main

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/authclient/pkg/authsdk"
)

func loginCmd(c *cli) *cobra.Command {
	var email, password, code string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password.

Missing values are prompted for. Accounts with two-factor authentication
also need a code from the authenticator app or a backup code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				if email, err = c.prompt(cmd, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = c.prompt(cmd, "Password: "); err != nil {
					return err
				}
			}

			res, err := c.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return c.finishLogin(cmd, res, code)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	cmd.Flags().StringVar(&code, "code", "", "two-factor code (prompted when required)")
	return cmd
}

func registerCmd(c *cli) *cobra.Command {
	var req authsdk.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.Password == "" {
				if req.Password, err = c.prompt(cmd, "Password: "); err != nil {
					return err
				}
			}
			res, err := c.client.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.finishLogin(cmd, res, "")
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password (prompted when empty)")
	cmd.Flags().StringVar(&req.OrganizationID, "org", "", "organization id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// finishLogin completes a second factor when the server asks for one and
// reports the signed-in user.
func (c *cli) finishLogin(cmd *cobra.Command, res authsdk.LoginResult, code string) error {
	switch r := res.(type) {
	case *authsdk.FullSession:
		success(cmd, "Signed in as %s", r.User.Email)
		return nil

	case *authsdk.PendingChallenge:
		defer r.Discard()

		var err error
		if code == "" {
			if code, err = c.prompt(cmd, "Two-factor code: "); err != nil {
				return err
			}
		}
		fs, err := c.client.VerifySecondFactor(cmd.Context(), r, code)
		if err != nil {
			return err
		}
		success(cmd, "Signed in as %s", fs.User.Email)
		return nil

	default:
		return fmt.Errorf("unexpected login result %T", res)
	}
}

func logoutCmd(c *cli) *cobra.Command {
	var opts authsdk.LogoutOptions

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.Logout(cmd.Context(), opts); err != nil {
				return err
			}
			if opts.AllDevices {
				success(cmd, "Signed out everywhere")
			} else {
				success(cmd, "Signed out")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.AllDevices, "all-devices", false, "revoke every session of this account")
	return cmd
}

func statusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local session without contacting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := c.client.State().Snapshot()
			if !st.Authenticated {
				warn(cmd, "Not signed in")
				return nil
			}

			success(cmd, "Signed in as %s", st.User.Email)
			info(cmd, "Server:  %s", c.cfg.BaseURL)
			info(cmd, "Session: %s", c.cfg.StoreFile)
			if !st.ExpiresAt.IsZero() {
				left := time.Until(st.ExpiresAt).Round(time.Second)
				if left > 0 {
					info(cmd, "Access token expires in %s", left)
				} else {
					info(cmd, "Access token expired; it is refreshed on next use")
				}
			}
			return nil
		},
	}
}

func whoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Fetch the signed-in user from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := c.client.RefreshUser(cmd.Context())
			if err != nil {
				return explain(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", user.Name, user.Email)
			info(cmd, "ID:   %s", user.ID)
			if user.Role != "" {
				info(cmd, "Role: %s", user.Role)
			}
			return nil
		},
	}
}

func magicLinkCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "magic-link",
		Short: "Sign in with an emailed link",
	}

	var email string
	request := &cobra.Command{
		Use:   "request",
		Short: "Email a sign-in link",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.RequestMagicLink(cmd.Context(), email); err != nil {
				return err
			}
			success(cmd, "If %s is registered, a sign-in link is on its way", email)
			return nil
		},
	}
	request.Flags().StringVar(&email, "email", "", "account email")
	_ = request.MarkFlagRequired("email")

	var code string
	redeem := &cobra.Command{
		Use:   "redeem <token>",
		Short: "Sign in with the token from the link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.client.RedeemMagicLink(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.finishLogin(cmd, res, code)
		},
	}
	redeem.Flags().StringVar(&code, "code", "", "two-factor code (prompted when required)")

	cmd.AddCommand(request, redeem)
	return cmd
}

func oauthCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Sign in through the identity provider",
	}

	loginURL := &cobra.Command{
		Use:   "url",
		Short: "Print the provider authorization URL to open in a browser",
		Long: `Print the provider authorization URL to open in a browser.

The state printed below the URL is needed again by oauth complete.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := c.client.OAuthLoginURL(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)

			parsed, err := url.Parse(u)
			if err != nil {
				return err
			}
			if state := parsed.Query().Get("state"); state != "" {
				info(cmd, "State: %s", state)
			}
			return nil
		},
	}

	var code, state string
	complete := &cobra.Command{
		Use:   "complete <callback-url>",
		Short: "Finish sign-in with the URL the provider redirected to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.client.CompleteOAuthCallback(cmd.Context(), args[0], state)
			if err != nil {
				return err
			}
			return c.finishLogin(cmd, res, code)
		},
	}
	complete.Flags().StringVar(&code, "code", "", "two-factor code (prompted when required)")
	complete.Flags().StringVar(&state, "state", "", "state printed by oauth url")
	_ = complete.MarkFlagRequired("state")

	cmd.AddCommand(loginURL, complete)
	return cmd
}

func twoFactorCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage two-factor authentication",
	}

	setup := &cobra.Command{
		Use:   "setup",
		Short: "Start authenticator enrollment",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.client.SetupTwoFactor(cmd.Context())
			if err != nil {
				return explain(err)
			}

			success(cmd, "Add this account to your authenticator app")
			info(cmd, "Issuer:  %s", s.Issuer)
			info(cmd, "Account: %s", s.Account)
			info(cmd, "Secret:  %s", s.Secret)
			info(cmd, "URI:     %s", s.ProvisioningURI)
			if len(s.BackupCodes) > 0 {
				info(cmd, "Backup codes (store them somewhere safe):")
				for _, bc := range s.BackupCodes {
					info(cmd, "  %s", bc)
				}
			}
			info(cmd, "Then run: authctl 2fa enable <code>")
			return nil
		},
	}

	enable := &cobra.Command{
		Use:   "enable <code>",
		Short: "Confirm enrollment with a code from the app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.EnableTwoFactor(cmd.Context(), args[0]); err != nil {
				return explain(err)
			}
			success(cmd, "Two-factor authentication enabled")
			return nil
		},
	}

	disable := &cobra.Command{
		Use:   "disable <code>",
		Short: "Turn two-factor authentication off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.DisableTwoFactor(cmd.Context(), args[0]); err != nil {
				return explain(err)
			}
			success(cmd, "Two-factor authentication disabled")
			return nil
		},
	}

	cmd.AddCommand(setup, enable, disable)
	return cmd
}

func accountCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect account security",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the account's security settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.client.AccountStatus(cmd.Context())
			if err != nil {
				return explain(err)
			}
			info(cmd, "Two-factor:      %t", s.TwoFactorEnabled)
			info(cmd, "Email verified:  %t", s.EmailVerified)
			info(cmd, "Password set:    %t", s.PasswordSet)
			info(cmd, "Failed attempts: %d", s.FailedAttempts)
			if s.Locked {
				warn(cmd, "Account is locked")
			}
			if s.LastLoginAt != nil {
				info(cmd, "Last login:      %s", s.LastLoginAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}

	var limit int
	audit := &cobra.Command{
		Use:   "audit",
		Short: "Show recent security events",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := c.client.AuditLog(cmd.Context(), limit)
			if err != nil {
				return explain(err)
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-18s %s\n", e.CreatedAt.Local().Format(time.DateTime), e.Event, e.IPAddress)
			}
			return nil
		},
	}
	audit.Flags().IntVar(&limit, "limit", authsdk.DefaultAuditLogLimit, "number of events")

	cmd.AddCommand(status, audit)
	return cmd
}

// explain turns session errors into an instruction for the user.
func explain(err error) error {
	switch {
	case errors.Is(err, authsdk.ErrNotAuthenticated):
		return errors.New("not signed in; run authctl login")
	case errors.Is(err, authsdk.ErrSessionExpired):
		return fmt.Errorf("session expired, sign in again: %w", err)
	}
	return err
}
