// Command authctl signs in to an auth server and keeps the session in a local
// SQLite file, so later invocations (and other processes sharing the file)
// stay signed in.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/authclient/pkg/authsdk"
	"github.com/aussiebroadwan/authclient/pkg/slogx"
	"github.com/aussiebroadwan/authclient/pkg/tokenstore"
	"github.com/aussiebroadwan/authclient/pkg/tokenstore/drivers/sqlite"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

// skipSession marks commands that never touch the session file.
const skipSession = "skip-session"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// cli carries what every subcommand shares.
type cli struct {
	cfg    Config
	logger *slog.Logger
	store  *tokenstore.Store
	client *authsdk.SDKClient
	in     *bufio.Reader
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: LoadConfig()}

	root := &cobra.Command{
		Use:   "authctl",
		Short: "Sign in to an auth server from the command line",
		Long: `authctl manages a session against an auth server.

The session is kept in a SQLite file, so it survives between invocations
and is shared by every process pointed at the same file. Expired access
tokens are refreshed transparently.

Examples:
  authctl login --email alice@example.com
  authctl whoami
  authctl magic-link request --email alice@example.com
  authctl logout --all-devices`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSession] != "" {
				return nil
			}
			return c.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfg.BaseURL, "base-url", c.cfg.BaseURL, "auth server base URL [AUTHCTL_BASE_URL]")
	flags.StringVar(&c.cfg.StoreFile, "store", c.cfg.StoreFile, "session file [AUTHCTL_STORE_FILE]")
	flags.DurationVar(&c.cfg.Timeout, "timeout", c.cfg.Timeout, "per-request timeout [AUTHCTL_TIMEOUT]")
	flags.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "debug, info, warn or error [LOG_LEVEL]")

	root.AddCommand(
		loginCmd(c),
		registerCmd(c),
		logoutCmd(c),
		statusCmd(c),
		whoamiCmd(c),
		magicLinkCmd(c),
		oauthCmd(c),
		twoFactorCmd(c),
		accountCmd(c),
		versionCmd(),
	)
	return root
}

// open builds the logger, the durable store and the SDK client, and seeds
// the client from whatever session the file holds. Rows past their expiry
// are purged on the way in.
func (c *cli) open(cmd *cobra.Command) error {
	c.logger = slogx.New(slogx.Config{
		Service: "authctl",
		Version: version,
		Env:     c.cfg.Env,
		Level:   c.cfg.LogLevel,
		Format:  c.cfg.LogFormat,
		Output:  cmd.ErrOrStderr(),
	})

	if err := os.MkdirAll(filepath.Dir(c.cfg.StoreFile), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	backend, err := sqlite.Open(cmd.Context(), c.cfg.StoreFile)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	if n, err := backend.DeleteExpired(cmd.Context()); err != nil {
		c.logger.Warn("failed to purge expired session rows", "err", err)
	} else if n > 0 {
		c.logger.Debug("purged expired session rows", "count", n)
	}
	c.store = tokenstore.New(backend)

	c.client = authsdk.NewSDKClient(c.cfg.BaseURL,
		authsdk.WithStore(c.store),
		authsdk.WithLogger(c.logger),
		authsdk.WithRequestTimeout(c.cfg.Timeout),
	)
	return c.client.Start(cmd.Context())
}

func (c *cli) close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

// prompt reads one line from stdin after printing label.
func (c *cli) prompt(cmd *cobra.Command, label string) (string, error) {
	if c.in == nil {
		c.in = bufio.NewReader(cmd.InOrStdin())
	}
	fmt.Fprint(cmd.OutOrStdout(), label)

	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimSpace(line), nil
}

// success prints a success message.
func success(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an indented detail line.
func info(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipSession: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "authctl %s (%s)\n", version, commit)
		},
	}
}
