package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/go-authgate/qbo-bridge/tokens"
	"github.com/go-authgate/qbo-bridge/tui"
)

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

type configLoader func(cmd *cobra.Command, logOut io.Writer) (*Config, *slog.Logger, error)

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "qbo-bridge",
		Short:         "Bridge between document extraction and QuickBooks Online",
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file (keys are lower-case setting names, e.g. client_id)")
	pf.String("client-id", "", "OAuth client ID (or CLIENT_ID env)")
	pf.String("redirect-uri", "", "OAuth redirect URI (default http://localhost:8000/auth/callback or REDIRECT_URI env)")
	pf.String("api-host", "", "Accounting API host (default sandbox or API_HOST env)")
	pf.String("token-store", "", "Token store: file, memory, postgres or s3 (or TOKEN_STORE env)")
	pf.String("token-file", "", "Token file for the file store (default tokens.json or TOKEN_FILE env)")
	pf.String("log-level", "", "Log level: debug, info, warn, error (or LOG_LEVEL env)")
	pf.String("log-format", "", "Log format: text or json (or LOG_FORMAT env)")

	load := func(cmd *cobra.Command, logOut io.Writer) (*Config, *slog.Logger, error) {
		file, err := readConfigFile(configFile)
		if err != nil {
			return nil, nil, err
		}
		cfg, err := loadConfig(cmd.Flags(), file, os.Getenv)
		if err != nil {
			return nil, nil, err
		}
		logger := newLogger(logOut, cfg.LogLevel, cfg.LogFormat)
		for _, u := range cfg.insecureURLs() {
			logger.Warn("using HTTP instead of HTTPS, tokens will be transmitted in plaintext", "url", u)
		}
		return cfg, logger, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newAuthorizeCmd(load),
		newTokensCmd(load),
	)
	return root
}

func newServeCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().String("listen", "", "Listen address (default :8000 or LISTEN_ADDR env)")
	return cmd
}

func newAuthorizeCmd(load configLoader) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Connect a company through the browser and store its tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// the TUI owns stderr on a terminal
			logOut := cmd.ErrOrStderr()
			if isTTY() {
				logOut = io.Discard
			}
			cfg, logger, err := load(cmd, logOut)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := authorizeOptions{openBrowser: !noBrowser}
			return withDisplayer(func(d tui.Displayer) error {
				return runAuthorize(cmd.Context(), a, d, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the consent URL without opening a browser")
	return cmd
}

func newTokensCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "Print the stored token set with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			store, closer, err := tokens.Open(cmd.Context(), cfg.storeConfig())
			if err != nil {
				return fmt.Errorf("failed to open token store: %w", err)
			}
			defer closer.Close()

			ts, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"tokens": ts.Redacted()})
		},
	}
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// withDisplayer runs fn with the TUI on a terminal and plain output otherwise.
func withDisplayer(fn func(tui.Displayer) error) error {
	if !isTTY() {
		d := tui.NewPlainDisplayer(os.Stderr)
		d.Banner()
		return fn(d)
	}

	// Run TUI program on stderr so stdout pipes are not corrupted
	m := tui.NewModel()
	// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
	// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	d := tui.NewProgramDisplayer(p)
	d.Banner()
	runErr := fn(d)
	p.Quit() // let BubbleTea drain terminal query responses before exiting
	wg.Wait()
	return runErr
}
