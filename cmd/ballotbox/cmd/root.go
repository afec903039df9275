package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ballotbox/app"
	"github.com/jmcleod/ballotbox/config"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var (
	apiURL     string
	stateDir   string
	storeKind  string
	verbose    bool
	jsonOutput bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ballotbox",
	Short: "BallotBox is a command line client for the voting service",
	Long: `A command line client for the blockchain voting service. It keeps the
signed-in session on disk between invocations and enforces the same view
access rules as the web front end.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (overrides BALLOTBOX_API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Directory for the session database")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Session store: bolt, memory, redis or postgres")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("api") {
		loaded.APIBaseURL = apiURL
	}
	if flags.Changed("state-dir") {
		loaded.StateDir = stateDir
	}
	if flags.Changed("store") {
		loaded.Store = config.StoreKind(storeKind)
	}
	if verbose {
		loaded.LogLevel = "debug"
	}
	loaded.Sanitize()
	cfg = loaded
	return nil
}

func newLogger() *slog.Logger {
	if verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// withApp assembles the client for one command and cancels in-flight
// requests on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(cfg, app.WithLogger(newLogger()))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

// requireSignedIn fails early for commands that need a credential.
func requireSignedIn(a *app.App) error {
	if !a.Session.IsAuthenticated() {
		return fmt.Errorf("not signed in; run %q first", "ballotbox login")
	}
	return nil
}
