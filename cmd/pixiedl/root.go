package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"pixiedl/internal/app"
	"pixiedl/pkg/config"
	"pixiedl/pkg/logger"
	"pixiedl/pkg/secrets"
	"pixiedl/pkg/ui"
)

var (
	// Version information, set with -ldflags
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string

	// Root command flags
	galleryURL      string
	password        string
	askPassword     bool
	outputDir       string
	concurrent      int
	dryRun          bool
	headless        bool
	rateLimit       float64
	maxRetries      int
	downloadTimeout time.Duration
	writeManifest   bool
	notifications   bool
)

// rootCmd downloads a gallery when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "pixiedl --url <gallery-url>",
	Short: "Download every full-resolution photo from a Pixieset client gallery",
	Long: `pixiedl exports a Pixieset client gallery to a local directory.

The gallery is opened in a headless Chrome, unlocked with its password when it
has one, and scrolled until every photo has loaded. Each photo is then fetched
at its largest size, falling back to the discovered size when the largest is
not available.

Passwords are taken from --password, from a terminal prompt with
--ask-password, or from a password stored with 'pixiedl auth set'.`,
	Example: `  # Download a public gallery
  pixiedl --url https://studio.pixieset.com/smithwedding/

  # Protected gallery, eight parallel downloads, custom directory
  pixiedl --url https://studio.pixieset.com/smithwedding/ --password secret \
    --concurrent 8 --output ./smith

  # List what would be downloaded
  pixiedl --url https://studio.pixieset.com/smithwedding/ --dry-run`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDownload,
}

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			ui.Stdout().PrintWarning("Interrupted")
			return 130
		}
		if !errors.Is(err, errReported) {
			ui.NewConsole(os.Stderr).PrintError("Error", err)
		}
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.pixiedl.yaml or ~/.config/pixiedl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	flags := rootCmd.Flags()
	flags.StringVarP(&galleryURL, "url", "u", "", "gallery URL")
	flags.StringVarP(&password, "password", "p", "", "gallery password")
	flags.BoolVar(&askPassword, "ask-password", false, "prompt for the gallery password without echo")
	flags.StringVarP(&outputDir, "output", "o", "./downloads", "output directory")
	flags.IntVar(&concurrent, "concurrent", 5, "maximum simultaneous downloads")
	flags.BoolVar(&dryRun, "dry-run", false, "list the photos without downloading them")
	flags.BoolVar(&headless, "headless", true, "run Chrome without a window")
	flags.Float64Var(&rateLimit, "rate-limit", 0, "maximum download requests per second (0 disables pacing)")
	flags.IntVar(&maxRetries, "max-retries", 3, "attempts per URL before giving up")
	flags.DurationVar(&downloadTimeout, "download-timeout", 120*time.Second, "timeout for one download request")
	flags.BoolVar(&writeManifest, "manifest", true, "write manifest.json into the output directory")
	flags.BoolVar(&notifications, "notifications", false, "announce completion and failure")

	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate)
	rootCmd.SetVersionTemplate(`pixiedl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// changedFlags returns the values of the flags the user set, keyed the way
// config.MergeCommandLineFlags expects
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	set := make(map[string]interface{})
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("url") {
		set["url"] = galleryURL
	}
	if changed("output") {
		set["output"] = outputDir
	}
	if changed("concurrent") {
		set["concurrent"] = concurrent
	}
	if changed("max-retries") {
		set["max-retries"] = maxRetries
	}
	if changed("download-timeout") {
		set["download-timeout"] = downloadTimeout
	}
	if changed("rate-limit") {
		set["rate-limit"] = rateLimit
	}
	if changed("headless") {
		set["headless"] = headless
	}
	if changed("manifest") {
		set["manifest"] = writeManifest
	}
	if changed("notifications") {
		set["notifications"] = notifications
	}
	if changed("log-level") {
		set["log-level"] = logLevel
	}
	return set
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, changedFlags(cmd))
	if err != nil {
		return err
	}
	if cfg.Gallery.URL == "" {
		return errors.New("a gallery URL is required (--url or PIXIEDL_GALLERY_URL)")
	}

	logger.Version = version
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	console := ui.Stdout()
	pw, err := resolvePassword(cfg.Gallery.URL, password, askPassword, promptPassword, storedPassword)
	if err != nil {
		return err
	}

	runner := app.New(cfg, app.Dependencies{Console: console})
	_, err = runner.Run(cmd.Context(), app.Options{Password: pw, DryRun: dryRun})
	if errors.Is(err, app.ErrNoImages) {
		console.PrintWarning(err.Error())
		return errReported
	}
	return err
}

// errReported exits 1 after the failure was already shown to the user
var errReported = errors.New("failure already reported")

// resolvePassword picks the gallery password: the flag, then an interactive
// prompt, then a stored password. No password at all is valid for public
// galleries.
func resolvePassword(gallery, flagValue string, ask bool, prompt func(string) (string, error), stored func(string) (string, bool)) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if ask {
		pw, err := prompt("Gallery password: ")
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(pw), nil
	}
	if stored != nil {
		if pw, ok := stored(gallery); ok {
			logger.WithField("gallery", secrets.Key(gallery)).Info("Using stored gallery password")
			return pw, nil
		}
	}
	return "", nil
}

// promptPassword reads a line from the terminal without echo
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("standard input is not a terminal")
	}
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func storedPassword(gallery string) (string, bool) {
	manager, err := secrets.NewManager()
	if err != nil {
		logger.WithError(err).Debug("Password store unavailable")
		return "", false
	}
	return manager.Password(gallery)
}
