package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"pixiedl/internal/downloader"
	"pixiedl/pkg/browser"
	"pixiedl/pkg/config"
	"pixiedl/pkg/fetch"
	"pixiedl/pkg/logger"
	"pixiedl/pkg/manifest"
	"pixiedl/pkg/models"
	"pixiedl/pkg/ratelimit"
	"pixiedl/pkg/retry"
	"pixiedl/pkg/scraper"
	"pixiedl/pkg/storage"
	"pixiedl/pkg/ui"
)

// ErrNoImages is returned when discovery finds nothing to download. The
// cause cannot be told apart from the outside.
var ErrNoImages = errors.New("No images found. The gallery may be empty, the URL may be wrong, or the password may be incorrect.")

// SessionFactory opens the browser session used for discovery
type SessionFactory func(ctx context.Context) (browser.Session, error)

// Dependencies are the collaborators of a Runner. Nil fields get the
// production implementation.
type Dependencies struct {
	NewSession SessionFactory
	Fetcher    downloader.Fetcher
	Fs         afero.Fs
	Console    *ui.Console
	Notifier   *ui.Notifier
	Logger     logger.Logger
	// Sleep replaces retry backoff waits
	Sleep func(ctx context.Context, d time.Duration) error
}

// Options are the per-invocation choices
type Options struct {
	Password string
	DryRun   bool
}

// Report describes a finished run
type Report struct {
	RunID        string
	Candidates   int
	Tasks        []models.DownloadTask
	Summary      models.Summary
	Results      []models.DownloadResult
	ManifestPath string
}

// Runner owns the browser session for one gallery export and threads it
// through discovery, then hands the results to the download engine.
type Runner struct {
	cfg  *config.Config
	deps Dependencies
}

// New creates a Runner for cfg
func New(cfg *config.Config, deps Dependencies) *Runner {
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Console == nil {
		deps.Console = ui.Stdout()
	}
	if deps.Notifier == nil {
		deps.Notifier = ui.NewNotifier(deps.Console, cfg.Notifications)
	}
	if deps.NewSession == nil {
		deps.NewSession = ChromeSessionFactory(cfg.Browser, deps.Logger)
	}
	return &Runner{cfg: cfg, deps: deps}
}

// ChromeSessionFactory starts a local Chrome configured by cfg
func ChromeSessionFactory(cfg config.BrowserConfig, log logger.Logger) SessionFactory {
	return func(ctx context.Context) (browser.Session, error) {
		chrome, err := browser.NewChrome(ctx, browser.Options{
			Headless:     cfg.Headless,
			UserAgent:    cfg.UserAgent,
			WindowWidth:  cfg.WindowWidth,
			WindowHeight: cfg.WindowHeight,
			ExecPath:     cfg.ExecPath,
			IdleWindow:   cfg.IdleWindow,
			Logger:       log,
		})
		if err != nil {
			return nil, err
		}
		return chrome, nil
	}
}

// Run discovers the gallery's photos and, unless opts.DryRun is set,
// downloads them. Per-photo failures are only reported in the summary; an
// error means discovery failed, found nothing, or the output directory
// could not be written.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	galleryURL := r.cfg.Gallery.URL
	started := time.Now()
	report := &Report{RunID: logger.NewRunID()}

	log := r.deps.Logger
	if log == nil {
		log = logger.ForRun(report.RunID, galleryURL)
	} else {
		log = log.WithFields(map[string]interface{}{
			"run_id":  report.RunID,
			"gallery": galleryURL,
		})
	}
	console := r.deps.Console

	console.PrintInfo("Gallery", galleryURL)

	candidates, err := r.discover(ctx, log, galleryURL, opts.Password)
	if err != nil {
		r.deps.Notifier.Error("Discovery failed", err.Error())
		return report, err
	}
	report.Candidates = candidates.Len()
	console.Println(fmt.Sprintf("Found %d unique image URL(s).", candidates.Len()))

	if candidates.Len() == 0 {
		r.deps.Notifier.Error("Nothing to download", galleryURL)
		return report, ErrNoImages
	}

	report.Tasks = downloader.Plan(candidates)

	if opts.DryRun {
		console.Println(fmt.Sprintf("\n[Dry run] %d image(s) found:\n", len(report.Tasks)))
		for _, task := range report.Tasks {
			console.Println(fmt.Sprintf("  %d. %s", task.Ordinal, task.Maximized))
		}
		return report, nil
	}

	store, err := storage.NewManagerWithFs(r.deps.Fs, r.cfg.Output.Directory)
	if err != nil {
		r.deps.Notifier.Error("Download failed", err.Error())
		return report, err
	}

	console.Println(fmt.Sprintf("\nDownloading %d image(s) to %s/ (concurrency: %d)",
		len(report.Tasks), r.cfg.Output.Directory, r.cfg.Download.Concurrent))

	tracker := ui.NewStatusTracker()
	progress := ui.NewProgress(console, tracker)
	engine := downloader.New(r.fetcher(log, galleryURL), store, downloader.Options{
		Concurrent: r.cfg.Download.Concurrent,
		Policy: retry.Policy{
			MaxAttempts: r.cfg.Download.MaxAttempts,
			Backoff: &retry.ExponentialBackoff{
				BaseDelay:  r.cfg.Download.BackoffBase,
				Multiplier: 2,
			},
			RetryIf: retry.DefaultRetryIf,
		},
		Limiter:  ratelimit.New(r.cfg.Download.RateLimit, r.cfg.Download.Burst),
		OnResult: progress.TaskDone,
		Sleep:    r.deps.Sleep,
		Logger:   log,
	})

	summary, results, runErr := engine.Run(ctx, report.Tasks)
	report.Summary = summary
	report.Results = results

	if r.cfg.Output.Manifest {
		m := manifest.New(galleryURL, report.RunID, started)
		m.Record(summary, results, time.Now())
		path, err := m.Save(r.deps.Fs, r.cfg.Output.Directory)
		if err != nil {
			log.WithError(err).Warn("Failed to write manifest")
		} else {
			report.ManifestPath = path
			if failed := m.FailedEntries(); len(failed) > 0 {
				console.Println(fmt.Sprintf("%d failed photo(s) are listed in %s", len(failed), path))
				for _, e := range failed {
					log.DebugWithFields("Photo not saved", map[string]interface{}{
						"ordinal": e.Ordinal,
						"url":     e.Maximized,
						"error":   e.Error,
					})
				}
			}
		}
	}

	if runErr != nil {
		r.deps.Notifier.Error("Download failed", runErr.Error())
		return report, runErr
	}

	console.Println("\nDone: " + summary.String())
	console.Println("  " + tracker.Stats())
	r.deps.Notifier.Complete("Download complete", summary.String())

	log.InfoWithFields("Run finished", map[string]interface{}{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"total":     summary.Total,
		"duration":  time.Since(started).String(),
	})
	return report, nil
}

// discover opens a session, collects candidates and closes the session
// before any download starts
func (r *Runner) discover(ctx context.Context, log logger.Logger, galleryURL, password string) (models.CandidateSet, error) {
	session, err := r.deps.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Debug("Browser session did not close cleanly")
		}
	}()

	return scraper.New(r.cfg, log).Collect(ctx, session, galleryURL, password)
}

func (r *Runner) fetcher(log logger.Logger, galleryURL string) downloader.Fetcher {
	if r.deps.Fetcher != nil {
		return r.deps.Fetcher
	}

	client := fetch.NewClient(r.cfg.Download.Timeout, log)
	if r.cfg.Browser.UserAgent != "" {
		client.SetHeader("User-Agent", r.cfg.Browser.UserAgent)
	}
	client.SetHeader("Referer", galleryURL)
	return client
}
