package downloader

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	errs "pixiedl/pkg/errors"
	"pixiedl/pkg/fetch"
	"pixiedl/pkg/imageurl"
	"pixiedl/pkg/logger"
	"pixiedl/pkg/models"
	"pixiedl/pkg/ratelimit"
	"pixiedl/pkg/retry"
)

// DefaultConcurrent is the number of HTTP requests allowed in flight
const DefaultConcurrent = 5

// Fetcher downloads a URL into memory
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Response, error)
}

// PhotoStorage places downloaded bytes on disk and returns the path used
type PhotoStorage interface {
	Save(name string, data []byte) (string, error)
}

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	Concurrent int
	Policy     retry.Policy
	Limiter    ratelimit.Limiter
	// OnResult is called once per task as soon as it finishes, from the
	// task's goroutine
	OnResult func(models.DownloadResult)
	// OnRetry is called before each backoff pause
	OnRetry func(task models.DownloadTask, url string, d retry.Decision)
	// Sleep waits out a backoff; defaults to retry.Wait
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger logger.Logger
}

// Engine downloads a batch of tasks with a shared bound on in-flight
// requests. An Engine can run several batches but they share the bound.
type Engine struct {
	fetcher Fetcher
	storage PhotoStorage
	sem     *semaphore.Weighted
	opts    Options
	logger  logger.Logger
}

// New creates a download engine
func New(fetcher Fetcher, storage PhotoStorage, opts Options) *Engine {
	if opts.Concurrent <= 0 {
		opts.Concurrent = DefaultConcurrent
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Wait
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Engine{
		fetcher: fetcher,
		storage: storage,
		sem:     semaphore.NewWeighted(int64(opts.Concurrent)),
		opts:    opts,
		logger:  log.WithField("component", "downloader"),
	}
}

// Run downloads every task concurrently and returns the aggregate summary
// and one result per task, in task order. Per-task failures only show up in
// the results; an error is returned for a storage failure, which stops the
// run, or for cancellation of ctx.
func (e *Engine) Run(ctx context.Context, tasks []models.DownloadTask) (models.Summary, []models.DownloadResult, error) {
	logger.LogComponentStart(e.logger, "downloader", map[string]interface{}{
		"tasks":      len(tasks),
		"concurrent": e.opts.Concurrent,
	})

	results := make([]models.DownloadResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)

	for i := range tasks {
		i := i
		g.Go(func() error {
			result, err := e.runTask(gctx, tasks[i])
			results[i] = result
			if err != nil {
				return err
			}
			if e.opts.OnResult != nil {
				e.opts.OnResult(result)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	var summary models.Summary
	for _, r := range results {
		summary.Record(r.Success)
	}

	reason := "completed"
	if err != nil {
		reason = err.Error()
	}
	logger.LogComponentStop(e.logger, "downloader", reason)

	return summary, results, err
}

type variantURL struct {
	url     string
	variant models.Variant
}

// runTask tries the maximized URL and then, if it differs, the original.
// The returned error is non-nil only when saving failed.
func (e *Engine) runTask(ctx context.Context, task models.DownloadTask) (models.DownloadResult, error) {
	start := time.Now()
	result := models.DownloadResult{Task: task}

	candidates := []variantURL{{task.Maximized, models.VariantMaximized}}
	if task.HasFallback() {
		candidates = append(candidates, variantURL{task.Original, models.VariantOriginal})
	}

	for i, c := range candidates {
		if i > 0 {
			e.logger.DebugWithFields("Falling back to original URL", map[string]interface{}{
				"ordinal":  task.Ordinal,
				"original": c.url,
				"error":    result.Error,
			})
		}

		data, attempts, err := e.fetch(ctx, task, c.url)
		result.Attempts += attempts
		if err != nil {
			result.Error = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		path, err := e.storage.Save(imageurl.ExtractFilename(c.url), data)
		logger.LogDownload(e.logger, c.url, path, len(data), err)
		if err != nil {
			result.Error = err
			result.Duration = time.Since(start)
			result.Task.Outcome = models.OutcomeFailed
			return result, err
		}

		result.Success = true
		result.Error = nil
		result.FetchedURL = c.url
		result.Variant = c.variant
		result.Path = path
		result.Size = len(data)
		result.Duration = time.Since(start)
		result.Task.Outcome = models.OutcomeSucceeded
		return result, nil
	}

	result.Duration = time.Since(start)
	result.Task.Outcome = models.OutcomeFailed
	e.logger.WarnWithFields("Download failed", map[string]interface{}{
		"ordinal":  task.Ordinal,
		"url":      task.Maximized,
		"attempts": result.Attempts,
		"error":    fmt.Sprint(result.Error),
	})
	return result, nil
}

// fetch runs one retry sequence against url. The permit is held only for
// the duration of each HTTP attempt, never across a backoff pause.
func (e *Engine) fetch(ctx context.Context, task models.DownloadTask, url string) ([]byte, int, error) {
	state := retry.NewState(e.opts.Policy)

	for {
		resp, err := e.attempt(ctx, url)
		if err != nil && ctx.Err() != nil {
			return nil, state.Attempt(), ctx.Err()
		}

		d := state.Next(err)
		switch d.Action {
		case retry.ActionDone:
			return resp.Body, d.Attempt, nil
		case retry.ActionGiveUp:
			if d.Exhausted {
				return nil, d.Attempt, fmt.Errorf("max retry attempts (%d) exceeded: %w", d.Attempt, d.Err)
			}
			return nil, d.Attempt, d.Err
		}

		if e.opts.OnRetry != nil {
			e.opts.OnRetry(task, url, d)
		}
		e.logger.DebugWithFields("Retrying download", map[string]interface{}{
			"url":     url,
			"attempt": d.Attempt,
			"action":  d.Action.String(),
			"delay":   d.Delay,
			"type":    string(errs.TypeOf(d.Err)),
		})

		if err := e.opts.Sleep(ctx, d.Delay); err != nil {
			return nil, d.Attempt, err
		}
	}
}

func (e *Engine) attempt(ctx context.Context, url string) (*fetch.Response, error) {
	if err := e.opts.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	return e.fetcher.Get(ctx, url)
}
