package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pixiedl/pkg/browser"
	"pixiedl/pkg/config"
	errs "pixiedl/pkg/errors"
	"pixiedl/pkg/imageurl"
	"pixiedl/pkg/logger"
	"pixiedl/pkg/models"
	"pixiedl/pkg/retry"
)

const (
	defaultStaleThreshold = 5
	defaultMaxScrolls     = 2000
)

// PasswordField matches the gallery password input in the layouts seen so far
var PasswordField = browser.Locator{
	`input[type="password"]`,
	`input[type="text"][name*="password"]`,
	`input[placeholder*="password" i]`,
	`input[placeholder*="contraseña" i]`,
	`input.collection-password-input`,
}

// SubmitButton matches the button that unlocks a protected gallery
var SubmitButton = browser.Locator{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`button.collection-password-button`,
}

const (
	scriptScrollHeight = "document.body.scrollHeight"
	scriptScrollDown   = "window.scrollBy(0, window.innerHeight)"
	scriptScrollTop    = "window.scrollTo(0, 0)"
)

// Scraper discovers the photo URLs of a gallery page
type Scraper struct {
	cfg     config.ScrapeConfig
	domains []string
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Scraper from the scrape and gallery sections of cfg
func New(cfg *config.Config, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}

	domains := cfg.Gallery.Domains
	if len(domains) == 0 {
		domains = imageurl.DefaultDomains
	}

	sc := cfg.Scrape
	if sc.StaleThreshold <= 0 {
		sc.StaleThreshold = defaultStaleThreshold
	}
	if sc.MaxScrolls <= 0 {
		sc.MaxScrolls = defaultMaxScrolls
	}

	return &Scraper{
		cfg:     sc,
		domains: domains,
		logger:  log.WithField("component", "scraper"),
		sleep:   retry.Wait,
	}
}

// Collect drives session through the gallery at galleryURL and returns every
// candidate photo URL seen on the network, in the rendered DOM or in inline
// scripts. An empty set is not an error; a failed navigation is.
func (s *Scraper) Collect(ctx context.Context, session browser.Session, galleryURL, password string) (models.CandidateSet, error) {
	intercepted := newSyncSet()
	unsubscribe := session.OnResponse(func(resp browser.Response) {
		if !imageurl.MatchesDomain(resp.URL, s.domains) {
			return
		}
		if resp.IsImage() || imageurl.HasImageExtension(resp.URL) {
			intercepted.add(resp.URL)
		}
	})
	defer unsubscribe()

	s.logger.InfoWithFields("Navigating to gallery", map[string]interface{}{
		"url": galleryURL,
	})
	if err := s.navigate(ctx, session, galleryURL); err != nil {
		return nil, err
	}
	s.waitIdle(ctx, session, "initial load")

	if password != "" {
		if err := s.enterPassword(ctx, session, password); err != nil {
			return nil, err
		}
	}

	// Let the first images start appearing
	if err := s.pause(ctx, s.cfg.SettleDelay); err != nil {
		return nil, err
	}

	if err := s.scrollToEnd(ctx, session); err != nil {
		return nil, err
	}

	html, err := session.Content(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.New(errs.ErrorTypeDiscovery, "failed to read rendered gallery", err)
	}

	harvest, err := harvestDocument(html, s.domains)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeDiscovery, "failed to parse rendered gallery", err)
	}

	network := intercepted.snapshot()
	unsubscribe()

	all := models.NewCandidateSet()
	all.Union(network)
	all.Union(harvest.dom)
	all.Union(harvest.scripts)

	result := models.NewCandidateSet()
	excluded := 0
	for u := range all {
		if imageurl.IsExcluded(string(u)) {
			excluded++
			continue
		}
		result.Add(string(u))
	}

	s.logger.InfoWithFields("Collected image URLs", map[string]interface{}{
		"network":  network.Len(),
		"dom":      harvest.dom.Len(),
		"scripts":  harvest.scripts.Len(),
		"excluded": excluded,
		"unique":   result.Len(),
	})

	return result, nil
}

func (s *Scraper) navigate(ctx context.Context, session browser.Session, galleryURL string) error {
	navCtx, cancel := bounded(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	if err := session.Navigate(navCtx, galleryURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.New(errs.ErrorTypeDiscovery, fmt.Sprintf("failed to load %s", galleryURL), err)
	}
	return nil
}

// waitIdle waits for network idle; running out of time only warrants a warning
func (s *Scraper) waitIdle(ctx context.Context, session browser.Session, stage string) {
	err := session.WaitNetworkIdle(ctx, s.cfg.NetworkIdleTimeout)
	switch {
	case err == nil:
	case errors.Is(err, browser.ErrTimeout):
		s.logger.WarnWithFields("Network did not reach idle state, continuing anyway", map[string]interface{}{
			"stage": stage,
		})
	case ctx.Err() == nil:
		s.logger.WithError(err).WithField("stage", stage).Warn("Waiting for network idle failed")
	}
}

// enterPassword unlocks a protected gallery. Problems with the form are
// logged and discovery carries on; only cancellation aborts.
func (s *Scraper) enterPassword(ctx context.Context, session browser.Session, password string) error {
	s.logger.Info("Attempting to enter gallery password")

	field, found, err := browser.WaitAndLocate(ctx, session, PasswordField, s.cfg.PasswordTimeout)
	if err != nil {
		return s.passwordIssue(ctx, err)
	}
	if !found {
		s.logger.Warn("Password field not found; the gallery may be public")
		return nil
	}

	if err := session.Fill(ctx, field, password); err != nil {
		return s.passwordIssue(ctx, err)
	}

	submitted := false
	for _, css := range SubmitButton {
		button, found, err := session.Query(ctx, css)
		if err != nil {
			return s.passwordIssue(ctx, err)
		}
		if !found {
			continue
		}
		if err := session.Click(ctx, button); err != nil {
			return s.passwordIssue(ctx, err)
		}
		submitted = true
		break
	}
	if !submitted {
		if err := session.Press(ctx, field, "Enter"); err != nil {
			return s.passwordIssue(ctx, err)
		}
	}

	s.waitIdle(ctx, session, "password")
	s.logger.Info("Password submitted")
	return nil
}

func (s *Scraper) passwordIssue(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.WithError(err).Warn("Password entry issue; the gallery may be public")
	return nil
}

// scrollToEnd scrolls one viewport at a time until the document height has
// been stable for StaleThreshold consecutive checks, then returns to the top.
func (s *Scraper) scrollToEnd(ctx context.Context, session browser.Session) error {
	previous, stale, scrolls := 0, 0, 0

	for stale < s.cfg.StaleThreshold {
		if scrolls >= s.cfg.MaxScrolls {
			s.logger.WarnWithFields("Scroll limit reached before the gallery stopped growing", map[string]interface{}{
				"scrolls": scrolls,
			})
			break
		}

		var height int
		if err := session.Evaluate(ctx, scriptScrollHeight, &height); err != nil {
			return s.scrollIssue(ctx, err)
		}
		if height == previous {
			stale++
		} else {
			stale = 0
		}
		previous = height

		if err := session.Evaluate(ctx, scriptScrollDown, nil); err != nil {
			return s.scrollIssue(ctx, err)
		}
		scrolls++

		if err := s.pause(ctx, s.cfg.ScrollPause); err != nil {
			return err
		}
	}

	s.logger.DebugWithFields("Finished scrolling", map[string]interface{}{
		"scrolls": scrolls,
		"height":  previous,
	})

	if err := session.Evaluate(ctx, scriptScrollTop, nil); err != nil {
		return s.scrollIssue(ctx, err)
	}
	return s.pause(ctx, s.cfg.FinalPause)
}

func (s *Scraper) scrollIssue(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.WithError(err).Warn("Scrolling stopped early; harvesting what has loaded")
	return nil
}

func (s *Scraper) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return s.sleep(ctx, d)
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// syncSet collects URLs from the browser's event goroutine
type syncSet struct {
	mu  sync.Mutex
	set models.CandidateSet
}

func newSyncSet() *syncSet {
	return &syncSet{set: models.NewCandidateSet()}
}

func (s *syncSet) add(u string) {
	s.mu.Lock()
	s.set.Add(u)
	s.mu.Unlock()
}

func (s *syncSet) snapshot() models.CandidateSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := models.NewCandidateSet()
	out.Union(s.set)
	return out
}
