package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"pixiedl/pkg/logger"
)

// Options configures the Chrome session
type Options struct {
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	// ExecPath overrides Chrome discovery
	ExecPath string
	// IdleWindow is how long the network must stay quiet to count as idle
	IdleWindow time.Duration
	Logger     logger.Logger
}

// Chrome is a Session backed by a local Chrome driven over the DevTools protocol
type Chrome struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	idleWindow  time.Duration
	logger      logger.Logger

	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	subscribers  map[int]func(Response)
	nextSubID    int
	closeOnce    sync.Once
}

// NewChrome starts Chrome, opens a tab and enables network events. The
// returned session must be closed.
func NewChrome(ctx context.Context, opts Options) (*Chrome, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = 500 * time.Millisecond
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "en-US,en"),
	)
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if !opts.Headless {
		// undo the flags chromedp.Headless adds through DefaultExecAllocatorOptions
		allocOpts = append(allocOpts,
			chromedp.Flag("headless", false),
			chromedp.Flag("hide-scrollbars", false),
			chromedp.Flag("mute-audio", false),
		)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(cdpLog(log)),
		chromedp.WithErrorf(cdpLog(log)),
	)

	c := &Chrome{
		allocCancel:  allocCancel,
		tabCtx:       tabCtx,
		tabCancel:    tabCancel,
		idleWindow:   opts.IdleWindow,
		logger:       log,
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
		subscribers:  make(map[int]func(Response)),
	}

	// The first Run launches the browser and creates the target the
	// listener attaches to.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	chromedp.ListenTarget(tabCtx, c.onEvent)

	log.DebugWithFields("chrome session started", map[string]interface{}{
		"headless": opts.Headless,
		"width":    opts.WindowWidth,
		"height":   opts.WindowHeight,
	})

	return c, nil
}

func cdpLog(log logger.Logger) func(string, ...interface{}) {
	return func(format string, args ...interface{}) {
		if strings.Contains(format, "unhandled") || strings.Contains(format, "event") {
			return
		}
		log.Debug(fmt.Sprintf(format, args...))
	}
}

// onEvent runs on chromedp's event loop and must not block
func (c *Chrome) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if ev.Request != nil && strings.HasPrefix(ev.Request.URL, "data:") {
			return
		}
		c.mu.Lock()
		c.inflight[ev.RequestID] = struct{}{}
		c.lastActivity = time.Now()
		c.mu.Unlock()

	case *network.EventLoadingFinished:
		c.finish(ev.RequestID)

	case *network.EventLoadingFailed:
		c.finish(ev.RequestID)

	case *network.EventResponseReceived:
		if ev.Response == nil {
			return
		}
		resp := Response{
			URL:         ev.Response.URL,
			Status:      int(ev.Response.Status),
			MimeType:    ev.Response.MimeType,
			ContentType: headerValue(ev.Response.Headers, "Content-Type"),
		}

		c.mu.Lock()
		subs := make([]func(Response), 0, len(c.subscribers))
		for _, fn := range c.subscribers {
			subs = append(subs, fn)
		}
		c.mu.Unlock()

		for _, fn := range subs {
			fn(resp)
		}
	}
}

func (c *Chrome) finish(id network.RequestID) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func headerValue(headers network.Headers, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// bind derives a context from the tab that also ends when ctx ends
func (c *Chrome) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(c.tabCtx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := c.bind(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// scriptDOMReady is true once the navigated document has been parsed
const scriptDOMReady = `location.href !== "about:blank" && document.readyState !== "loading"`

// domPollInterval is how often Navigate checks the document state
const domPollInterval = 100 * time.Millisecond

// Navigate loads url and returns at DOMContentLoaded. It does not wait for
// the load event, so slow images and trackers cannot stall discovery.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		return waitDOMReady(ctx, domPollInterval, func(ctx context.Context) (bool, error) {
			var ready bool
			err := chromedp.Evaluate(scriptDOMReady, &ready).Do(ctx)
			return ready, err
		})
	}))
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// waitDOMReady polls check until it reports true or ctx ends. Check errors
// are expected while the old document is torn down and only count as not
// ready.
func waitDOMReady(ctx context.Context, interval time.Duration, check func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ready, err := check(ctx)
		if err == nil && ready {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w (last check: %v)", ctx.Err(), lastErr)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitNetworkIdle waits until nothing has been in flight for the idle window
func (c *Chrome) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		idle := len(c.inflight) == 0 && time.Since(c.lastActivity) >= c.idleWindow
		pending := len(c.inflight)
		c.mu.Unlock()

		if idle {
			return nil
		}
		if time.Now().After(deadline) {
			c.logger.DebugWithFields("network did not go idle", map[string]interface{}{
				"in_flight": pending,
			})
			return ErrTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// OnResponse subscribes fn to response events
func (c *Chrome) OnResponse(fn func(Response)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Content returns the outer HTML of the document
func (c *Chrome) Content(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

// Evaluate runs script and decodes the result into out
func (c *Chrome) Evaluate(ctx context.Context, script string, out any) error {
	if err := c.run(ctx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

// Query returns the first node matching css without waiting for it
func (c *Chrome) Query(ctx context.Context, css string) (Element, bool, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(css, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return Element{}, false, fmt.Errorf("failed to query %q: %w", css, err)
	}
	if len(nodes) == 0 {
		return Element{}, false, nil
	}
	return NewElement(css, nodes[0]), true, nil
}

func nodeIDs(el Element) ([]cdp.NodeID, error) {
	node, ok := el.Handle().(*cdp.Node)
	if !ok || node == nil {
		return nil, fmt.Errorf("element %q does not belong to a chrome session", el.Selector())
	}
	return []cdp.NodeID{node.NodeID}, nil
}

// Fill clears the element and types text into it
func (c *Chrome) Fill(ctx context.Context, el Element, text string) error {
	ids, err := nodeIDs(el)
	if err != nil {
		return err
	}
	return c.run(ctx,
		chromedp.Focus(ids, chromedp.ByNodeID),
		chromedp.SetValue(ids, "", chromedp.ByNodeID),
		chromedp.SendKeys(ids, text, chromedp.ByNodeID),
	)
}

// Click clicks the center of the element
func (c *Chrome) Click(ctx context.Context, el Element) error {
	node, ok := el.Handle().(*cdp.Node)
	if !ok || node == nil {
		return fmt.Errorf("element %q does not belong to a chrome session", el.Selector())
	}
	return c.run(ctx, chromedp.MouseClickNode(node))
}

var keyNames = map[string]string{
	"Enter":  kb.Enter,
	"Tab":    kb.Tab,
	"Escape": kb.Escape,
}

// Press sends a named key to the element
func (c *Chrome) Press(ctx context.Context, el Element, key string) error {
	ids, err := nodeIDs(el)
	if err != nil {
		return err
	}
	if mapped, ok := keyNames[key]; ok {
		key = mapped
	}
	return c.run(ctx, chromedp.SendKeys(ids, key, chromedp.ByNodeID))
}

// Close shuts the tab and the browser process
func (c *Chrome) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = chromedp.Cancel(c.tabCtx)
		c.tabCancel()
		c.allocCancel()
	})
	return err
}
