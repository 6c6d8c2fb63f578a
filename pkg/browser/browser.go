package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrTimeout is returned by bounded waits that ran out of time
var ErrTimeout = errors.New("browser: timed out")

// PollInterval is how often WaitAndLocate re-queries the page
var PollInterval = 100 * time.Millisecond

// Response describes one network response observed by the page
type Response struct {
	URL         string
	Status      int
	MimeType    string
	ContentType string
}

// IsImage reports whether the response declares an image payload
func (r Response) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(r.MimeType), "image/") ||
		strings.HasPrefix(strings.ToLower(r.ContentType), "image/")
}

// Element is an opaque handle to a DOM node returned by Query. Only the
// session that produced it can act on it.
type Element struct {
	selector string
	handle   any
}

// NewElement wraps a driver-specific node handle
func NewElement(selector string, handle any) Element {
	return Element{selector: selector, handle: handle}
}

// Selector returns the CSS selector that matched the element
func (e Element) Selector() string { return e.selector }

// Handle returns the driver-specific node
func (e Element) Handle() any { return e.handle }

// Locator is an ordered list of CSS selectors; earlier entries win
type Locator []string

func (l Locator) String() string {
	return strings.Join(l, ", ")
}

// Session is a single rendered page driven by a headless browser.
type Session interface {
	// Navigate loads url and returns once the document is parsed
	// (DOMContentLoaded), without waiting for the load event
	Navigate(ctx context.Context, url string) error
	// WaitNetworkIdle waits until no request has been in flight for a quiet
	// window. It returns ErrTimeout when the page never settles.
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	// OnResponse registers fn for every response the page receives from now
	// on. The returned func removes the subscription.
	OnResponse(fn func(Response)) (unsubscribe func())
	// Content returns the rendered HTML of the whole document
	Content(ctx context.Context) (string, error)
	// Evaluate runs a script in the page and decodes its result into out,
	// which may be nil
	Evaluate(ctx context.Context, script string, out any) error
	// Query returns the first element matching css without waiting
	Query(ctx context.Context, css string) (Element, bool, error)
	// Fill replaces the value of an input element
	Fill(ctx context.Context, el Element, text string) error
	// Click clicks an element
	Click(ctx context.Context, el Element) error
	// Press sends a named key such as "Enter" to an element
	Press(ctx context.Context, el Element, key string) error
	// Close releases the page and the browser behind it
	Close() error
}

// WaitAndLocate polls the session until one of the locator's selectors
// matches or timeout elapses. Absence is reported as found == false with a
// nil error; only driver failures and cancellation are errors.
func WaitAndLocate(ctx context.Context, s Session, loc Locator, timeout time.Duration) (Element, bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		for _, css := range loc {
			el, found, err := s.Query(ctx, css)
			if err != nil {
				return Element{}, false, err
			}
			if found {
				return el, true, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Element{}, false, nil
		}

		wait := PollInterval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Element{}, false, ctx.Err()
		case <-timer.C:
		}
	}
}
