// Package scraper discovers the photos of a Pixieset gallery.
//
// The Scraper drives a browser.Session owned by the caller through the
// gallery page:
//   - navigate and wait for the network to settle
//   - submit the gallery password when one is given
//   - scroll until the page height stops growing so lazy images load
//   - harvest URLs from network responses, the rendered DOM and inline scripts
//
// Usage:
//
//	s := scraper.New(cfg, log)
//	candidates, err := s.Collect(ctx, session, galleryURL, password)
//	if err != nil {
//	    return err
//	}
//
// Waits that run out of time are logged as warnings and discovery continues
// with whatever has loaded. Only a failed navigation, an unreadable page or
// cancellation is returned as an error.
package scraper
