package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pixiedl/pkg/browser"
	"pixiedl/pkg/config"
	"pixiedl/pkg/fetch"
	"pixiedl/pkg/logger"
	"pixiedl/pkg/manifest"
	"pixiedl/pkg/ui"
)

const testGallery = "https://studio.pixieset.com/smithwedding/"

var galleryPhotos = []string{
	"https://images.pixieset.com/g/one-medium.jpg",
	"https://images.pixieset.com/g/two-large.jpg",
	"https://images.pixieset.com/g/three.jpg",
}

// gallerySession renders a static page listing photos
type gallerySession struct {
	html   string
	closed atomic.Bool
	err    error
}

func newGallerySession(photos ...string) *gallerySession {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"gallery\">")
	for _, p := range photos {
		b.WriteString(`<img src="` + p + `">`)
	}
	b.WriteString("</div></body></html>")
	return &gallerySession{html: b.String()}
}

func (g *gallerySession) Navigate(ctx context.Context, url string) error { return g.err }

func (g *gallerySession) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (g *gallerySession) OnResponse(fn func(browser.Response)) func() { return func() {} }

func (g *gallerySession) Content(ctx context.Context) (string, error) { return g.html, nil }

func (g *gallerySession) Evaluate(ctx context.Context, script string, out any) error {
	if h, ok := out.(*int); ok {
		*h = 1000
	}
	return nil
}

func (g *gallerySession) Query(ctx context.Context, css string) (browser.Element, bool, error) {
	return browser.Element{}, false, nil
}

func (g *gallerySession) Fill(ctx context.Context, el browser.Element, text string) error {
	return nil
}

func (g *gallerySession) Click(ctx context.Context, el browser.Element) error { return nil }

func (g *gallerySession) Press(ctx context.Context, el browser.Element, key string) error {
	return nil
}

func (g *gallerySession) Close() error {
	g.closed.Store(true)
	return nil
}

// rewriteTransport sends every request to a local test server
type rewriteTransport struct {
	target *url.URL
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

// cdnServer serves only the xxlarge variant of each photo
func cdnServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	var hits sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Store(r.URL.Path, true)
		if !strings.HasSuffix(r.URL.Path, "-xxlarge.jpg") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(concurrent int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Gallery.URL = testGallery
	cfg.Scrape.NavigationTimeout = time.Second
	cfg.Scrape.NetworkIdleTimeout = 0
	cfg.Scrape.PasswordTimeout = 0
	cfg.Scrape.SettleDelay = 0
	cfg.Scrape.ScrollPause = 0
	cfg.Scrape.FinalPause = 0
	cfg.Download.Concurrent = concurrent
	cfg.Download.BackoffBase = 0
	cfg.Output.Directory = "/photos"
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, session *gallerySession, out *bytes.Buffer) (*Runner, afero.Fs) {
	t.Helper()
	srv, _ := cdnServer(t)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	hc := &http.Client{Transport: &rewriteTransport{target: target}}
	runner := New(cfg, Dependencies{
		NewSession: func(ctx context.Context) (browser.Session, error) { return session, nil },
		Fetcher:    fetch.NewClientWithHTTP(hc, 5*time.Second, logger.NewNopLogger()),
		Fs:         fs,
		Console:    ui.NewConsole(out),
		Logger:     logger.NewNopLogger(),
	})
	return runner, fs
}

func TestRunDryRunListsMaximizedURLs(t *testing.T) {
	var out bytes.Buffer
	session := newGallerySession(galleryPhotos...)
	runner, fs := newTestRunner(t, testConfig(2), session, &out)

	report, err := runner.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Candidates)
	require.Len(t, report.Tasks, 3)
	assert.True(t, session.closed.Load())

	text := out.String()
	assert.Contains(t, text, "Found 3 unique image URL(s).")
	assert.Contains(t, text, "[Dry run] 3 image(s) found:")
	assert.Contains(t, text, "https://images.pixieset.com/g/one-xxlarge.jpg")
	assert.Contains(t, text, "https://images.pixieset.com/g/two-xxlarge.jpg")
	assert.Contains(t, text, "https://images.pixieset.com/g/three-xxlarge.jpg")

	exists, err := afero.DirExists(fs, "/photos")
	require.NoError(t, err)
	assert.False(t, exists, "dry run must not create the output directory")
}

func TestRunDownloadsGallery(t *testing.T) {
	var out bytes.Buffer
	session := newGallerySession(galleryPhotos...)
	runner, fs := newTestRunner(t, testConfig(2), session, &out)

	report, err := runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, 3, report.Summary.Succeeded)
	assert.Contains(t, out.String(), "Downloading 3 image(s) to /photos/ (concurrency: 2)")
	assert.Contains(t, out.String(), "Done: 3 downloaded, 0 failed out of 3 total.")

	// files are named without the size token; the body proves the xxlarge
	// variant was the one fetched
	for _, stem := range []string{"one", "two", "three"} {
		data, err := afero.ReadFile(fs, filepath.Join("/photos", stem+".jpg"))
		require.NoError(t, err, stem)
		assert.Equal(t, "jpeg:/g/"+stem+"-xxlarge.jpg", string(data))
	}

	require.NotEmpty(t, report.ManifestPath)
	m, err := manifest.Load(fs, "/photos")
	require.NoError(t, err)
	assert.Equal(t, testGallery, m.Gallery)
	assert.Equal(t, report.RunID, m.RunID)
	assert.Equal(t, 3, m.Succeeded)
	assert.Len(t, m.Entries, 3)
	assert.Empty(t, m.FailedEntries())
}

func TestRunReportsFailedPhotos(t *testing.T) {
	var out bytes.Buffer
	// neither gone-xxlarge.png nor gone.png is served
	session := newGallerySession(galleryPhotos[0], "https://images.pixieset.com/g/gone.png")
	runner, fs := newTestRunner(t, testConfig(1), session, &out)

	report, err := runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.Succeeded)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Contains(t, out.String(), "1 failed photo(s) are listed in "+report.ManifestPath)

	m, err := manifest.Load(fs, "/photos")
	require.NoError(t, err)
	failed := m.FailedEntries()
	require.Len(t, failed, 1)
	assert.Equal(t, "https://images.pixieset.com/g/gone-xxlarge.png", failed[0].Maximized)
}

func TestRunWithoutManifest(t *testing.T) {
	var out bytes.Buffer
	cfg := testConfig(1)
	cfg.Output.Manifest = false
	runner, fs := newTestRunner(t, cfg, newGallerySession(galleryPhotos[0]), &out)

	report, err := runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, report.ManifestPath)

	exists, err := afero.Exists(fs, filepath.Join("/photos", manifest.FileName))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunNoImages(t *testing.T) {
	var out bytes.Buffer
	session := newGallerySession()
	runner, _ := newTestRunner(t, testConfig(2), session, &out)

	_, err := runner.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoImages)
	assert.Contains(t, out.String(), "Found 0 unique image URL(s).")
	assert.True(t, session.closed.Load())
}

func TestRunSessionStartFailure(t *testing.T) {
	var out bytes.Buffer
	cfg := testConfig(2)
	runner := New(cfg, Dependencies{
		NewSession: func(ctx context.Context) (browser.Session, error) {
			return nil, errors.New("chrome not found")
		},
		Fs:      afero.NewMemMapFs(),
		Console: ui.NewConsole(&out),
		Logger:  logger.NewNopLogger(),
	})

	_, err := runner.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start browser")
}

func TestRunDiscoveryFailureClosesSession(t *testing.T) {
	var out bytes.Buffer
	session := newGallerySession(galleryPhotos...)
	session.err = errors.New("net::ERR_NAME_NOT_RESOLVED")
	runner, _ := newTestRunner(t, testConfig(2), session, &out)

	_, err := runner.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoImages)
	assert.True(t, session.closed.Load())
}
