package imageurl

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// MaxSizeToken is the largest size variant served by the platform CDN
const MaxSizeToken = "xxlarge"

// DefaultFilename is used when a URL path has no usable final segment
const DefaultFilename = "image.jpg"

// SizeTokens lists the size variants from smallest to largest
var SizeTokens = []string{"small", "medium", "large", "xlarge", "xxlarge"}

// DefaultDomains are the hosts that serve gallery pages and photo assets
var DefaultDomains = []string{"pixieset.com", "pixi.com"}

// excludedMarkers flag non-photo assets that share the CDN
var excludedMarkers = []string{"/favicon", "/logo", "/icon", "/avatar", "image-protect"}

var (
	sizeSuffixRe = regexp.MustCompile(`(?i)-(small|medium|large|xlarge|xxlarge)\.(jpg|jpeg|png|webp|gif)`)
	extensionRe  = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp|gif)(\?.*)?$`)
	embeddedRe   = regexp.MustCompile(`(?i)-(?:small|medium|large|xlarge|xxlarge)\.`)
	pathExtRe    = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp|gif)$`)
)

// MaximizeResolution rewrites a size-suffixed asset URL to request the
// largest variant. It returns the rewritten URL and the input unchanged.
// URLs without a size token get one inserted before the extension; URLs
// with neither are returned as-is for both values.
func MaximizeResolution(raw string) (maximized, original string) {
	if sizeSuffixRe.MatchString(raw) {
		return sizeSuffixRe.ReplaceAllString(raw, "-"+MaxSizeToken+".$2"), raw
	}

	loc := extensionRe.FindStringSubmatchIndex(raw)
	if loc == nil {
		return raw, raw
	}

	ext := raw[loc[2]:loc[3]]
	query := ""
	if loc[4] >= 0 {
		query = raw[loc[4]:loc[5]]
	}
	return raw[:loc[0]] + "-" + MaxSizeToken + "." + ext + query, raw
}

// SizeToken returns the size variant embedded in the URL, if any
func SizeToken(raw string) (string, bool) {
	m := sizeSuffixRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// ExtractFilename derives a filesystem-safe name from the URL path with the
// size token removed, so every variant of a photo saves under one name.
func ExtractFilename(raw string) string {
	// decode exactly once: u.Path is already decoded, so start from the
	// escaped form
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.EscapedPath()
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}

	name := path.Base(p)
	if name == "." || name == "/" {
		name = ""
	}
	name = embeddedRe.ReplaceAllString(name, ".")
	name = sanitize(name)
	if name == "" {
		return DefaultFilename
	}
	return name
}

// sanitize drops path separators and control characters a decoded segment may carry
func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)
	if name == "." || name == ".." {
		return ""
	}
	return strings.TrimSpace(name)
}

// HasImageExtension reports whether the URL path ends in a photo extension
func HasImageExtension(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return pathExtRe.MatchString(u.Path)
}

// MatchesDomain reports whether the URL host contains one of the domains
func MatchesDomain(raw string, domains []string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		if d != "" && strings.Contains(host, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// IsAssetURL reports whether a URL is a candidate gallery photo: served from
// a platform domain with an image extension.
func IsAssetURL(raw string, domains []string) bool {
	return MatchesDomain(raw, domains) && HasImageExtension(raw)
}

// IsExcluded reports whether the URL points at a known non-photo asset
func IsExcluded(raw string) bool {
	lower := strings.ToLower(raw)
	for _, marker := range excludedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
