package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"pixiedl/pkg/imageurl"
	"pixiedl/pkg/models"
)

// Attributes that carry a single image URL, eager or lazy-loaded
var urlAttributes = []string{"src", "data-src", "data-original", "data-lazy", "data-image"}

// Attributes holding a comma separated list of "url descriptor" candidates
var srcsetAttributes = []string{"srcset", "data-srcset"}

var cssURLRe = regexp.MustCompile(`(?i)url\(\s*['"]?([^)'"]+)['"]?\s*\)`)

type harvest struct {
	dom     models.CandidateSet
	scripts models.CandidateSet
}

// harvestDocument pulls candidate URLs out of rendered HTML: element
// attributes and CSS go to dom, inline script text goes to scripts.
func harvestDocument(rendered string, domains []string) (*harvest, error) {
	root, err := html.Parse(strings.NewReader(rendered))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	h := &harvest{
		dom:     models.NewCandidateSet(),
		scripts: models.NewCandidateSet(),
	}
	keep := func(set models.CandidateSet, candidate string) {
		candidate = strings.TrimSpace(candidate)
		if imageurl.IsAssetURL(candidate, domains) {
			set.Add(candidate)
		}
	}

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range urlAttributes {
			if v, ok := sel.Attr(attr); ok {
				keep(h.dom, v)
			}
		}
		for _, attr := range srcsetAttributes {
			if v, ok := sel.Attr(attr); ok {
				for _, candidate := range parseSrcset(v) {
					keep(h.dom, candidate)
				}
			}
		}
		if style, ok := sel.Attr("style"); ok {
			for _, candidate := range cssURLs(style) {
				keep(h.dom, candidate)
			}
		}
	})

	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		for _, candidate := range cssURLs(sel.Text()) {
			keep(h.dom, candidate)
		}
	})

	scriptRe := scriptURLPattern(domains)
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		text := strings.ReplaceAll(sel.Text(), `\/`, "/")
		for _, match := range scriptRe.FindAllString(text, -1) {
			keep(h.scripts, match)
		}
	})

	return h, nil
}

// parseSrcset returns the URL part of each srcset candidate
func parseSrcset(v string) []string {
	var out []string
	for _, candidate := range strings.Split(v, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

func cssURLs(css string) []string {
	var out []string
	for _, m := range cssURLRe.FindAllStringSubmatch(css, -1) {
		out = append(out, m[1])
	}
	return out
}

// scriptURLPattern matches absolute photo URLs on the platform domains
// embedded anywhere in script text
func scriptURLPattern(domains []string) *regexp.Regexp {
	quoted := make([]string, 0, len(domains))
	for _, d := range domains {
		if d != "" {
			quoted = append(quoted, regexp.QuoteMeta(d))
		}
	}
	return regexp.MustCompile(`(?i)https?://[^"'\s/]*(?:` + strings.Join(quoted, "|") +
		`)/[^"'\s]+\.(?:jpg|jpeg|png|webp|gif)`)
}
