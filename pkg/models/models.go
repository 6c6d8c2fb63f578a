package models

import (
	"fmt"
	"sort"
	"time"
)

// ImageURL identifies a remote gallery asset. Size token, base path and
// extension are derived from it by the imageurl package.
type ImageURL string

// CandidateSet is the set of asset URLs discovered on a gallery page.
// Uniqueness is by exact string.
type CandidateSet map[ImageURL]struct{}

// NewCandidateSet creates a set holding the given URLs
func NewCandidateSet(urls ...string) CandidateSet {
	set := make(CandidateSet, len(urls))
	for _, u := range urls {
		set.Add(u)
	}
	return set
}

// Add inserts a URL into the set
func (s CandidateSet) Add(u string) {
	if u == "" {
		return
	}
	s[ImageURL(u)] = struct{}{}
}

// Contains reports whether the exact URL is in the set
func (s CandidateSet) Contains(u string) bool {
	_, ok := s[ImageURL(u)]
	return ok
}

// Union adds every member of other to s
func (s CandidateSet) Union(other CandidateSet) {
	for u := range other {
		s[u] = struct{}{}
	}
}

// Len returns the number of members
func (s CandidateSet) Len() int {
	return len(s)
}

// Sorted returns the members in lexical order so ordinals are stable
// between a dry run and a real run.
func (s CandidateSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, string(u))
	}
	sort.Strings(out)
	return out
}

// Outcome is the state of a download task
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Variant says which URL form produced the downloaded file
type Variant string

const (
	VariantMaximized Variant = "maximized"
	VariantOriginal  Variant = "original"
)

// DownloadTask pairs a discovered URL with its maximized and original forms
type DownloadTask struct {
	Source    ImageURL
	Maximized string
	Original  string
	Ordinal   int
	Total     int
	Outcome   Outcome
}

// HasFallback reports whether the original form differs from the maximized one
func (t DownloadTask) HasFallback() bool {
	return t.Maximized != t.Original
}

// DownloadResult represents the result of a download task
type DownloadResult struct {
	Task       DownloadTask
	Success    bool
	FetchedURL string
	Variant    Variant
	Path       string
	Size       int
	Attempts   int
	Duration   time.Duration
	Error      error
}

// Summary aggregates task outcomes for a run
type Summary struct {
	Succeeded int
	Failed    int
	Total     int
}

// Record adds one outcome to the summary
func (s *Summary) Record(success bool) {
	s.Total++
	if success {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("%d downloaded, %d failed out of %d total.", s.Succeeded, s.Failed, s.Total)
}
