package manifest

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	errs "pixiedl/pkg/errors"
	"pixiedl/pkg/models"
)

// FileName is the manifest written into the output directory
const FileName = "manifest.json"

// Manifest records what one run downloaded
type Manifest struct {
	Gallery    string    `json:"gallery"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`

	Entries []Entry `json:"entries"`
}

// Entry describes the outcome of a single photo
type Entry struct {
	Ordinal    int            `json:"ordinal"`
	Source     string         `json:"source"`
	Maximized  string         `json:"maximized"`
	FetchedURL string         `json:"fetched_url,omitempty"`
	Variant    models.Variant `json:"variant,omitempty"`
	File       string         `json:"file,omitempty"`
	Bytes      int            `json:"bytes,omitempty"`
	Attempts   int            `json:"attempts"`
	DurationMS int64          `json:"duration_ms"`
	Outcome    models.Outcome `json:"outcome"`
	Error      string         `json:"error,omitempty"`
}

// New starts a manifest for a run
func New(galleryURL, runID string, startedAt time.Time) *Manifest {
	return &Manifest{
		Gallery:   galleryURL,
		RunID:     runID,
		StartedAt: startedAt.UTC(),
	}
}

// Record fills the manifest from the engine's results
func (m *Manifest) Record(summary models.Summary, results []models.DownloadResult, finishedAt time.Time) {
	m.FinishedAt = finishedAt.UTC()
	m.Succeeded = summary.Succeeded
	m.Failed = summary.Failed
	m.Total = summary.Total

	m.Entries = make([]Entry, 0, len(results))
	for _, r := range results {
		entry := Entry{
			Ordinal:    r.Task.Ordinal,
			Source:     string(r.Task.Source),
			Maximized:  r.Task.Maximized,
			FetchedURL: r.FetchedURL,
			Variant:    r.Variant,
			Bytes:      r.Size,
			Attempts:   r.Attempts,
			DurationMS: r.Duration.Milliseconds(),
			Outcome:    r.Task.Outcome,
		}
		if r.Path != "" {
			entry.File = filepath.Base(r.Path)
		}
		if r.Error != nil {
			entry.Error = r.Error.Error()
		}
		m.Entries = append(m.Entries, entry)
	}
}

// FailedEntries returns the entries that did not produce a file
func (m *Manifest) FailedEntries() []Entry {
	var failed []Entry
	for _, e := range m.Entries {
		if e.Outcome != models.OutcomeSucceeded {
			failed = append(failed, e)
		}
	}
	return failed
}

// Save writes the manifest into dir and returns its path
func (m *Manifest) Save(fs afero.Fs, dir string) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0644); err != nil {
		return "", errs.New(errs.ErrorTypeFilesystem, "failed to write manifest", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return "", errs.New(errs.ErrorTypeFilesystem, "failed to write manifest", err)
	}

	return path, nil
}

// Load reads the manifest stored in dir
func Load(fs afero.Fs, dir string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}
