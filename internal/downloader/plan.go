package downloader

import (
	"pixiedl/pkg/imageurl"
	"pixiedl/pkg/models"
)

// Plan turns discovered URLs into download tasks. Candidates that only
// differ in size token maximize to the same URL and become one task; the
// first in sorted order supplies the fallback. Ordinals follow sorted order
// so a dry run lists photos in the order a real run numbers them.
func Plan(candidates models.CandidateSet) []models.DownloadTask {
	seen := make(map[string]bool, candidates.Len())
	tasks := make([]models.DownloadTask, 0, candidates.Len())

	for _, source := range candidates.Sorted() {
		maximized, original := imageurl.MaximizeResolution(source)
		if seen[maximized] {
			continue
		}
		seen[maximized] = true

		tasks = append(tasks, models.DownloadTask{
			Source:    models.ImageURL(source),
			Maximized: maximized,
			Original:  original,
			Outcome:   models.OutcomePending,
		})
	}

	for i := range tasks {
		tasks[i].Ordinal = i + 1
		tasks[i].Total = len(tasks)
	}
	return tasks
}
