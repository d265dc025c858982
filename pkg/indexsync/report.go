package indexsync

import (
	"iter"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

// BatchReport is one yielded batch as shown to API and CLI callers.
type BatchReport struct {
	Key      string                     `json:"key"`
	Status   models.IndexerResultStatus `json:"status"`
	Records  int                        `json:"records"`
	Messages []string                   `json:"messages,omitempty"`
}

// Report collects every batch of one orchestration.
type Report struct {
	Batches []BatchReport                      `json:"batches"`
	Totals  map[models.IndexerResultStatus]int `json:"totals"`
}

// Collect drains seq into a Report.
func Collect(seq iter.Seq2[string, *models.IndexerResult]) Report {
	report := Report{Batches: []BatchReport{}, Totals: map[models.IndexerResultStatus]int{}}
	for key, result := range seq {
		report.Totals[result.Status]++
		report.Batches = append(report.Batches, BatchReport{
			Key:      key,
			Status:   result.Status,
			Records:  len(result.Entities) + len(result.Attributes),
			Messages: result.Messages,
		})
	}
	return report
}
