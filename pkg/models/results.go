package models

// DiscoveryResult aggregates one discovery orchestrator invocation.
type DiscoveryResult struct {
	IsSuccess    bool     `json:"is_success"`
	Messages     []string `json:"messages"`
	ProcessedIDs []int64  `json:"processed_ids"`
}

func NewDiscoveryResult() *DiscoveryResult {
	return &DiscoveryResult{IsSuccess: true, Messages: []string{}, ProcessedIDs: []int64{}}
}

// Fail marks the result unsuccessful and records why.
func (r *DiscoveryResult) Fail(messages ...string) {
	r.IsSuccess = false
	r.Messages = append(r.Messages, messages...)
}

type IndexerResultStatus string

const (
	IndexerResultStatusNoop    IndexerResultStatus = "noop"
	IndexerResultStatusSuccess IndexerResultStatus = "success"
	IndexerResultStatusPartial IndexerResultStatus = "partial"
	IndexerResultStatusError   IndexerResultStatus = "error"
)

// ItemOutcome is the per-item result returned by a pipeline.
type ItemOutcome struct {
	ID        int64    `json:"id"`
	IsSuccess bool     `json:"is_success"`
	Messages  []string `json:"messages,omitempty"`
	Payload   any      `json:"payload,omitempty"`
}

// IndexerResult is the outcome of one pipeline batch.
type IndexerResult struct {
	Status   IndexerResultStatus `json:"status"`
	Action   Action              `json:"action"`
	Messages []string            `json:"messages"`
	// Payload is the raw pipeline output.
	Payload []ItemOutcome `json:"payload,omitempty"`
	// Entities and Attributes are the locked mirror rows of the batch.
	Entities   []IndexingEntity    `json:"-"`
	Attributes []IndexingAttribute `json:"-"`
}

// IsSuccess reports whether every record in the batch was synced.
func (r *IndexerResult) IsSuccess() bool {
	return r != nil && r.Status == IndexerResultStatusSuccess
}

// SyncResult is the outcome of one remote call.
type SyncResult struct {
	IsSuccess bool     `json:"is_success"`
	Code      int      `json:"code,omitempty"`
	Messages  []string `json:"messages"`
}
