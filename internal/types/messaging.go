package types

import "time"

// BatchCompletedEvent is the SQS audit payload published after an override
// batch has been written. It replaces per-request access logging with a
// durable record of what each batch changed.
type BatchCompletedEvent struct {
	BatchID   string   `json:"batch_id"`
	RequestID string   `json:"request_id,omitempty"`
	Category  Category `json:"category"`

	Requested      int `json:"requested"`
	ProcessedCount int `json:"processed_count"`
	SkippedCount   int `json:"skipped_count"`
	FailedCount    int `json:"failed_count"`

	ProcessedIDs []string `json:"processed_ids"`
	SkippedIDs   []string `json:"skipped_ids"`
	FailedIDs    []string `json:"failed_ids"`

	// Methods counts final snap methods, e.g. {"snapped": 3, "heading_rejected": 1}.
	Methods map[SnapMethod]int `json:"methods,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}
