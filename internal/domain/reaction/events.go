package reaction

import "time"

// BatchEventType names a batch lifecycle transition.
type BatchEventType string

const (
	BatchRequested BatchEventType = "rxn.batch.requested"
	BatchCompleted BatchEventType = "rxn.batch.completed"
	BatchAborted   BatchEventType = "rxn.batch.aborted"
)

// BatchEvent is published when a batch finishes or aborts.
type BatchEvent struct {
	Type       BatchEventType `json:"type"`
	BatchID    string         `json:"batch_id"`
	Workspace  string         `json:"workspace"`
	Model      string         `json:"model"`
	TopN       int            `json:"topn,omitempty"`
	Total      int            `json:"total"`
	Invalid    int            `json:"invalid"`
	Cached     int            `json:"cached"`
	Fresh      int            `json:"fresh"`
	JobID      string         `json:"job_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// BatchRequest is a queued prediction batch consumed by the worker.
type BatchRequest struct {
	BatchID   string         `json:"batch_id"`
	Workspace string         `json:"workspace"`
	Inputs    []string       `json:"inputs"`
	Params    ReactionParams `json:"params"`
	UseCache  bool           `json:"use_cache"`
	SaveAs    string         `json:"save_as,omitempty"`
}

// CompletedEvent builds the success event for result.
func CompletedEvent(workspace string, result *BatchResult, at time.Time) BatchEvent {
	return BatchEvent{
		Type:       BatchCompleted,
		BatchID:    result.BatchID,
		Workspace:  workspace,
		Model:      result.Params.Model,
		TopN:       result.Params.TopN,
		Total:      len(result.Records),
		Invalid:    result.Invalid,
		Cached:     result.Cached,
		Fresh:      result.Fresh,
		JobID:      result.JobID,
		OccurredAt: at,
	}
}

// AbortedEvent builds the failure event of an aborted batch.
func AbortedEvent(workspace, batchID string, params ReactionParams, total int, err error, at time.Time) BatchEvent {
	ev := BatchEvent{
		Type:       BatchAborted,
		BatchID:    batchID,
		Workspace:  workspace,
		Model:      params.Model,
		TopN:       params.TopN,
		Total:      total,
		OccurredAt: at,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
