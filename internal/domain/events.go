package domain

type EventType string

const (
	EventStageStarted    EventType = "stage_started"
	EventStageCompleted  EventType = "stage_completed"
	EventModuleStarted   EventType = "module_started"
	EventModuleCompleted EventType = "module_completed"
	EventSearchCompleted EventType = "search_completed"
)

// PipelineEvent is one progress message on a request's event channel.
// Delivery is best-effort non-blocking; ordering per request is preserved
// by the hub.
type PipelineEvent struct {
	Type             EventType `json:"type"`
	RequestID        string    `json:"request_id"`
	StageNumber      int       `json:"stage_number,omitempty"`
	StageName        string    `json:"stage_name,omitempty"`
	ModuleName       string    `json:"module_name,omitempty"`
	Status           string    `json:"status,omitempty"`
	ProcessingTimeMS int64     `json:"processing_time_ms,omitempty"`
	ResultsCount     int       `json:"results_count,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	TotalTimeMS      int64     `json:"total_time_ms,omitempty"`
	Summary          string    `json:"final_result_summary,omitempty"`
}
