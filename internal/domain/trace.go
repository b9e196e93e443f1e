package domain

import (
	"time"
)

type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageRunning StageStatus = "running"
	StageSuccess StageStatus = "success"
	StageError   StageStatus = "error"
	StageSkipped StageStatus = "skipped"
)

// Terminal reports whether the status is final. pending->running->terminal
// is the only legal progression; skipped applies only to strategies the
// router eliminated before execution.
func (s StageStatus) Terminal() bool {
	return s == StageSuccess || s == StageError || s == StageSkipped
}

// StageTrace records one pipeline stage of a request.
type StageTrace struct {
	Status           StageStatus    `json:"status"`
	InputData        map[string]any `json:"input_data,omitempty"`
	OutputData       map[string]any `json:"output_data,omitempty"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	DebugInfo        map[string]any `json:"debug_info,omitempty"`
}

// ModuleTrace records one retrieval strategy execution within stage 4.
// Each strategy writes only to its own slot, so no cross-strategy locking
// is needed.
type ModuleTrace struct {
	Strategy         string         `json:"strategy"`
	Status           StageStatus    `json:"status"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	ArticleCount     int            `json:"article_count"`
	CaseCount        int            `json:"case_count"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	DebugInfo        map[string]any `json:"debug_info,omitempty"`
}

// QueryTrace is the per-request record of stage and module outcomes. It is
// created by the orchestrator, owned by it for the life of the request, and
// released after response delivery.
type QueryTrace struct {
	RequestID      string                  `json:"request_id"`
	OriginalQuery  string                  `json:"original_query"`
	StartTS        time.Time               `json:"start_ts"`
	Classification StageTrace              `json:"classification"`
	Extraction     StageTrace              `json:"extraction"`
	Routing        StageTrace              `json:"routing"`
	Searches       map[string]*ModuleTrace `json:"searches"`
	Fusion         StageTrace              `json:"fusion"`
	SelectedPaths  []string                `json:"selected_paths"`
	Partial        bool                    `json:"partial,omitempty"`
}

func NewQueryTrace(requestID, query string) *QueryTrace {
	return &QueryTrace{
		RequestID:      requestID,
		OriginalQuery:  query,
		StartTS:        time.Now().UTC(),
		Classification: StageTrace{Status: StagePending},
		Extraction:     StageTrace{Status: StagePending},
		Routing:        StageTrace{Status: StagePending},
		Searches:       map[string]*ModuleTrace{},
		Fusion:         StageTrace{Status: StagePending},
	}
}
