package domain

import "errors"

// Sentinel errors for the failure taxonomy. Transport maps these to
// status codes in internal/http; everything else is classified internal.
var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrNotReady                  = errors.New("service not ready")
	ErrDeadlineExceeded          = errors.New("deadline exceeded")
	ErrPartialResultsUnavailable = errors.New("no fusion input ready before deadline")
	ErrArtifactCorruption        = errors.New("artifact corruption")
	ErrBudgetExhausted           = errors.New("llm daily budget exhausted")
	ErrEmbeddingUnavailable      = errors.New("embedding provider unavailable")
	ErrProviderUnavailable       = errors.New("llm provider unavailable")
	ErrProviderNotRetryable      = errors.New("llm provider rejected request")
)

func IsFatalStartup(err error) bool {
	return errors.Is(err, ErrArtifactCorruption) || errors.Is(err, ErrEmbeddingUnavailable)
}
