package ports

import (
	"time"

	"counterfact/domain/verdict"
)

// MetricsRecorder receives pipeline events. Implementations must be safe for
// concurrent use.
type MetricsRecorder interface {
	ObserveEvaluation(decision verdict.Decision, grade verdict.Grade, elapsed time.Duration)
	SpecRejected()
	DegenerateEstimate(estimator string)
	GateStatus(gate string, status verdict.Status)
}
