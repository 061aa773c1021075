package evaluation

import "math"

// Diagnostic names reported alongside estimates
const (
	DiagnosticESS = "effective_sample_size"
	DiagnosticR2  = "cv_r2"
)

// DegenerateStdErr is the inflated standard error attached to degenerate
// estimates (zero weight sum, empty arm, empty dataset).
const DegenerateStdErr = 1e9

// Result is one estimator's value for one assignment vector. It is created
// fresh per call and never mutated after being returned.
type Result struct {
	Estimator      string  `json:"estimator"`
	Value          float64 `json:"value"`
	StdErr         float64 `json:"std_err"`
	CILower        float64 `json:"ci_lower"`
	CIUpper        float64 `json:"ci_upper"`
	N              int     `json:"n"`
	DiagnosticName string  `json:"diagnostic_name"`
	Diagnostic     float64 `json:"diagnostic"`
	Degenerate     bool    `json:"degenerate,omitempty"`
}

// HalfWidth returns half the confidence-interval width
func (r Result) HalfWidth() float64 {
	return (r.CIUpper - r.CILower) / 2
}

// Overlaps reports whether two confidence intervals intersect
func (r Result) Overlaps(other Result) bool {
	return r.CILower <= other.CIUpper && other.CILower <= r.CIUpper
}

// Degenerated builds the sentinel result for a degenerate estimate
func Degenerated(estimator string, n int, diagnosticName string) Result {
	return Result{
		Estimator:      estimator,
		Value:          0,
		StdErr:         DegenerateStdErr,
		CILower:        -DegenerateStdErr,
		CIUpper:        DegenerateStdErr,
		N:              n,
		DiagnosticName: diagnosticName,
		Degenerate:     true,
	}
}

// Agreement classifies how well two independent estimators agree
type Agreement string

const (
	AgreementHigh     Agreement = "high"
	AgreementModerate Agreement = "moderate"
	AgreementLow      Agreement = "low"
)

// Comparison is the OPE vs g-computation cross-check
type Comparison struct {
	OPEValue     float64   `json:"ope_value"`
	GCompValue   float64   `json:"gcomp_value"`
	CIOverlap    bool      `json:"ci_overlap"`
	RelativeDiff float64   `json:"relative_diff"`
	Agreement    Agreement `json:"agreement"`
}

// RelativeDiff is |a-b| / max(|a|,|b|), zero when both are zero
func RelativeDiff(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom < 1e-10 {
		return 0
	}
	return math.Abs(a-b) / denom
}
