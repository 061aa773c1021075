package verdict

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Category groups gates by what they protect
type Category string

const (
	CategoryIdentification Category = "identification"
	CategoryPrecision      Category = "precision"
	CategoryRobustness     Category = "robustness"
	CategoryDecision       Category = "decision"
)

// Status is the outcome of a single gate
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusWarning Status = "WARNING"
	StatusNA      Status = "NA"
)

// Decision is the deployment recommendation
type Decision string

const (
	DecisionGo     Decision = "GO"
	DecisionCanary Decision = "CANARY"
	DecisionHold   Decision = "HOLD"
)

// DataQuality reports whether the dataset itself is usable
type DataQuality string

const (
	DataQualityOK      DataQuality = "ok"
	DataQualityBlocked DataQuality = "blocked"
)

// Operator is a threshold comparison
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
)

// Threshold is a parsed threshold expression such as ">=1000"
type Threshold struct {
	Op    Operator `json:"op"`
	Value float64  `json:"value"`
}

// ParseThreshold accepts >x, <x, >=x, ≥x, <=x, ≤x, =x, ==x or a bare number (exact)
func ParseThreshold(expr string) (Threshold, error) {
	s := strings.TrimSpace(expr)
	s = strings.ReplaceAll(s, "≥", ">=")
	s = strings.ReplaceAll(s, "≤", "<=")

	ops := []Operator{OpGreaterEqual, OpLessEqual, "==", OpGreater, OpLess, OpEqual}
	op := OpEqual
	for _, candidate := range ops {
		if strings.HasPrefix(s, string(candidate)) {
			op = candidate
			s = strings.TrimSpace(strings.TrimPrefix(s, string(candidate)))
			break
		}
	}
	if op == "==" {
		op = OpEqual
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return Threshold{}, fmt.Errorf("invalid threshold expression %q", expr)
	}
	return Threshold{Op: op, Value: v}, nil
}

// MustThreshold parses a threshold known at compile time
func MustThreshold(expr string) Threshold {
	t, err := ParseThreshold(expr)
	if err != nil {
		panic(err)
	}
	return t
}

// Satisfied compares v against the threshold. NaN never satisfies.
func (t Threshold) Satisfied(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	switch t.Op {
	case OpGreater:
		return v > t.Value
	case OpLess:
		return v < t.Value
	case OpGreaterEqual:
		return v >= t.Value
	case OpLessEqual:
		return v <= t.Value
	default:
		return math.Abs(v-t.Value) < 1e-12
	}
}

// LowerBound reports whether higher values are better
func (t Threshold) LowerBound() bool {
	return t.Op == OpGreater || t.Op == OpGreaterEqual
}

func (t Threshold) String() string {
	return string(t.Op) + strconv.FormatFloat(t.Value, 'g', -1, 64)
}

// MarshalText renders the expression form
func (t Threshold) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses the expression form
func (t *Threshold) UnmarshalText(b []byte) error {
	parsed, err := ParseThreshold(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Gate is a stateless value object re-created per evaluation
type Gate struct {
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Threshold Threshold `json:"threshold"`
	Baseline  float64   `json:"baseline"`
	Scenario  float64   `json:"scenario"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
}

// QualityGatesResult aggregates gate outcomes and the resulting decision
type QualityGatesResult struct {
	Gates         []Gate      `json:"gates"`
	PassCount     int         `json:"pass_count"`
	FailCount     int         `json:"fail_count"`
	WarningCount  int         `json:"warning_count"`
	NACount       int         `json:"na_count"`
	PassRate      float64     `json:"pass_rate"`
	Decision      Decision    `json:"decision"`
	Rationale     []string    `json:"rationale"`
	DataQuality   DataQuality `json:"data_quality"`
	BlockingGates []string    `json:"blocking_gates,omitempty"`
}

// Gate returns the named gate
func (r *QualityGatesResult) Gate(name string) (Gate, bool) {
	for _, g := range r.Gates {
		if g.Name == name {
			return g, true
		}
	}
	return Gate{}, false
}

// Tally recomputes counts and pass rate over non-NA, non-decision gates
func (r *QualityGatesResult) Tally() {
	r.PassCount, r.FailCount, r.WarningCount, r.NACount = 0, 0, 0, 0
	for _, g := range r.Gates {
		if g.Category == CategoryDecision {
			continue
		}
		switch g.Status {
		case StatusPass:
			r.PassCount++
		case StatusFail:
			r.FailCount++
		case StatusWarning:
			r.WarningCount++
		default:
			r.NACount++
		}
	}
	denom := r.PassCount + r.FailCount + r.WarningCount
	if denom == 0 {
		r.PassRate = 0
		return
	}
	r.PassRate = float64(r.PassCount) / float64(denom)
}

// Grade is the CAS traffic light
type Grade string

const (
	GradeGreen  Grade = "green"
	GradeYellow Grade = "yellow"
	GradeRed    Grade = "red"
)

// Axes are the five CAS dimensions, each in [0,1]
type Axes struct {
	Internal   float64 `json:"internal"`
	External   float64 `json:"external"`
	Transport  float64 `json:"transport"`
	Robustness float64 `json:"robustness"`
	Stability  float64 `json:"stability"`
}

// CASResult is the composite assurance score
type CASResult struct {
	Axes    Axes    `json:"axes"`
	Overall float64 `json:"overall"`
	Grade   Grade   `json:"grade"`
}
