package run

import (
	"testing"

	"counterfact/domain/core"
	"counterfact/domain/evaluation"
)

func testSettings() Settings {
	return Settings{Estimator: "dr", Model: "linear", Alpha: 0.05, Bootstrap: 100, CVFolds: 5, Seed: 42}
}

func TestFingerprint_Deterministic(t *testing.T) {
	fp1 := NewFingerprint(core.Hash("spec"), core.Hash("data"), testSettings(), "1.0.0")
	fp2 := NewFingerprint(core.Hash("spec"), core.Hash("data"), testSettings(), "1.0.0")

	if fp1.Fingerprint != fp2.Fingerprint {
		t.Errorf("Fingerprints not identical: %s vs %s", fp1.Fingerprint, fp2.Fingerprint)
	}
	if fp1.SpecHash != "spec" || fp1.DatasetHash != "data" {
		t.Errorf("Hashes not carried: %+v", fp1)
	}
}

func TestFingerprint_Unique(t *testing.T) {
	base := NewFingerprint(core.Hash("spec"), core.Hash("data"), testSettings(), "1.0.0")

	testCases := []struct {
		name   string
		mutate func(s *Settings) (core.Hash, core.Hash, string)
	}{
		{"spec", func(s *Settings) (core.Hash, core.Hash, string) { return "other", "data", "1.0.0" }},
		{"dataset", func(s *Settings) (core.Hash, core.Hash, string) { return "spec", "other", "1.0.0" }},
		{"code", func(s *Settings) (core.Hash, core.Hash, string) { return "spec", "data", "2.0.0" }},
		{"seed", func(s *Settings) (core.Hash, core.Hash, string) { s.Seed = 7; return "spec", "data", "1.0.0" }},
		{"estimator", func(s *Settings) (core.Hash, core.Hash, string) { s.Estimator = "ips"; return "spec", "data", "1.0.0" }},
		{"bootstrap", func(s *Settings) (core.Hash, core.Hash, string) { s.Bootstrap = 500; return "spec", "data", "1.0.0" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := testSettings()
			spec, data, code := tc.mutate(&s)
			fp := NewFingerprint(spec, data, s, code)
			if fp.Fingerprint == base.Fingerprint {
				t.Errorf("Changing %s did not change the fingerprint", tc.name)
			}
		})
	}
}

func TestManifest_Validate(t *testing.T) {
	fp := NewFingerprint(core.Hash("spec"), core.Hash("data"), testSettings(), "1.0.0")
	m := NewManifest(core.ScenarioID("S1_test"), 10, fp)
	if err := m.Validate(); err != nil {
		t.Fatalf("Valid manifest rejected: %v", err)
	}
	if _, err := core.ParseEvaluationID(m.EvaluationID.String()); err != nil {
		t.Errorf("Evaluation ID is not a UUID: %v", err)
	}

	m.ScenarioID = ""
	if err := m.Validate(); err == nil {
		t.Error("Expected error for empty scenario id")
	}
}

func TestReport_Primary(t *testing.T) {
	r := Report{
		PrimaryMethod: "dr",
		OPE: map[string]EstimatePair{
			"dr":  {Baseline: evaluation.Result{Value: 3}, Scenario: evaluation.Result{Value: 5}},
			"ips": {Baseline: evaluation.Result{Value: 1}, Scenario: evaluation.Result{Value: 9}},
		},
	}
	if got := r.Primary().Delta(); got != 2 {
		t.Errorf("Primary delta = %v, want 2", got)
	}
}
