package run

import (
	"crypto/sha256"
	"fmt"

	"counterfact/domain/core"
)

// Settings are the estimator settings that change an evaluation's numbers
type Settings struct {
	Estimator string  `json:"estimator"`
	Model     string  `json:"model"`
	Alpha     float64 `json:"alpha"`
	Bootstrap int     `json:"bootstrap"`
	CVFolds   int     `json:"cv_folds"`
	Seed      int64   `json:"seed"`
}

// Fingerprint ensures deterministic replay: equal fingerprints mean the same
// spec, data and settings.
type Fingerprint struct {
	SpecHash    core.Hash `json:"spec_hash"`
	DatasetHash core.Hash `json:"dataset_hash"`
	Settings    Settings  `json:"settings"`
	CodeVersion string    `json:"code_version"`
	Fingerprint core.Hash `json:"fingerprint"`
}

// NewFingerprint creates a fingerprint from the determinism parameters
func NewFingerprint(specHash, datasetHash core.Hash, settings Settings, codeVersion string) Fingerprint {
	return Fingerprint{
		SpecHash:    specHash,
		DatasetHash: datasetHash,
		Settings:    settings,
		CodeVersion: codeVersion,
		Fingerprint: computeFingerprint(specHash, datasetHash, settings, codeVersion),
	}
}

func computeFingerprint(specHash, datasetHash core.Hash, s Settings, codeVersion string) core.Hash {
	data := fmt.Sprintf("spec:%s|dataset:%s|estimator:%s|model:%s|alpha:%g|bootstrap:%d|folds:%d|seed:%d|code:%s",
		specHash, datasetHash, s.Estimator, s.Model, s.Alpha, s.Bootstrap, s.CVFolds, s.Seed, codeVersion)
	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}
