package gcomp

import (
	"counterfact/domain/evaluation"
)

// Agreement thresholds on the relative difference of point estimates
const (
	HighAgreementDiff     = 0.10
	ModerateAgreementDiff = 0.20
)

// Compare cross-checks an OPE estimate against a g-computation estimate
func Compare(ope, gcomp evaluation.Result) evaluation.Comparison {
	rel := evaluation.RelativeDiff(ope.Value, gcomp.Value)
	overlap := ope.Overlaps(gcomp)
	if ope.Degenerate || gcomp.Degenerate {
		return evaluation.Comparison{
			OPEValue:     ope.Value,
			GCompValue:   gcomp.Value,
			RelativeDiff: rel,
			Agreement:    evaluation.AgreementLow,
		}
	}

	agreement := evaluation.AgreementLow
	switch {
	case rel < HighAgreementDiff && overlap:
		agreement = evaluation.AgreementHigh
	case rel < ModerateAgreementDiff:
		agreement = evaluation.AgreementModerate
	}

	return evaluation.Comparison{
		OPEValue:     ope.Value,
		GCompValue:   gcomp.Value,
		CIOverlap:    overlap,
		RelativeDiff: rel,
		Agreement:    agreement,
	}
}
