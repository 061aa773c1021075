package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"counterfact/domain/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"spec", fmt.Errorf("parse: %w", core.ErrSpecValidation), CodeSpecValidation},
		{"contract", core.NewDataContractError("cost", "missing"), CodeDataContract},
		{"estimation", core.ErrEstimation, CodeEstimation},
		{"not found", core.NewNotFoundError("evaluation", "x"), CodeNotFound},
		{"app error", ConfigInvalid("bad"), CodeConfigInvalid},
		{"other", stderrors.New("boom"), CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.code {
				t.Errorf("Classify() = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := core.NewDataContractError("instrument", "not mapped")
	err := Wrap(cause, "load dataset")

	if GetCode(err) != CodeDataContract {
		t.Errorf("expected %s, got %s", CodeDataContract, GetCode(err))
	}
	if !stderrors.Is(err, core.ErrDataContract) {
		t.Error("wrapped error should still match ErrDataContract")
	}
	if Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) must be nil")
	}
	if GetCode(WithCode(CodeInvalidInput, cause)) != CodeInvalidInput {
		t.Error("WithCode should override the code")
	}
}

func TestHTTPStatus(t *testing.T) {
	if HTTPStatus(CodeSpecValidation) != http.StatusBadRequest {
		t.Error("spec validation should map to 400")
	}
	if HTTPStatus(CodeDataContract) != http.StatusUnprocessableEntity {
		t.Error("data contract should map to 422")
	}
	if HTTPStatus(CodeNotFound) != http.StatusNotFound {
		t.Error("not found should map to 404")
	}
	if HTTPStatus("UNKNOWN") != http.StatusInternalServerError {
		t.Error("unknown codes should map to 500")
	}
}
