package api

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"counterfact/app"
	"counterfact/domain/core"
	"counterfact/domain/dataset"
	"counterfact/domain/scenario"
	"counterfact/domain/verdict"
	apperrors "counterfact/internal/errors"
	"counterfact/internal/gcomp"
	"counterfact/internal/ope"
	"counterfact/ports"

	"github.com/go-chi/chi/v5"
)

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

type validateResp struct {
	Valid      bool           `json:"valid"`
	ScenarioID string         `json:"scenario_id,omitempty"`
	Spec       *scenario.Spec `json:"spec,omitempty"`
}

// EvaluationRequest is the POST /v1/evaluations body. Spec is either a JSON
// object or a string holding a YAML or JSON document.
type EvaluationRequest struct {
	Spec      json.RawMessage      `json:"spec"`
	Dataset   string               `json:"dataset"`
	Mapping   *dataset.RoleMapping `json:"mapping,omitempty"`
	Estimator string               `json:"estimator,omitempty"`
	Model     string               `json:"model,omitempty"`
}

type listResp struct {
	Evaluations []ports.EvaluationSummary `json:"evaluations"`
	Count       int                       `json:"count"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperrors.Classify(err)
	status := apperrors.HTTPStatus(code)
	resp := errResp{Error: err.Error(), Code: code}
	var verr *scenario.ValidationError
	if stderrors.As(err, &verr) {
		resp.Field = verr.Field
	}
	var derr *core.DataContractError
	if stderrors.As(err, &derr) {
		resp.Field = derr.Column
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed: %v", err)
	}
	writeJSON(w, status, resp)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperrors.InvalidInput("unreadable request body")
	}
	if len(body) > maxBodyBytes {
		return nil, apperrors.InvalidInput("request body too large")
	}
	return body, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db error"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) validateScenario(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	spec, err := s.svc.ParseSpec(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResp{Valid: true, ScenarioID: spec.ID, Spec: spec})
}

func (s *Server) createEvaluation(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req EvaluationRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, apperrors.InvalidInput("malformed request: "+err.Error()))
		return
	}
	if len(bytes.TrimSpace(req.Spec)) == 0 || req.Dataset == "" {
		s.writeError(w, apperrors.InvalidInput("spec and dataset are required"))
		return
	}
	if s.loader == nil {
		s.writeError(w, apperrors.InternalError("no dataset loader configured"))
		return
	}

	doc := []byte(req.Spec)
	var text string
	if json.Unmarshal(req.Spec, &text) == nil {
		doc = []byte(text)
	}
	spec, err := s.svc.ParseSpec(doc)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var estimator ope.Method
	if req.Estimator != "" {
		if estimator, err = ope.ParseMethod(req.Estimator); err != nil {
			s.writeError(w, apperrors.WithCode(apperrors.CodeInvalidInput, err))
			return
		}
	}
	var model gcomp.Family
	if req.Model != "" {
		if model, err = gcomp.ParseFamily(req.Model); err != nil {
			s.writeError(w, apperrors.WithCode(apperrors.CodeInvalidInput, err))
			return
		}
	}

	mapping := dataset.DefaultRoleMapping()
	if req.Mapping != nil {
		mapping = *req.Mapping
	}
	ds, err := s.loader.Load(r.Context(), req.Dataset, mapping)
	if err != nil {
		s.writeError(w, apperrors.Wrap(err, "dataset rejected"))
		return
	}

	report, err := s.svc.Evaluate(r.Context(), app.EvaluationRequest{
		Spec:      spec,
		Dataset:   ds,
		Estimator: estimator,
		Model:     model,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/evaluations/"+report.ID().String())
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) getEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseEvaluationID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, apperrors.WithCode(apperrors.CodeInvalidInput, err))
		return
	}
	report, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listEvaluations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ports.EvaluationFilter{
		ScenarioID: core.ScenarioID(q.Get("scenario_id")),
		Decision:   verdict.Decision(q.Get("decision")),
		Limit:      50,
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.writeError(w, apperrors.InvalidInput(key+" must be a non-negative integer"))
			return
		}
		*dst = v
	}
	switch filter.Decision {
	case "", verdict.DecisionGo, verdict.DecisionCanary, verdict.DecisionHold:
	default:
		s.writeError(w, apperrors.InvalidInput("decision must be GO, CANARY or HOLD"))
		return
	}

	out, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResp{Evaluations: out, Count: len(out)})
}
