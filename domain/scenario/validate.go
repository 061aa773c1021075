package scenario

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"counterfact/domain/core"

	"github.com/go-playground/validator/v10"
)

var idPattern = regexp.MustCompile(`^S\d+_[A-Za-z0-9][A-Za-z0-9_\-]*$`)

// specValidate is the validator instance for scenario documents.
// Field names are reported by their yaml tags so errors match the document.
var specValidate *validator.Validate

func init() {
	specValidate = validator.New()
	specValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = specValidate.RegisterValidation("scenario_id", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	_ = specValidate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		v := fl.Field().Float()
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	})
}

// ValidationError names the offending field of a scenario document
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid scenario spec: %s", e.Reason)
	}
	return fmt.Sprintf("invalid scenario spec: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == core.ErrSpecValidation
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the document against the schema and the type-specific
// intervention rules. It returns the first violation found.
func (s *Spec) Validate() error {
	if err := specValidate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fromFieldError(fieldErrs[0])
		}
		return invalid("", "%v", err)
	}

	in := s.Intervention
	switch in.Type {
	case InterventionPolicy:
		if in.Coverage == nil {
			return invalid("intervention.coverage", "required for policy interventions")
		}
	case InterventionDo:
		if in.Value == nil {
			return invalid("intervention.value", "required for do interventions")
		}
		if *in.Value != 0 && *in.Value != 1 {
			return invalid("intervention.value", "do interventions set treatment to 0 or 1, got %g", *in.Value)
		}
	case InterventionIntensity:
		if in.Value == nil && in.Coverage == nil {
			return invalid("intervention.value", "intensity interventions need a value or a coverage")
		}
		if in.Value != nil && *in.Value < 0 {
			return invalid("intervention.value", "must be >= 0, got %g", *in.Value)
		}
	case InterventionSpend:
		if in.Value == nil {
			return invalid("intervention.value", "required for spend interventions")
		}
		if *in.Value < 0 {
			return invalid("intervention.value", "must be >= 0, got %g", *in.Value)
		}
		if s.Budget() == nil {
			return invalid("constraints.budget.unit_cost_column", "spend interventions need a budget unit cost column")
		}
	}
	return nil
}

func fromFieldError(fe validator.FieldError) error {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return invalid(field, "is required")
	case "scenario_id":
		return invalid(field, "must match S<integer>_<slug>, got %q", fe.Value())
	case "finite":
		return invalid(field, "must be a finite number")
	case "oneof":
		return invalid(field, "must be one of [%s], got %v", fe.Param(), fe.Value())
	case "datetime":
		return invalid(field, "must be a date formatted %s, got %v", fe.Param(), fe.Value())
	case "gt", "gte", "lt", "lte":
		return invalid(field, "must satisfy %s=%s, got %v", fe.Tag(), fe.Param(), derefValue(fe.Value()))
	default:
		return invalid(field, "failed %s validation", fe.Tag())
	}
}

func derefValue(v interface{}) interface{} {
	if p, ok := v.(*float64); ok && p != nil {
		return *p
	}
	return v
}
