package report

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ehr/labreport/internal/domain/patient"
)

// MissingFieldsError lists the required fields left empty, grouped by record.
// Names are the record's json field names.
type MissingFieldsError struct {
	Patient []string
	Doctor  []string
}

func (e *MissingFieldsError) Error() string {
	var parts []string
	if len(e.Patient) > 0 {
		parts = append(parts, "patient: "+strings.Join(e.Patient, ", "))
	}
	if len(e.Doctor) > 0 {
		parts = append(parts, "doctor: "+strings.Join(e.Doctor, ", "))
	}
	return "missing required fields (" + strings.Join(parts, "; ") + ")"
}

// RequiredPolicy checks the completeness rules that apply before a PDF is
// generated.
type RequiredPolicy struct {
	validate *validator.Validate
}

// NewRequiredPolicy builds a policy that reports fields by their json name.
func NewRequiredPolicy() *RequiredPolicy {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &RequiredPolicy{validate: v}
}

// Check returns a *MissingFieldsError when any required patient field is empty,
// or when a doctor is attached and any of its fields is empty. A nil or
// entirely blank doctor counts as not attached, matching the assembler.
func (p *RequiredPolicy) Check(rec patient.Record, doctor *patient.Doctor) error {
	missing := &MissingFieldsError{}

	names, err := p.missing(rec)
	if err != nil {
		return err
	}
	missing.Patient = names

	if !doctor.IsEmpty() {
		names, err := p.missing(*doctor)
		if err != nil {
			return err
		}
		missing.Doctor = names
	}

	if len(missing.Patient) == 0 && len(missing.Doctor) == 0 {
		return nil
	}
	return missing
}

func (p *RequiredPolicy) missing(s interface{}) ([]string, error) {
	err := p.validate.Struct(s)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, fmt.Errorf("required-field check: %w", err)
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field())
	}
	return names, nil
}
