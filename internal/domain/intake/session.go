// Package intake holds the per-patient OPD session: one patient record, an
// optional doctor record and the lab test collection. Changing the patient's
// sex recomputes every row's recommended value.
package intake

import (
	"github.com/ehr/labreport/internal/domain/labtest"
	"github.com/ehr/labreport/internal/domain/patient"
)

// Session is the aggregate edited during one intake. It is not safe for
// concurrent use.
type Session struct {
	patient patient.Record
	doctor  *patient.Doctor
	tests   *labtest.Collection
}

// NewSession creates an empty session whose rows bind against catalog.
func NewSession(catalog *labtest.Catalog) *Session {
	return &Session{tests: labtest.NewCollection(catalog, patient.SexUnset)}
}

// Patient returns a copy of the patient record.
func (s *Session) Patient() patient.Record { return s.patient }

// Doctor returns a copy of the doctor record, or nil when none is attached.
func (s *Session) Doctor() *patient.Doctor {
	if s.doctor == nil {
		return nil
	}
	d := *s.doctor
	return &d
}

// Tests exposes the test collection for row operations.
func (s *Session) Tests() *labtest.Collection { return s.tests }

// Rows returns the current test rows in order.
func (s *Session) Rows() []labtest.Row { return s.tests.Rows() }

// UpdatePatient applies fn to the patient record. When fn changes the sex,
// the recommended values of all rows are recomputed.
func (s *Session) UpdatePatient(fn func(*patient.Record)) {
	before := s.patient.Sex
	fn(&s.patient)
	if s.patient.Sex != before {
		s.tests.SetSex(s.patient.Sex)
	}
}

// SetSex is a shorthand for updating only the patient's sex.
func (s *Session) SetSex(sex patient.Sex) {
	s.UpdatePatient(func(r *patient.Record) { r.Sex = sex })
}

// UpdateDoctor applies fn to the doctor record, attaching an empty one first
// if needed.
func (s *Session) UpdateDoctor(fn func(*patient.Doctor)) {
	if s.doctor == nil {
		s.doctor = &patient.Doctor{}
	}
	fn(s.doctor)
}

// DetachDoctor removes the doctor record from the session.
func (s *Session) DetachDoctor() { s.doctor = nil }

// starterTests is how many tests Seed adds after the first category.
const starterTests = 2

// Seed appends the starter rows shown on a blank form: the catalog's first
// category header followed by the first tests listed under it.
func (s *Session) Seed() error {
	entries := s.tests.Catalog().Entries()
	added := 0
	inFirstCategory := false
	for _, e := range entries {
		if e.Category {
			if inFirstCategory {
				break
			}
			if _, err := s.tests.AddCategory(e.Name); err != nil {
				return err
			}
			inFirstCategory = true
			continue
		}
		if added == starterTests {
			break
		}
		row := s.tests.AddRow()
		if err := s.tests.RetypeRow(row.ID, e.Name); err != nil {
			return err
		}
		added++
	}
	return nil
}
