package patient

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the format used for date of birth and visit date fields.
const DateLayout = "2006-01-02"

// Sex is the recorded sex of the patient. The zero value means unset.
type Sex string

const (
	SexUnset  Sex = ""
	SexMale   Sex = "Male"
	SexFemale Sex = "Female"
	SexOther  Sex = "Other"
)

// ParseSex normalizes user input into a Sex. Matching is case-insensitive and
// accepts single-letter abbreviations.
func ParseSex(s string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SexUnset, nil
	case "male", "m":
		return SexMale, nil
	case "female", "f":
		return SexFemale, nil
	case "other", "o":
		return SexOther, nil
	default:
		return SexUnset, fmt.Errorf("invalid sex %q: must be Male, Female or Other", s)
	}
}

// Record holds the OPD patient demographics for one session. Every field is
// optional at the model level; completeness is checked only at export time.
// The validate tags express the PDF export policy.
type Record struct {
	RegNo         string `yaml:"opd_reg_no" json:"opd_reg_no" validate:"required"`
	VisitDate     string `yaml:"opd_date" json:"opd_date" validate:"required"`
	Name          string `yaml:"name" json:"name" validate:"required"`
	DateOfBirth   string `yaml:"date_of_birth" json:"date_of_birth" validate:"required"`
	Sex           Sex    `yaml:"sex" json:"sex" validate:"required"`
	BloodType     string `yaml:"blood_type" json:"blood_type" validate:"required"`
	EmployeeNo    string `yaml:"employee_no" json:"employee_no" validate:"required"`
	Relationship  string `yaml:"relationship_with_employee" json:"relationship_with_employee" validate:"required"`
	Workplace     string `yaml:"workplace" json:"workplace" validate:"required"`
	Consultant    string `yaml:"consultant" json:"consultant" validate:"required"`
	LabNo         string `yaml:"lab_no" json:"lab_no" validate:"required"`
	Investigation string `yaml:"investigation,omitempty" json:"investigation,omitempty"`
	Complaint     string `yaml:"complaint,omitempty" json:"complaint,omitempty"`
	Treatment     string `yaml:"treatment,omitempty" json:"treatment,omitempty"`
}

// HasNotes reports whether any narrative field is filled in.
func (r Record) HasNotes() bool {
	return r.Investigation != "" || r.Complaint != "" || r.Treatment != ""
}

// Doctor holds the optional attending doctor details.
type Doctor struct {
	Name           string `yaml:"name" json:"name" validate:"required"`
	Specialization string `yaml:"specialization" json:"specialization" validate:"required"`
	Contact        string `yaml:"contact" json:"contact" validate:"required"`
}

// IsEmpty reports whether no doctor field has been filled in.
func (d *Doctor) IsEmpty() bool {
	return d == nil || (d.Name == "" && d.Specialization == "" && d.Contact == "")
}

// AgeOn returns the age in whole years of someone born on dob as of today.
// It returns false when dob is empty, unparsable or in the future.
func AgeOn(dob string, today time.Time) (int, bool) {
	if strings.TrimSpace(dob) == "" {
		return 0, false
	}
	birth, err := time.Parse(DateLayout, strings.TrimSpace(dob))
	if err != nil {
		return 0, false
	}

	ty, tm, td := today.Date()
	by, bm, bd := birth.Date()

	age := ty - by
	if tm < bm || (tm == bm && td < bd) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}
