package report

import (
	"fmt"
	"time"

	"github.com/ehr/labreport/internal/domain/labtest"
	"github.com/ehr/labreport/internal/domain/patient"
)

// DefaultTitle is used when no report title is configured.
const DefaultTitle = "THDC Health Report"

// Assembler builds report models. The clock is injected so age and the
// report date are reproducible.
type Assembler struct {
	title string
	now   func() time.Time
}

// NewAssembler returns an Assembler. A nil clock means time.Now.
func NewAssembler(title string, now func() time.Time) *Assembler {
	if title == "" {
		title = DefaultTitle
	}
	if now == nil {
		now = time.Now
	}
	return &Assembler{title: title, now: now}
}

// Assemble builds the report model. The doctor section is included only when
// doctor is non-nil and has at least one field set.
func (a *Assembler) Assemble(p patient.Record, doctor *patient.Doctor, rows []labtest.Row) *Model {
	today := a.now()

	m := &Model{
		Title: a.title,
		Date:  today,
		RegNo: p.RegNo,
		Name:  p.Name,
	}

	m.Sections = append(m.Sections, Section{
		Key:   SectionOPD,
		Title: "OPD Details",
		Kind:  KindFields,
		Fields: []Field{
			{Label: "O.P.D. Reg No.", Value: p.RegNo},
			{Label: "OPD Date", Value: p.VisitDate},
			{Label: "Consultant", Value: p.Consultant},
			{Label: "Lab No.", Value: p.LabNo},
		},
	})

	m.Sections = append(m.Sections, Section{
		Key:   SectionPersonal,
		Title: "Personal Information",
		Kind:  KindFields,
		Fields: []Field{
			{Label: "Full Name", Value: p.Name},
			{Label: "Age", Value: ageDisplay(p.DateOfBirth, today)},
			{Label: "Gender", Value: string(p.Sex)},
			{Label: "Blood Type", Value: p.BloodType},
			{Label: "Employee No.", Value: p.EmployeeNo},
			{Label: "Relationship with Employee", Value: p.Relationship},
			{Label: "Workplace", Value: p.Workplace},
		},
	})

	if p.HasNotes() {
		m.Sections = append(m.Sections, Section{
			Key:   SectionNotes,
			Title: "Clinical Notes",
			Kind:  KindFields,
			Fields: []Field{
				{Label: "Investigation", Value: p.Investigation},
				{Label: "Complaint", Value: p.Complaint},
				{Label: "Treatment", Value: p.Treatment},
			},
		})
	}

	if !doctor.IsEmpty() {
		m.Sections = append(m.Sections, Section{
			Key:   SectionDoctor,
			Title: "Doctor Information",
			Kind:  KindFields,
			Fields: []Field{
				{Label: "Doctor Name", Value: doctor.Name},
				{Label: "Specialization", Value: doctor.Specialization},
				{Label: "Contact", Value: doctor.Contact},
			},
		})
	}

	lines := make([]TestLine, 0, len(rows))
	for _, r := range rows {
		if r.Category {
			lines = append(lines, TestLine{Kind: LineCategory, Name: r.TestName})
			continue
		}
		lines = append(lines, TestLine{
			Kind:        LineTest,
			Name:        r.TestName,
			Actual:      r.ActualValue,
			Recommended: r.RecommendedValue,
			Unit:        r.Unit,
		})
	}
	m.Sections = append(m.Sections, Section{
		Key:   SectionTests,
		Title: "Test Results",
		Kind:  KindTests,
		Lines: lines,
	})

	return m
}

func ageDisplay(dob string, today time.Time) string {
	age, ok := patient.AgeOn(dob, today)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d years", age)
}
