package report

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ehr/labreport/internal/domain/patient"
)

func sectionKeys(m *Model) []string {
	keys := make([]string, 0, len(m.Sections))
	for _, s := range m.Sections {
		keys = append(keys, s.Key)
	}
	return keys
}

func fieldValue(t *testing.T, m *Model, key, label string) string {
	t.Helper()
	s, ok := m.Section(key)
	if !ok {
		t.Fatalf("section %q missing", key)
	}
	for _, f := range s.Fields {
		if f.Label == label {
			return f.Value
		}
	}
	t.Fatalf("field %q missing from section %q", label, key)
	return ""
}

func TestAssemble_SectionOrderWithoutDoctor(t *testing.T) {
	a := NewAssembler("", fixedClock)
	m := a.Assemble(patient.Record{Sex: patient.SexMale}, nil, nil)

	want := []string{SectionOPD, SectionPersonal, SectionTests}
	if diff := cmp.Diff(want, sectionKeys(m)); diff != "" {
		t.Errorf("section keys mismatch (-want +got):\n%s", diff)
	}
	if m.Title != DefaultTitle {
		t.Errorf("title = %q, want default", m.Title)
	}
	if len(m.Tests()) != 0 {
		t.Errorf("expected empty test table, got %d lines", len(m.Tests()))
	}
	if m.HasDoctor() {
		t.Error("doctor section should be absent")
	}
}

func TestAssemble_AllSections(t *testing.T) {
	p := completeRecord()
	p.Complaint = "Fatigue"
	m := NewAssembler("Clinic Report", fixedClock).Assemble(p, completeDoctor(), scenarioBRows(t, p.Sex))

	want := []string{SectionOPD, SectionPersonal, SectionNotes, SectionDoctor, SectionTests}
	if diff := cmp.Diff(want, sectionKeys(m)); diff != "" {
		t.Errorf("section keys mismatch (-want +got):\n%s", diff)
	}
	if got := fieldValue(t, m, SectionDoctor, "Contact"); got != "0135-2439463" {
		t.Errorf("contact = %q", got)
	}
	if got := fieldValue(t, m, SectionNotes, "Complaint"); got != "Fatigue" {
		t.Errorf("complaint = %q", got)
	}
}

func TestAssemble_PersonalFieldOrder(t *testing.T) {
	m := NewAssembler("", fixedClock).Assemble(completeRecord(), nil, nil)
	s, _ := m.Section(SectionPersonal)

	var labels []string
	for _, f := range s.Fields {
		labels = append(labels, f.Label)
	}
	want := []string{"Full Name", "Age", "Gender", "Blood Type", "Employee No.", "Relationship with Employee", "Workplace"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_BlankDoctorOmitted(t *testing.T) {
	m := NewAssembler("", fixedClock).Assemble(completeRecord(), &patient.Doctor{}, nil)
	if m.HasDoctor() {
		t.Error("blank doctor should not produce a section")
	}
}

func TestAssemble_Age(t *testing.T) {
	a := NewAssembler("", fixedClock)

	p := completeRecord()
	if got := fieldValue(t, a.Assemble(p, nil, nil), SectionPersonal, "Age"); got != "36 years" {
		t.Errorf("age = %q, want 36 years", got)
	}

	p.DateOfBirth = "1996-10-17"
	if got := fieldValue(t, a.Assemble(p, nil, nil), SectionPersonal, "Age"); got != "29 years" {
		t.Errorf("age before birthday = %q, want 29 years", got)
	}

	p.DateOfBirth = "not a date"
	got := fieldValue(t, a.Assemble(p, nil, nil), SectionPersonal, "Age")
	if got != "" || Display(got) != NotAvailable {
		t.Errorf("unparsable dob should display N/A, got %q", got)
	}
}

func TestAssemble_CategoryLinesKeepOrder(t *testing.T) {
	m := NewAssembler("", fixedClock).Assemble(completeRecord(), nil, scenarioBRows(t, patient.SexMale))

	want := []TestLine{
		{Kind: LineCategory, Name: "CBC:"},
		{Kind: LineTest, Name: "Hb.", Actual: "14.2", Recommended: "13 - 18", Unit: "gm/dl"},
	}
	if diff := cmp.Diff(want, m.Tests()); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	a := NewAssembler("", fixedClock)
	p := completeRecord()
	d := completeDoctor()
	rows := scenarioBRows(t, p.Sex)

	first := a.Assemble(p, d, rows)
	second := a.Assemble(p, d, rows)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("assembling twice differs (-first +second):\n%s", diff)
	}
}

func TestAssemble_DateFromClock(t *testing.T) {
	m := NewAssembler("", fixedClock).Assemble(patient.Record{}, nil, nil)
	if !m.Date.Equal(fixedNow) {
		t.Errorf("date = %v, want %v", m.Date, fixedNow)
	}

	before := time.Now()
	m = NewAssembler("", nil).Assemble(patient.Record{}, nil, nil)
	if m.Date.Before(before) {
		t.Error("nil clock should default to time.Now")
	}
}

func TestTestLine_CellsShowNotAvailable(t *testing.T) {
	l := TestLine{Kind: LineTest, Name: "Hb.", Recommended: "13 - 18"}
	want := [3]string{"Hb.", NotAvailable, "13 - 18"}
	if l.Cells() != want {
		t.Errorf("cells = %v, want %v", l.Cells(), want)
	}
}
