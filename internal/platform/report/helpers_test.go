package report

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/ehr/labreport/internal/domain/labtest"
	"github.com/ehr/labreport/internal/domain/patient"
)

var fixedNow = time.Date(2026, time.October, 16, 9, 30, 5, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fakeSource struct {
	patient patient.Record
	doctor  *patient.Doctor
	rows    []labtest.Row
}

func (s *fakeSource) Patient() patient.Record { return s.patient }
func (s *fakeSource) Doctor() *patient.Doctor { return s.doctor }
func (s *fakeSource) Rows() []labtest.Row { return s.rows }

func completeRecord() patient.Record {
	return patient.Record{
		RegNo:        "4471",
		VisitDate:    "2026-10-16",
		Name:         "Ravi Kumar Semwal",
		DateOfBirth:  "1990-04-12",
		Sex:          patient.SexMale,
		BloodType:    "O+",
		EmployeeNo:   "E-1009",
		Relationship: "Self",
		Workplace:    "Rishikesh",
		Consultant:   "Dr. Negi",
		LabNo:        "L-77",
	}
}

func completeDoctor() *patient.Doctor {
	return &patient.Doctor{Name: "Dr. Negi", Specialization: "General Physician", Contact: "0135-2439463"}
}

func newCollection(t *testing.T, sex patient.Sex) *labtest.Collection {
	t.Helper()
	c, err := labtest.LoadEdition(labtest.DefaultEdition)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return labtest.NewCollection(c, sex)
}

// scenarioBRows returns a "CBC:" category followed by Hb. = 14.2.
func scenarioBRows(t *testing.T, sex patient.Sex) []labtest.Row {
	t.Helper()
	c := newCollection(t, sex)
	if _, err := c.AddCategory("CBC:"); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	row := c.AddRow()
	if err := c.RetypeRow(row.ID, "Hb."); err != nil {
		t.Fatalf("RetypeRow: %v", err)
	}
	if err := c.EditValue(row.ID, "14.2"); err != nil {
		t.Fatalf("EditValue: %v", err)
	}
	return c.Rows()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 0, G: 51, B: 102, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
