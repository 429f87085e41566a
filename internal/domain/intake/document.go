package intake

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ehr/labreport/internal/domain/labtest"
	"github.com/ehr/labreport/internal/domain/patient"
)

// Document is the on-disk form of a session. Tests are replayed in order
// through the collection operations, so validation and recommended values
// are always derived, never read from the file.
type Document struct {
	Patient patient.Record  `yaml:"patient"`
	Doctor  *patient.Doctor `yaml:"doctor,omitempty"`
	Tests   []TestEntry     `yaml:"tests"`
}

// TestEntry is one line of a session document. Exactly one of Test or
// Category is set.
type TestEntry struct {
	Test     string `yaml:"test,omitempty"`
	Category string `yaml:"category,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

// ParseDocument decodes a YAML session document. Unknown keys are rejected.
func ParseDocument(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse session document: %w", err)
	}
	return &doc, nil
}

// LoadDocument reads and decodes a session document from path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session document: %w", err)
	}
	return ParseDocument(data)
}

// NewSessionFromDocument replays doc into a fresh session bound to catalog.
func NewSessionFromDocument(catalog *labtest.Catalog, doc *Document) (*Session, error) {
	s := NewSession(catalog)
	if err := doc.Apply(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply writes the document's records into s and appends its tests.
func (d *Document) Apply(s *Session) error {
	sex, err := patient.ParseSex(string(d.Patient.Sex))
	if err != nil {
		return fmt.Errorf("patient: %w", err)
	}
	rec := d.Patient
	rec.Sex = sex
	s.UpdatePatient(func(p *patient.Record) { *p = rec })

	if d.Doctor != nil {
		doc := *d.Doctor
		s.UpdateDoctor(func(p *patient.Doctor) { *p = doc })
	}

	tests := s.Tests()
	for i, e := range d.Tests {
		switch {
		case e.Category != "" && e.Test != "":
			return fmt.Errorf("tests[%d]: set either test or category, not both", i)
		case e.Category != "":
			row, err := tests.AddCategory(e.Category)
			if err != nil {
				return fmt.Errorf("tests[%d]: %w", i, err)
			}
			if e.Value != "" {
				_ = tests.EditValue(row.ID, e.Value)
			}
		default:
			row := tests.AddRow()
			if e.Test != "" && e.Test != row.TestName {
				if err := tests.RetypeRow(row.ID, e.Test); err != nil {
					_ = tests.RemoveRow(row.ID)
					return fmt.Errorf("tests[%d]: %w", i, err)
				}
			}
			if err := tests.EditValue(row.ID, e.Value); err != nil {
				return fmt.Errorf("tests[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// DocumentFromSession captures the current session state as a document.
func DocumentFromSession(s *Session) *Document {
	doc := &Document{Patient: s.Patient(), Doctor: s.Doctor()}
	for _, r := range s.Rows() {
		if r.Category {
			doc.Tests = append(doc.Tests, TestEntry{Category: r.TestName, Value: r.ActualValue})
			continue
		}
		doc.Tests = append(doc.Tests, TestEntry{Test: r.TestName, Value: r.ActualValue})
	}
	return doc
}

// Marshal encodes the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode session document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode session document: %w", err)
	}
	return buf.Bytes(), nil
}
