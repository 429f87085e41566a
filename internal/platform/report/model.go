// Package report turns a patient, an optional doctor and the test rows of a
// session into a format-independent Model, and renders that model as an
// XLSX workbook or a paginated PDF.
package report

import "time"

// NotAvailable is shown wherever a value is missing.
const NotAvailable = "N/A"

// SectionKind distinguishes label/value sections from the test table.
type SectionKind int

const (
	KindFields SectionKind = iota
	KindTests
)

// Section keys. Renderers use them to place sections; titles are for display.
const (
	SectionOPD      = "opd"
	SectionPersonal = "personal"
	SectionNotes    = "notes"
	SectionDoctor   = "doctor"
	SectionTests    = "tests"
)

// TestTableHeader is the fixed header row of the test table.
var TestTableHeader = [3]string{"Test Name", "Actual Value", "Recommended Value/Range"}

// Model is the assembled report consumed by every renderer.
type Model struct {
	Title    string
	Date     time.Time
	RegNo    string
	Name     string
	Sections []Section
}

// Section is either a label/value table (Fields) or the test table (Lines).
type Section struct {
	Key    string
	Title  string
	Kind   SectionKind
	Fields []Field
	Lines  []TestLine
}

// Field is one label/value row. An empty Value renders as NotAvailable.
type Field struct {
	Label string
	Value string
}

// Display returns the value as it should be printed.
func (f Field) Display() string { return Display(f.Value) }

// LineKind distinguishes category breaks from data rows in the test table.
type LineKind int

const (
	LineTest LineKind = iota
	LineCategory
)

// TestLine is one entry of the test table. Category lines only carry Name.
type TestLine struct {
	Kind        LineKind
	Name        string
	Actual      string
	Recommended string
	Unit        string
}

// Cells returns the three printed cells of a data line.
func (l TestLine) Cells() [3]string {
	return [3]string{l.Name, Display(l.Actual), l.Recommended}
}

// Display replaces an empty value with NotAvailable.
func Display(v string) string {
	if v == "" {
		return NotAvailable
	}
	return v
}

// Section returns the section with the given key.
func (m *Model) Section(key string) (Section, bool) {
	for _, s := range m.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// HasDoctor reports whether the doctor section was assembled.
func (m *Model) HasDoctor() bool {
	_, ok := m.Section(SectionDoctor)
	return ok
}

// Tests returns the lines of the test table.
func (m *Model) Tests() []TestLine {
	s, _ := m.Section(SectionTests)
	return s.Lines
}
