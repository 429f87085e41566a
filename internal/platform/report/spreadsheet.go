package report

import (
	"bytes"
	"fmt"

	"github.com/tealeg/xlsx/v3"
)

// SheetName is the name of the single worksheet.
const SheetName = "Health Report"

const (
	colLabelWidth = 30
	colValueWidth = 25
	colTableWidth = 40

	titleRowHeight   = 30
	sectionRowHeight = 22

	fontName = "Calibri"

	fillSection = "FFE6E6E6"
	fillTable   = "FFF2F2F2"
)

// Spreadsheet renders a Model as an XLSX workbook.
type Spreadsheet struct {
	title    *xlsx.Style
	section  *xlsx.Style
	label    *xlsx.Style
	value    *xlsx.Style
	thead    *xlsx.Style
	tcell    *xlsx.Style
	trec     *xlsx.Style
	category *xlsx.Style
}

// NewSpreadsheet prepares the cell styles shared by every workbook.
func NewSpreadsheet() *Spreadsheet {
	title := newCellStyle(16, true, "center")
	title.Border = *xlsx.NewBorder("", "", "", "thin")
	title.Border.BottomColor = "FF00B050"
	title.ApplyBorder = true

	section := newCellStyle(12, true, "left")
	withFill(section, fillSection)

	label := newCellStyle(11, true, "right")
	withBorder(label)
	value := newCellStyle(11, false, "left")
	withBorder(value)

	thead := newCellStyle(11, true, "center")
	withFill(thead, fillTable)
	withBorder(thead)

	tcell := newCellStyle(11, false, "center")
	withBorder(tcell)
	trec := newCellStyle(11, false, "left")
	withBorder(trec)

	category := newCellStyle(11, true, "left")
	withFill(category, fillTable)
	withBorder(category)

	return &Spreadsheet{
		title:    title,
		section:  section,
		label:    label,
		value:    value,
		thead:    thead,
		tcell:    tcell,
		trec:     trec,
		category: category,
	}
}

func newCellStyle(size float64, bold bool, horizontal string) *xlsx.Style {
	s := xlsx.NewStyle()
	s.Font = *xlsx.NewFont(size, fontName)
	s.Font.Bold = bold
	s.ApplyFont = true
	s.Alignment.Horizontal = horizontal
	s.Alignment.Vertical = "center"
	s.ApplyAlignment = true
	return s
}

func withFill(s *xlsx.Style, color string) {
	s.Fill = *xlsx.NewFill("solid", color, color)
	s.ApplyFill = true
}

func withBorder(s *xlsx.Style) {
	s.Border = *xlsx.NewBorder("thin", "thin", "thin", "thin")
	s.ApplyBorder = true
}

// Render writes the workbook for m and returns its bytes.
func (r *Spreadsheet) Render(m *Model) ([]byte, error) {
	f := xlsx.NewFile()
	sh, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	sh.SetColWidth(1, 1, colLabelWidth)
	sh.SetColWidth(2, 2, colValueWidth)
	sh.SetColWidth(3, 3, colTableWidth)

	r.addTitle(sh, m.Title)
	for _, s := range m.Sections {
		switch s.Kind {
		case KindFields:
			r.addFieldSection(sh, s)
		case KindTests:
			r.addTestSection(sh, s)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// mergedRow adds a row whose first cell spans all three columns.
func mergedRow(sh *xlsx.Sheet, text string, style *xlsx.Style) *xlsx.Row {
	row := sh.AddRow()
	first := row.AddCell()
	first.SetString(text)
	first.Merge(2, 0)
	first.SetStyle(style)
	for i := 0; i < 2; i++ {
		c := row.AddCell()
		c.SetStyle(style)
	}
	return row
}

func blankRow(sh *xlsx.Sheet) {
	row := sh.AddRow()
	for i := 0; i < 3; i++ {
		row.AddCell()
	}
}

func (r *Spreadsheet) addTitle(sh *xlsx.Sheet, title string) {
	row := mergedRow(sh, title, r.title)
	row.SetHeight(titleRowHeight)
	blankRow(sh)
}

func (r *Spreadsheet) addFieldSection(sh *xlsx.Sheet, s Section) {
	header := mergedRow(sh, s.Title, r.section)
	header.SetHeight(sectionRowHeight)

	for _, fld := range s.Fields {
		row := sh.AddRow()
		label := row.AddCell()
		label.SetString(fld.Label)
		label.SetStyle(r.label)
		value := row.AddCell()
		value.SetString(fld.Display())
		value.SetStyle(r.value)
		row.AddCell()
	}
	blankRow(sh)
}

func (r *Spreadsheet) addTestSection(sh *xlsx.Sheet, s Section) {
	header := mergedRow(sh, s.Title, r.section)
	header.SetHeight(sectionRowHeight)

	thead := sh.AddRow()
	for _, text := range TestTableHeader {
		c := thead.AddCell()
		c.SetString(text)
		c.SetStyle(r.thead)
	}

	for _, line := range s.Lines {
		if line.Kind == LineCategory {
			mergedRow(sh, line.Name, r.category)
			continue
		}
		row := sh.AddRow()
		cells := line.Cells()
		for i, text := range cells {
			c := row.AddCell()
			c.SetString(text)
			if i == 2 {
				c.SetStyle(r.trec)
			} else {
				c.SetStyle(r.tcell)
			}
		}
	}
}
