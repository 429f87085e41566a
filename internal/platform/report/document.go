package report

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"
)

// Page geometry in millimetres (A4 portrait).
const (
	pageMargin   = 15.0
	bottomMargin = 20.0

	bandTop    = 10.0
	bandHeight = 26.0
	logoHeight = 18.0

	infoTop       = bandTop + bandHeight + 10
	infoGap       = 6.0
	tableGap      = 12.0
	headingHeight = 9.0
	lineHeight    = 5.0
	cellPadding   = 1.5
	headingSize   = 12.0
	bodySize      = 10.0

	// DefaultWatermarkOpacity is used when no opacity is configured.
	DefaultWatermarkOpacity = 0.1
)

var (
	bandColor   = [3]int{0, 51, 102}
	theadColor  = [3]int{242, 242, 242}
	borderColor = [3]int{200, 200, 200}
)

const (
	imageLogo      = "logo"
	imageWatermark = "watermark"
)

// Document renders a Model as a paginated PDF.
type Document struct {
	opacity float64
	logger  zerolog.Logger
}

// NewDocument returns a PDF renderer. opacity is the watermark alpha in (0, 1].
func NewDocument(opacity float64, logger zerolog.Logger) *Document {
	if opacity <= 0 || opacity > 1 {
		opacity = DefaultWatermarkOpacity
	}
	return &Document{opacity: opacity, logger: logger}
}

// pdfPage holds the state of one render.
type pdfPage struct {
	pdf       *fpdf.Fpdf
	tr        func(string) string
	width     float64
	height    float64
	logo      *Image
	watermark *Image
	opacity   float64
}

func newPDFPage(pdf *fpdf.Fpdf, opacity float64) *pdfPage {
	w, h := pdf.GetPageSize()
	return &pdfPage{
		pdf:     pdf,
		tr:      pdf.UnicodeTranslatorFromDescriptor(""),
		width:   w,
		height:  h,
		opacity: opacity,
	}
}

// Render produces the PDF for m. Missing images are left out.
func (d *Document) Render(ctx context.Context, m *Model, imgs Images) (out []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("pdf render panic: %v", r)
		}
	}()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, bottomMargin)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(m.Date)
	pdf.SetModificationDate(m.Date)
	pdf.SetTitle(m.Title, true)
	pdf.SetCreator("labreport", true)
	pdf.AliasNbPages("")

	p := newPDFPage(pdf, d.opacity)
	p.logo = d.register(pdf, imageLogo, imgs.Logo)
	p.watermark = d.register(pdf, imageWatermark, imgs.Watermark)

	pdf.SetHeaderFuncMode(p.drawWatermark, false)
	generated := m.Date.Format("2006-01-02 15:04")
	pdf.SetFooterFunc(func() { p.drawFooter(generated) })

	pdf.AddPage()
	p.drawBand(m.Title)

	if _, err := p.drawBody(ctx, m); err != nil {
		return nil, err
	}

	if pdf.Err() {
		return nil, pdf.Error()
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// register adds img to the document. A failure is logged and the image is
// dropped so the report still renders.
func (d *Document) register(pdf *fpdf.Fpdf, name string, img *Image) *Image {
	if img == nil {
		return nil
	}
	opts := fpdf.ImageOptions{ImageType: fpdfImageType(img.Format)}
	if opts.ImageType == "" {
		d.logger.Warn().Str("image", name).Str("format", img.Format).Msg("image format not supported by pdf, skipped")
		return nil
	}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
	if pdf.Err() {
		d.logger.Warn().Err(pdf.Error()).Str("image", name).Msg("image could not be embedded, skipped")
		pdf.ClearError()
		return nil
	}
	return img
}

func fpdfImageType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "PNG"
	case "jpeg", "jpg":
		return "JPG"
	case "gif":
		return "GIF"
	}
	return ""
}

// infoSections splits the field sections into the left (patient) and right
// (doctor) tables.
func infoSections(m *Model) (left, right []Section) {
	for _, s := range m.Sections {
		if s.Kind != KindFields {
			continue
		}
		if s.Key == SectionDoctor {
			right = append(right, s)
			continue
		}
		left = append(left, s)
	}
	return left, right
}

// cursor is a vertical position in the flowing document.
type cursor struct {
	page int
	y    float64
}

// later returns whichever of a and b comes further down the document.
func later(a, b cursor) cursor {
	if a.page != b.page {
		if a.page > b.page {
			return a
		}
		return b
	}
	if a.y >= b.y {
		return a
	}
	return b
}

// box records where a table was drawn.
type box struct {
	x, w       float64
	start, end cursor
}

// bodyLayout is where the info and test tables ended up.
type bodyLayout struct {
	patient box
	doctor  *box
	tests   box

	// firstRow is the top of the first row under the test table header.
	firstRow cursor
}

// drawBody lays out the patient and doctor tables side by side (the patient
// table alone takes the full width) and starts the test table below the
// later of the two.
func (p *pdfPage) drawBody(ctx context.Context, m *Model) (bodyLayout, error) {
	var out bodyLayout
	contentW := p.width - 2*pageMargin
	start := cursor{page: p.pdf.PageNo(), y: infoTop}

	left, right := infoSections(m)
	if len(right) == 0 {
		out.patient = p.drawInfoTable(start, pageMargin, contentW, "Patient Information", left)
	} else {
		colW := (contentW - infoGap) / 2
		out.patient = p.drawInfoTable(start, pageMargin, colW, "Patient Information", left)
		doctor := p.drawInfoTable(start, pageMargin+colW+infoGap, colW, "Doctor Information", right)
		out.doctor = &doctor
	}

	below := out.patient.end
	if out.doctor != nil {
		below = later(below, out.doctor.end)
	}
	below.y += tableGap

	tests, firstRow, err := p.drawTests(ctx, below, m.Tests())
	if err != nil {
		return out, err
	}
	out.tests, out.firstRow = tests, firstRow

	// The footer is drawn on the current page when the document closes.
	p.pdf.SetPage(p.pdf.PageCount())
	return out, nil
}

// fit scales an image into a box keeping its aspect ratio.
func fit(img *Image, maxW, maxH float64) (float64, float64) {
	scale := math.Min(maxW/float64(img.Width), maxH/float64(img.Height))
	return float64(img.Width) * scale, float64(img.Height) * scale
}

// ---------------------------------------------------------------------------
// Page furniture
// ---------------------------------------------------------------------------

func (p *pdfPage) drawWatermark() {
	if p.watermark == nil {
		return
	}
	w, h := fit(p.watermark, p.width-2*pageMargin, p.height-2*pageMargin)
	x := (p.width - w) / 2
	y := (p.height - h) / 2
	p.pdf.SetAlpha(p.opacity, "Normal")
	p.pdf.ImageOptions(imageWatermark, x, y, w, h, false, fpdf.ImageOptions{}, 0, "")
	p.pdf.SetAlpha(1, "Normal")
}

func (p *pdfPage) drawBand(title string) {
	pdf := p.pdf
	bandW := p.width - 2*pageMargin
	pdf.SetFillColor(bandColor[0], bandColor[1], bandColor[2])
	pdf.Rect(pageMargin, bandTop, bandW, bandHeight, "F")

	textX := pageMargin + 5
	if p.logo != nil {
		w, h := fit(p.logo, bandW/3, logoHeight)
		y := bandTop + (bandHeight-h)/2
		pdf.ImageOptions(imageLogo, pageMargin+5, y, w, h, false, fpdf.ImageOptions{}, 0, "")
		textX += w + 6
	}

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(textX, bandTop)
	pdf.CellFormat(pageMargin+bandW-textX-5, bandHeight, p.tr(title), "", 0, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

func (p *pdfPage) drawFooter(generated string) {
	pdf := p.pdf
	pdf.SetY(-12)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(110, 110, 110)
	half := (p.width - 2*pageMargin) / 2
	pdf.CellFormat(half, 5, "Generated on "+generated, "", 0, "L", false, 0, "")
	pdf.CellFormat(half, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

type cellStyle struct {
	bold  bool
	fill  bool
	align string
}

// table is the column geometry shared by the rows of one table. A non-nil
// header is repeated at the top of each continuation page.
type table struct {
	x            float64
	header       []string
	widths       []float64
	headerStyles []cellStyle
}

func (p *pdfPage) limit() float64 { return p.height - bottomMargin }

func (p *pdfPage) setFont(bold bool, size float64) {
	style := ""
	if bold {
		style = "B"
	}
	p.pdf.SetFont("Helvetica", style, size)
}

// nextPage moves to the top of the page after c, adding it if needed.
func (p *pdfPage) nextPage(c cursor) cursor {
	next := c.page + 1
	if next <= p.pdf.PageCount() {
		p.pdf.SetPage(next)
	} else {
		p.pdf.AddPage()
	}
	return cursor{page: next, y: pageMargin}
}

// breakPage continues t on the next page, repeating its header.
func (p *pdfPage) breakPage(c cursor, t *table) cursor {
	c = p.nextPage(c)
	if t.header != nil {
		c = p.drawRow(c, &table{x: t.x}, t.widths, t.header, t.headerStyles)
	}
	return c
}

// split wraps each cell to its column width.
func (p *pdfPage) split(widths []float64, cells []string, styles []cellStyle) ([][]string, int) {
	lines := make([][]string, len(cells))
	n := 1
	for i, text := range cells {
		p.setFont(styles[i].bold, bodySize)
		lines[i] = p.pdf.SplitText(p.tr(text), widths[i]-2*cellPadding)
		if len(lines[i]) > n {
			n = len(lines[i])
		}
	}
	return lines, n
}

func rowHeight(lines int) float64 {
	return float64(lines)*lineHeight + cellPadding
}

// capacity is the height available for rows on a continuation page of t.
func (p *pdfPage) capacity(t *table) float64 {
	c := p.limit() - pageMargin
	if t.header != nil {
		_, n := p.split(t.widths, t.header, t.headerStyles)
		c -= rowHeight(n)
	}
	return c
}

// drawRow prints one bordered row at c and returns the position below it.
// A row that does not fit moves to the next page; a row taller than a page is
// split across pages line by line.
func (p *pdfPage) drawRow(c cursor, t *table, widths []float64, cells []string, styles []cellStyle) cursor {
	p.pdf.SetPage(c.page)
	lines, n := p.split(widths, cells, styles)

	if c.y+rowHeight(n) > p.limit() && rowHeight(n) <= p.capacity(t) {
		c = p.breakPage(c, t)
	}
	for done := 0; done < n; {
		fit := int(math.Floor((p.limit() - c.y - cellPadding) / lineHeight))
		if fit < 1 {
			c = p.breakPage(c, t)
			continue
		}
		k := min(fit, n-done)
		p.paintRow(c.y, t.x, widths, lines, done, k, styles)
		c.y += rowHeight(k)
		done += k
	}
	return c
}

// paintRow draws lines [from, from+count) of each cell at y.
func (p *pdfPage) paintRow(y, x float64, widths []float64, lines [][]string, from, count int, styles []cellStyle) {
	pdf := p.pdf
	h := rowHeight(count)
	pdf.SetDrawColor(borderColor[0], borderColor[1], borderColor[2])
	cx := x
	for i, cell := range lines {
		st := styles[i]
		rectStyle := "D"
		if st.fill {
			pdf.SetFillColor(theadColor[0], theadColor[1], theadColor[2])
			rectStyle = "FD"
		}
		pdf.Rect(cx, y, widths[i], h, rectStyle)

		p.setFont(st.bold, bodySize)
		ly := y + cellPadding/2
		for j := from; j < from+count && j < len(cell); j++ {
			pdf.SetXY(cx+cellPadding, ly)
			pdf.CellFormat(widths[i]-2*cellPadding, lineHeight, cell[j], "", 0, st.align, false, 0, "")
			ly += lineHeight
		}
		cx += widths[i]
	}
}

// heading prints a table title at c, first moving to a new page when the
// title and need more millimetres of table would not fit.
func (p *pdfPage) heading(c cursor, x, w float64, text string, need float64) cursor {
	p.pdf.SetPage(c.page)
	if c.y+headingHeight+need > p.limit() {
		c = p.nextPage(c)
	}
	pdf := p.pdf
	p.setFont(true, headingSize)
	pdf.SetXY(x, c.y)
	pdf.CellFormat(w, 7, p.tr(text), "B", 0, "L", false, 0, "")
	c.y += headingHeight
	return c
}

// drawInfoTable prints a titled key/value table starting at c.
func (p *pdfPage) drawInfoTable(c cursor, x, w float64, title string, sections []Section) box {
	out := box{x: x, w: w}
	t := &table{x: x, widths: []float64{w * 0.4, w * 0.6}}
	styles := []cellStyle{{bold: true, align: "L"}, {align: "L"}}

	c = p.heading(c, x, w, title, rowHeight(1))
	out.start = c
	for _, s := range sections {
		for _, fld := range s.Fields {
			c = p.drawRow(c, t, t.widths, []string{fld.Label, fld.Display()}, styles)
		}
	}
	out.end = c
	return out
}

// drawTests prints the test table starting at c, breaking pages as needed and
// repeating the header row on each new page. It returns the table box and the
// position of the first row under the header.
func (p *pdfPage) drawTests(ctx context.Context, c cursor, lines []TestLine) (box, cursor, error) {
	x := pageMargin
	w := p.width - 2*pageMargin
	out := box{x: x, w: w}
	widths := []float64{w * 0.35, w * 0.25, w * 0.40}
	headStyles := []cellStyle{
		{bold: true, fill: true, align: "C"},
		{bold: true, fill: true, align: "C"},
		{bold: true, fill: true, align: "C"},
	}
	dataStyles := []cellStyle{{align: "L"}, {align: "C"}, {align: "L"}}
	header := TestTableHeader[:]
	t := &table{x: x, header: header, widths: widths, headerStyles: headStyles}

	_, hn := p.split(widths, header, headStyles)
	c = p.heading(c, x, w, "Test Results", rowHeight(hn)+rowHeight(1))
	out.start = c
	c = p.drawRow(c, &table{x: x}, widths, header, headStyles)
	firstRow := c

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return out, firstRow, err
		}

		if line.Kind == LineCategory {
			c = p.drawRow(c, t, []float64{w}, []string{line.Name},
				[]cellStyle{{bold: true, fill: true, align: "L"}})
			continue
		}
		cells := line.Cells()
		if line.Actual != "" && line.Unit != "" {
			cells[1] = line.Actual + " " + line.Unit
		}
		c = p.drawRow(c, t, widths, cells[:], dataStyles)
	}
	out.end = c
	return out, firstRow, nil
}
