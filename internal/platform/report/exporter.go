package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/labreport/internal/domain/labtest"
	"github.com/ehr/labreport/internal/domain/patient"
	"github.com/ehr/labreport/internal/platform/filestore"
)

var (
	ErrExportInProgress = errors.New("an export of this format is already in progress")
	ErrRenderFailed     = errors.New("report could not be generated")
)

// Format identifies an output renderer.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ContentType returns the MIME type stored with reports of this format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return filestore.ContentTypePDF
	}
	return filestore.ContentTypeXLSX
}

// Source is the read side of an intake session.
type Source interface {
	Patient() patient.Record
	Doctor() *patient.Doctor
	Rows() []labtest.Row
}

// ExporterOptions configures an Exporter. Zero values fall back to defaults.
type ExporterOptions struct {
	Title            string
	LogoPath         string
	WatermarkPath    string
	WatermarkOpacity float64
	ImageTimeout     time.Duration
	Now              func() time.Time
}

// Exporter assembles, renders and stores reports. Each format has its own
// lock; a second export of a format that is still running fails with
// ErrExportInProgress while the other format may proceed.
type Exporter struct {
	assembler *Assembler
	sheet     *Spreadsheet
	doc       *Document
	images    *ImageLoader
	policy    *RequiredPolicy
	store     filestore.Store
	logger    zerolog.Logger

	logoPath      string
	watermarkPath string

	locks map[Format]*sync.Mutex
}

// NewExporter wires the renderers to store.
func NewExporter(store filestore.Store, opts ExporterOptions, logger zerolog.Logger) *Exporter {
	return &Exporter{
		assembler:     NewAssembler(opts.Title, opts.Now),
		sheet:         NewSpreadsheet(),
		doc:           NewDocument(opts.WatermarkOpacity, logger),
		images:        NewImageLoader(opts.ImageTimeout, logger),
		policy:        NewRequiredPolicy(),
		store:         store,
		logger:        logger,
		logoPath:      opts.LogoPath,
		watermarkPath: opts.WatermarkPath,
		locks: map[Format]*sync.Mutex{
			FormatXLSX: {},
			FormatPDF:  {},
		},
	}
}

// Images exposes the image loader so callers can swap its reader.
func (e *Exporter) Images() *ImageLoader { return e.images }

// Assemble builds the report model for src without rendering it.
func (e *Exporter) Assemble(src Source) *Model {
	return e.assembler.Assemble(src.Patient(), src.Doctor(), src.Rows())
}

// CheckRequired applies the PDF required-field policy to src.
func (e *Exporter) CheckRequired(src Source) error {
	return e.policy.Check(src.Patient(), src.Doctor())
}

// Export renders src in the given format and saves the result.
func (e *Exporter) Export(ctx context.Context, format Format, src Source) (*filestore.Metadata, error) {
	switch format {
	case FormatXLSX:
		return e.ExportXLSX(ctx, src)
	case FormatPDF:
		return e.ExportPDF(ctx, src)
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

// ExportXLSX renders the workbook and saves it.
func (e *Exporter) ExportXLSX(ctx context.Context, src Source) (*filestore.Metadata, error) {
	return e.run(ctx, FormatXLSX, src, func(ctx context.Context, m *Model) ([]byte, error) {
		return e.sheet.Render(m)
	})
}

// ExportPDF checks the required fields, renders the PDF and saves it. A
// *MissingFieldsError is returned before anything is rendered or stored.
func (e *Exporter) ExportPDF(ctx context.Context, src Source) (*filestore.Metadata, error) {
	return e.run(ctx, FormatPDF, src, func(ctx context.Context, m *Model) ([]byte, error) {
		imgs := e.images.Load(ctx, e.logoPath, e.watermarkPath)
		return e.doc.Render(ctx, m, imgs)
	})
}

type renderFunc func(ctx context.Context, m *Model) ([]byte, error)

func (e *Exporter) run(ctx context.Context, format Format, src Source, render renderFunc) (*filestore.Metadata, error) {
	lock := e.locks[format]
	if !lock.TryLock() {
		return nil, ErrExportInProgress
	}
	defer lock.Unlock()

	log := e.logger.With().Str("format", string(format)).Logger()

	if format == FormatPDF {
		if err := e.CheckRequired(src); err != nil {
			log.Info().Err(err).Msg("export refused")
			return nil, err
		}
	}

	start := time.Now()
	m := e.Assemble(src)
	log.Info().Str("reg_no", m.RegNo).Int("lines", len(m.Tests())).Msg("export started")

	data, err := render(ctx, m)
	if err != nil {
		log.Error().Err(err).Msg("render failed")
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	meta := filestore.Metadata{
		FileName:    FileName(m, string(format)),
		ContentType: format.ContentType(),
		Tags: map[string]string{
			"format": string(format),
			"reg_no": m.RegNo,
		},
	}
	saved, err := e.store.Save(ctx, meta, bytes.NewReader(data))
	if err != nil {
		log.Error().Err(err).Str("file", meta.FileName).Msg("save failed")
		return nil, fmt.Errorf("save report: %w", err)
	}

	log.Info().
		Str("file", saved.FileName).
		Str("id", saved.ID).
		Int64("size", saved.Size).
		Dur("elapsed", time.Since(start)).
		Msg("export finished")
	return saved, nil
}
