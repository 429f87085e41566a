package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tealeg/xlsx/v3"

	"github.com/ehr/labreport/internal/domain/patient"
	"github.com/ehr/labreport/internal/platform/filestore"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type failingStore struct {
	filestore.Store
}

func (failingStore) Save(context.Context, filestore.Metadata, io.Reader) (*filestore.Metadata, error) {
	return nil, errors.New("disk full")
}

// blockingStore holds the first Save until release is closed.
type blockingStore struct {
	*filestore.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		MemoryStore: filestore.NewMemoryStore(),
		entered:     make(chan struct{}, 4),
		release:     make(chan struct{}),
	}
}

func (s *blockingStore) Save(ctx context.Context, meta filestore.Metadata, r io.Reader) (*filestore.Metadata, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.MemoryStore.Save(ctx, meta, r)
}

func newTestExporter(store filestore.Store) *Exporter {
	return NewExporter(store, ExporterOptions{Now: fixedClock}, zerolog.Nop())
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestExporter_XLSXSaved(t *testing.T) {
	store := filestore.NewMemoryStore()
	src := &fakeSource{patient: completeRecord(), rows: scenarioBRows(t, patient.SexMale)}

	meta, err := newTestExporter(store).ExportXLSX(context.Background(), src)
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}
	if meta.FileName != "OPD4471_Ravi_Kumar_Semwal_2026-10-16_093005.xlsx" {
		t.Errorf("file name = %q", meta.FileName)
	}
	if meta.ContentType != filestore.ContentTypeXLSX {
		t.Errorf("content type = %q", meta.ContentType)
	}
	if meta.Tags["format"] != "xlsx" || meta.Tags["reg_no"] != "4471" {
		t.Errorf("unexpected tags %v", meta.Tags)
	}

	rc, _, err := store.Open(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if _, err := xlsx.OpenBinary(data); err != nil {
		t.Errorf("stored bytes are not a workbook: %v", err)
	}
}

func TestExporter_XLSXIgnoresRequiredPolicy(t *testing.T) {
	store := filestore.NewMemoryStore()
	src := &fakeSource{patient: patient.Record{Sex: patient.SexMale}}
	if _, err := newTestExporter(store).ExportXLSX(context.Background(), src); err != nil {
		t.Fatalf("spreadsheet export should not require fields, got %v", err)
	}
}

func TestExporter_PDFSaved(t *testing.T) {
	store := filestore.NewMemoryStore()
	src := &fakeSource{patient: completeRecord(), doctor: completeDoctor(), rows: scenarioBRows(t, patient.SexMale)}

	meta, err := newTestExporter(store).ExportPDF(context.Background(), src)
	if err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}
	if !strings.HasSuffix(meta.FileName, ".pdf") || meta.ContentType != filestore.ContentTypePDF {
		t.Errorf("unexpected metadata %+v", meta)
	}
	rc, _, err := store.Open(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("stored bytes are not a PDF")
	}
}

func TestExporter_PDFRefusedWhenDoctorIncomplete(t *testing.T) {
	store := filestore.NewMemoryStore()
	d := completeDoctor()
	d.Contact = ""
	src := &fakeSource{patient: completeRecord(), doctor: d}

	meta, err := newTestExporter(store).ExportPDF(context.Background(), src)
	var missing *MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingFieldsError, got %v", err)
	}
	if meta != nil {
		t.Error("expected no metadata")
	}
	found := false
	for _, name := range missing.Doctor {
		found = found || name == "contact"
	}
	if !found {
		t.Errorf("expected contact under doctor, got %v", missing.Doctor)
	}

	items, _ := store.List(context.Background())
	if len(items) != 0 {
		t.Errorf("refused export must not store anything, got %d", len(items))
	}
}

func TestExporter_RenderFailureWrapped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := filestore.NewMemoryStore()
	src := &fakeSource{patient: completeRecord()}

	_, err := newTestExporter(store).ExportPDF(ctx, src)
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("expected ErrRenderFailed, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cause to be kept, got %v", err)
	}
}

func TestExporter_SaveFailure(t *testing.T) {
	src := &fakeSource{patient: completeRecord()}
	_, err := newTestExporter(failingStore{}).ExportXLSX(context.Background(), src)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected save error, got %v", err)
	}
	if errors.Is(err, ErrRenderFailed) {
		t.Error("a save failure is not a render failure")
	}
}

func TestExporter_SameFormatIsSerialized(t *testing.T) {
	store := newBlockingStore()
	e := newTestExporter(store)
	src := &fakeSource{patient: completeRecord(), doctor: completeDoctor()}

	done := make(chan error, 1)
	go func() {
		_, err := e.ExportXLSX(context.Background(), src)
		done <- err
	}()
	<-store.entered

	if _, err := e.ExportXLSX(context.Background(), src); !errors.Is(err, ErrExportInProgress) {
		t.Fatalf("expected ErrExportInProgress, got %v", err)
	}

	pdfDone := make(chan error, 1)
	go func() {
		_, err := e.ExportPDF(context.Background(), src)
		pdfDone <- err
	}()
	<-store.entered

	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("first export: %v", err)
	}
	if err := <-pdfDone; err != nil {
		t.Fatalf("pdf export: %v", err)
	}

	if _, err := e.ExportXLSX(context.Background(), src); err != nil {
		t.Fatalf("export after release: %v", err)
	}
	items, _ := store.List(context.Background())
	if len(items) != 3 {
		t.Errorf("expected 3 stored reports, got %d", len(items))
	}
}

func TestExporter_UnknownFormat(t *testing.T) {
	_, err := newTestExporter(filestore.NewMemoryStore()).Export(context.Background(), Format("docx"), &fakeSource{})
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}
