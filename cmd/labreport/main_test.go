package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tealeg/xlsx/v3"

	"github.com/ehr/labreport/internal/platform/report"
)

const completeSession = `
patient:
  opd_reg_no: "4471"
  opd_date: "2026-10-16"
  name: Ravi Semwal
  date_of_birth: "1990-04-12"
  sex: male
  blood_type: O+
  employee_no: E-1009
  relationship_with_employee: Self
  workplace: Rishikesh
  consultant: Dr. Negi
  lab_no: L-77
doctor:
  name: Dr. Negi
  specialization: General Physician
  contact: "0135-2439463"
tests:
  - category: "CBC:"
  - test: Hb.
    value: "14.2"
`

// runCLI executes the root command with an isolated configuration and
// returns what it printed on stdout.
func runCLI(t *testing.T, outDir string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	base := []string{"--env-file", filepath.Join(t.TempDir(), "none.env"), "--output", outDir}
	cmd.SetArgs(append(args, base...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeSession(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write session: %v", err)
	}
	return path
}

func TestCatalogCmd(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "catalog")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if !strings.Contains(out, "Hb.") || !strings.Contains(out, "M: 13 - 18, F: 11.5 - 16") {
		t.Errorf("unexpected catalog output:\n%s", out)
	}
}

func TestCatalogCmd_HeadersOnly(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "catalog", "--headers")
	if err != nil {
		t.Fatalf("catalog --headers: %v", err)
	}
	if !strings.Contains(out, "CBC:") {
		t.Errorf("expected CBC: header, got:\n%s", out)
	}
	if strings.Contains(out, "Hb.") {
		t.Errorf("headers listing should not contain tests:\n%s", out)
	}
}

func TestCatalogCmd_UnknownEdition(t *testing.T) {
	if _, err := runCLI(t, t.TempDir(), "catalog", "--edition", "nope"); err == nil {
		t.Fatal("expected error for unknown edition")
	}
}

func TestSessionInit_ThenCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.yaml")
	if _, err := runCLI(t, t.TempDir(), "session", "init", "--out", path); err != nil {
		t.Fatalf("session init: %v", err)
	}
	if _, err := runCLI(t, t.TempDir(), "session", "init", "--out", path); err == nil {
		t.Error("session init must not overwrite an existing file")
	}

	out, err := runCLI(t, t.TempDir(), "check", "--session", path)
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("expected errCheckFailed for a blank session, got %v", err)
	}
	if !strings.Contains(out, "missing patient fields: opd_reg_no") {
		t.Errorf("unexpected check output:\n%s", out)
	}
}

func TestCheck_CompleteSession(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "check", "--session", writeSession(t, completeSession))
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok: 2 rows") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCheck_InvalidValue(t *testing.T) {
	doc := strings.Replace(completeSession, `value: "14.2"`, `value: "14,2"`, 1)
	out, err := runCLI(t, t.TempDir(), "check", "--session", writeSession(t, doc))
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("expected errCheckFailed, got %v", err)
	}
	if !strings.Contains(out, "Invalid number") {
		t.Errorf("expected row error in output:\n%s", out)
	}
}

func TestExportXLSX(t *testing.T) {
	outDir := t.TempDir()
	out, err := runCLI(t, outDir, "export", "xlsx", "--session", writeSession(t, completeSession))
	if err != nil {
		t.Fatalf("export xlsx: %v", err)
	}
	path := strings.TrimSpace(out)
	if filepath.Dir(path) != outDir {
		t.Errorf("report written to %s, want %s", path, outDir)
	}
	if !strings.HasPrefix(filepath.Base(path), "OPD4471_Ravi_Semwal_") {
		t.Errorf("unexpected file name %s", filepath.Base(path))
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	if _, ok := f.Sheet[report.SheetName]; !ok {
		t.Errorf("sheet %q missing", report.SheetName)
	}
}

func TestExportPDF_MissingDoctorContact(t *testing.T) {
	outDir := t.TempDir()
	doc := strings.Replace(completeSession, `contact: "0135-2439463"`, `contact: ""`, 1)

	_, err := runCLI(t, outDir, "export", "pdf", "--session", writeSession(t, doc))
	var missing *report.MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingFieldsError, got %v", err)
	}

	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Errorf("expected no files, got %d", len(entries))
	}
}

func TestExportPDF(t *testing.T) {
	outDir := t.TempDir()
	out, err := runCLI(t, outDir, "export", "pdf",
		"--session", writeSession(t, completeSession),
		"--logo", filepath.Join(t.TempDir(), "missing-logo.png"))
	if err != nil {
		t.Fatalf("export pdf: %v", err)
	}
	data, err := os.ReadFile(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("output is not a PDF")
	}
}

func TestExport_RequiresSession(t *testing.T) {
	if _, err := runCLI(t, t.TempDir(), "export", "xlsx"); err == nil {
		t.Fatal("expected error without --session")
	}
}

func TestReports_ListShowCopyRemove(t *testing.T) {
	outDir := t.TempDir()
	session := writeSession(t, completeSession)
	out, err := runCLI(t, outDir, "export", "xlsx", "--session", session)
	if err != nil {
		t.Fatalf("export xlsx: %v", err)
	}
	id := filepath.Base(strings.TrimSpace(out))

	out, err = runCLI(t, outDir, "reports", "list")
	if err != nil {
		t.Fatalf("reports list: %v", err)
	}
	if !strings.Contains(out, id) {
		t.Errorf("list does not show %s:\n%s", id, out)
	}

	out, err = runCLI(t, outDir, "reports", "show", id)
	if err != nil {
		t.Fatalf("reports show: %v", err)
	}
	if !strings.Contains(out, "spreadsheetml") {
		t.Errorf("show should print the content type:\n%s", out)
	}

	dest := t.TempDir()
	out, err = runCLI(t, outDir, "reports", "copy", id, dest)
	if err != nil {
		t.Fatalf("reports copy: %v", err)
	}
	copied := strings.TrimSpace(out)
	if _, err := xlsx.OpenFile(copied); err != nil {
		t.Errorf("copied workbook does not open: %v", err)
	}
	if _, err := runCLI(t, outDir, "reports", "copy", id, copied); err == nil {
		t.Error("copy must not overwrite an existing file")
	}

	if _, err := runCLI(t, outDir, "reports", "rm", id); err != nil {
		t.Fatalf("reports rm: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, id)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected report removed, got %v", err)
	}
	if _, err := runCLI(t, outDir, "reports", "show", id); err == nil {
		t.Error("show after rm should fail")
	}
}

func TestReports_ListEmpty(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "reports", "list")
	if err != nil {
		t.Fatalf("reports list: %v", err)
	}
	if strings.TrimSpace(out) != "ID  SIZE  CREATED  SHA256" {
		t.Errorf("unexpected empty listing %q", out)
	}
}
