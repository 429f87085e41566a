package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/labreport/internal/config"
	"github.com/ehr/labreport/internal/domain/intake"
	"github.com/ehr/labreport/internal/domain/labtest"
	"github.com/ehr/labreport/internal/platform/filestore"
	"github.com/ehr/labreport/internal/platform/report"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "labreport",
		Short:        "OPD lab test intake and report generator",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to the .env configuration file")
	rootCmd.PersistentFlags().String("edition", "", "Catalog edition (overrides CATALOG_EDITION)")
	rootCmd.PersistentFlags().String("output", "", "Output directory (overrides OUTPUT_DIR)")

	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(reportsCmd())
	return rootCmd
}

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	catalog *labtest.Catalog
}

func newApp(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return nil, err
	}
	if edition, _ := cmd.Flags().GetString("edition"); edition != "" {
		cfg.CatalogEdition = edition
	}
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		cfg.OutputDir = out
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())

	catalog, err := labtest.LoadEdition(cfg.CatalogEdition)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("edition", catalog.Edition()).Int("selectable", len(catalog.ListSelectable())).Msg("catalog loaded")

	return &app{cfg: cfg, logger: logger, catalog: catalog}, nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func (a *app) loadSession(path string) (*intake.Session, error) {
	doc, err := intake.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	s, err := intake.NewSessionFromDocument(a.catalog, doc)
	if err != nil {
		a.logger.Error().Err(err).Str("session", path).Msg("session replay failed")
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (a *app) store() (*filestore.DirStore, error) {
	store, err := filestore.NewDirStore(a.cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("dir", store.Dir()).Msg("output directory indexed")
	return store, nil
}

func (a *app) exporter(logo, watermark string) (*report.Exporter, error) {
	store, err := a.store()
	if err != nil {
		return nil, err
	}
	if logo == "" {
		logo = a.cfg.LogoPath
	}
	if watermark == "" {
		watermark = a.cfg.WatermarkPath
	}
	e := report.NewExporter(store, report.ExporterOptions{
		Title:            a.cfg.ReportTitle,
		LogoPath:         logo,
		WatermarkPath:    watermark,
		WatermarkOpacity: a.cfg.WatermarkOpacity,
		ImageTimeout:     a.cfg.ImageLoadTimeout,
	}, a.logger)
	return e, nil
}

// ---------------------------------------------------------------------------
// catalog
// ---------------------------------------------------------------------------

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the tests of the active catalog edition",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			headers, _ := cmd.Flags().GetBool("headers")
			return printCatalog(cmd.OutOrStdout(), a.catalog, headers)
		},
	}
	cmd.Flags().Bool("headers", false, "List category headers only")
	return cmd
}

func printCatalog(w io.Writer, c *labtest.Catalog, headersOnly bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if headersOnly {
		fmt.Fprintln(tw, "CATEGORY")
		for _, e := range c.Headers() {
			fmt.Fprintln(tw, e.Name)
		}
		return tw.Flush()
	}

	fmt.Fprintln(tw, "TEST\tUNIT\tRECOMMENDED\tINPUT")
	for _, e := range c.Entries() {
		if e.Category {
			fmt.Fprintf(tw, "%s\t\t\t\n", e.Name)
			continue
		}
		rec := e.Recommended
		if e.GenderSpecific() {
			rec = fmt.Sprintf("M: %s, F: %s", e.RecommendedMale, e.RecommendedFemale)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.Name, e.Unit, rec, e.Rule.Kind)
	}
	return tw.Flush()
}

// ---------------------------------------------------------------------------
// session
// ---------------------------------------------------------------------------

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Work with session documents",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a blank session document with the starter rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			s := intake.NewSession(a.catalog)
			if err := s.Seed(); err != nil {
				return err
			}
			data, err := intake.DocumentFromSession(s).Marshal()
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return fmt.Errorf("create session document: %w", err)
			}
			if _, err := f.Write(data); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.logger.Info().Str("file", out).Msg("session document written")
			return nil
		},
	}
	initCmd.Flags().String("out", "", "Write to this file instead of stdout (never overwrites)")
	cmd.AddCommand(initCmd)

	return cmd
}

// ---------------------------------------------------------------------------
// check
// ---------------------------------------------------------------------------

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Replay a session and report invalid values and missing required fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("session")
			s, err := a.loadSession(path)
			if err != nil {
				return err
			}
			return runCheck(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().String("session", "", "Path to the session document")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

var errCheckFailed = errors.New("session has problems")

func runCheck(w io.Writer, s *intake.Session) error {
	problems := 0
	for _, r := range s.Tests().Invalid() {
		fmt.Fprintf(w, "invalid value: %s = %q (%s)\n", r.TestName, r.ActualValue, r.ErrorText)
		problems++
	}

	err := report.NewRequiredPolicy().Check(s.Patient(), s.Doctor())
	var missing *report.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		if len(missing.Patient) > 0 {
			fmt.Fprintf(w, "missing patient fields: %s\n", strings.Join(missing.Patient, ", "))
		}
		if len(missing.Doctor) > 0 {
			fmt.Fprintf(w, "missing doctor fields: %s\n", strings.Join(missing.Doctor, ", "))
		}
		problems++
	case err != nil:
		return err
	}

	if problems > 0 {
		return errCheckFailed
	}
	fmt.Fprintf(w, "ok: %d rows, ready for export\n", s.Tests().Len())
	return nil
}

// ---------------------------------------------------------------------------
// export
// ---------------------------------------------------------------------------

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a session as a report file",
	}
	cmd.PersistentFlags().String("session", "", "Path to the session document")

	xlsxCmd := &cobra.Command{
		Use:   "xlsx",
		Short: "Export the session as an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, report.FormatXLSX)
		},
	}

	pdfCmd := &cobra.Command{
		Use:   "pdf",
		Short: "Export the session as a PDF report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, report.FormatPDF)
		},
	}
	pdfCmd.Flags().String("logo", "", "Logo image (overrides LOGO_PATH)")
	pdfCmd.Flags().String("watermark", "", "Watermark image (overrides WATERMARK_PATH)")

	cmd.AddCommand(xlsxCmd)
	cmd.AddCommand(pdfCmd)
	return cmd
}

func runExport(cmd *cobra.Command, format report.Format) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("session")
	if path == "" {
		return fmt.Errorf("--session is required")
	}
	s, err := a.loadSession(path)
	if err != nil {
		return err
	}

	logo, _ := cmd.Flags().GetString("logo")
	watermark, _ := cmd.Flags().GetString("watermark")
	e, err := a.exporter(logo, watermark)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta, err := e.Export(ctx, format, s)
	var missing *report.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		return err
	case errors.Is(err, report.ErrRenderFailed):
		return fmt.Errorf("the %s report could not be generated, see the log for details", format)
	case err != nil:
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), meta.Path)
	return nil
}

// ---------------------------------------------------------------------------
// reports
// ---------------------------------------------------------------------------

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Manage the reports in the output directory",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			items, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return printReports(cmd.OutOrStdout(), items)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show the metadata of a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			meta, err := store.Stat(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "id:           %s\n", meta.ID)
			fmt.Fprintf(w, "path:         %s\n", meta.Path)
			fmt.Fprintf(w, "content type: %s\n", meta.ContentType)
			fmt.Fprintf(w, "size:         %d\n", meta.Size)
			fmt.Fprintf(w, "sha256:       %s\n", meta.Hash)
			fmt.Fprintf(w, "created:      %s\n", meta.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}

	copyCmd := &cobra.Command{
		Use:   "copy ID DEST",
		Short: "Copy a stored report to DEST (never overwrites)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			return copyReport(cmd, store, args[0], args[1])
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm ID...",
		Short: "Delete stored reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, copyCmd, rmCmd)
	return cmd
}

func openStore(cmd *cobra.Command) (filestore.Store, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, err
	}
	return a.store()
}

func printReports(w io.Writer, items []*filestore.Metadata) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tCREATED\tSHA256")
	for _, m := range items {
		hash := m.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", m.ID, m.Size, m.CreatedAt.Format("2006-01-02 15:04:05"), hash)
	}
	return tw.Flush()
}

func copyReport(cmd *cobra.Command, store filestore.Store, id, dest string) error {
	rc, meta, err := store.Open(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	defer rc.Close()

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, meta.FileName)
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("copy %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), dest)
	return nil
}
