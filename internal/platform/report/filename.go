package report

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// FileName returns OPD<reg>_<Name_With_Underscores>_<YYYY-MM-DD>_<HHMMSS>.<ext>.
// Missing registration number and name fall back to "Unknown" and "Report".
func FileName(m *Model, ext string) string {
	reg := sanitize(m.RegNo)
	if reg == "" {
		reg = "Unknown"
	}
	name := sanitize(whitespace.ReplaceAllString(strings.TrimSpace(m.Name), "_"))
	if name == "" {
		name = "Report"
	}
	return fmt.Sprintf("OPD%s_%s_%s.%s", reg, name, m.Date.Format("2006-01-02_150405"), strings.TrimPrefix(ext, "."))
}

func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(strings.TrimSpace(s), "")
}
