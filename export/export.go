// Package export serializes a columnar batch result to tabular formats: CSV
// (two files), XLSX (two sheets) or SQLite (two tables). One row per document
// for root fields, one row per line item for concept fields.
package export

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"cfx/batch"
	"cfx/common"
	"cfx/config"
)

// Write serializes the columnar result to dst in the requested format and
// returns paths of every file it produced.
func Write(c *batch.Columnar, dst, base string, format common.OutputFmt, log *zap.Logger) ([]string, error) {
	switch format {
	case common.OutputFmtCSV:
		return writeCSV(c, dst, base, log)
	case common.OutputFmtXLSX:
		return writeXLSX(c, dst, base, log)
	case common.OutputFmtSQLite:
		return writeSQLite(c, dst, base, log)
	default:
		// this should never happen
		return nil, fmt.Errorf("unsupported output format %s", format)
	}
}

// TargetPaths reports paths Write would produce for dst, base and format,
// so callers can refuse to clobber existing results.
func TargetPaths(dst, base string, format common.OutputFmt) []string {
	switch format {
	case common.OutputFmtCSV:
		return []string{
			filepath.Join(dst, base+"-documentos.csv"),
			filepath.Join(dst, base+"-conceptos.csv"),
		}
	case common.OutputFmtXLSX:
		return []string{filepath.Join(dst, base+".xlsx")}
	case common.OutputFmtSQLite:
		return []string{filepath.Join(dst, base+".db")}
	default:
		return nil
	}
}

// BaseName derives a safe output base name from the source path or name.
func BaseName(src string) string {
	base := slug.Make(src)
	if base == "" {
		base = "cfdi"
	}
	return config.CleanFileName(base)
}

// cell renders a single value for text based formats. Absence renders empty.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
