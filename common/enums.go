// Enums live in their own package so configuration, exporters and the CLI can
// share them without import cycles.
package common

import (
	"fmt"
	"strings"
)

// Specification of requested output type.
type OutputFmt int

const (
	OutputFmtCSV OutputFmt = iota
	OutputFmtXLSX
	OutputFmtSQLite
)

var outputFmtNames = []string{"csv", "xlsx", "sqlite"}

func (o OutputFmt) String() string {
	if o < 0 || int(o) >= len(outputFmtNames) {
		return fmt.Sprintf("OutputFmt(%d)", int(o))
	}
	return outputFmtNames[o]
}

func (o OutputFmt) Ext() string {
	switch o {
	case OutputFmtCSV:
		return ".csv"
	case OutputFmtXLSX:
		return ".xlsx"
	case OutputFmtSQLite:
		return ".db"
	default:
		// this should never happen
		panic("unsupported format requested")
	}
}

// OutputFmtNames returns names of all supported output formats.
func OutputFmtNames() []string {
	names := make([]string, len(outputFmtNames))
	copy(names, outputFmtNames)
	return names
}

// ParseOutputFmt converts format name to OutputFmt value.
func ParseOutputFmt(name string) (OutputFmt, error) {
	for i, n := range outputFmtNames {
		if strings.EqualFold(name, n) {
			return OutputFmt(i), nil
		}
	}
	return OutputFmtCSV, fmt.Errorf("unknown output format %q", name)
}
