package export

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"cfx/batch"
)

// writeXLSX produces a single workbook with a Documentos sheet (one row per
// document) and a Conceptos sheet (one row per line item).
func writeXLSX(c *batch.Columnar, dst, base string, log *zap.Logger) ([]string, error) {
	path := filepath.Join(dst, base+".xlsx")

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Documentos"); err != nil {
		return nil, err
	}
	if err := writeSheet(f, "Documentos", c.FieldNames(), c.Fields); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet("Conceptos"); err != nil {
		return nil, err
	}
	if err := writeSheet(f, "Conceptos", c.ConceptoNames(), c.Conceptos); err != nil {
		return nil, err
	}

	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("unable to save workbook: %w", err)
	}
	log.Debug("Workbook written", zap.String("file", path))
	return []string{path}, nil
}

func writeSheet(f *excelize.File, sheet string, names []string, columns map[string][]any) error {
	for i, name := range names {
		cellName, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cellName, name); err != nil {
			return err
		}
	}

	for row := range tableRows(names, columns) {
		for i, name := range names {
			v := columns[name][row]
			if v == nil {
				continue
			}
			cellName, err := excelize.CoordinatesToCellName(i+1, row+2)
			if err != nil {
				return err
			}
			switch t := v.(type) {
			case string, float64, int64:
				err = f.SetCellValue(sheet, cellName, t)
			default:
				// nested structures keep their debug rendering
				err = f.SetCellValue(sheet, cellName, cell(v))
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
