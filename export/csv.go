package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"cfx/batch"
)

// UTF-8 BOM for Excel compatibility on Windows.
var bom = []byte{0xEF, 0xBB, 0xBF}

// writeCSV produces two files, <base>-documentos.csv with one row per
// document and <base>-conceptos.csv with one row per line item.
func writeCSV(c *batch.Columnar, dst, base string, log *zap.Logger) ([]string, error) {
	documentos := filepath.Join(dst, base+"-documentos.csv")
	if err := writeCSVTable(documentos, c.FieldNames(), c.Fields); err != nil {
		return nil, err
	}
	log.Debug("CSV written", zap.String("file", documentos))

	conceptos := filepath.Join(dst, base+"-conceptos.csv")
	if err := writeCSVTable(conceptos, c.ConceptoNames(), c.Conceptos); err != nil {
		return nil, err
	}
	log.Debug("CSV written", zap.String("file", conceptos))

	return []string{documentos, conceptos}, nil
}

func writeCSVTable(path string, names []string, columns map[string][]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(bom); err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(names); err != nil {
		return err
	}

	for row := range tableRows(names, columns) {
		record := make([]string, len(names))
		for i, name := range names {
			record[i] = cell(columns[name][row])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// tableRows yields row indexes, every column in a columnar table has the same
// length by construction.
func tableRows(names []string, columns map[string][]any) func(func(int) bool) {
	return func(yield func(int) bool) {
		if len(names) == 0 {
			return
		}
		for i := range columns[names[0]] {
			if !yield(i) {
				return
			}
		}
	}
}
