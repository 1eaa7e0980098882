package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"cfx/batch"
)

// writeSQLite produces a single database with documentos and conceptos
// tables. Columns keep sqlite's dynamic typing so coerced numerics stay
// numeric and everything else stays text.
func writeSQLite(c *batch.Columnar, dst, base string, log *zap.Logger) (_ []string, err error) {
	path := filepath.Join(dst, base+".db")

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("unable to create database: %w", err)
	}
	defer conn.Close()

	defer sqlitex.Save(conn)(&err)

	if err := writeTable(conn, "documentos", c.FieldNames(), c.Fields); err != nil {
		return nil, err
	}
	if err := writeTable(conn, "conceptos", c.ConceptoNames(), c.Conceptos); err != nil {
		return nil, err
	}

	log.Debug("Database written", zap.String("file", path))
	return []string{path}, nil
}

func writeTable(conn *sqlite.Conn, table string, names []string, columns map[string][]any) error {
	if len(names) == 0 {
		return nil
	}

	quoted := make([]string, len(names))
	marks := make([]string, len(names))
	for i, name := range names {
		quoted[i] = `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
		marks[i] = "?"
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(quoted, ", "))
	if err := sqlitex.ExecuteTransient(conn, create, nil); err != nil {
		return err
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))

	for row := range tableRows(names, columns) {
		args := make([]any, len(names))
		for i, name := range names {
			switch v := columns[name][row].(type) {
			case nil, string, float64, int64:
				args[i] = v
			default:
				// nested structures keep their debug rendering
				args[i] = cell(v)
			}
		}
		if err := sqlitex.Execute(conn, insert, &sqlitex.ExecOptions{Args: args}); err != nil {
			return err
		}
	}
	return nil
}
