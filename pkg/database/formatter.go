package database

import (
	"fmt"

	"heapstore/pkg/tuple"
)

// QueryResult is a table scan turned into printable rows.
type QueryResult struct {
	Columns []string
	Rows    [][]string
	Message string
}

// FormatTuples renders tuples of schema td as strings. Unnamed columns are
// called col_0, col_1, ...
func FormatTuples(td *tuple.TupleDescription, tuples []*tuple.Tuple) QueryResult {
	numFields := td.NumFields()
	columns := make([]string, numFields)
	for i := range numFields {
		name, _ := td.GetFieldName(i)
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		columns[i] = name
	}

	rows := make([][]string, 0, len(tuples))
	for _, t := range tuples {
		row := make([]string, numFields)
		for i := range numFields {
			field, err := t.GetField(i)
			if err != nil || field == nil {
				row[i] = "NULL"
			} else {
				row[i] = field.String()
			}
		}
		rows = append(rows, row)
	}

	return QueryResult{
		Columns: columns,
		Rows:    rows,
		Message: fmt.Sprintf("%d row(s) returned", len(rows)),
	}
}
