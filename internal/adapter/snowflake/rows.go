package snowflake

import (
	"database/sql"
	"fmt"
)

// rowsToMaps converts sql.Rows into a slice of maps keyed by column name,
// scanning at most maxRows rows when maxRows is positive.
func rowsToMaps(rows *sql.Rows, maxRows int) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading column names: %w", err)
	}

	var result []map[string]any
	for rows.Next() {
		if maxRows > 0 && len(result) >= maxRows {
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}
