package store

import (
	"database/sql"
	"fmt"
)

// Cursor streams Rows from an underlying *sql.Rows without
// materializing the full result set in memory; every renderer depends
// on that bound.
type Cursor struct {
	rows *sql.Rows
	cols []string
}

// Next scans the next row, or returns (nil, nil) at end of result set.
func (c *Cursor) Next() (*Row, error) {
	if !c.rows.Next() {
		return nil, c.rows.Err()
	}

	dest := make([]any, len(c.cols))
	ptrs := make([]any, len(c.cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("store: scan: %w", err)
	}

	row := NewRow()
	for i, col := range c.cols {
		row.Values[col] = dest[i]
	}
	return row, nil
}

func (c *Cursor) Close() error { return c.rows.Close() }
