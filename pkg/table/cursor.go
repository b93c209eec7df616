package table

import (
	"errors"

	"tuple-db/pkg/row"
)

var ErrEndOfTable = errors.New("cursor is past the last row")

// Cursor walks the rows of a table in order.
// Each call locks the table on its own; rows appended while a cursor is
// open become visible to it.
type Cursor struct {
	table  *Table
	rowNum int
}

// Start returns a cursor at the first row
func (t *Table) Start() *Cursor {
	return t.start()
}

func (t *Table) start() *Cursor {
	return &Cursor{table: t}
}

// End returns a cursor positioned one past the last row, where the next
// append will land
func (t *Table) End() (*Cursor, error) {
	n, err := t.RowCount()
	if err != nil {
		return nil, err
	}
	return &Cursor{table: t, rowNum: n}, nil
}

// RowNum returns the row the cursor points at
func (c *Cursor) RowNum() int {
	return c.rowNum
}

// EndOfTable reports whether the cursor is past the last row
func (c *Cursor) EndOfTable() (bool, error) {
	var end bool
	err := c.table.withLock(func() error {
		end = c.endOfTable()
		return nil
	})
	return end, err
}

func (c *Cursor) endOfTable() bool {
	return c.rowNum >= c.table.rowCount
}

// Value decodes the row under the cursor
func (c *Cursor) Value() (row.Row, error) {
	var r row.Row
	err := c.table.withLock(func() error {
		if c.endOfTable() {
			return ErrEndOfTable
		}
		var err error
		r, err = c.value()
		return err
	})
	return r, err
}

func (c *Cursor) value() (row.Row, error) {
	slot, err := c.table.rowSlot(c.rowNum)
	if err != nil {
		return row.Row{}, err
	}
	return row.Decode(slot.Bytes())
}

// Advance moves the cursor to the next row
func (c *Cursor) Advance() {
	c.advance()
}

func (c *Cursor) advance() {
	c.rowNum++
}
