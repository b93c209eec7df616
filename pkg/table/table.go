// Package table maps row numbers onto pager pages.
//
// Row i lives on page i/RowsPerPage at byte offset (i%RowsPerPage)*row.Size.
// Rows are append-only, so a row's location never changes.
//
// Every operation runs as one critical section over the pager and the row
// count. A panic inside a critical section poisons the table and every
// later call fails with ErrPoisoned.
package table

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"tuple-db/internal/common"
	"tuple-db/pkg/pager"
	"tuple-db/pkg/row"
)

const (
	// RowsPerPage is the number of rows packed into a page
	RowsPerPage = common.PageSize / row.Size

	// MaxRows is the capacity of a table
	MaxRows = RowsPerPage * common.MaxPages
)

var (
	ErrTableFull     = errors.New("table full")
	ErrPoisoned      = errors.New("table lock poisoned")
	ErrCorruptHeader = errors.New("file header is corrupted")
)

// RowError reports a failure to read one row during a scan
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Table is an append-only sequence of fixed-width rows
type Table struct {
	mu       sync.Mutex
	poisoned bool
	pager    *pager.Pager
	rowCount int
}

// New creates an empty table with no backing file
func New() *Table {
	return &Table{pager: pager.New()}
}

// Open creates a table backed by the file at path, reading its row count
// from the file header. A missing file is created empty.
func Open(path string) (*Table, error) {
	p, err := pager.Open(path)
	if err != nil {
		return nil, err
	}

	t, err := fromPager(p)
	if err != nil {
		p.Close()
		return nil, err
	}
	return t, nil
}

func fromPager(p *pager.Pager) (*Table, error) {
	header, err := p.ReadHeader()
	if err != nil {
		return nil, err
	}
	if header > MaxRows {
		return nil, fmt.Errorf("%w: row count %d exceeds %d", ErrCorruptHeader, header, MaxRows)
	}

	size, err := p.FileSize()
	if err != nil {
		return nil, err
	}
	if body := size - common.HeaderSize; body > 0 && body%common.PageSize != 0 {
		slog.Warn("database file ends with a partial page",
			"path", p.FilePath(),
			"size", size,
		)
	}
	if rows := int(header); rows > 0 && int64(pagesFor(rows))*common.PageSize > size-common.HeaderSize {
		slog.Warn("database file is shorter than its row count",
			"path", p.FilePath(),
			"rows", rows,
			"size", size,
		)
	}

	return &Table{pager: p, rowCount: int(header)}, nil
}

// Locate returns the page number and byte offset of row i
func Locate(i int) (pageNum uint32, offset int) {
	return uint32(i / RowsPerPage), (i % RowsPerPage) * row.Size
}

func pagesFor(rows int) int {
	return (rows + RowsPerPage - 1) / RowsPerPage
}

func (t *Table) lock() error {
	t.mu.Lock()
	if t.poisoned {
		t.mu.Unlock()
		return ErrPoisoned
	}
	return nil
}

// unlock must be deferred directly so that it can observe a panic
func (t *Table) unlock() {
	if r := recover(); r != nil {
		t.poisoned = true
		t.mu.Unlock()
		panic(r)
	}
	t.mu.Unlock()
}

// withLock runs fn as one critical section
func (t *Table) withLock(fn func() error) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()
	return fn()
}

// RowCount returns the number of rows in the table
func (t *Table) RowCount() (int, error) {
	var n int
	err := t.withLock(func() error {
		n = t.rowCount
		return nil
	})
	return n, err
}

// GetRow decodes row i. ok is false when i is past the last row.
func (t *Table) GetRow(i int) (r row.Row, ok bool, err error) {
	err = t.withLock(func() error {
		r, ok, err = t.getRow(i)
		return err
	})
	return r, ok, err
}

func (t *Table) getRow(i int) (row.Row, bool, error) {
	if i < 0 || i >= t.rowCount {
		return row.Row{}, false, nil
	}

	slot, err := t.rowSlot(i)
	if err != nil {
		return row.Row{}, true, err
	}
	r, err := row.Decode(slot.Bytes())
	if err != nil {
		return row.Row{}, true, err
	}
	return r, true, nil
}

// rowSlot returns the bytes of row i inside its page
func (t *Table) rowSlot(i int) (pager.View, error) {
	pageNum, offset := Locate(i)
	page, err := t.pager.GetPage(pageNum)
	if err != nil {
		return pager.View{}, err
	}
	return page.View().Slice(offset, row.Size)
}

// WriteRow appends r as the next row
func (t *Table) WriteRow(r row.Row) error {
	return t.withLock(func() error {
		if t.rowCount >= MaxRows {
			return ErrTableFull
		}

		slot, err := t.rowSlot(t.rowCount)
		if err != nil {
			return err
		}
		if err := row.EncodeInto(slot.Bytes(), r); err != nil {
			return err
		}
		t.rowCount++
		return nil
	})
}

// Select returns every row in order. A row that fails to decode is
// skipped and reported in the returned error; the scan keeps going.
func (t *Table) Select() ([]row.Row, error) {
	var (
		rows []row.Row
		errs []error
	)
	err := t.withLock(func() error {
		c := t.start()
		for !c.endOfTable() {
			r, err := c.value()
			if err != nil {
				errs = append(errs, &RowError{Row: c.rowNum, Err: err})
			} else {
				rows = append(rows, r)
			}
			c.advance()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, errors.Join(errs...)
}

// Save writes the table to path, or to its backing file when path is empty
func (t *Table) Save(path string) error {
	return t.withLock(func() error {
		if err := t.pager.SaveToDisk(path, uint64(t.rowCount), pagesFor(t.rowCount)); err != nil {
			return err
		}
		slog.Debug("table saved",
			"path", t.targetPath(path),
			"rows", t.rowCount,
			"pages", t.pager.CacheSize(),
		)
		return nil
	})
}

func (t *Table) targetPath(path string) string {
	if path != "" {
		return path
	}
	return t.pager.FilePath()
}

// Snapshot writes the same image Save would write to w
func (t *Table) Snapshot(w io.Writer) error {
	return t.withLock(func() error {
		return t.pager.WriteImage(w, uint64(t.rowCount), pagesFor(t.rowCount))
	})
}

// Stats describes the table and its page cache
type Stats struct {
	Rows          int
	ResidentPages int
	Capacity      int
	Hits          uint64
	Misses        uint64
	HitRate       float64
}

// Stats returns a snapshot of table statistics
func (t *Table) Stats() (Stats, error) {
	var s Stats
	err := t.withLock(func() error {
		s.Rows = t.rowCount
		s.ResidentPages = t.pager.CacheSize()
		s.Capacity = t.pager.CacheCapacity()
		s.Hits, s.Misses, s.HitRate = t.pager.CacheStats()
		return nil
	})
	return s, err
}

// Close releases the backing file without saving
func (t *Table) Close() error {
	return t.withLock(t.pager.Close)
}
