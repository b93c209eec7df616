package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"tuple-db/internal/common"
)

var (
	ErrMaxPageExceeded    = errors.New("max page exceeded")
	ErrFileClosed         = errors.New("pager file is closed")
	ErrNoFileToWrite      = errors.New("no file to write provided")
	ErrNotAllBytesWritten = errors.New("not all bytes were written")
	ErrShortHeader        = errors.New("file is too short to hold a header")
)

// Pager loads fixed-size pages from an optional backing file and keeps
// every page it has loaded in memory until it is closed.
//
// A Pager is not safe for concurrent use; callers serialize access.
type Pager struct {
	file     *os.File
	filePath string
	cache    *SlotCache
	closed   bool
}

// New creates a Pager with no backing file. Every page starts zeroed.
func New() *Pager {
	return &Pager{cache: NewSlotCache()}
}

// Open creates a Pager backed by the file at filePath
// If the file doesn't exist, it will be created
func Open(filePath string) (*Pager, error) {
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &Pager{
		file:     file,
		filePath: filePath,
		cache:    NewSlotCache(),
	}, nil
}

// GetPage returns the page for pageNum, loading it on first access.
// The returned page stays owned by the pager.
func (p *Pager) GetPage(pageNum uint32) (*Page, error) {
	if p.closed {
		return nil, ErrFileClosed
	}

	if pageNum >= common.MaxPages {
		return nil, fmt.Errorf("%w: page %d, max %d", ErrMaxPageExceeded, pageNum, common.MaxPages)
	}

	if page := p.cache.Get(pageNum); page != nil {
		return page, nil
	}

	page := NewPage()
	if p.file != nil {
		offset := int64(common.HeaderSize) + int64(pageNum)*common.PageSize
		// A page past the end of the file keeps its zero padding
		_, err := p.file.ReadAt(page.Data[:], offset)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("failed to read page %d: %w", pageNum, err)
		}
	}

	p.cache.Put(pageNum, page)
	return page, nil
}

// ReadHeader returns the row count stored at the start of the backing file.
// An empty or missing file has a row count of 0.
func (p *Pager) ReadHeader() (uint64, error) {
	if p.closed {
		return 0, ErrFileClosed
	}
	if p.file == nil {
		return 0, nil
	}

	var buf [common.HeaderSize]byte
	n, err := p.file.ReadAt(buf[:], 0)
	switch {
	case n == common.HeaderSize:
		return binary.BigEndian.Uint64(buf[:]), nil
	case n == 0 && errors.Is(err, io.EOF):
		return 0, nil
	case errors.Is(err, io.EOF):
		return 0, fmt.Errorf("%w: got %d bytes", ErrShortHeader, n)
	default:
		return 0, fmt.Errorf("failed to read header: %w", err)
	}
}

// FileSize returns the size of the backing file, or 0 without one
func (p *Pager) FileSize() (int64, error) {
	if p.file == nil {
		return 0, nil
	}
	stat, err := p.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return stat.Size(), nil
}

// materialize loads every page that an image of the given page count must
// contain: at least pages, and every slot up to the highest resident one.
// Absent slots below that are read in so the image has no holes.
func (p *Pager) materialize(pages int) ([]*Page, error) {
	if pages > common.MaxPages {
		return nil, fmt.Errorf("%w: image of %d pages", ErrMaxPageExceeded, pages)
	}
	n := max(pages, p.cache.Highest()+1)

	out := make([]*Page, 0, n)
	for i := 0; i < n; i++ {
		page, err := p.GetPage(uint32(i))
		if err != nil {
			return nil, err
		}
		out = append(out, page)
	}
	return out, nil
}

// WriteImage writes the on-disk image (header followed by pages) to w
func (p *Pager) WriteImage(w io.Writer, header uint64, pages int) error {
	if p.closed {
		return ErrFileClosed
	}
	image, err := p.materialize(pages)
	if err != nil {
		return err
	}
	return writeImage(w, header, image)
}

func writeImage(w io.Writer, header uint64, pages []*Page) error {
	var buf [common.HeaderSize]byte
	binary.BigEndian.PutUint64(buf[:], header)
	if err := writeFull(w, buf[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, page := range pages {
		if err := writeFull(w, page.Data[:]); err != nil {
			return fmt.Errorf("failed to write page %d: %w", i, err)
		}
	}
	return nil
}

func writeFull(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if n < len(b) {
		if err == nil {
			err = io.ErrShortWrite
		}
		return fmt.Errorf("%w: %d of %d: %w", ErrNotAllBytesWritten, n, len(b), err)
	}
	return err
}

// SaveToDisk rewrites the whole image. With an empty path it targets the
// backing file, truncated first; otherwise path is created or truncated.
// Every resident page is written, dirty or not.
func (p *Pager) SaveToDisk(path string, header uint64, pages int) error {
	if p.closed {
		return ErrFileClosed
	}
	if path == "" && p.file == nil {
		return ErrNoFileToWrite
	}

	// Load before truncating anything: path may be the backing file
	image, err := p.materialize(pages)
	if err != nil {
		return err
	}

	if path == "" {
		return p.saveToBackingFile(header, image)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := writeImage(file, header, image); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	return file.Close()
}

func (p *Pager) saveToBackingFile(header uint64, image []*Page) error {
	if err := p.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate file: %w", err)
	}
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind file: %w", err)
	}
	if err := writeImage(p.file, header, image); err != nil {
		return err
	}
	return p.file.Sync()
}

// Close closes the backing file. Nothing is flushed.
func (p *Pager) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.file == nil {
		return nil
	}
	return p.file.Close()
}

// FilePath returns the path to the backing file, or "" without one
func (p *Pager) FilePath() string {
	return p.filePath
}

// CacheStats returns cache hit/miss statistics
func (p *Pager) CacheStats() (hits, misses uint64, hitRate float64) {
	hits, misses = p.cache.Stats()
	hitRate = p.cache.HitRate()
	return
}

// CacheSize returns the current number of resident pages
func (p *Pager) CacheSize() int {
	return p.cache.Size()
}

// CacheCapacity returns the maximum number of resident pages
func (p *Pager) CacheCapacity() int {
	return p.cache.Capacity()
}
