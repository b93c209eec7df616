package pager

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"tuple-db/internal/common"
)

func writeImageFile(t *testing.T, header uint64, pages ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, header)
	for _, page := range pages {
		buf.Write(page)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestNewPager(t *testing.T) {
	p := New()
	defer p.Close()

	if p.FilePath() != "" {
		t.Errorf("Expected no backing file, got %q", p.FilePath())
	}
	if p.CacheSize() != 0 {
		t.Errorf("Expected 0 resident pages, got %d", p.CacheSize())
	}
	if p.CacheCapacity() != common.MaxPages {
		t.Errorf("Expected capacity %d, got %d", common.MaxPages, p.CacheCapacity())
	}
}

func TestOpenCreatesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	p, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	if p.FilePath() != dbPath {
		t.Errorf("Expected path %s, got %s", dbPath, p.FilePath())
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Expected file to exist: %v", err)
	}

	header, err := p.ReadHeader()
	if err != nil {
		t.Fatalf("Failed to read header: %v", err)
	}
	if header != 0 {
		t.Errorf("Expected header 0, got %d", header)
	}
}

func TestGetPageIsIdempotent(t *testing.T) {
	p := New()

	page, err := p.GetPage(3)
	if err != nil {
		t.Fatalf("Failed to get page: %v", err)
	}
	page.Data[0] = 0xAB

	again, err := p.GetPage(3)
	if err != nil {
		t.Fatalf("Failed to get page: %v", err)
	}
	if again != page {
		t.Error("Expected the same resident page")
	}
	if again.Data[0] != 0xAB {
		t.Errorf("Expected modification to persist, got %d", again.Data[0])
	}

	hits, misses, _ := p.CacheStats()
	if hits != 1 || misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestPageOutOfBounds(t *testing.T) {
	p := New()

	_, err := p.GetPage(common.MaxPages)
	if !errors.Is(err, ErrMaxPageExceeded) {
		t.Errorf("Expected ErrMaxPageExceeded, got %v", err)
	}

	if _, err := p.GetPage(common.MaxPages - 1); err != nil {
		t.Errorf("Expected last page to be valid, got %v", err)
	}
}

func TestLazyLoadFromFile(t *testing.T) {
	page0 := make([]byte, common.PageSize)
	copy(page0, "Hello, pager!")
	dbPath := writeImageFile(t, 1, page0)

	p, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	if p.cache.Contains(0) {
		t.Error("Expected page 0 to be absent before access")
	}

	page, err := p.GetPage(0)
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if string(page.Data[:13]) != "Hello, pager!" {
		t.Errorf("Data mismatch: got %q", page.Data[:13])
	}
	if !p.cache.Contains(0) {
		t.Error("Expected page 0 to be resident")
	}
}

func TestLazyLoadBeyondEOF(t *testing.T) {
	// One short page: the file ends partway through page 0
	dbPath := writeImageFile(t, 1, []byte("abc"))

	p, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	page, err := p.GetPage(0)
	if err != nil {
		t.Fatalf("Short read should not fail: %v", err)
	}
	if string(page.Data[:3]) != "abc" {
		t.Errorf("Expected partial data, got %q", page.Data[:3])
	}
	if !bytes.Equal(page.Data[3:], make([]byte, common.PageSize-3)) {
		t.Error("Expected zero padding after short read")
	}

	page, err = p.GetPage(5)
	if err != nil {
		t.Fatalf("Page beyond EOF should not fail: %v", err)
	}
	if page.Data != [common.PageSize]byte{} {
		t.Error("Expected page beyond EOF to be zeroed")
	}
}

func TestReadHeaderShort(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := os.WriteFile(dbPath, []byte{0, 0, 1}, 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	p, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}
	defer p.Close()

	if _, err := p.ReadHeader(); !errors.Is(err, ErrShortHeader) {
		t.Errorf("Expected ErrShortHeader, got %v", err)
	}
}

func TestSaveWithoutFile(t *testing.T) {
	p := New()

	if err := p.SaveToDisk("", 0, 0); !errors.Is(err, ErrNoFileToWrite) {
		t.Errorf("Expected ErrNoFileToWrite, got %v", err)
	}
}

func TestSaveToPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	p := New()

	for i := uint32(0); i < 3; i++ {
		page, err := p.GetPage(i)
		if err != nil {
			t.Fatalf("Failed to get page %d: %v", i, err)
		}
		page.Data[0] = byte(i + 1)
	}

	if err := p.SaveToDisk(dbPath, 7, 3); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	data, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if len(data) != common.HeaderSize+3*common.PageSize {
		t.Fatalf("Expected file size %d, got %d", common.HeaderSize+3*common.PageSize, len(data))
	}
	if got := binary.BigEndian.Uint64(data[:8]); got != 7 {
		t.Errorf("Expected header 7, got %d", got)
	}
	for i := 0; i < 3; i++ {
		if b := data[common.HeaderSize+i*common.PageSize]; b != byte(i+1) {
			t.Errorf("Page %d: expected first byte %d, got %d", i, i+1, b)
		}
	}
}

func TestSaveFillsHoles(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	p := New()

	page, err := p.GetPage(2)
	if err != nil {
		t.Fatalf("Failed to get page: %v", err)
	}
	page.Data[0] = 9

	if err := p.SaveToDisk(dbPath, 0, 0); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetPage(2)
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if got.Data[0] != 9 {
		t.Errorf("Expected page 2 at its own offset, got first byte %d", got.Data[0])
	}
}

func TestSaveToBackingFileKeepsUnloadedPages(t *testing.T) {
	page0 := make([]byte, common.PageSize)
	page1 := make([]byte, common.PageSize)
	page0[0], page1[0] = 1, 2
	dbPath := writeImageFile(t, 20, page0, page1)

	p, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open pager: %v", err)
	}

	page, err := p.GetPage(1)
	if err != nil {
		t.Fatalf("Failed to get page: %v", err)
	}
	page.Data[1] = 22

	if err := p.SaveToDisk("", 20, 2); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	p.Close()

	data, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if len(data) != common.HeaderSize+2*common.PageSize {
		t.Fatalf("Unexpected file size %d", len(data))
	}
	if data[common.HeaderSize] != 1 {
		t.Error("Page 0 was lost during save")
	}
	if data[common.HeaderSize+common.PageSize+1] != 22 {
		t.Error("Page 1 modification was not saved")
	}
}

func TestWriteImage(t *testing.T) {
	p := New()
	if _, err := p.GetPage(0); err != nil {
		t.Fatalf("Failed to get page: %v", err)
	}

	var buf bytes.Buffer
	if err := p.WriteImage(&buf, 3, 1); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}
	if buf.Len() != common.HeaderSize+common.PageSize {
		t.Errorf("Unexpected image size %d", buf.Len())
	}
}

// shortWriter accepts half of each write, reporting err
type shortWriter struct {
	err error
}

func (w shortWriter) Write(b []byte) (int, error) {
	return len(b) / 2, w.err
}

func TestWriteImageShortWrite(t *testing.T) {
	t.Run("should keep the writer's error", func(t *testing.T) {
		err := New().WriteImage(shortWriter{err: io.ErrShortWrite}, 0, 1)
		if !errors.Is(err, ErrNotAllBytesWritten) {
			t.Errorf("Expected ErrNotAllBytesWritten, got %v", err)
		}
		if !errors.Is(err, io.ErrShortWrite) {
			t.Errorf("Expected io.ErrShortWrite in chain, got %v", err)
		}
	})

	t.Run("should fail when the writer reports no error", func(t *testing.T) {
		err := New().WriteImage(shortWriter{}, 0, 1)
		if !errors.Is(err, ErrNotAllBytesWritten) {
			t.Errorf("Expected ErrNotAllBytesWritten, got %v", err)
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(b []byte) (int, error) {
	return len(b), errors.New("device gone")
}

func TestWriteImageFullWriteWithError(t *testing.T) {
	err := New().WriteImage(failingWriter{}, 0, 1)
	if err == nil || errors.Is(err, ErrNotAllBytesWritten) {
		t.Errorf("Expected plain write error, got %v", err)
	}
}

func TestClosedPager(t *testing.T) {
	p := New()
	if err := p.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	if _, err := p.GetPage(0); !errors.Is(err, ErrFileClosed) {
		t.Errorf("Expected ErrFileClosed, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}
