// Package backup writes compressed copies of a database image.
//
// A backup holds exactly the bytes a save would write, compressed with
// snappy (framed) or xz. The BLAKE3 digest of the uncompressed image is
// returned so a copy can be checked after it is restored.
package backup

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
)

// Codec selects the compression of a backup
type Codec int

const (
	Snappy Codec = iota
	XZ
)

var ErrUnknownCodec = errors.New("unknown backup codec")

func (c Codec) String() string {
	switch c {
	case Snappy:
		return "snappy"
	case XZ:
		return "xz"
	default:
		return fmt.Sprintf("codec(%d)", int(c))
	}
}

// ParseCodec parses a codec name; the empty string selects snappy
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return Snappy, nil
	case "xz":
		return XZ, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Digest is the BLAKE3-256 digest of an uncompressed image
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest parses a hex encoded digest
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest: %w", err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("invalid digest: got %d bytes, want %d", len(b), len(d))
	}
	copy(d[:], b)
	return d, nil
}

// Sum returns the digest of an uncompressed image
func Sum(image []byte) Digest {
	return Digest(blake3.Sum256(image))
}

// Write creates path and fills it with the compressed output of snapshot
func Write(path string, codec Codec, snapshot func(w io.Writer) error) (Digest, error) {
	file, err := os.Create(path)
	if err != nil {
		return Digest{}, fmt.Errorf("failed to create backup: %w", err)
	}

	digest, err := writeTo(file, codec, snapshot)
	if err != nil {
		file.Close()
		os.Remove(path)
		return Digest{}, err
	}
	if err := file.Close(); err != nil {
		return Digest{}, fmt.Errorf("failed to close backup: %w", err)
	}
	return digest, nil
}

func writeTo(dst io.Writer, codec Codec, snapshot func(w io.Writer) error) (Digest, error) {
	var zw io.WriteCloser
	switch codec {
	case Snappy:
		zw = snappy.NewBufferedWriter(dst)
	case XZ:
		w, err := xz.NewWriter(dst)
		if err != nil {
			return Digest{}, fmt.Errorf("failed to create xz writer: %w", err)
		}
		zw = w
	default:
		return Digest{}, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}

	hasher := blake3.New()
	if err := snapshot(io.MultiWriter(zw, hasher)); err != nil {
		zw.Close()
		return Digest{}, fmt.Errorf("failed to write image: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Digest{}, fmt.Errorf("failed to finish %s stream: %w", codec, err)
	}

	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d, nil
}

type readCloser struct {
	io.Reader
	file *os.File
}

func (r *readCloser) Close() error {
	return r.file.Close()
}

// Open returns a reader over the uncompressed image stored at path
func Open(path string, codec Codec) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}

	var r io.Reader
	switch codec {
	case Snappy:
		r = snappy.NewReader(file)
	case XZ:
		r, err = xz.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to read xz header: %w", err)
		}
	default:
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}
	return &readCloser{Reader: r, file: file}, nil
}

// Restore decompresses the backup at src into a database file at dst and
// checks its digest
func Restore(src string, codec Codec, dst string, want Digest) error {
	r, err := Open(src, codec)
	if err != nil {
		return err
	}
	defer r.Close()

	image, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to decompress backup: %w", err)
	}
	if got := Sum(image); got != want {
		return fmt.Errorf("backup digest mismatch: got %s, want %s", got, want)
	}
	if err := os.WriteFile(dst, image, 0644); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}
	return nil
}
