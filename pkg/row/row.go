// Package row implements the fixed-width encoding of a table row.
//
// A row is laid out as
//
//	[0,8)     id, big-endian uint64
//	[8,40)    username, UTF-8, zero padded
//	[40,295)  email, UTF-8, zero padded
package row

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	IDSize       = 8
	UsernameSize = 32
	EmailSize    = 255

	IDOffset       = 0
	UsernameOffset = IDOffset + IDSize
	EmailOffset    = UsernameOffset + UsernameSize

	// Size is the encoded size of every row.
	Size = IDSize + UsernameSize + EmailSize
)

var (
	ErrInvalidBytesSlice = errors.New("invalid bytes slice")
	ErrInvalidUTF8       = errors.New("field is not valid UTF-8")
	ErrInvalidField      = errors.New("invalid field")
)

// StringTooLongError is returned when a text field does not fit its width.
type StringTooLongError struct {
	Field string
	Max   int
}

func (e *StringTooLongError) Error() string {
	return fmt.Sprintf("'%s' is too long, max: '%d'", e.Field, e.Max)
}

// Row is one logical record of the table.
type Row struct {
	ID       uint64
	Username string
	Email    string
}

// New builds a row. It does not validate; see Validate.
func New(id uint64, username, email string) Row {
	return Row{ID: id, Username: username, Email: email}
}

// Validate reports whether r can be encoded without loss.
func (r Row) Validate() error {
	if err := validateField("username", r.Username, UsernameSize); err != nil {
		return err
	}
	return validateField("email", r.Email, EmailSize)
}

func validateField(name, value string, max int) error {
	if len(value) > max {
		return &StringTooLongError{Field: name, Max: max}
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidField, name, ErrInvalidUTF8)
	}
	// Padding is zero bytes, so a NUL would be lost on decode
	if bytes.IndexByte([]byte(value), 0) >= 0 {
		return fmt.Errorf("%w: %s contains a NUL byte", ErrInvalidField, name)
	}
	return nil
}

// Encode returns the fixed-width encoding of r.
func Encode(r Row) ([Size]byte, error) {
	var buf [Size]byte
	if err := EncodeInto(buf[:], r); err != nil {
		return buf, err
	}
	return buf, nil
}

// EncodeInto writes the encoding of r into dst, which must hold at least
// Size bytes. Every byte of dst[:Size] is overwritten.
func EncodeInto(dst []byte, r Row) error {
	if len(dst) < Size {
		return fmt.Errorf("%w: got %d bytes, need %d", ErrInvalidBytesSlice, len(dst), Size)
	}
	if err := r.Validate(); err != nil {
		return err
	}

	binary.BigEndian.PutUint64(dst[IDOffset:UsernameOffset], r.ID)
	putPadded(dst[UsernameOffset:EmailOffset], r.Username)
	putPadded(dst[EmailOffset:Size], r.Email)
	return nil
}

func putPadded(dst []byte, s string) {
	n := copy(dst, s)
	clear(dst[n:])
}

// Decode reads a row from the first Size bytes of b.
func Decode(b []byte) (Row, error) {
	if len(b) < Size {
		return Row{}, fmt.Errorf("%w: got %d bytes, need %d", ErrInvalidBytesSlice, len(b), Size)
	}

	username, err := decodeText("username", b[UsernameOffset:EmailOffset])
	if err != nil {
		return Row{}, err
	}
	email, err := decodeText("email", b[EmailOffset:Size])
	if err != nil {
		return Row{}, err
	}

	return Row{
		ID:       binary.BigEndian.Uint64(b[IDOffset:UsernameOffset]),
		Username: username,
		Email:    email,
	}, nil
}

func decodeText(name string, field []byte) (string, error) {
	field = bytes.TrimRight(field, "\x00")
	if !utf8.Valid(field) {
		return "", fmt.Errorf("decode %s: %w", name, ErrInvalidUTF8)
	}
	return string(field), nil
}

// String renders the row the way the REPL prints it.
func (r Row) String() string {
	return fmt.Sprintf("(%d, %s, %s)", r.ID, r.Username, r.Email)
}
