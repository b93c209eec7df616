package pager

import (
	"errors"
	"fmt"

	"tuple-db/internal/common"
)

var ErrViewOutOfBounds = errors.New("view out of bounds")

// Page represents a single page of data
type Page struct {
	Data [common.PageSize]byte
}

// NewPage creates a new empty page
func NewPage() *Page {
	return &Page{}
}

// View returns a view over the whole page
func (p *Page) View() View {
	return NewView(p.Data[:])
}

// View is a bounds-checked window into a buffer owned by someone else.
// It never copies; Bytes aliases the owner.
type View struct {
	owner []byte
	start int
	n     int
}

// NewView returns a view covering all of buf
func NewView(buf []byte) View {
	return View{owner: buf, start: 0, n: len(buf)}
}

// Len returns the length of the view
func (v View) Len() int {
	return v.n
}

// Start returns the offset of the view inside its owner
func (v View) Start() int {
	return v.start
}

// Bytes returns the viewed bytes. Writes go straight to the owner.
func (v View) Bytes() []byte {
	return v.owner[v.start : v.start+v.n : v.start+v.n]
}

// Slice narrows the view to [off, off+n) relative to its current start
func (v View) Slice(off, n int) (View, error) {
	if off < 0 || n < 0 || off+n > v.n {
		return View{}, fmt.Errorf("%w: [%d,%d) in view of %d bytes", ErrViewOutOfBounds, off, off+n, v.n)
	}
	return View{owner: v.owner, start: v.start + off, n: n}, nil
}

// Advance moves the start of the view forward by k bytes, keeping its end
// inside the owner. The length shrinks when it would run past the owner.
func (v View) Advance(k int) (View, error) {
	if k < 0 || v.start+k > len(v.owner) {
		return View{}, fmt.Errorf("%w: advance %d from %d in owner of %d bytes", ErrViewOutOfBounds, k, v.start, len(v.owner))
	}
	start := v.start + k
	return View{owner: v.owner, start: start, n: min(v.n, len(v.owner)-start)}, nil
}

// SetLen resizes the view, which may grow up to the end of the owner
func (v View) SetLen(n int) (View, error) {
	if n < 0 || v.start+n > len(v.owner) {
		return View{}, fmt.Errorf("%w: length %d from %d in owner of %d bytes", ErrViewOutOfBounds, n, v.start, len(v.owner))
	}
	return View{owner: v.owner, start: v.start, n: n}, nil
}
