// Package btree describes the byte layout of indexed node pages.
//
// Only the layout is implemented: nodes can be formatted, inspected and have
// their cells addressed, but there is no search, insertion or splitting.
//
// Common node header:
//
//	[0,1)   node kind
//	[1,2)   is root
//	[2,6)   parent page number, big-endian
//
// Leaf node header adds:
//
//	[6,10)  number of cells, big-endian
//
// followed by packed cells of a 4-byte key and a row.Size value.
//
// Table pages are never tagged. They hold rows from byte 0 with no header,
// so Interpret cannot recognize one and callers must know which layout a
// page has.
package btree

import (
	"encoding/binary"
	"errors"
	"fmt"

	"tuple-db/internal/common"
	"tuple-db/pkg/pager"
	"tuple-db/pkg/row"
)

// Layout tells how the bytes of a page are to be interpreted
type Layout uint8

const (
	// FlatRows pages hold rows packed back to back, as the table writes them.
	// The value is never stored in a page.
	FlatRows Layout = iota
	// InternalNode pages hold keys and child pointers
	InternalNode
	// LeafNode pages hold a header followed by key/value cells
	LeafNode
)

func (l Layout) String() string {
	switch l {
	case FlatRows:
		return "flat"
	case InternalNode:
		return "internal"
	case LeafNode:
		return "leaf"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

const (
	NodeTypeSize   = 1
	NodeTypeOffset = 0

	IsRootSize   = 1
	IsRootOffset = NodeTypeOffset + NodeTypeSize

	ParentPointerSize   = 4
	ParentPointerOffset = IsRootOffset + IsRootSize

	CommonNodeHeaderSize = NodeTypeSize + IsRootSize + ParentPointerSize

	LeafNumCellsSize   = 4
	LeafNumCellsOffset = CommonNodeHeaderSize
	LeafHeaderSize     = CommonNodeHeaderSize + LeafNumCellsSize

	LeafSpaceForCells = common.PageSize - LeafHeaderSize
	LeafMaxCells      = LeafSpaceForCells / CellSize
)

var (
	ErrNotANode       = errors.New("page is not a node page")
	ErrNotALeaf       = errors.New("node is not a leaf")
	ErrCellOutOfRange = errors.New("cell number out of range")
)

// Node interprets a page as an indexed node
type Node struct {
	view pager.View
}

// Format writes an empty node header of the given kind into page
func Format(page *pager.Page, kind Layout, root bool, parent uint32) (Node, error) {
	if kind != LeafNode && kind != InternalNode {
		return Node{}, fmt.Errorf("%w: %s", ErrNotANode, kind)
	}
	clear(page.Data[:])

	n := Node{view: page.View()}
	b := n.view.Bytes()
	b[NodeTypeOffset] = byte(kind)
	n.SetRoot(root)
	n.SetParent(parent)
	return n, nil
}

// Interpret reads the node kind from page
func Interpret(page *pager.Page) (Node, error) {
	n := Node{view: page.View()}
	switch n.Kind() {
	case LeafNode, InternalNode:
		return n, nil
	default:
		return Node{}, fmt.Errorf("%w: kind byte %d", ErrNotANode, page.Data[NodeTypeOffset])
	}
}

func (n Node) Kind() Layout {
	return Layout(n.view.Bytes()[NodeTypeOffset])
}

func (n Node) IsRoot() bool {
	return n.view.Bytes()[IsRootOffset] != 0
}

func (n Node) SetRoot(root bool) {
	var v byte
	if root {
		v = 1
	}
	n.view.Bytes()[IsRootOffset] = v
}

func (n Node) Parent() uint32 {
	b := n.view.Bytes()
	return binary.BigEndian.Uint32(b[ParentPointerOffset : ParentPointerOffset+ParentPointerSize])
}

func (n Node) SetParent(parent uint32) {
	b := n.view.Bytes()
	binary.BigEndian.PutUint32(b[ParentPointerOffset:ParentPointerOffset+ParentPointerSize], parent)
}

// NumCells returns the cell count of a leaf
func (n Node) NumCells() (uint32, error) {
	if n.Kind() != LeafNode {
		return 0, ErrNotALeaf
	}
	b := n.view.Bytes()
	return binary.BigEndian.Uint32(b[LeafNumCellsOffset : LeafNumCellsOffset+LeafNumCellsSize]), nil
}

// SetNumCells stores the cell count of a leaf
func (n Node) SetNumCells(count uint32) error {
	if n.Kind() != LeafNode {
		return ErrNotALeaf
	}
	if count > LeafMaxCells {
		return fmt.Errorf("%w: %d cells, max %d", ErrCellOutOfRange, count, LeafMaxCells)
	}
	b := n.view.Bytes()
	binary.BigEndian.PutUint32(b[LeafNumCellsOffset:LeafNumCellsOffset+LeafNumCellsSize], count)
	return nil
}

// Cell returns cell i of a leaf. i may be any slot below LeafMaxCells, not
// only the ones counted by NumCells.
func (n Node) Cell(i int) (Cell, error) {
	if n.Kind() != LeafNode {
		return Cell{}, ErrNotALeaf
	}
	if i < 0 || i >= LeafMaxCells {
		return Cell{}, fmt.Errorf("%w: cell %d, max %d", ErrCellOutOfRange, i, LeafMaxCells)
	}
	v, err := n.view.Slice(LeafHeaderSize+i*CellSize, CellSize)
	if err != nil {
		return Cell{}, err
	}
	return Cell{view: v}, nil
}

const (
	CellKeySize     = 4
	CellKeyOffset   = 0
	CellValueSize   = row.Size
	CellValueOffset = CellKeyOffset + CellKeySize
	CellSize        = CellKeySize + CellValueSize
)

// Cell is one key/value slot of a leaf
type Cell struct {
	view pager.View
}

func (c Cell) Key() uint32 {
	return binary.BigEndian.Uint32(c.view.Bytes()[CellKeyOffset:CellValueOffset])
}

func (c Cell) SetKey(key uint32) {
	binary.BigEndian.PutUint32(c.view.Bytes()[CellKeyOffset:CellValueOffset], key)
}

// Value returns the bytes of the cell's row, aliasing the page
func (c Cell) Value() pager.View {
	v, _ := c.view.Slice(CellValueOffset, CellValueSize)
	return v
}
