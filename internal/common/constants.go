package common

const (
	// PageSize is the size of each page in bytes (4KB)
	PageSize = 4096

	// MaxPages is the maximum number of pages a pager can hold
	MaxPages = 100

	// HeaderSize is the size of the row count header at the start of a database file
	HeaderSize = 8
)
