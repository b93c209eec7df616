// Package statement prepares and executes the two statements the table
// understands:
//
//	select
//	insert <id> <username> <email>
package statement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"tuple-db/pkg/row"
	"tuple-db/pkg/table"
)

var (
	ErrUnrecognizedStatement = errors.New("unrecognized statement")
	ErrInvalidInsert         = errors.New("insert statement malformed")
)

// Kind identifies a prepared statement
type Kind int

const (
	Select Kind = iota
	Insert
)

func (k Kind) String() string {
	switch k {
	case Select:
		return "select"
	case Insert:
		return "insert"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Statement is a parsed, validated statement ready to execute
type Statement struct {
	Kind Kind
	Row  row.Row // set for Insert
}

// insertStatement is the participle grammar for an insert
type insertStatement struct {
	Keyword  string    `parser:"@Word"`
	ID       string    `parser:"@Word"`
	Username string    `parser:"@Word"`
	Email    *restText `parser:"@@"`
}

// restText matches the rest of the line. Only its position is used, so the
// text keeps its original spacing.
type restText struct {
	Pos   lexer.Position
	Words []string `parser:"@Word+"`
}

var statementLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Word", Pattern: `\S+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var insertParser = participle.MustBuild[insertStatement](
	participle.Lexer(statementLexer),
	participle.Elide("Whitespace"),
)

// Prepare parses line. A line starting with "select" or "insert" in any case
// is recognized, but the insert keyword itself must be lowercase. Field
// widths are checked here, so an oversized insert never reaches the table.
func Prepare(line string) (Statement, error) {
	lower := strings.ToLower(strings.TrimSpace(line))
	switch {
	case strings.HasPrefix(lower, "select"):
		return Statement{Kind: Select}, nil
	case strings.HasPrefix(lower, "insert"):
		return prepareInsert(line)
	default:
		return Statement{}, ErrUnrecognizedStatement
	}
}

func prepareInsert(line string) (Statement, error) {
	parsed, err := insertParser.ParseString("", line)
	if err != nil {
		return Statement{}, fmt.Errorf("%w: %v", ErrInvalidInsert, err)
	}
	if parsed.Keyword != "insert" {
		return Statement{}, fmt.Errorf("%w: keyword %q", ErrInvalidInsert, parsed.Keyword)
	}

	id, err := strconv.ParseUint(parsed.ID, 10, 64)
	if err != nil {
		return Statement{}, fmt.Errorf("%w: id %q", ErrInvalidInsert, parsed.ID)
	}
	if !isWord(parsed.Username) {
		return Statement{}, fmt.Errorf("%w: username %q", ErrInvalidInsert, parsed.Username)
	}

	r := row.New(id, parsed.Username, line[parsed.Email.Pos.Offset:])
	if err := r.Validate(); err != nil {
		return Statement{}, err
	}
	return Statement{Kind: Insert, Row: r}, nil
}

func isWord(s string) bool {
	for _, c := range s {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
			return false
		}
	}
	return s != ""
}

// Result is the output of an executed statement
type Result struct {
	Rows []row.Row // rows returned by select
}

// Execute runs st against t. A select that hits unreadable rows returns
// the rows it could read together with the error.
func Execute(t *table.Table, st Statement) (Result, error) {
	switch st.Kind {
	case Select:
		rows, err := t.Select()
		return Result{Rows: rows}, err
	case Insert:
		return Result{}, t.WriteRow(st.Row)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnrecognizedStatement, st.Kind)
	}
}
