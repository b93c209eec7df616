// Package repl runs the line-oriented shell over a table.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tuple-db/internal/logging"
	"tuple-db/pkg/backup"
	"tuple-db/pkg/pager"
	"tuple-db/pkg/row"
	"tuple-db/pkg/statement"
	"tuple-db/pkg/table"
)

const Prompt = "db > "

const poisonedMessage = "Error: the table is unusable after an internal failure, restart required."

// Shell reads commands from in and writes results to out
type Shell struct {
	table  *table.Table
	in     *bufio.Scanner
	out    io.Writer
	logger *slog.Logger
}

// New creates a shell over t
func New(t *table.Table, in io.Reader, out io.Writer, logger *slog.Logger) *Shell {
	return &Shell{
		table:  t,
		in:     bufio.NewScanner(in),
		out:    out,
		logger: logger,
	}
}

// Run processes lines until .exit or the end of input. Nothing is saved
// on the way out.
func (s *Shell) Run() error {
	for {
		fmt.Fprint(s.out, Prompt)
		if !s.in.Scan() {
			fmt.Fprintln(s.out)
			return s.in.Err()
		}

		line := strings.TrimRight(s.in.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if s.doMetaCommand(line) {
				return nil
			}
			continue
		}
		s.doStatement(line)
	}
}

// doMetaCommand runs a dot command and reports whether the shell should stop
func (s *Shell) doMetaCommand(line string) (exit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".exit":
		return true
	case ".save":
		var path string
		if len(fields) > 1 {
			path = fields[1]
		}
		s.save(path)
	case ".backup":
		s.backup(fields[1:])
	case ".stats":
		s.stats()
	default:
		fmt.Fprintf(s.out, "Unrecognized command: '%s'.\n", line)
	}
	return false
}

func (s *Shell) save(path string) {
	err := s.table.Save(path)
	switch {
	case err == nil:
		s.logger.Info("saved", "path", path)
	case errors.Is(err, pager.ErrNoFileToWrite):
		fmt.Fprintln(s.out, "You need to provide a file to save to.")
	case errors.Is(err, table.ErrPoisoned):
		fmt.Fprintln(s.out, poisonedMessage)
	default:
		s.storageFailure("save", err, path)
	}
}

func (s *Shell) storageFailure(operation string, err error, path string) {
	logging.StorageError(s.logger, operation, err, "path", path)
	if errors.Is(err, pager.ErrNotAllBytesWritten) {
		fmt.Fprintf(s.out, "Error: not all bytes were written to '%s'.\n", path)
		return
	}
	fmt.Fprintln(s.out, err)
}

func (s *Shell) backup(args []string) {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprintln(s.out, "Usage: .backup <path> [snappy|xz]")
		return
	}
	var codecName string
	if len(args) == 2 {
		codecName = args[1]
	}
	codec, err := backup.ParseCodec(codecName)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v.\n", err)
		return
	}

	digest, err := backup.Write(args[0], codec, s.table.Snapshot)
	switch {
	case err == nil:
		s.logger.Info("backup written", "path", args[0], "codec", codec.String(), "blake3", digest.String())
		fmt.Fprintf(s.out, "Backup written, blake3 %s.\n", digest)
	case errors.Is(err, table.ErrPoisoned):
		fmt.Fprintln(s.out, poisonedMessage)
	default:
		s.storageFailure("backup", err, args[0])
	}
}

func (s *Shell) stats() {
	st, err := s.table.Stats()
	if err != nil {
		fmt.Fprintln(s.out, poisonedMessage)
		return
	}
	fmt.Fprintf(s.out, "rows: %d/%d\n", st.Rows, table.MaxRows)
	fmt.Fprintf(s.out, "pages: %d/%d resident\n", st.ResidentPages, st.Capacity)
	fmt.Fprintf(s.out, "cache: %d hits, %d misses (%.1f%%)\n", st.Hits, st.Misses, st.HitRate)
}

func (s *Shell) doStatement(line string) {
	st, err := statement.Prepare(line)
	if err != nil {
		var tooLong *row.StringTooLongError
		switch {
		case errors.Is(err, statement.ErrUnrecognizedStatement):
			fmt.Fprintf(s.out, "Unrecognized keyword at start of '%s'.\n", line)
		case errors.As(err, &tooLong):
			fmt.Fprintf(s.out, "%v.\n", tooLong)
		default:
			s.logger.Debug("prepare failed", "line", line, "error", err)
			fmt.Fprintln(s.out, "Insert statement malformed.")
		}
		return
	}

	res, err := statement.Execute(s.table, st)
	for _, r := range res.Rows {
		fmt.Fprintln(s.out, r)
	}
	switch {
	case err == nil:
		fmt.Fprintln(s.out, "Executed.")
	case errors.Is(err, table.ErrTableFull):
		fmt.Fprintln(s.out, "Error: Table full.")
	case errors.Is(err, table.ErrPoisoned):
		fmt.Fprintln(s.out, poisonedMessage)
	default:
		logging.StorageError(s.logger, st.Kind.String(), err)
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}
