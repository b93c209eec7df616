// Command tupledb is an interactive shell over a single-table paged store.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"tuple-db/internal/logging"
	"tuple-db/internal/repl"
	"tuple-db/pkg/backup"
	"tuple-db/pkg/table"
)

const version = "0.2.0"

// CLI defines the command-line interface for tupledb.
var CLI struct {
	LogLevel  string `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"warn" env:"TUPLEDB_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log output format" enum:"text,json" default:"text" env:"TUPLEDB_LOG_FORMAT"`

	Shell   ShellCmd   `cmd:"" default:"withargs" help:"Open the interactive shell"`
	Restore RestoreCmd `cmd:"" help:"Restore a database file from a backup"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ShellCmd opens a table file, or an in-memory table when no path is given.
type ShellCmd struct {
	Path string `arg:"" optional:"" help:"Database file" type:"path"`
}

func (c *ShellCmd) Run() error {
	return c.run(os.Stdin, os.Stdout)
}

func (c *ShellCmd) run(in io.Reader, out io.Writer) error {
	logger, session := logging.NewSession()

	var t *table.Table
	if c.Path == "" {
		t = table.New()
	} else {
		var err error
		if t, err = table.Open(c.Path); err != nil {
			return fmt.Errorf("failed to open %s: %w", c.Path, err)
		}
	}
	defer t.Close()

	logger.Debug("shell started", "path", c.Path)
	if err := repl.New(t, in, out, logger).Run(); err != nil {
		return fmt.Errorf("session %s: %w", session, err)
	}
	logger.Debug("shell stopped")
	return nil
}

// RestoreCmd decompresses a backup into a database file after checking its digest.
type RestoreCmd struct {
	Backup string `arg:"" help:"Backup file" type:"existingfile"`
	Out    string `arg:"" help:"Database file to write" type:"path"`
	Codec  string `help:"Backup compression" enum:"snappy,xz" default:"snappy"`
	Digest string `required:"" help:"Expected BLAKE3 digest (hex) of the uncompressed image"`
}

func (c *RestoreCmd) Run() error {
	codec, err := backup.ParseCodec(c.Codec)
	if err != nil {
		return err
	}
	want, err := backup.ParseDigest(c.Digest)
	if err != nil {
		return err
	}
	if err := backup.Restore(c.Backup, codec, c.Out, want); err != nil {
		logging.StorageError(logging.GetLogger(), "restore", err, "backup", c.Backup)
		return err
	}
	fmt.Printf("Restored %s to %s\n", c.Backup, c.Out)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("tupledb version %s\n", version)
	return nil
}

func initLogging() error {
	level, err := logging.ParseLevel(CLI.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(CLI.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(os.Stderr, level, format)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("tupledb"),
		kong.Description("tupledb - a single-table paged record store"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	ctx.FatalIfErrorf(initLogging())
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
