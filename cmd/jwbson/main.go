// Command jwbson converts documents between the binary format, the text
// notation, CBOR and YAML, and dumps annotated binary documents.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/pprof"

	"github.com/spf13/pflag"
)

// usageError marks errors caused by the command line rather than the input.
type usageError struct{ error }

func (usageError) ExitCode() int { return 2 }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := dispatch(args, stdin, stdout, stderr)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

func dispatch(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printHelp(stderr)
		return usagef("missing command")
	}
	switch args[0] {
	case "convert":
		return runConvert(args[1:], stdin, stdout, stderr)
	case "dump":
		return runDump(args[1:], stdin, stdout, stderr)
	case "help", "-h", "--help":
		printHelp(stdout)
		return nil
	default:
		printHelp(stderr)
		return usagef("unknown command %q", args[0])
	}
}

// common holds the flags shared by every command.
type common struct {
	in         string
	zstdIn     bool
	configPath string
	verbose    bool
	memProfile string
}

func (c *common) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.in, "in", "i", "", "input file (default: stdin)")
	fs.BoolVar(&c.zstdIn, "zstd-in", false, "require zstd-compressed input")
	fs.StringVarP(&c.configPath, "config", "c", "", "YAML codec configuration (default: $JWBSON_CONFIG)")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "log skipped members at debug level")
	fs.StringVar(&c.memProfile, "memprofile", "", "write a heap profile to this file on exit")
}

func (c *common) logger(stderr io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// writeProfile is deferred by commands so the profile covers the whole run.
func (c *common) writeProfile(log *slog.Logger) {
	if c.memProfile == "" {
		return
	}
	f, err := os.Create(c.memProfile)
	if err != nil {
		log.Error("memprofile", "err", err)
		return
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Error("memprofile", "err", err)
	}
}

func parseFlags(fs *pflag.FlagSet, args []string, stdout io.Writer) (bool, error) {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stdout, "Usage of %s:\n%s", fs.Name(), fs.FlagUsages())
			return false, nil
		}
		return false, usageError{err}
	}
	if fs.NArg() > 0 {
		return false, usagef("unexpected argument: %s", fs.Arg(0))
	}
	return true, nil
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `jwbson converts documents between encodings.

Usage:
  jwbson convert --from FORMAT --to FORMAT [--in FILE] [--out FILE] [--zstd-in] [--zstd-out|--lz4-out] [--config FILE]
  jwbson dump [--in FILE] [--zstd-in] [--config FILE]

Formats: bson, jwon, cbor, yaml, and jsonc as input. Input compressed with
zstd or lz4 is detected automatically. dump prints the blake3 digest of the
document, its annotated bytes and its text rendering.
`)
}
