// Command rmsh is a minimal POSIX-style interactive shell: a raw-mode
// line editor with history and reverse-search, a pipeline lexer/parser,
// and a job launcher with pipes, redirections, and process groups.
//
// The CLI surface (interactive-vs-script dispatch on isatty(stdin), a
// thin -c/-D/-h option set) is grounded on
// _examples/elves-elvish/pkg/shell/shell.go's split between its
// interactive and script entry points, narrowed to this core's single-
// pipeline-per-input model. The non-interactive stdin accumulation loop
// and the -D debug-input byte dumper are grounded on
// _examples/original_source/main.c's noninteractive and debug_input
// functions, fixed and reimplemented rather than transliterated.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	getopt "github.com/pborman/getopt/v2"

	"github.com/yuvalino/rmsh/internal/editor"
	"github.com/yuvalino/rmsh/internal/history"
	"github.com/yuvalino/rmsh/internal/launcher"
	"github.com/yuvalino/rmsh/internal/parse"
	"github.com/yuvalino/rmsh/internal/shellctx"
	"github.com/yuvalino/rmsh/internal/term"
	"golang.org/x/sys/unix"
)

func main() {
	if len(os.Args) == 2 && os.Args[1] == launcher.NotFoundReexecArg {
		os.Exit(1)
	}
	os.Exit(run())
}

func run() int {
	progName := filepath.Base(os.Args[0])

	opts := getopt.New()
	cmdOpt := opts.StringLong("command", 'c', "", "run COMMAND non-interactively")
	debugOpt := opts.BoolLong("debug-input", 'D', "dump raw input byte codes and exit")
	helpOpt := opts.BoolLong("help", 'h', "show this help")

	if err := opts.Getopt(os.Args, nil); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", progName, err)
		return 1
	}
	if *helpOpt {
		fmt.Fprintf(os.Stdout, "usage: %s [-c COMMAND] [-D] [-h]\n", progName)
		opts.PrintOptions(os.Stdout)
		return 0
	}
	if *debugOpt {
		return runDebugInput(progName)
	}

	sc, err := shellctx.New(progName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", progName, err)
		return 1
	}

	if *cmdOpt != "" {
		return runOne(sc, *cmdOpt)
	}
	if sc.Interactive {
		return runInteractive(sc)
	}
	return runNonInteractive(sc)
}

// runOne parses and launches a single pipeline from src, as given by the
// -c option.
func runOne(sc *shellctx.Context, src string) int {
	if err := execLine(sc, src); err != nil {
		if isFatal(err) {
			fmt.Fprintln(os.Stderr, sc.Diagnosef("%s", err))
			return 1
		}
	}
	return 0
}

// runNonInteractive accumulates stdin to EOF and treats it as a single
// input. The accumulator grows across chunked reads rather than
// truncating to the last chunk, unlike the read loop this is grounded on.
func runNonInteractive(sc *shellctx.Context) int {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, sc.Diagnosef("read: %s", err))
		return 1
	}
	if err := execLine(sc, string(data)); err != nil {
		if isFatal(err) {
			fmt.Fprintln(os.Stderr, sc.Diagnosef("%s", err))
			return 1
		}
	}
	return 0
}

// runInteractive drives the read-edit-launch loop.
func runInteractive(sc *shellctx.Context) int {
	hist := history.NewRing()
	fd := int(unix.Stdin)

	for {
		ed := editor.New(hist, editor.DefaultPS1())
		line, result := ed.ReadLine(fd, os.Stdin, os.Stdout)

		switch result {
		case editor.Exited:
			return 0
		case editor.Interrupted:
			fmt.Fprintln(os.Stderr, sc.Diagnosef("interrupted"))
			return 1
		}

		if line == "" {
			continue
		}
		hist.Add(line)

		if err := execLine(sc, line); err != nil {
			if isFatal(err) {
				fmt.Fprintln(os.Stderr, sc.Diagnosef("%s", err))
				return 1
			}
		}
	}
}

// execLine parses and launches one pipeline, reporting syntax and
// command errors to stderr. Neither a syntax error nor a failed command
// changes the shell's own exit status; only a syscall-level failure in
// the launcher does, in interactive and non-interactive mode alike.
func execLine(sc *shellctx.Context, src string) error {
	pl, err := parse.Parse(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, sc.Diagnosef("%s", err))
		return nil
	}
	if len(pl.Processes) == 1 && len(pl.Processes[0].Argv) == 0 {
		return nil
	}

	job, err := launcher.Launch(pl, sc)
	if err != nil {
		fmt.Fprintln(os.Stderr, sc.Diagnosef("%s", err))
		return err
	}
	if err := launcher.Wait(job, sc); err != nil {
		fmt.Fprintln(os.Stderr, sc.Diagnosef("%s", err))
		return err
	}
	if err := launcher.Restore(sc); err != nil {
		return err
	}
	return nil
}

// isFatal reports whether err is a launcher-level syscall failure, the
// only error kind that changes the shell's own exit status in
// non-interactive mode.
func isFatal(err error) bool {
	_, ok := err.(*launcher.Diagnostic)
	return ok
}

// runDebugInput implements the -D mode: raw mode, one byte at a time,
// dumped as "\0HEX DECIMAL 'C'" until ^D.
func runDebugInput(progName string) int {
	fd := int(unix.Stdin)
	saved, err := term.EnterRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", progName, err)
		return 1
	}
	defer term.Restore(fd, saved)

	for {
		b, err := term.Getch(os.Stdin)
		if err != nil {
			if err == io.EOF {
				return 0
			}
			fmt.Fprintf(os.Stderr, "%s: %s\n", progName, err)
			return 1
		}
		if b == 0x04 {
			return 0
		}
		if b >= 0x20 && b < 0x7f {
			fmt.Printf("\\0%02X %d '%c'\r\n", b, b, b)
		} else {
			fmt.Printf("\\0%02X %d\r\n", b, b)
		}
	}
}
