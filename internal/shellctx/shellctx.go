// Package shellctx holds the shell's immutable-after-startup context:
// program name, interactivity, and (when interactive) the shell's own
// process group and saved terminal attributes.
//
// Grounded in shape on _examples/elves-elvish/pkg/shell/shell.go's split
// between an interactive and a non-interactive entry point sharing one
// struct of startup state, narrowed to the handful of fields this core's
// launcher and editor actually consult.
package shellctx

import (
	"fmt"
	"os"

	"github.com/yuvalino/rmsh/internal/term"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// Context is immutable after New returns.
type Context struct {
	ProgName     string
	Interactive  bool
	ShellPgid    int
	SavedTermios *term.Saved
}

// New builds a Context for progName. If stdin is a terminal, the shell
// is interactive: its process group is read and terminal attributes are
// captured (but raw mode is not entered here — that happens per editor
// session). Otherwise the shell is non-interactive.
func New(progName string) (*Context, error) {
	sc := &Context{ProgName: progName}

	if !term.IsATTY(os.Stdin) {
		return sc, nil
	}

	pgid, err := unix.IoctlGetInt(int(unix.Stdin), unix.TIOCGPGRP)
	if err != nil {
		return nil, xerrors.Errorf("tcgetpgrp: %w", err)
	}

	saved, err := term.Capture(int(unix.Stdin))
	if err != nil {
		return nil, xerrors.Errorf("tcgetattr: %w", err)
	}

	sc.Interactive = true
	sc.ShellPgid = pgid
	sc.SavedTermios = saved
	return sc, nil
}

// Diagnosef formats a message in this shell's "SHNAME: MESSAGE"
// diagnostic convention.
func (c *Context) Diagnosef(format string, args ...interface{}) string {
	return c.ProgName + ": " + fmt.Sprintf(format, args...)
}
