// Package term wraps raw-mode terminal entry/exit, VT escape emission, and
// character-at-a-time input on the controlling terminal.
//
// Raw mode bit manipulation is grounded on
// _examples/elves-elvish/sys/termios_linux.go's rawImask/rawOmask/rawLmask/
// rawCmask constants and _examples/elves-elvish/pkg/sys/eunix's ioctl
// numbers (TCGETS/TCSETS/TCSETSW). Getch's EINTR-retry loop mirrors the
// read-loop shape of pkg/cli/term/file_reader_unix.go, without that file's
// stop-pipe/select machinery: this core reads one blocking read(2) per
// keystroke, not an interruptible background reader.
package term

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// VT escape sequences this core ever emits. No other VT sequence, and no
// ANSI color code, is used anywhere.
const (
	SeqClearScreen  = "\033[2J\033[H"
	SeqSaveCursor   = "\033[s"
	SeqRestoreCursor = "\033[u"
	SeqClearToEOL   = "\033[K"
)

// Forward returns the sequence to move the cursor forward n columns.
// A non-positive n yields no sequence.
func Forward(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("\033[%dC", n)
}

// Backward returns the sequence to move the cursor backward n columns.
func Backward(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("\033[%dD", n)
}

// GotoRowCol returns the sequence to move the cursor to the given
// 1-indexed absolute row and column.
func GotoRowCol(row, col int) string {
	return fmt.Sprintf("\033[%d;%dH", row, col)
}

// Saved holds the terminal attributes captured by EnterRaw, to be restored
// by Restore.
type Saved struct {
	termios unix.Termios
}

// Capture reads fd's current terminal attributes without modifying
// them, for later restoration via Restore.
func Capture(fd int) (*Saved, error) {
	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, xerrors.Errorf("tcgetattr: %w", err)
	}
	return &Saved{termios: *orig}, nil
}

// EnterRaw puts fd into raw mode: no echo, no canonical processing, no
// signal generation from special characters, no extended input
// processing, no XON/XOFF flow control. It returns the previous
// attributes for later restoration.
func EnterRaw(fd int) (*Saved, error) {
	saved, err := Capture(fd)
	if err != nil {
		return nil, err
	}

	raw := saved.termios
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, xerrors.Errorf("tcsetattr: %w", err)
	}
	return saved, nil
}

// Restore restores the terminal attributes captured by EnterRaw.
func Restore(fd int, saved *Saved) error {
	if err := unix.IoctlSetTermios(fd, unix.TCSETSW, &saved.termios); err != nil {
		return xerrors.Errorf("tcsetattr: %w", err)
	}
	return nil
}

// Getch reads the next byte from r, retrying on EINTR. It returns io.EOF
// at end of input.
func Getch(r io.Reader) (byte, error) {
	var buf [1]byte
	for {
		n, err := r.Read(buf[:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return buf[0], nil
	}
}

// winchFlag is set on SIGWINCH delivery and consulted cooperatively
// between keystrokes by the editor via a single atomic flag. WatchWinch,
// in winch_unix.go, arms delivery through a signal.Notify channel drained
// by one goroutine; that goroutine only calls SetWinch, which only flips
// the flag.
var winchFlag atomic.Bool

func SetWinch() {
	winchFlag.Store(true)
}

// ConsumeWinch reports whether SIGWINCH was delivered since the last
// call, clearing the flag.
func ConsumeWinch() bool {
	return winchFlag.Swap(false)
}

// IsATTY reports whether f refers to a terminal, per
// _examples/elves-elvish/sys/isatty_windows.go's use of go-isatty —
// promoted here to the module's one IsATTY implementation rather than
// a windows-only fallback, since this module has no unix-specific
// ioctl-probe build tag split to begin with.
func IsATTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd())
}
