// Package editor implements the interactive line editor: a one-line,
// UTF-8-aware buffer with history browsing, copy-on-write history rows,
// and an incremental reverse-search overlay.
//
// The read/dispatch/redraw shape (one blocking getch, decode, dispatch,
// draw) is grounded on the control flow of
// _examples/elves-elvish/pkg/cli/loop.go's Run, collapsed from that
// file's channel-based, goroutine-fed event loop into a direct
// synchronous call chain: this editor has one input source and no
// addon stack, so there is nothing to multiplex. Redraw primitives build
// on internal/term's VT sequence set exactly as
// _examples/elves-elvish/pkg/cli/term/writer.go's deltaPos/hideCursor/
// showCursor helpers build on a terminal writer, narrowed to one line
// instead of a multi-line canvas.
package editor

import (
	"io"
	"os"
	"strings"

	"github.com/yuvalino/rmsh/internal/history"
	"github.com/yuvalino/rmsh/internal/keys"
	"github.com/yuvalino/rmsh/internal/term"
	"github.com/yuvalino/rmsh/internal/utf8"
)

// Result is the outcome of a ReadLine session.
type Result int

const (
	// Completed means Line holds a composed command (possibly empty).
	Completed Result = iota
	// Exited means the user pressed ^D, whatever the line held.
	Exited
	// Interrupted means an I/O error or invalid internal state forced
	// the session to end early.
	Interrupted
)

// Editor holds the state of one line-editing session: the row/col
// cursor, the lazily-materialized buffer rows that shadow the history
// ring, and an optional reverse-search overlay.
type Editor struct {
	hist *history.Ring

	// buf[0] is the line under composition. buf[r] for r in 1..Capacity
	// shadows history[r-1]; nil until the user mutates that row.
	buf [history.Capacity + 1]*string
	row int
	col int

	srch *searchState

	ps1 string
}

type searchState struct {
	query []byte
	row   int
	text  string
}

// New returns an Editor over hist, using ps1 as the prompt string.
func New(hist *history.Ring, ps1 string) *Editor {
	return &Editor{hist: hist, ps1: ps1}
}

func (e *Editor) reset() {
	for i := range e.buf {
		e.buf[i] = nil
	}
	empty := ""
	e.buf[0] = &empty
	e.row = 0
	e.col = 0
	e.srch = nil
}

// rowText returns row's current text and whether that row exists (row 0
// always exists; rows beyond the history's populated length do not).
func (e *Editor) rowText(row int) (string, bool) {
	if e.buf[row] != nil {
		return *e.buf[row], true
	}
	if row == 0 {
		return "", true
	}
	return e.hist.Get(row - 1)
}

// materialize returns a pointer to row's own mutable copy, duplicating
// the shadowed history entry into it on first use. The original history
// entry is never touched.
func (e *Editor) materialize(row int) *string {
	if e.buf[row] == nil {
		s, ok := e.hist.Get(row - 1)
		if !ok {
			s = ""
		}
		cp := s
		e.buf[row] = &cp
	}
	return e.buf[row]
}

func (e *Editor) curText() string {
	s, _ := e.rowText(e.row)
	return s
}

// ReadLine runs one read-edit-submit session on fd, blocking on in for
// key bytes and writing the prompt, echo, and redraw sequences to out.
func (e *Editor) ReadLine(fd int, in io.Reader, out io.Writer) (string, Result) {
	saved, err := term.EnterRaw(fd)
	if err != nil {
		return "", Interrupted
	}
	stopWinch := term.WatchWinch()
	defer func() {
		stopWinch()
		term.Restore(fd, saved)
	}()

	e.reset()
	e.writePrompt(out)

	dec := keys.NewDecoder()
	for {
		if term.ConsumeWinch() {
			e.redrawWholeLine(out)
		}
		b, err := term.Getch(in)
		if err != nil {
			return "", Interrupted
		}
		status, ev := dec.Feed(b)
		switch status {
		case keys.Incomplete, keys.Invalid:
			continue
		}

		line, result, done := e.handle(ev, out)
		if done {
			return line, result
		}
	}
}

func (e *Editor) writePrompt(out io.Writer) {
	io.WriteString(out, e.ps1)
}

// handle dispatches one decoded event to the matching editing action.
// It returns (line, result, true) when the session should end.
func (e *Editor) handle(ev keys.Event, out io.Writer) (string, Result, bool) {
	if ev.Kind == keys.KindText {
		e.handleText(ev.Text, out)
		return "", 0, false
	}
	switch ev.Ctrl {
	case keys.Backspace:
		e.handleBackspace(out)
	case keys.Del:
		e.handleDel(out)
	case keys.Backward:
		e.handleMotion(out, -1)
	case keys.Forward:
		e.handleMotion(out, 1)
	case keys.Home:
		e.handleHomeEnd(out, true)
	case keys.End:
		e.handleHomeEnd(out, false)
	case keys.Up:
		e.handleUpDown(out, true)
	case keys.Down:
		e.handleUpDown(out, false)
	case keys.Search:
		e.handleSearch(out)
	case keys.Tab:
		e.handleTab(out)
	case keys.Enter:
		line := e.handleEnter(out)
		return line, Completed, true
	case keys.LineKill:
		io.WriteString(out, "^C\r\n")
		return "", Completed, true
	case keys.Exit:
		io.WriteString(out, "^D\r\n")
		return "", Exited, true
	case keys.Clear:
		e.handleClear(out)
	case keys.PgUp, keys.PgDn, keys.ActionNone:
		// No action bound; no-op.
	}
	return "", 0, false
}

func (e *Editor) handleText(r rune, out io.Writer) {
	if e.srch != nil {
		e.srch.query = utf8.Encode(e.srch.query, r)
		e.researchFrom(0)
		e.redrawSearch(out)
		return
	}

	row := e.materializeForEdit()
	before := []byte(*row)[:e.col]
	after := []byte(*row)[e.col:]
	encoded := utf8.Encode(nil, r)

	b := make([]byte, 0, len(before)+len(encoded)+len(after))
	b = append(b, before...)
	b = append(b, encoded...)
	b = append(b, after...)
	*row = string(b)
	oldCol := e.col
	e.col += len(encoded)
	e.redrawFromCursor(out, oldCol, 1)
}

// materializeForEdit returns the mutable string pointer for the current
// row, materializing it from history if this is the first mutation.
func (e *Editor) materializeForEdit() *string {
	if e.row == 0 {
		return e.buf[0]
	}
	return e.materialize(e.row)
}

func (e *Editor) handleBackspace(out io.Writer) {
	if e.srch != nil {
		if n := utf8.TailCodepointBytes(e.srch.query, len(e.srch.query)); n > 0 {
			e.srch.query = e.srch.query[:len(e.srch.query)-n]
		}
		e.researchFrom(0)
		e.redrawSearch(out)
		return
	}
	if e.col == 0 {
		return
	}
	row := e.materializeForEdit()
	b := []byte(*row)
	n := utf8.TailCodepointBytes(b, e.col)
	if n == 0 {
		return
	}
	b = append(b[:e.col-n], b[e.col:]...)
	*row = string(b)
	e.col -= n
	io.WriteString(out, term.Backward(1))
	e.redrawFromCursor(out, e.col, 0)
}

func (e *Editor) handleDel(out io.Writer) {
	if e.srch != nil {
		return
	}
	row := e.materializeForEdit()
	b := []byte(*row)
	if e.col >= len(b) {
		return
	}
	n := utf8.LeadingLength(b[e.col])
	if n <= 0 {
		return
	}
	b = append(b[:e.col], b[e.col+n:]...)
	*row = string(b)
	e.redrawFromCursor(out, e.col, 0)
}

// handleMotion moves the cursor by one code point; dir is -1 (backward)
// or +1 (forward).
func (e *Editor) handleMotion(out io.Writer, dir int) {
	if e.srch != nil {
		e.exitSearchToLanded()
	}
	text := e.curText()
	b := []byte(text)
	if dir < 0 {
		if e.col == 0 {
			return
		}
		n := utf8.TailCodepointBytes(b, e.col)
		if n == 0 {
			n = 1
		}
		e.col -= n
		io.WriteString(out, term.Backward(1))
		return
	}
	if e.col >= len(b) {
		return
	}
	n := utf8.LeadingLength(b[e.col])
	if n <= 0 {
		n = 1
	}
	e.col += n
	io.WriteString(out, term.Forward(1))
}

func (e *Editor) handleHomeEnd(out io.Writer, home bool) {
	if e.srch != nil {
		e.exitSearchToLanded()
	}
	text := e.curText()
	oldCols := utf8.CodepointCount([]byte(text), e.col)
	if oldCols < 0 {
		oldCols = 0
	}
	if home {
		e.col = 0
		io.WriteString(out, term.Backward(oldCols))
		return
	}
	e.col = len(text)
	newCols := utf8.CodepointCount([]byte(text), len(text))
	io.WriteString(out, term.Forward(newCols-oldCols))
}

func (e *Editor) handleUpDown(out io.Writer, up bool) {
	if e.srch != nil {
		e.exitSearchToLanded()
	}
	if up {
		if e.row < e.hist.Len() {
			e.row++
		}
	} else {
		if e.row > 0 {
			e.row--
		}
	}
	text := e.curText()
	e.col = len(text)
	e.redrawWholeLine(out)
}

func (e *Editor) handleSearch(out io.Writer) {
	if e.srch == nil {
		e.srch = &searchState{row: e.row, text: e.curText()}
		e.redrawSearch(out)
		return
	}
	e.researchFrom(e.srch.row + 1)
	e.redrawSearch(out)
}

func (e *Editor) handleTab(out io.Writer) {
	if e.srch == nil {
		return
	}
	e.row = e.srch.row
	e.col = len(e.srch.text)
	e.srch = nil
	e.redrawWholeLine(out)
}

func (e *Editor) handleEnter(out io.Writer) string {
	if e.srch != nil {
		e.row = e.srch.row
		e.srch = nil
	}
	line := e.curText()
	io.WriteString(out, "\r\n")
	return line
}

func (e *Editor) handleClear(out io.Writer) {
	if e.srch != nil {
		e.exitSearchToLanded()
	}
	io.WriteString(out, term.SeqClearScreen)
	e.redrawWholeLine(out)
}

// exitSearchToLanded restores the editor's row/col to the search's
// landed-on row with the cursor at the end of that row's text, then
// drops the overlay. Callers apply their own motion afterward.
func (e *Editor) exitSearchToLanded() {
	e.row = e.srch.row
	e.col = len(e.srch.text)
	e.srch = nil
}

// researchFrom scans rows starting at startRow for one whose text
// contains the current query, updating the search's landed row on a
// hit. On a miss it leaves the landed row unchanged ("stay put").
func (e *Editor) researchFrom(startRow int) {
	query := string(e.srch.query)
	for r := startRow; r <= history.Capacity; r++ {
		text, ok := e.rowText(r)
		if !ok {
			break
		}
		if strings.Contains(text, query) {
			e.srch.row = r
			e.srch.text = text
			return
		}
	}
}

func (e *Editor) overlay() string {
	return "(reverse-search)`" + string(e.srch.query) + "': " + e.srch.text
}

// --- redraw primitives ---

// redrawFromCursor saves the actual terminal cursor (assumed to currently sit at fromCol),
// clear to end of line, write the row's text from fromCol onward, restore
// the cursor to fromCol, then move it moveDelta columns (positive forward,
// negative backward, zero none) to land on the caller's intended position.
func (e *Editor) redrawFromCursor(out io.Writer, fromCol int, moveDelta int) {
	text := e.curText()
	tail := text[fromCol:]
	io.WriteString(out, term.SeqSaveCursor)
	io.WriteString(out, term.SeqClearToEOL)
	io.WriteString(out, tail)
	io.WriteString(out, term.SeqRestoreCursor)
	switch {
	case moveDelta > 0:
		io.WriteString(out, term.Forward(moveDelta))
	case moveDelta < 0:
		io.WriteString(out, term.Backward(-moveDelta))
	}
}

func (e *Editor) redrawWholeLine(out io.Writer) {
	text := e.curText()
	io.WriteString(out, "\r")
	io.WriteString(out, e.ps1)
	io.WriteString(out, text)
	io.WriteString(out, term.SeqClearToEOL)
	cols := utf8.CodepointCount([]byte(text), e.col)
	if cols < 0 {
		cols = 0
	}
	io.WriteString(out, "\r")
	io.WriteString(out, term.Forward(len(e.ps1)+cols))
}

func (e *Editor) redrawSearch(out io.Writer) {
	io.WriteString(out, "\r")
	io.WriteString(out, e.overlay())
	io.WriteString(out, term.SeqClearToEOL)
}

// DefaultPS1 returns the prompt string: the PS1 environment variable if
// set, else "# " for uid 0 and "$ " otherwise.
func DefaultPS1() string {
	if v, ok := os.LookupEnv("PS1"); ok {
		return v
	}
	if os.Geteuid() == 0 {
		return "# "
	}
	return "$ "
}
