package editor

import (
	"bytes"
	"testing"

	"github.com/yuvalino/rmsh/internal/history"
	"github.com/yuvalino/rmsh/internal/keys"
)

func textEvent(r rune) keys.Event {
	return keys.Event{Kind: keys.KindText, Text: r}
}

func ctrlEvent(a keys.Action) keys.Event {
	return keys.Event{Kind: keys.KindCtrl, Ctrl: a}
}

func typeString(e *Editor, out *bytes.Buffer, s string) {
	for _, r := range s {
		e.handle(textEvent(r), out)
	}
}

func TestInsertAndEnter(t *testing.T) {
	e := New(history.NewRing(), "$ ")
	e.reset()
	var buf bytes.Buffer

	typeString(e, &buf, "echo hi")
	line, result, done := e.handle(ctrlEvent(keys.Enter), &buf)
	if !done {
		t.Fatal("expected Enter to end the session")
	}
	if result != Completed {
		t.Fatalf("result = %v, want Completed", result)
	}
	if line != "echo hi" {
		t.Fatalf("line = %q, want %q", line, "echo hi")
	}
}

func TestBackspace(t *testing.T) {
	e := New(history.NewRing(), "$ ")
	e.reset()
	var buf bytes.Buffer

	typeString(e, &buf, "abc")
	e.handle(ctrlEvent(keys.Backspace), &buf)
	if got := *e.buf[0]; got != "ab" {
		t.Fatalf("buf[0] = %q, want %q", got, "ab")
	}
	if e.col != 2 {
		t.Fatalf("col = %d, want 2", e.col)
	}
}

func TestBackspaceMultibyte(t *testing.T) {
	e := New(history.NewRing(), "$ ")
	e.reset()
	var buf bytes.Buffer

	typeString(e, &buf, "aé") // 'a' + e-acute (2 bytes)
	e.handle(ctrlEvent(keys.Backspace), &buf)
	if got := *e.buf[0]; got != "a" {
		t.Fatalf("buf[0] = %q, want %q", got, "a")
	}
	if e.col != 1 {
		t.Fatalf("col = %d, want 1", e.col)
	}
}

func TestDelAndMotion(t *testing.T) {
	e := New(history.NewRing(), "$ ")
	e.reset()
	var buf bytes.Buffer

	typeString(e, &buf, "abc")
	e.handle(ctrlEvent(keys.Home), &buf)
	if e.col != 0 {
		t.Fatalf("col after Home = %d, want 0", e.col)
	}
	e.handle(ctrlEvent(keys.Del), &buf)
	if got := *e.buf[0]; got != "bc" {
		t.Fatalf("buf[0] = %q, want %q", got, "bc")
	}
	e.handle(ctrlEvent(keys.End), &buf)
	if e.col != len(*e.buf[0]) {
		t.Fatalf("col after End = %d, want %d", e.col, len(*e.buf[0]))
	}
	e.handle(ctrlEvent(keys.Backward), &buf)
	if e.col != 1 {
		t.Fatalf("col after Backward = %d, want 1", e.col)
	}
}

func TestLineKill(t *testing.T) {
	e := New(history.NewRing(), "$ ")
	e.reset()
	var buf bytes.Buffer

	typeString(e, &buf, "abc")
	line, result, done := e.handle(ctrlEvent(keys.LineKill), &buf)
	if !done || result != Completed || line != "" {
		t.Fatalf("got (%q, %v, %v), want (\"\", Completed, true)", line, result, done)
	}
}

func TestExitAtEmptyPrompt(t *testing.T) {
	e := New(history.NewRing(), "$ ")
	e.reset()
	var buf bytes.Buffer

	_, result, done := e.handle(ctrlEvent(keys.Exit), &buf)
	if !done || result != Exited {
		t.Fatalf("got (result=%v, done=%v), want (Exited, true)", result, done)
	}
}

func TestHistoryUpDownCopyOnWrite(t *testing.T) {
	h := history.NewRing()
	h.Add("first")
	h.Add("second")
	e := New(h, "$ ")
	e.reset()
	var buf bytes.Buffer

	e.handle(ctrlEvent(keys.Up), &buf)
	if e.row != 1 {
		t.Fatalf("row after Up = %d, want 1", e.row)
	}
	if got := e.curText(); got != "second" {
		t.Fatalf("curText() = %q, want %q", got, "second")
	}

	// Mutate the materialized row; the ring's own entry must stay intact.
	e.handle(ctrlEvent(keys.Backspace), &buf)
	if got := e.curText(); got != "secon" {
		t.Fatalf("curText() after backspace = %q, want %q", got, "secon")
	}
	if stored, _ := h.Get(0); stored != "second" {
		t.Fatalf("history entry mutated: got %q, want %q", stored, "second")
	}

	e.handle(ctrlEvent(keys.Up), &buf)
	if e.row != 2 {
		t.Fatalf("row after second Up = %d, want 2", e.row)
	}
	if got := e.curText(); got != "first" {
		t.Fatalf("curText() = %q, want %q", got, "first")
	}

	// No third entry: Up must not advance past available history.
	e.handle(ctrlEvent(keys.Up), &buf)
	if e.row != 2 {
		t.Fatalf("row after Up past history = %d, want 2 (unchanged)", e.row)
	}
}

func TestSearchFindsHistoryEntry(t *testing.T) {
	h := history.NewRing()
	h.Add("ls -la")
	h.Add("git status")
	h.Add("grep foo bar")
	e := New(h, "$ ")
	e.reset()
	var buf bytes.Buffer

	e.handle(ctrlEvent(keys.Search), &buf)
	if e.srch == nil {
		t.Fatal("expected search mode to be active")
	}
	typeString(e, &buf, "git")
	if e.srch.text != "git status" {
		t.Fatalf("landed text = %q, want %q", e.srch.text, "git status")
	}

	line, result, done := e.handle(ctrlEvent(keys.Enter), &buf)
	if !done || result != Completed || line != "git status" {
		t.Fatalf("got (%q, %v, %v), want (%q, Completed, true)", line, result, done, "git status")
	}
}

func TestSearchStaysPutWhenNotFound(t *testing.T) {
	h := history.NewRing()
	h.Add("ls -la")
	e := New(h, "$ ")
	e.reset()
	var buf bytes.Buffer

	e.handle(ctrlEvent(keys.Search), &buf)
	typeString(e, &buf, "ls")
	landedAfterMatch := e.srch.text
	typeString(e, &buf, "zzz")
	if e.srch.text != landedAfterMatch {
		t.Fatalf("landed text changed on miss: got %q, want %q", e.srch.text, landedAfterMatch)
	}
}

func TestSearchExitOnMotion(t *testing.T) {
	h := history.NewRing()
	h.Add("ls -la")
	e := New(h, "$ ")
	e.reset()
	var buf bytes.Buffer

	e.handle(ctrlEvent(keys.Search), &buf)
	typeString(e, &buf, "ls")
	e.handle(ctrlEvent(keys.Backward), &buf)
	if e.srch != nil {
		t.Fatal("expected search mode to be exited after motion")
	}
	if e.row != 1 {
		t.Fatalf("row = %d, want 1 (landed row)", e.row)
	}
}

func TestTabAcceptsSearch(t *testing.T) {
	h := history.NewRing()
	h.Add("ls -la")
	e := New(h, "$ ")
	e.reset()
	var buf bytes.Buffer

	e.handle(ctrlEvent(keys.Search), &buf)
	typeString(e, &buf, "ls")
	e.handle(ctrlEvent(keys.Tab), &buf)
	if e.srch != nil {
		t.Fatal("expected search mode to be exited after Tab")
	}
	if e.curText() != "ls -la" {
		t.Fatalf("curText() = %q, want %q", e.curText(), "ls -la")
	}
}
