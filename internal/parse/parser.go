package parse

import (
	"strconv"
	"strings"

	"github.com/yuvalino/rmsh/internal/lex"
)

// Parse tokenizes and parses src into a Pipeline.
func Parse(src string) (Pipeline, error) {
	lx := lex.New(src)
	var pipeline Pipeline

	for {
		proc, err := buildProcess(lx)
		if err != nil {
			return Pipeline{}, err
		}
		pipeline.Processes = append(pipeline.Processes, proc)

		tok, err := lx.Next()
		if err != nil {
			return Pipeline{}, toParseError(err)
		}
		if !tok.Present {
			break
		}
		if tok.Meta && tok.Text == "|" {
			nxt, err := lx.Next()
			if err != nil {
				return Pipeline{}, toParseError(err)
			}
			if !nxt.Present {
				return Pipeline{}, &Error{Line: lx.Line(), Message: "syntax error: unexpected end of file"}
			}
			lx.PushBack(nxt)
			continue
		}
		return Pipeline{}, &Error{Line: lx.Line(), Message: unexpectedMetaMsg(tok.Text)}
	}

	return pipeline, nil
}

func toParseError(err error) error {
	if lexErr, ok := err.(*lex.Error); ok {
		return &Error{Line: lexErr.Line, Message: lexErr.Message}
	}
	return err
}

func unexpectedMetaMsg(text string) string {
	return "unexpected metacharacter `" + text + "'"
}

// buildProcess builds one Process by repeatedly popping tokens until it
// sees end-of-input or an unconsumed `|` (which it pushes back for the
// pipeline loop to consume).
func buildProcess(lx *lex.Lexer) (Process, error) {
	var proc Process
	doneVars := false
	var premeta *lex.Token

	flushPremeta := func() {
		if premeta != nil {
			applyWord(&proc, &doneVars, premeta.Text)
			premeta = nil
		}
	}

	for {
		tok, err := lx.Next()
		if err != nil {
			return Process{}, toParseError(err)
		}

		if !tok.Present {
			flushPremeta()
			return proc, nil
		}

		if tok.Meta {
			if tok.Text == "|" {
				flushPremeta()
				lx.PushBack(tok)
				return proc, nil
			}
			if len(tok.Text) > 0 && (tok.Text[0] == '<' || tok.Text[0] == '>') {
				// A buffered PRE-META word that is not a plain fd number is
				// an ordinary word, not this redirection's target fd.
				if premeta != nil {
					if _, ok := parseNonNegInt(premeta.Text); !ok {
						flushPremeta()
					}
				}
				if err := applyRedir(lx, &proc, tok.Text, &premeta); err != nil {
					return Process{}, err
				}
				continue
			}
			flushPremeta()
			return Process{}, &Error{Line: lx.Line(), Message: unexpectedMetaMsg(tok.Text)}
		}

		if tok.PreMeta {
			stripped := tok
			stripped.PreMeta = false
			premeta = &stripped
			continue
		}

		flushPremeta()
		applyWord(&proc, &doneVars, tok.Text)
	}
}

// applyRedir handles one redirection metachar token: it resolves the
// target fd (possibly from a buffered PRE-META token), maps the operator
// text to a RedirType, and pops the following word for the path or source
// fd.
func applyRedir(lx *lex.Lexer, proc *Process, opText string, premeta **lex.Token) error {
	defaultFD := 0
	if opText[0] == '>' {
		defaultFD = 1
	}
	targetFD := defaultFD

	if *premeta != nil {
		if n, ok := parseNonNegInt((*premeta).Text); ok {
			targetFD = n
			*premeta = nil
		} else {
			lx.PushBack(**premeta)
			*premeta = nil
		}
	}

	rtype, ok := mapOperator(opText)
	if !ok {
		return &Error{Line: lx.Line(), Message: "unknown redirection op `" + opText + "'"}
	}

	wtok, err := lx.Next()
	if err != nil {
		return toParseError(err)
	}
	if !wtok.Present {
		return &Error{Line: lx.Line(), Message: "syntax error: unexpected end of file"}
	}
	if wtok.Meta {
		return &Error{Line: lx.Line(), Message: unexpectedMetaMsg(wtok.Text)}
	}

	redir := Redirection{FD: targetFD, Type: rtype}
	if rtype == FDIn || rtype == FDOut {
		n, ok := parseNonNegInt(wtok.Text)
		if !ok {
			return &Error{Line: lx.Line(), Message: "invalid redirection fd `" + wtok.Text + "'"}
		}
		redir.SourceFD = n
	} else {
		redir.Path = wtok.Text
	}
	proc.Redirs = append(proc.Redirs, redir)
	return nil
}

func mapOperator(text string) (RedirType, bool) {
	switch text {
	case "<":
		return PathIn, true
	case ">":
		return PathOTrunc, true
	case ">>":
		return PathOAppend, true
	case "<>":
		return PathInOut, true
	case "<&":
		return FDIn, true
	case ">&":
		return FDOut, true
	default:
		return 0, false
	}
}

// applyWord appends w to proc's env list if it is a NAME=VALUE assignment
// and no non-assignment word has been seen yet, else to argv.
func applyWord(proc *Process, doneVars *bool, w string) {
	if !*doneVars {
		if idx := strings.IndexByte(w, '='); idx > 0 && isIdent(w[:idx]) {
			proc.Env = append(proc.Env, w)
			return
		}
	}
	*doneVars = true
	proc.Argv = append(proc.Argv, w)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	c0 := s[0]
	if !(c0 == '_' || (c0 >= 'A' && c0 <= 'Z') || (c0 >= 'a' && c0 <= 'z')) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

func parseNonNegInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strconv.Itoa(n) != s {
		return 0, false
	}
	return n, true
}
