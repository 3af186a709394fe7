// Package parse builds a Pipeline — an ordered list of Process
// descriptors — out of the token stream internal/lex produces.
//
// The AST here is a flat Pipeline/Process/Redirection model, not a
// parse tree: this core excludes compound commands, lists and
// multi-line input, so there is no need for
// _examples/elves-elvish/pkg/parse's richer *Chunk/*Pipeline/*Form node
// hierarchy. The scanning discipline (peek-the-next-token, push back one
// token, accumulate an error with its source line) is grounded on that
// same package's parser type.
package parse

import "fmt"

// RedirType identifies the kind of redirection.
type RedirType int

const (
	PathIn      RedirType = iota // <
	PathOTrunc                   // >
	PathOAppend                  // >>
	PathInOut                    // <>
	FDIn                         // <&
	FDOut                        // >&
)

func (t RedirType) String() string {
	switch t {
	case PathIn:
		return "PATH_IN"
	case PathOTrunc:
		return "PATH_OTRUNC"
	case PathOAppend:
		return "PATH_OAPPEND"
	case PathInOut:
		return "PATH_INOUT"
	case FDIn:
		return "FD_IN"
	case FDOut:
		return "FD_OUT"
	default:
		return fmt.Sprintf("RedirType(%d)", int(t))
	}
}

// Redirection is one I/O redirection attached to a Process.
type Redirection struct {
	FD   int
	Type RedirType
	// Path is set for PATH_* types.
	Path string
	// SourceFD is set for FD_* types.
	SourceFD int
}

// Process is the parsed form of one command in a pipeline: environment
// assignments, argv, and an ordered list of redirections.
type Process struct {
	Env    []string
	Argv   []string
	Redirs []Redirection
}

// Pipeline is an ordered, non-empty list of Process descriptors.
type Pipeline struct {
	Processes []Process
}

// Error is a parser error: a message plus the line on which it was
// detected.
type Error struct {
	Line    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}
