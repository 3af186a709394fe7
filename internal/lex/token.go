package lex

// Token is one lexical unit produced by the Lexer.
//
// Present distinguishes the end-of-input sentinel (Present == false) from
// every other token, including an empty quoted word ("" or ''), which is
// present with an empty Text — the C original preserves that distinction
// with a terminating NUL; here it is simply a bool.
type Token struct {
	Text    string
	Present bool
	Meta    bool // Text is composed entirely of metacharacters
	PreMeta bool // a word token terminated by an adjacent metachar, no IFS
}

// EOFToken is the sentinel returned at end of input.
func EOFToken() Token { return Token{} }
