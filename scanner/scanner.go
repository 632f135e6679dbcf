// Package scanner implements a lexer for Jomini script source text. It
// takes a []byte and tokenizes it through repeated calls to Scan.
package scanner

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/jomini-lang/ck3lsp/token"
)

// ErrorHandler is called for each lexical error encountered while
// scanning, in addition to the error being recorded in ErrorCount.
type ErrorHandler func(pos token.Pos, msg string)

// Scanner holds a Scanner's internal state while processing a given
// source. It must be initialized with Init before use, and may be reused
// across documents by calling Init again.
type Scanner struct {
	file *token.File
	src  []byte
	err  ErrorHandler

	ch       rune // current character, or -1 at EOF
	offset   int
	rdOffset int

	ErrorCount int
}

const bom = 0xFEFF

// Init prepares s to scan src, whose length must match file.Size().
func (s *Scanner) Init(file *token.File, src []byte, err ErrorHandler) {
	if file.Size() != len(src) {
		panic(fmt.Sprintf("file size (%d) does not match src len (%d)", file.Size(), len(src)))
	}
	s.file = file
	s.src = src
	s.err = err
	s.ch = ' '
	s.offset = 0
	s.rdOffset = 0
	s.ErrorCount = 0

	s.next()
	if s.ch == bom {
		s.next()
	}
}

func (s *Scanner) next() {
	if s.rdOffset < len(s.src) {
		s.offset = s.rdOffset
		if s.ch == '\n' {
			s.file.AddLine(s.offset)
		}
		r, w := rune(s.src[s.rdOffset]), 1
		switch {
		case r == 0:
			s.error(s.offset, "illegal character NUL")
		case r >= utf8.RuneSelf:
			r, w = utf8.DecodeRune(s.src[s.rdOffset:])
			if r == utf8.RuneError && w == 1 {
				s.error(s.offset, "illegal UTF-8 encoding")
			} else if r == bom && s.offset > 0 {
				s.error(s.offset, "illegal byte order mark")
			}
		}
		s.rdOffset += w
		s.ch = r
	} else {
		s.offset = len(s.src)
		if s.ch == '\n' {
			s.file.AddLine(s.offset)
		}
		s.ch = -1
	}
}

func (s *Scanner) peek() byte {
	if s.rdOffset < len(s.src) {
		return s.src[s.rdOffset]
	}
	return 0
}

func (s *Scanner) error(offs int, msg string) {
	if s.err != nil {
		s.err(s.file.Pos(offs), msg)
	}
	s.ErrorCount++
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' ||
		ch >= utf8.RuneSelf && unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9' || ch >= utf8.RuneSelf && unicode.IsDigit(ch)
}

// isIdentCont reports whether ch can continue an identifier. Jomini
// identifiers permit embedded colons and dots to support scope:name,
// var:name, local_var:name, global_var:name and dotted scope chains typed
// as a single scalar token (the parser/scope engine later splits chains on
// '.' as needed).
func isIdentCont(ch rune) bool {
	return isLetter(ch) || isDigit(ch) || ch == ':' || ch == '.'
}

func (s *Scanner) scanIdentifier() string {
	offs := s.offset
	for isIdentCont(s.ch) {
		s.next()
	}
	return string(s.src[offs:s.offset])
}

// scanNumber scans a signed integer or float literal. At most one decimal
// point is permitted; a second one terminates the number (it is most
// likely the start of a scope chain like "1.5.holder", which is not valid
// syntax for a number anyway).
func (s *Scanner) scanNumber() (token.Token, string) {
	offs := s.offset
	tok := token.INT
	if s.ch == '+' || s.ch == '-' {
		s.next()
	}
	for isDigit(s.ch) {
		s.next()
	}
	if s.ch == '.' && isDigit(rune(s.peek())) {
		tok = token.FLOAT
		s.next()
		for isDigit(s.ch) {
			s.next()
		}
	}
	return tok, string(s.src[offs:s.offset])
}

func (s *Scanner) scanString() (token.Token, string) {
	// opening '"' already consumed
	offs := s.offset - 1
	for {
		ch := s.ch
		if ch == '\n' || ch < 0 {
			s.error(offs, "string literal not terminated")
			break
		}
		s.next()
		if ch == '"' {
			break
		}
		if ch == '\\' {
			switch s.ch {
			case '"', '\\':
				s.next()
			default:
				// unrecognized escape: leave it, parser-level validation
				// of string content is not this layer's job.
			}
		}
	}
	return token.STRING, string(s.src[offs:s.offset])
}

func (s *Scanner) scanComment() string {
	// the '#' or "//" marker has already been consumed; offs points just
	// past it, so the returned text excludes the marker
	offs := s.offset
	for s.ch != '\n' && s.ch >= 0 {
		s.next()
	}
	return string(s.src[offs:s.offset])
}

func (s *Scanner) skipWhitespace() {
	for s.ch == ' ' || s.ch == '\t' || s.ch == '\n' || s.ch == '\r' {
		s.next()
	}
}

func (s *Scanner) switch2(tok0, tok1 token.Token) token.Token {
	if s.ch == '=' {
		s.next()
		return tok1
	}
	return tok0
}

// Scan returns the position, token kind, and literal text of the next
// token. EOF is returned indefinitely once the end of source is reached.
// Scan never blocks and always makes progress, so repeated calls over any
// input terminate in time linear in the remaining input length.
func (s *Scanner) Scan() (pos token.Pos, tok token.Token, lit string) {
	s.skipWhitespace()

	offset := s.offset
	pos = s.file.Pos(offset)

	switch ch := s.ch; {
	case isLetter(ch):
		lit = s.scanIdentifier()
		tok = token.IDENT
	case isDigit(ch):
		tok, lit = s.scanNumber()
	case ch == '+' || ch == '-':
		if isDigit(rune(s.peek())) {
			tok, lit = s.scanNumber()
		} else {
			s.next()
			s.error(offset, fmt.Sprintf("illegal character %#U", ch))
			tok, lit = token.ILLEGAL, string(ch)
		}
	default:
		s.next()
		switch ch {
		case -1:
			tok = token.EOF
		case '"':
			tok, lit = s.scanString()
		case '#':
			comment := s.scanComment()
			tok, lit = token.COMMENT, "#"+comment
		case '/':
			if s.ch == '/' {
				s.next()
				comment := s.scanComment()
				tok, lit = token.COMMENT, "//"+comment
			} else {
				s.error(offset, "illegal character '/'")
				tok, lit = token.ILLEGAL, "/"
			}
		case '{':
			tok = token.LBRACE
		case '}':
			tok = token.RBRACE
		case '=':
			tok = s.switch2(token.EQ, token.EQQ)
		case '>':
			tok = s.switch2(token.GT, token.GE)
		case '<':
			tok = s.switch2(token.LT, token.LE)
		case '!':
			if s.ch == '=' {
				s.next()
				tok = token.NEQ
			} else {
				s.error(offset, "illegal character '!'")
				tok, lit = token.ILLEGAL, "!"
			}
		default:
			if ch != bom {
				s.error(offset, fmt.Sprintf("illegal character %#U", ch))
			}
			tok, lit = token.ILLEGAL, string(ch)
		}
	}
	return
}
