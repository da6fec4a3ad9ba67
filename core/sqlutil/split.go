// Package sqlutil contains small lexical helpers for SQL scripts.
//
// The helpers are dialect tolerant: they understand single, double and backtick
// quoting, line and block comments and PostgreSQL dollar-quoted bodies, which is
// enough to split migration files into executable statements.
package sqlutil

import (
	"strings"
)

// StripComments removes "--" line comments and "/* */" block comments that are
// outside of quoted text. Newlines are preserved so line numbers stay stable.
func StripComments(sql string) string {
	var out strings.Builder
	out.Grow(len(sql))

	s := scanner{src: sql}
	for s.pos < len(s.src) {
		ch := s.src[s.pos]
		switch {
		case ch == '-' && s.peek(1) == '-':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' {
				s.pos++
			}
		case ch == '/' && s.peek(1) == '*':
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				s.pos = len(s.src)
				continue
			}
			out.WriteString(strings.Repeat("\n", strings.Count(s.src[s.pos:s.pos+2+end], "\n")))
			s.pos += end + 4
		default:
			start := s.pos
			s.skipToken()
			out.WriteString(s.src[start:s.pos])
		}
	}
	return out.String()
}

// SplitSQLStatements splits a script on top-level semicolons. Empty statements
// are dropped and each statement is returned trimmed, without the terminator.
func SplitSQLStatements(sql string) []string {
	var statements []string

	s := scanner{src: sql}
	start := 0
	for s.pos < len(s.src) {
		if s.src[s.pos] == ';' {
			statements = appendStatement(statements, s.src[start:s.pos])
			s.pos++
			start = s.pos
			continue
		}
		s.skipToken()
	}
	return appendStatement(statements, s.src[start:])
}

func appendStatement(statements []string, stmt string) []string {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return statements
	}
	return append(statements, stmt)
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) peek(offset int) byte {
	if s.pos+offset < len(s.src) {
		return s.src[s.pos+offset]
	}
	return 0
}

// skipToken advances past one byte, or past a whole quoted literal when the
// current byte opens one.
func (s *scanner) skipToken() {
	ch := s.src[s.pos]
	switch ch {
	case '\'', '"', '`':
		s.skipQuoted(ch)
	case '$':
		if tag, ok := s.dollarTag(); ok {
			end := strings.Index(s.src[s.pos+len(tag):], tag)
			if end < 0 {
				s.pos = len(s.src)
				return
			}
			s.pos += len(tag) + end + len(tag)
			return
		}
		s.pos++
	default:
		s.pos++
	}
}

func (s *scanner) skipQuoted(quote byte) {
	s.pos++
	for s.pos < len(s.src) {
		ch := s.src[s.pos]
		if ch == '\\' && quote != '`' {
			s.pos += 2
			continue
		}
		if ch == quote {
			// doubled quote is an escaped quote
			if s.peek(1) == quote {
				s.pos += 2
				continue
			}
			s.pos++
			return
		}
		s.pos++
	}
}

// dollarTag recognises $$ and $tag$ openers.
func (s *scanner) dollarTag() (string, bool) {
	for i := s.pos + 1; i < len(s.src); i++ {
		ch := s.src[i]
		if ch == '$' {
			return s.src[s.pos : i+1], true
		}
		isIdent := ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (i > s.pos+1 && ch >= '0' && ch <= '9')
		if !isIdent {
			return "", false
		}
	}
	return "", false
}
