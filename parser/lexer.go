package parser

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokPunct
	tokDirective
)

// token is a lexeme with its byte span in the source. bol is set for the
// first token on a line.
type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
	bol  bool
}

func (t token) is(text string) bool {
	return t.kind == tokPunct && t.text == text
}

func (t token) isIdent(text string) bool {
	return t.kind == tokIdent && t.text == text
}

// lex splits C source into tokens. Comments are dropped and preprocessor
// lines become a single directive token.
func lex(src string) []token {
	var toks []token
	bol := true

	emit := func(kind tokenKind, start, end int) {
		toks = append(toks, token{kind: kind, text: src[start:end], pos: start, end: end, bol: bol})
		bol = false
	}

	i := 0
	for i < len(src) {
		c := src[i]

		switch {
		case c == '\n':
			bol = true
			i++

		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			i++

		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i < len(src) && !(src[i] == '*' && i+1 < len(src) && src[i+1] == '/') {
				if src[i] == '\n' {
					bol = true
				}
				i++
			}
			i += 2
			if i > len(src) {
				i = len(src)
			}

		case c == '#' && bol:
			start := i
			for i < len(src) && src[i] != '\n' {
				if src[i] == '\\' && i+1 < len(src) && src[i+1] == '\n' {
					i++
				}
				i++
			}
			emit(tokDirective, start, i)

		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentChar(src[i]) {
				i++
			}
			emit(tokIdent, start, i)

		case isDigit(c):
			start := i
			for i < len(src) && (isIdentChar(src[i]) || src[i] == '.') {
				i++
			}
			emit(tokNumber, start, i)

		case c == '"' || c == '\'':
			start := i
			i++
			for i < len(src) && src[i] != c && src[i] != '\n' {
				if src[i] == '\\' {
					i++
				}
				i++
			}
			if i < len(src) && src[i] == c {
				i++
			}
			if i > len(src) {
				i = len(src)
			}
			emit(tokString, start, i)

		case c == '.' && i+2 < len(src) && src[i+1] == '.' && src[i+2] == '.':
			emit(tokPunct, i, i+3)
			i += 3

		default:
			emit(tokPunct, i, i+1)
			i++
		}
	}

	return toks
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isIdentifier reports whether s has C identifier syntax.
func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

// spell rebuilds the text of toks, separating tokens that were separated
// in the source by a single space.
func spell(toks []token) string {
	var buf []byte
	for i, t := range toks {
		if i > 0 && t.pos > toks[i-1].end {
			buf = append(buf, ' ')
		}
		buf = append(buf, t.text...)
	}
	return string(buf)
}
