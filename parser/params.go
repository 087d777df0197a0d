package parser

import (
	"regexp"
	"strings"
)

var blockCommentRe = regexp.MustCompile(`/\*[\s\S]*?\*/`)
var lineCommentRe = regexp.MustCompile(`//[^\n]*`)
var paramTokenRe = regexp.MustCompile(`\[[^\]]*\]|[*&]|\.\.\.|\w+`)

var qualifiers = map[string]bool{
	"const":    true,
	"volatile": true,
	"restrict": true,
	"signed":   true,
	"unsigned": true,
}

var builtinTypes = map[string]bool{
	"void":   true,
	"char":   true,
	"short":  true,
	"int":    true,
	"long":   true,
	"float":  true,
	"double": true,
	"bool":   true,
	"_Bool":  true,
}

var tagKeywords = map[string]bool{
	"struct": true,
	"union":  true,
	"enum":   true,
}

// NormalizeParam removes the parameter name from a raw parameter,
// keeping qualifiers, pointer markers and array suffixes in order.
//
//	const char *name  ->  const char *
//	int values[4]     ->  int [4]
//	void              ->  void
func NormalizeParam(raw string) string {
	typ, _ := splitParam(raw)
	return joinType(typ)
}

// ParamName returns the identifier NormalizeParam drops, or "" when the
// parameter is unnamed.
func ParamName(raw string) string {
	_, name := splitParam(raw)
	return name
}

func splitParam(raw string) ([]string, string) {
	toks := paramTokenRe.FindAllString(removeComments(raw), -1)

	for i := len(toks) - 1; i >= 0; i-- {
		tok := toks[i]
		if qualifiers[tok] || isDeclaratorMark(tok) {
			continue
		}
		if !isParamName(toks, i) {
			break
		}

		typ := make([]string, 0, len(toks)-1)
		typ = append(typ, toks[:i]...)
		typ = append(typ, toks[i+1:]...)
		return typ, tok
	}

	return toks, ""
}

// isParamName reports whether toks[i] names the parameter rather than
// spelling its type.
func isParamName(toks []string, i int) bool {
	tok := toks[i]

	if !isIdentifier(tok) || builtinTypes[tok] || tagKeywords[tok] {
		return false
	}

	if i > 0 && tagKeywords[toks[i-1]] {
		return false
	}

	// A name needs a type word in front of it.
	for _, t := range toks[:i] {
		if !qualifiers[t] && !isDeclaratorMark(t) {
			return true
		}
	}

	return false
}

func isDeclaratorMark(tok string) bool {
	return tok == "*" || tok == "&" || strings.HasPrefix(tok, "[")
}

// joinType spells type tokens with single spaces, keeping pointer markers
// attached to each other and to a following array suffix.
func joinType(toks []string) string {
	var b strings.Builder

	for i, tok := range toks {
		if i > 0 {
			prev := toks[i-1]
			glued := (prev == "*" || prev == "&") && isDeclaratorMark(tok)
			if !glued {
				b.WriteByte(' ')
			}
		}
		b.WriteString(tok)
	}

	return b.String()
}

func removeComments(s string) string {
	s = blockCommentRe.ReplaceAllString(s, "")
	s = lineCommentRe.ReplaceAllString(s, "")

	return s
}
