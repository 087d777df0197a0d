package parser

import (
	"regexp"
	"strings"
)

// Parse returns the exported function signatures declared in content, in
// order of first appearance. Declarations it cannot recognize are skipped.
func Parse(content string, opts Options) []Signature {
	p := &parser{
		toks:  lex(content),
		types: opts.returnTypes(),
	}

	if opts.Mode == LinkageBlock {
		return p.parseLinkageBlocks()
	}

	return p.parseTopLevel(content)
}

type parser struct {
	toks  []token
	pos   int
	types map[string]bool
}

// parseLinkageBlocks collects the tokens of every extern "C" region and
// matches declarations in the concatenation.
func (p *parser) parseLinkageBlocks() []Signature {
	var region []token

	for p.pos < len(p.toks) {
		if !p.atLinkageSpec() {
			p.pos++
			continue
		}
		p.pos += 2

		var body []token
		if p.peek().is("{") {
			closing := p.matching(p.pos, "{", "}")
			body = p.toks[p.pos+1 : closing]
			p.pos = closing + 1
		} else {
			end := p.declarationEnd(p.pos)
			body = p.toks[p.pos:end]
			p.pos = end
		}

		if len(body) == 0 {
			continue
		}

		// Regions are joined line by line.
		start := len(region)
		region = append(region, body...)
		region[start].bol = true
	}

	sub := &parser{toks: region, types: p.types}
	return sub.declarations(true, nil)
}

// parseTopLevel matches declarations outside of any braces and drops the
// ones that content also defines as static.
func (p *parser) parseTopLevel(content string) []Signature {
	return p.declarations(false, func(sig Signature) bool {
		return definesStatic(content, sig)
	})
}

// declarations walks the token stream at brace depth zero. A matched
// declaration followed by a body consumes the whole body. The braces of an
// extern "C" block do not count as depth, and the single-declaration
// extern "C" form is matched as if its declaration started the line.
func (p *parser) declarations(allowExtern bool, skip func(Signature) bool) []Signature {
	var sigs []Signature
	var linkage []bool // one entry per open brace
	depth := 0
	anchored := false

	for p.pos < len(p.toks) {
		t := p.toks[p.pos]

		if depth == 0 && p.atLinkageSpec() {
			if p.peekAt(2).is("{") {
				linkage = append(linkage, true)
				p.pos += 3
				continue
			}
			p.pos += 2
			anchored = true
			continue
		}

		if depth == 0 && (t.bol || anchored) {
			anchored = false
			if sig, ok := p.declaration(allowExtern); ok {
				if p.peek().is("{") {
					p.pos = p.matching(p.pos, "{", "}") + 1
				}
				if skip == nil || !skip(sig) {
					sigs = append(sigs, sig)
				}
				continue
			}
		}
		anchored = false

		switch {
		case t.is("{"):
			linkage = append(linkage, false)
			depth++
		case t.is("}"):
			if n := len(linkage); n > 0 {
				if !linkage[n-1] {
					depth--
				}
				linkage = linkage[:n-1]
			}
		}
		p.pos++
	}

	return sigs
}

// declaration matches
//
//	[extern] <return-type> <identifier> ( <params> )
//
// at the current position. On failure the position is left unchanged.
func (p *parser) declaration(allowExtern bool) (Signature, bool) {
	start := p.pos
	fail := func() (Signature, bool) {
		p.pos = start
		return Signature{}, false
	}

	if allowExtern && p.peek().isIdent("extern") {
		p.pos++
	}

	retType, ok := p.returnType()
	if !ok {
		return fail()
	}

	name := p.peek()
	if name.kind != tokIdent || name.bol {
		return fail()
	}
	p.pos++

	if !p.peek().is("(") {
		return fail()
	}

	params, ok := p.params()
	if !ok {
		return fail()
	}

	return Signature{
		ReturnType: retType,
		Name:       name.text,
		Params:     params,
	}, true
}

// returnType accepts a whitelisted spelling: one word, optionally followed
// by a single pointer marker on the same line.
func (p *parser) returnType() (string, bool) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", false
	}

	if star := p.peekAt(1); star.is("*") && !star.bol && p.types[t.text+"*"] {
		p.pos += 2
		return t.text + "*", true
	}

	if p.types[t.text] {
		p.pos++
		return t.text, true
	}

	return "", false
}

// params consumes a parenthesized parameter list and splits it on
// top-level commas. Variadic lists are rejected.
func (p *parser) params() ([]string, bool) {
	open := p.pos
	closing := p.matching(open, "(", ")")
	if closing >= len(p.toks) {
		return nil, false
	}
	p.pos = closing + 1

	var params []string
	var cur []token
	depth := 0

	flush := func() bool {
		raw := strings.TrimSpace(spell(cur))
		cur = cur[:0]
		if raw == "" {
			return true
		}
		if raw == "..." {
			return false
		}
		params = append(params, raw)
		return true
	}

	for _, t := range p.toks[open+1 : closing] {
		switch {
		case t.is("("):
			depth++
		case t.is(")"):
			depth--
		case t.is(",") && depth == 0:
			if !flush() {
				return nil, false
			}
			continue
		}
		cur = append(cur, t)
	}

	if !flush() {
		return nil, false
	}

	return params, true
}

// declarationEnd returns the index just past the declaration starting at
// i: after its terminating semicolon or after its body.
func (p *parser) declarationEnd(i int) int {
	for i < len(p.toks) {
		switch {
		case p.toks[i].is(";"):
			return i + 1
		case p.toks[i].is("{"):
			return p.matching(i, "{", "}") + 1
		}
		i++
	}
	return i
}

// matching returns the index of the token closing the group opened at i,
// or len(p.toks) when the group is unterminated.
func (p *parser) matching(i int, open, close string) int {
	depth := 0
	for ; i < len(p.toks); i++ {
		switch {
		case p.toks[i].is(open):
			depth++
		case p.toks[i].is(close):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(p.toks)
}

func (p *parser) atLinkageSpec() bool {
	return p.peek().isIdent("extern") &&
		p.peekAt(1).kind == tokString && p.peekAt(1).text == `"C"`
}

func (p *parser) peek() token {
	return p.peekAt(0)
}

func (p *parser) peekAt(n int) token {
	if i := p.pos + n; i < len(p.toks) {
		return p.toks[i]
	}
	return token{kind: tokPunct}
}

// definesStatic reports whether content contains a static definition with
// the same return type and name as sig. The check is textual and covers
// the whole file, comments included.
func definesStatic(content string, sig Signature) bool {
	base, pointer := strings.CutSuffix(sig.ReturnType, "*")

	sep := `\s+`
	if pointer {
		sep = `\s*\*\s*`
	}

	re := regexp.MustCompile(`\bstatic\s+` + regexp.QuoteMeta(base) + sep + regexp.QuoteMeta(sig.Name) + `\b`)
	return re.MatchString(content)
}
