package generator

import (
	"bytes"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/ardanlabs/dlshim/parser"
)

// libSuffix is removed from the target name to form the library tag.
const libSuffix = ".so"

// DefaultSkipPrefixes marks internal API that is never wrapped.
var DefaultSkipPrefixes = []string{"stbi_", "stbir_", "WebP"}

// DefaultAliases replaces opaque types that have no public definition.
var DefaultAliases = map[string]string{
	"PopplerDocument": "void",
}

// Layout selects how resolved function pointers are stored.
type Layout int

const (
	// LayoutGlobals keeps one static pointer per function.
	LayoutGlobals Layout = iota

	// LayoutTable keeps every pointer in one struct that the resolver
	// publishes once all symbols are bound.
	LayoutTable
)

// ParseLayout maps a layout name to its Layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "globals":
		return LayoutGlobals, nil
	case "table":
		return LayoutTable, nil
	}
	return 0, fmt.Errorf("unknown layout %q", s)
}

// Options tunes the generated module. Nil fields take the defaults.
type Options struct {
	SkipPrefixes []string
	Aliases      map[string]string
	Layout       Layout
}

// Module is the generated shim.
type Module struct {
	Tag       string
	Functions []string
	Source    string
	Header    string
}

type Generator struct {
	target string
	sigs   []parser.Signature
	opts   Options
}

func New(target string, sigs []parser.Signature, opts Options) *Generator {
	if opts.SkipPrefixes == nil {
		opts.SkipPrefixes = DefaultSkipPrefixes
	}
	if opts.Aliases == nil {
		opts.Aliases = DefaultAliases
	}

	return &Generator{
		target: target,
		sigs:   sigs,
		opts:   opts,
	}
}

// function is a signature prepared for emission.
type function struct {
	Return string
	Name   string
	Types  []string
	Decls  []string
	Args   []string
}

func (f function) Void() bool {
	return f.Return == "void"
}

type moduleData struct {
	Tag       string
	Guard     string
	Soname    string
	Table     bool
	Functions []function
}

func (g *Generator) Generate() (*Module, error) {
	tag, err := libraryTag(g.target)
	if err != nil {
		return nil, err
	}

	for name := range g.opts.Aliases {
		if !isIdentifier(name) {
			return nil, fmt.Errorf("alias %q is not an identifier", name)
		}
	}

	data := moduleData{
		Tag:       tag,
		Guard:     strings.ToUpper(tag) + "_SHIM_H",
		Soname:    strconv.Quote(g.target),
		Table:     g.opts.Layout == LayoutTable,
		Functions: g.functions(),
	}

	var src bytes.Buffer
	src.WriteString(includes)
	g.generateTypedefs(&src, data)
	g.generateStorage(&src, data)

	if err := resolverTmpl.Execute(&src, data); err != nil {
		return nil, fmt.Errorf("generating resolver: %w", err)
	}

	g.generateWrappers(&src, data)

	var hdr bytes.Buffer
	if err := headerTmpl.Execute(&hdr, data); err != nil {
		return nil, fmt.Errorf("generating header: %w", err)
	}

	names := make([]string, len(data.Functions))
	for i, fn := range data.Functions {
		names[i] = fn.Name
	}

	return &Module{
		Tag:       tag,
		Functions: names,
		Source:    g.applyAliases(src.String()),
		Header:    g.applyAliases(hdr.String()),
	}, nil
}

// functions filters the signatures by skip prefix, collapses repeated
// names and prepares parameter spellings. The first signature for a name
// wins unless it has an empty parameter list and a later one does not: an
// old-style prototype leaves the parameters unspecified.
func (g *Generator) functions() []function {
	var sigs []parser.Signature
	index := make(map[string]int)

	for _, sig := range g.sigs {
		if g.skipped(sig.Name) {
			continue
		}

		i, ok := index[sig.Name]
		if !ok {
			index[sig.Name] = len(sigs)
			sigs = append(sigs, sig)
			continue
		}
		if len(sigs[i].Params) == 0 && len(sig.Params) > 0 {
			sigs[i] = sig
		}
	}

	fns := make([]function, len(sigs))
	for i, sig := range sigs {
		fns[i] = prepare(sig)
	}

	return fns
}

func (g *Generator) skipped(name string) bool {
	for _, prefix := range g.opts.SkipPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func prepare(sig parser.Signature) function {
	fn := function{
		Return: sig.ReturnType,
		Name:   sig.Name,
	}

	if len(sig.Params) == 0 || (len(sig.Params) == 1 && parser.NormalizeParam(sig.Params[0]) == "void") {
		fn.Types = []string{"void"}
		fn.Decls = []string{"void"}
		return fn
	}

	for i, raw := range sig.Params {
		typ := parser.NormalizeParam(raw)
		name := parser.ParamName(raw)

		decl := raw
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
			decl = declare(typ, name)
		}

		fn.Types = append(fn.Types, typ)
		fn.Decls = append(fn.Decls, decl)
		fn.Args = append(fn.Args, name)
	}

	return fn
}

// declare places name into a bare type spelling.
func declare(typ, name string) string {
	if i := strings.Index(typ, "["); i >= 0 {
		return strings.TrimRight(typ[:i], " ") + " " + name + typ[i:]
	}
	if strings.HasSuffix(typ, "*") || strings.HasSuffix(typ, "&") {
		return typ + name
	}
	return typ + " " + name
}

const includes = `#include <dlfcn.h>
#include <limits.h>
#include <pthread.h>
#include <stddef.h>
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <unistd.h>

`

func (g *Generator) generateTypedefs(buf *bytes.Buffer, data moduleData) {
	for _, fn := range data.Functions {
		fmt.Fprintf(buf, "typedef %s (*%s_func)(%s);\n", fn.Return, fn.Name, strings.Join(fn.Types, ", "))
	}
	if len(data.Functions) > 0 {
		buf.WriteString("\n")
	}
}

func (g *Generator) generateStorage(buf *bytes.Buffer, data moduleData) {
	if data.Table {
		buf.WriteString("// Function table, published once every symbol is bound\n")
		fmt.Fprintf(buf, "struct %s_symbols {\n", data.Tag)
		for _, fn := range data.Functions {
			fmt.Fprintf(buf, "    %s_func %s;\n", fn.Name, fn.Name)
		}
		if len(data.Functions) == 0 {
			buf.WriteString("    char none;\n")
		}
		buf.WriteString("};\n\n")
		fmt.Fprintf(buf, "static struct %s_symbols %s_table;\n\n", data.Tag, data.Tag)
		return
	}

	buf.WriteString("// Global function pointers\n")
	for _, fn := range data.Functions {
		fmt.Fprintf(buf, "static %s_func %s = NULL;\n", fn.Name, fn.Name)
	}
	buf.WriteString("\n")
}

func (g *Generator) generateWrappers(buf *bytes.Buffer, data moduleData) {
	for _, fn := range data.Functions {
		callee := fn.Name
		if data.Table {
			callee = data.Tag + "_table." + fn.Name
		}

		fmt.Fprintf(buf, "%s %s_wrap(%s) {\n", fn.Return, fn.Name, strings.Join(fn.Decls, ", "))
		if fn.Void() {
			fmt.Fprintf(buf, "    %s(%s);\n", callee, strings.Join(fn.Args, ", "))
		} else {
			fmt.Fprintf(buf, "    return %s(%s);\n", callee, strings.Join(fn.Args, ", "))
		}
		buf.WriteString("}\n\n")
	}
}

func (g *Generator) applyAliases(s string) string {
	names := make([]string, 0, len(g.opts.Aliases))
	for name := range g.opts.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		s = re.ReplaceAllLiteralString(s, g.opts.Aliases[name])
	}

	return s
}

// libraryTag derives the identifier stem from the target file name.
func libraryTag(target string) (string, error) {
	base := strings.TrimSuffix(path.Base(target), libSuffix)
	if target == "" || base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("invalid target %q", target)
	}

	tag := []byte(base)
	for i, c := range tag {
		if !isIdentChar(c) {
			tag[i] = '_'
		}
	}
	if tag[0] >= '0' && tag[0] <= '9' {
		tag = append([]byte{'_'}, tag...)
	}

	return string(tag), nil
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isIdentifier(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

var resolverTmpl = template.Must(template.New("resolver").Parse(resolverText))

var headerTmpl = template.Must(template.New("header").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(headerText))
