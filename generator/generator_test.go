package generator

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardanlabs/dlshim/parser"
)

var oUpdate = flag.Bool("update", false, "Rewrite golden files.")

func checkGolden(t *testing.T, path, got string) {
	t.Helper()

	if *oUpdate {
		require.NoError(t, os.WriteFile(path, []byte(got), 0644))
		return
	}

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	if expected := string(b); expected != got {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(expected),
			B:        difflib.SplitLines(got),
			FromFile: "expected",
			ToFile:   "got",
			Context:  3,
		}
		text, _ := difflib.GetUnifiedDiffString(diff)
		t.Fatalf("%s: output differs:\n%s", filepath.Base(path), text)
	}
}

func generate(t *testing.T, target string, sigs []parser.Signature, opts Options) *Module {
	t.Helper()

	mod, err := New(target, sigs, opts).Generate()
	require.NoError(t, err)
	return mod
}

func TestGenerateGolden(t *testing.T) {
	src, err := os.ReadFile("testdata/liba.c")
	require.NoError(t, err)

	sigs := parser.Parse(string(src), parser.Options{})
	mod := generate(t, "liba.so", sigs, Options{})

	assert.Equal(t, "liba", mod.Tag)
	assert.Equal(t, []string{"add"}, mod.Functions)
	assert.NotContains(t, mod.Source, "helper")
	checkGolden(t, "testdata/liba.golden", mod.Source)
}

func TestGenerateDeterministic(t *testing.T) {
	sigs := []parser.Signature{
		{ReturnType: "void*", Name: "open_doc", Params: []string{"const char *path"}},
		{ReturnType: "int", Name: "render", Params: []string{"PopplerDocument *doc", "int page"}},
		{ReturnType: "void", Name: "close_doc", Params: []string{"void *doc"}},
	}
	opts := Options{Aliases: map[string]string{"PopplerDocument": "void", "GdkPixbuf": "void", "cairo_t": "void"}}

	first := generate(t, "libpdf.so", sigs, opts)
	for i := 0; i < 5; i++ {
		again := generate(t, "libpdf.so", sigs, opts)
		assert.Equal(t, first.Source, again.Source)
		assert.Equal(t, first.Header, again.Header)
	}
}

func TestGenerateSkipPrefixes(t *testing.T) {
	sigs := []parser.Signature{
		{ReturnType: "char*", Name: "stbi_load", Params: []string{"const char *file"}},
		{ReturnType: "void", Name: "stbir_resize", Params: []string{"void *img"}},
		{ReturnType: "int", Name: "WebPDecode", Params: []string{"const uint8_t *data"}},
		{ReturnType: "int", Name: "keep_me", Params: []string{"int x"}},
		{ReturnType: "int", Name: "internal_thing", Params: []string{"int x"}},
	}

	mod := generate(t, "libimg.so", sigs, Options{
		SkipPrefixes: append(append([]string(nil), DefaultSkipPrefixes...), "internal_"),
	})

	assert.Equal(t, []string{"keep_me"}, mod.Functions)
	for _, name := range []string{"stbi_", "stbir_", "WebP", "internal_"} {
		assert.NotContains(t, mod.Source, name)
		assert.NotContains(t, mod.Header, name)
	}
	assert.Contains(t, mod.Source, "int keep_me_wrap(int x) {\n    return keep_me(x);\n}\n")
}

func TestGenerateAliases(t *testing.T) {
	sigs := []parser.Signature{
		{ReturnType: "int", Name: "page_count", Params: []string{"PopplerDocument *doc"}},
		{ReturnType: "void", Name: "draw", Params: []string{"cairo_t *cr", "MyPopplerDocument *other"}},
	}

	mod := generate(t, "libpdf.so", sigs, Options{})
	assert.Contains(t, mod.Source, "typedef int (*page_count_func)(void *);")
	assert.Contains(t, mod.Source, "int page_count_wrap(void *doc) {")
	assert.Contains(t, mod.Source, "MyPopplerDocument *other")
	assert.Contains(t, mod.Source, "cairo_t *cr")

	mod = generate(t, "libpdf.so", sigs, Options{Aliases: map[string]string{"cairo_t": "void"}})
	assert.Contains(t, mod.Source, "void draw_wrap(void *cr, MyPopplerDocument *other) {")
	assert.Contains(t, mod.Source, "PopplerDocument *doc")
}

func TestGenerateInvalidAlias(t *testing.T) {
	_, err := New("liba.so", nil, Options{Aliases: map[string]string{"not an ident": "void"}}).Generate()
	assert.ErrorContains(t, err, "not an identifier")
}

func TestGenerateParams(t *testing.T) {
	sigs := []parser.Signature{
		{ReturnType: "size_t", Name: "count", Params: []string{"void"}},
		{ReturnType: "double", Name: "now", Params: nil},
		{ReturnType: "void", Name: "close_doc", Params: []string{"void *"}},
		{ReturnType: "int", Name: "sum", Params: []string{"const int values[4]", "int [2]", "size_t"}},
		{ReturnType: "char*", Name: "join", Params: []string{"char **parts", "const char *sep"}},
	}

	mod := generate(t, "libutil.so", sigs, Options{})

	for _, want := range []string{
		"typedef size_t (*count_func)(void);\n",
		"typedef double (*now_func)(void);\n",
		"typedef void (*close_doc_func)(void *);\n",
		"typedef int (*sum_func)(const int [4], int [2], size_t);\n",
		"typedef char* (*join_func)(char **, const char *);\n",
		"size_t count_wrap(void) {\n    return count();\n}\n",
		"double now_wrap(void) {\n    return now();\n}\n",
		"void close_doc_wrap(void *arg0) {\n    close_doc(arg0);\n}\n",
		"int sum_wrap(const int values[4], int arg1[2], size_t arg2) {\n    return sum(values, arg1, arg2);\n}\n",
		"char* join_wrap(char **parts, const char *sep) {\n    return join(parts, sep);\n}\n",
	} {
		assert.Contains(t, mod.Source, want)
	}
}

func TestGenerateDuplicates(t *testing.T) {
	sigs := []parser.Signature{
		{ReturnType: "int", Name: "add", Params: []string{"int a", "int b"}},
		{ReturnType: "int", Name: "add", Params: []string{"int a", "int b"}},
	}

	mod := generate(t, "liba.so", sigs, Options{})
	assert.Equal(t, []string{"add"}, mod.Functions)
	assert.Equal(t, 1, strings.Count(mod.Source, "typedef int (*add_func)"))
	assert.Equal(t, 1, strings.Count(mod.Source, "int add_wrap("))

	src := `int scale();
int version(void);

int scale(int v) {
    return v * 2;
}

int version(int major) {
    return major;
}
`
	mod = generate(t, "liba.so", parser.Parse(src, parser.Options{}), Options{})
	assert.Equal(t, []string{"scale", "version"}, mod.Functions)
	assert.Contains(t, mod.Source, "typedef int (*scale_func)(int);\n")
	assert.Contains(t, mod.Source, "int scale_wrap(int v) {\n    return scale(v);\n}\n")
	assert.NotContains(t, mod.Source, "scale_wrap(void)")
	assert.Contains(t, mod.Source, "typedef int (*version_func)(void);\n")
}

func TestGenerateNoFunctions(t *testing.T) {
	mod := generate(t, "libempty.so", nil, Options{})

	assert.Empty(t, mod.Functions)
	assert.Contains(t, mod.Source, "int is_libempty_available(void) {")
	assert.NotContains(t, mod.Source, "fail:")
	assert.NotContains(t, mod.Source, "goto")
	assert.NotContains(t, mod.Source, "typedef int")
}

func TestGenerateTableLayout(t *testing.T) {
	sigs := []parser.Signature{
		{ReturnType: "int", Name: "add", Params: []string{"int a", "int b"}},
		{ReturnType: "void", Name: "reset", Params: []string{"void"}},
	}

	mod := generate(t, "liba.so", sigs, Options{Layout: LayoutTable})

	for _, want := range []string{
		"struct liba_symbols {\n    add_func add;\n    reset_func reset;\n};\n",
		"static struct liba_symbols liba_table;\n",
		"    struct liba_symbols syms = {0};\n",
		"    syms.add = (add_func)dlsym(liba_handle, \"add\");\n    if (!syms.add) {\n",
		"    liba_table = syms;\n    liba_state = liba_available;\n",
		"const struct liba_symbols *liba_symbols_table(void) {\n    return is_liba_available() ? &liba_table : NULL;\n}\n",
		"int add_wrap(int a, int b) {\n    return liba_table.add(a, b);\n}\n",
		"void reset_wrap(void) {\n    liba_table.reset();\n}\n",
	} {
		assert.Contains(t, mod.Source, want)
	}
	assert.NotContains(t, mod.Source, "static add_func add = NULL;")
	assert.NotContains(t, mod.Source, "    add = NULL;")

	assert.Contains(t, mod.Header, `int is_liba_available(void);

typedef int (*add_func)(int, int);
typedef void (*reset_func)(void);

struct liba_symbols {
    add_func add;
    reset_func reset;
};

const struct liba_symbols *liba_symbols_table(void);

int add_wrap(int a, int b);
void reset_wrap(void);
`)

	mod = generate(t, "libempty.so", nil, Options{Layout: LayoutTable})
	assert.Contains(t, mod.Header, "int is_libempty_available(void);\n\nstruct libempty_symbols {\n    char none;\n};\n")
}

func TestGenerateHeader(t *testing.T) {
	sigs := []parser.Signature{
		{ReturnType: "int", Name: "add", Params: []string{"int a", "int b"}},
		{ReturnType: "void*", Name: "open_doc", Params: []string{"PopplerDocument *doc"}},
	}

	mod := generate(t, "liba.so", sigs, Options{})

	expected := `#ifndef LIBA_SHIM_H
#define LIBA_SHIM_H

#include <stddef.h>
#include <stdint.h>

#ifdef __cplusplus
extern "C" {
#endif

int is_liba_available(void);

int add_wrap(int a, int b);
void* open_doc_wrap(void *doc);

#ifdef __cplusplus
}
#endif

#endif
`
	assert.Equal(t, expected, mod.Header)
}

func TestLibraryTag(t *testing.T) {
	cases := []struct {
		target string
		tag    string
	}{
		{"liba.so", "liba"},
		{"libpdf.so", "libpdf"},
		{"build/lib/libz.so", "libz"},
		{"lib-web.p.so", "lib_web_p"},
		{"3d.so", "_3d"},
		{"plugin", "plugin"},
	}

	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			tag, err := libraryTag(tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.tag, tag)
		})
	}

	for _, target := range []string{"", ".so"} {
		_, err := libraryTag(target)
		assert.Error(t, err, target)
	}
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("table")
	require.NoError(t, err)
	assert.Equal(t, LayoutTable, l)

	l, err = ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutGlobals, l)

	_, err = ParseLayout("struct")
	assert.Error(t, err)
}
