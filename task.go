package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"modernc.org/opt"

	"github.com/ardanlabs/dlshim/envconfig"
	"github.com/ardanlabs/dlshim/generator"
	"github.com/ardanlabs/dlshim/logutil"
	"github.com/ardanlabs/dlshim/parser"
)

var errUsage = errors.New("usage")

const usage = `usage: dlshim [options] <target.so> <output.c> <input>...

Generates a C module that loads <target.so> from the executable's directory
on first use and forwards calls through function pointers.

Options:
  --header <path>         also write a header declaring the wrappers
  --skip-prefix <prefix>  never wrap functions starting with prefix (repeatable)
  --alias <name=type>     replace the type name in the output (repeatable)
  --return-type <type>    accept an additional return type (repeatable)
  --layout <name>         pointer storage: globals (default) or table
  --linkage-ext <ext>     inputs with this extension only contribute
                          extern "C" declarations (default .cc)
  -v                      debug logging
  -h, --help              show this help
`

// task is one generator run.
type task struct {
	args   []string // command name in args[0]
	stdout io.Writer
	stderr io.Writer
	log    *slog.Logger

	aliases      map[string]string
	header       string
	inputs       []string
	layout       generator.Layout
	linkageExt   string
	output       string
	returnTypes  []string
	skipPrefixes []string
	target       string

	help    bool
	verbose bool
}

func newTask(args []string, stdout, stderr io.Writer) *task {
	return &task{
		args:       args,
		stdout:     stdout,
		stderr:     stderr,
		linkageExt: ".cc",
	}
}

// main executes the task. Errors wrapping errUsage mean the command line
// was invalid and nothing was read or written.
func (t *task) main() error {
	if err := t.parseArgs(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if t.help {
		fmt.Fprint(t.stdout, usage)
		t.printEnv()
		return nil
	}

	level := envconfig.Level
	if t.verbose && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	t.log = logutil.NewLogger(t.stderr, level)

	sigs, err := t.extract()
	if err != nil {
		return err
	}

	gen := generator.New(t.target, sigs, generator.Options{
		SkipPrefixes: t.skipPrefixes,
		Aliases:      t.aliases,
		Layout:       t.layout,
	})

	mod, err := gen.Generate()
	if err != nil {
		return fmt.Errorf("generating shim: %w", err)
	}

	files := []outputFile{{path: t.output, data: mod.Source}}
	if t.header != "" {
		files = append(files, outputFile{path: t.header, data: mod.Header})
	}

	if err := writeFiles(files); err != nil {
		return err
	}

	t.log.Info("generated", "output", t.output, "library", mod.Tag, "functions", len(mod.Functions), "size", humanize.Bytes(uint64(len(mod.Source))))
	if t.header != "" {
		t.log.Info("generated", "header", t.header, "size", humanize.Bytes(uint64(len(mod.Header))))
	}

	return nil
}

func (t *task) parseArgs() error {
	if len(t.args) == 0 {
		return errors.New("missing command name")
	}

	t.aliases = make(map[string]string, len(generator.DefaultAliases))
	for name, spelling := range generator.DefaultAliases {
		t.aliases[name] = spelling
	}
	t.skipPrefixes = append([]string(nil), generator.DefaultSkipPrefixes...)

	var extraTypes []string
	var positional []string

	set := opt.NewSet()
	set.Arg("-header", false, func(opt, val string) error { t.header = val; return nil })
	set.Arg("-skip-prefix", false, func(opt, val string) error { t.skipPrefixes = append(t.skipPrefixes, val); return nil })
	set.Arg("-return-type", false, func(opt, val string) error { extraTypes = append(extraTypes, val); return nil })
	set.Arg("-linkage-ext", false, func(opt, val string) error { t.linkageExt = val; return nil })
	set.Arg("-alias", false, func(opt, val string) error {
		name, spelling, ok := strings.Cut(val, "=")
		if !ok || name == "" || spelling == "" {
			return fmt.Errorf("%s: expected name=type, got %q", opt, val)
		}
		t.aliases[name] = spelling
		return nil
	})
	set.Arg("-layout", false, func(opt, val string) (err error) {
		t.layout, err = generator.ParseLayout(val)
		return err
	})
	set.Opt("v", func(opt string) error { t.verbose = true; return nil })
	set.Opt("h", func(opt string) error { t.help = true; return nil })
	set.Opt("-help", func(opt string) error { t.help = true; return nil })

	if err := set.Parse(t.args[1:], func(arg string) error {
		if strings.HasPrefix(arg, "-") {
			return fmt.Errorf("unrecognized option '%s'", arg)
		}
		positional = append(positional, arg)
		return nil
	}); err != nil {
		return err
	}

	if t.help {
		return nil
	}

	if len(positional) < 3 {
		return fmt.Errorf("expected <target.so> <output.c> <input>..., got %d argument(s)", len(positional))
	}

	t.target, t.output, t.inputs = positional[0], positional[1], positional[2:]

	if len(extraTypes) > 0 {
		t.returnTypes = append(append([]string(nil), parser.DefaultReturnTypes...), extraTypes...)
	}

	return nil
}

// extract parses every input concurrently and concatenates the results in
// argument order.
func (t *task) extract() ([]parser.Signature, error) {
	results := make([][]parser.Signature, len(t.inputs))

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, path := range t.inputs {
		i, path := i, path // per-iteration copies (go directive is pre-1.22)
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			mode := t.mode(path)
			sigs := parser.Parse(string(data), parser.Options{
				Mode:        mode,
				ReturnTypes: t.returnTypes,
			})

			t.log.Debug("extracted", "path", path, "mode", mode, "signatures", len(sigs))
			for _, sig := range sigs {
				logutil.Trace(t.log, "signature", "path", path, "return", sig.ReturnType, "name", sig.Name, "params", len(sig.Params))
			}

			results[i] = sigs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var sigs []parser.Signature
	for _, r := range results {
		sigs = append(sigs, r...)
	}

	return sigs, nil
}

func (t *task) mode(path string) parser.Mode {
	if filepath.Ext(path) == t.linkageExt {
		return parser.LinkageBlock
	}
	return parser.Heuristic
}

func (t *task) printEnv() {
	vars := envconfig.AsMap()

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(t.stdout, "\nEnvironment Variables:")
	for _, name := range names {
		fmt.Fprintf(t.stdout, "  %-14s %s\n", name, vars[name].Description)
	}
}

type outputFile struct {
	path string
	data string
}

// writeFiles replaces every file, going through temporary files in the
// same directories. Nothing is renamed into place until every temporary
// file is written, so a failed run never leaves partial output.
func writeFiles(files []outputFile) error {
	tmps := make([]string, 0, len(files))
	defer func() {
		for _, tmp := range tmps {
			os.Remove(tmp)
		}
	}()

	for _, f := range files {
		tmp, err := stageFile(f.path, f.data)
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
		tmps = append(tmps, tmp)
	}

	for i, f := range files {
		if err := os.Rename(tmps[i], f.path); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
	}
	tmps = nil

	return nil
}

// stageFile writes data to a new temporary file beside path and returns
// its name.
func stageFile(path, data string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	_, err = f.WriteString(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0644)
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}

	return tmp, nil
}
