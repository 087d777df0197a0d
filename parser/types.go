package parser

// Mode selects how declarations are recovered from a source file.
type Mode int

const (
	// Heuristic scans top-level declarations and skips function bodies.
	Heuristic Mode = iota

	// LinkageBlock only considers declarations inside extern "C" regions.
	LinkageBlock
)

func (m Mode) String() string {
	switch m {
	case LinkageBlock:
		return "linkage-block"
	default:
		return "heuristic"
	}
}

// Signature is one exported function as written in the source.
type Signature struct {
	ReturnType string
	Name       string
	Params     []string
}

// DefaultReturnTypes is the return type whitelist. Pointer spellings are
// separate entries.
var DefaultReturnTypes = []string{
	"void", "void*",
	"char", "char*",
	"uint32_t", "uint32_t*",
	"size_t", "size_t*",
	"int", "int*",
	"float", "float*",
	"double", "double*",
}

// Options configures an extraction pass.
type Options struct {
	Mode        Mode
	ReturnTypes []string
}

func (o Options) returnTypes() map[string]bool {
	types := o.ReturnTypes
	if len(types) == 0 {
		types = DefaultReturnTypes
	}

	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}

	return m
}
