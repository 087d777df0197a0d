package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

var (
	// Set via DLSHIM_DEBUG in the environment
	Debug bool
	// Set via DLSHIM_DEBUG in the environment; 2 enables tracing
	Level = slog.LevelInfo
	// Set via DLSHIM_FLAGS in the environment
	Flags []string
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"DLSHIM_DEBUG": {"DLSHIM_DEBUG", Debug, "Show additional debug information (e.g. DLSHIM_DEBUG=1, 2 for trace)"},
		"DLSHIM_FLAGS": {"DLSHIM_FLAGS", strings.Join(Flags, " "), "Options applied before the command line (e.g. DLSHIM_FLAGS=\"--layout table\")"},
	}
}

func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

// LoadConfig reads the environment. It fails only when DLSHIM_FLAGS cannot
// be split into words.
func LoadConfig() error {
	Debug = false
	Level = slog.LevelInfo
	Flags = nil

	if debug := clean("DLSHIM_DEBUG"); debug != "" {
		if d, err := strconv.ParseBool(debug); err == nil {
			Debug = d
		} else if n, err := strconv.ParseInt(debug, 10, 64); err == nil {
			Debug = n > 0
			Level = slog.Level(n * -4)
		} else {
			Debug = true
		}
	}

	if Debug && Level == slog.LevelInfo {
		Level = slog.LevelDebug
	}

	if flags := os.Getenv("DLSHIM_FLAGS"); flags != "" {
		words, err := shellquote.Split(flags)
		if err != nil {
			return fmt.Errorf("DLSHIM_FLAGS: %w", err)
		}
		Flags = words
	}

	return nil
}
