package envconfig

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugLevel(t *testing.T) {
	cases := []struct {
		value string
		debug bool
		level slog.Level
	}{
		{"", false, slog.LevelInfo},
		{"0", false, slog.LevelInfo},
		{"false", false, slog.LevelInfo},
		{"1", true, slog.LevelDebug},
		{"true", true, slog.LevelDebug},
		{"2", true, slog.Level(-8)},
		{"yes please", true, slog.LevelDebug},
	}

	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("DLSHIM_DEBUG", tc.value)
			t.Setenv("DLSHIM_FLAGS", "")
			require.NoError(t, LoadConfig())
			assert.Equal(t, tc.debug, Debug)
			assert.Equal(t, tc.level, Level)
		})
	}
}

func TestFlags(t *testing.T) {
	t.Setenv("DLSHIM_DEBUG", "")
	t.Setenv("DLSHIM_FLAGS", `--layout table --alias 'GdkPixbuf=void' --skip-prefix "g_ "`)

	require.NoError(t, LoadConfig())
	assert.Equal(t, []string{"--layout", "table", "--alias", "GdkPixbuf=void", "--skip-prefix", "g_ "}, Flags)
	assert.Equal(t, "DLSHIM_FLAGS", AsMap()["DLSHIM_FLAGS"].Name)
}

func TestFlagsUnterminatedQuote(t *testing.T) {
	t.Setenv("DLSHIM_DEBUG", "")
	t.Setenv("DLSHIM_FLAGS", `--alias "Foo=void`)

	err := LoadConfig()
	assert.ErrorContains(t, err, "DLSHIM_FLAGS")
}
