package malloc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Config
		wantErr bool
	}{
		{
			name:    "full",
			content: "capacity = 4096\nslots_per_arena = 16\nlog_level = \"debug\"\n",
			want:    Config{Capacity: 4096, SlotsPerArena: 16, LogLevel: "debug"},
		},
		{
			name:    "defaults",
			content: "capacity = 2048\n",
			want:    Config{Capacity: 2048, SlotsPerArena: DefaultSlotsPerArena},
		},
		{"empty", "", DefaultConfig(), false},
		{"bad_capacity", "capacity = 0\n", Config{}, true},
		{"bad_slots", "slots_per_arena = -1\n", Config{}, true},
		{"bad_level", "log_level = \"loud\"\n", Config{}, true},
		{"bad_toml", "capacity = \n", Config{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "memkit.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			cfg, err := LoadConfig(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestNewHeapFromConfig(t *testing.T) {
	h, err := NewHeapFromConfig(Config{Capacity: 2048, SlotsPerArena: 8, LogLevel: "error"})
	require.NoError(t, err)
	assert.True(t, h.Initialized())
	assert.Equal(t, 2048, h.Cap())

	_, err = NewHeapFromConfig(Config{Capacity: -1, SlotsPerArena: 8})
	assert.Error(t, err)
}

func TestConfigNewLogger(t *testing.T) {
	l, err := Config{}.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = Config{LogLevel: "warn"}.NewLogger()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1)) // debug
}
