package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synthvid/synthvid/test"
)

func TestConfig_Load(t *testing.T) {
	l := test.NewLogger()
	dir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	// invalid yaml
	c := NewC(l)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte(" invalid yaml"), 0644))
	assert.Error(t, c.Load(dir))

	// multi file merge, lexical order wins
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("outer:\n  inner: hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("outer:\n  inner: override\nnew: hi"), 0644))
	c = NewC(l)
	require.NoError(t, c.Load(dir))
	expected := map[string]any{
		"outer": map[string]any{
			"inner": "override",
		},
		"new": "hi",
	}
	assert.Equal(t, expected, c.Settings)

	// empty directory
	c = NewC(l)
	empty, err := os.MkdirTemp("", "config-empty")
	require.NoError(t, err)
	defer os.RemoveAll(empty)
	assert.Error(t, c.Load(empty))
}

func TestConfig_Get(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	c.Settings["display"] = map[string]any{"refresh_interval": "hi"}
	assert.Equal(t, "hi", c.Get("display.refresh_interval"))

	// missing
	assert.Nil(t, c.Get("display.nope"))
	assert.False(t, c.IsSet("display.nope"))
	assert.True(t, c.IsSet("display.refresh_interval"))
}

func TestConfig_GetUint64(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	require.NoError(t, c.LoadString("vram:\n  size_bytes: 67108864\n  base: 0xF8000000"))

	assert.Equal(t, uint64(67108864), c.GetUint64("vram.size_bytes", 0))
	assert.Equal(t, uint64(0xF8000000), c.GetUint64("vram.base", 0))
	assert.Equal(t, uint64(42), c.GetUint64("vram.missing", 42))
}

func TestConfig_GetBool(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	c.Settings["bool"] = true
	assert.True(t, c.GetBool("bool", false))

	c.Settings["bool"] = "yes"
	assert.True(t, c.GetBool("bool", false))

	c.Settings["bool"] = "no"
	assert.False(t, c.GetBool("bool", true))

	c.Settings["bool"] = "garbage"
	assert.True(t, c.GetBool("bool", true))
}

func TestConfig_GetDuration(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	c.Settings["interval"] = "50ms"
	assert.Equal(t, 50*time.Millisecond, c.GetDuration("interval", time.Second))
	assert.Equal(t, time.Second, c.GetDuration("missing", time.Second))
}

func TestConfig_HasChanged(t *testing.T) {
	l := test.NewLogger()

	// no reload has occurred, return false
	c := NewC(l)
	c.Settings["test"] = "hi"
	assert.False(t, c.HasChanged(""))

	c = NewC(l)
	c.Settings["vram"] = map[string]any{"size_bytes": 1}
	c.oldSettings = map[string]any{"vram": map[string]any{"size_bytes": 1}}
	assert.False(t, c.HasChanged("vram.size_bytes"))

	c.Settings["vram"] = map[string]any{"size_bytes": 2}
	assert.True(t, c.HasChanged("vram.size_bytes"))
	assert.True(t, c.HasChanged(""))
}
