package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutputCapturesLevels(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	LogInfo("info %d", 1)
	LogWarn("warn %s", "x")
	LogError("error")

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, `msg="info 1"`)
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="warn x"`)
	assert.Contains(t, out, "level=ERROR")
}

func TestErrorsGoToErrorOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	l := newLogger(&out, &errOut)

	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	assert.Contains(t, out.String(), "level=INFO")
	assert.Contains(t, out.String(), "level=WARN")
	assert.NotContains(t, out.String(), "level=ERROR")
	assert.Contains(t, errOut.String(), "level=ERROR")
	assert.NotContains(t, errOut.String(), "level=INFO")

	l.With("step", "fetch").Error("failed")
	assert.Contains(t, errOut.String(), "step=fetch")
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, AtomicWriteFile(path, []byte(`{"a":1}`), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	// 上書き
	require.NoError(t, AtomicWriteFile(path, []byte(`{}`), 0644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}
