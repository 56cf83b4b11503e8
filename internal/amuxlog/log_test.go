package amuxlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Dir: dir, Level: "debug"})
	require.NoError(t, err)

	l.WithField("session_id", "abc").Info("session started")

	contents, err := os.ReadFile(filepath.Join(dir, "daemon.log"))
	require.NoError(t, err)
	require.Contains(t, string(contents), `"session_id":"abc"`)
	require.Contains(t, string(contents), `"msg":"session started"`)
}

func TestGetFallsBackWhenNewNotCalled(t *testing.T) {
	mu.Lock()
	logger = nil
	mu.Unlock()

	l := Get()
	require.NotNil(t, l)
}

func TestForAttachesComponentField(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{Dir: dir})
	require.NoError(t, err)

	entry := For("registry")
	require.Equal(t, "registry", entry.Data["component"])
}
