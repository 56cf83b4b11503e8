package ptysup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpawnWriteReadKill(t *testing.T) {
	sup, err := Spawn(Spec{Command: []string{"/bin/cat"}, Cols: 80, Rows: 24})
	require.NoError(t, err)

	chunks := make(chan []byte, 8)
	go sup.Run(func(b []byte) { chunks <- b })

	require.NoError(t, sup.Write([]byte("hello\n")))

	select {
	case b := <-chunks:
		require.Contains(t, string(b), "hello")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed output")
	}

	sup.Kill()
	select {
	case <-sup.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for process exit")
	}
}

func TestResizeNoopWhenUnchanged(t *testing.T) {
	sup, err := Spawn(Spec{Command: []string{"/bin/cat"}, Cols: 80, Rows: 24})
	require.NoError(t, err)
	defer sup.Kill()
	go sup.Run(func([]byte) {})

	require.NoError(t, sup.Resize(80, 24))
	cols, rows := sup.Dimensions()
	require.Equal(t, 80, cols)
	require.Equal(t, 24, rows)

	require.NoError(t, sup.Resize(100, 40))
	cols, rows = sup.Dimensions()
	require.Equal(t, 100, cols)
	require.Equal(t, 40, rows)
}
