package ptymgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andyrewlee/gridmux/internal/gridconfig"
)

func echoProfile() gridconfig.ShellProfile {
	return gridconfig.ShellProfile{Name: "echo", Path: "echo hello-gridmux"}
}

func TestManagerSpawnReadsOutput(t *testing.T) {
	m := NewManager()
	id, _, output, err := m.Spawn(echoProfile(), t.TempDir(), nil, 80, 24)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var collected []byte
	deadline := time.After(2 * time.Second)
	for {
		select {
		case chunk, ok := <-output.C():
			if !ok {
				goto done
			}
			collected = append(collected, chunk.Data...)
			if len(collected) > 0 {
				goto done
			}
		case <-deadline:
			t.Fatal("timed out waiting for output")
		}
	}
done:
	require.Contains(t, string(collected), "hello-gridmux")

	code, err := m.Close(id)
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestManagerResizeUnknownIdFails(t *testing.T) {
	m := NewManager()
	err := m.Resize(Id("missing"), 80, 24)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManagerCloseUnknownIdFails(t *testing.T) {
	m := NewManager()
	_, err := m.Close(Id("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManagerResizeLiveSession(t *testing.T) {
	m := NewManager()
	profile := gridconfig.ShellProfile{Name: "sleep", Path: "sleep 1"}
	id, _, _, err := m.Spawn(profile, t.TempDir(), nil, 80, 24)
	require.NoError(t, err)
	defer m.Close(id)

	require.NoError(t, m.Resize(id, 120, 40))
}
