package hostsessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/gridconfig"
	"github.com/andyrewlee/gridmux/internal/layout"
)

func echoConfig() *gridconfig.Config {
	return &gridconfig.Config{
		DefaultShell: "echo",
		ShellProfiles: []gridconfig.ShellProfile{
			{Name: "echo", Path: "echo hello-gridmux"},
		},
	}
}

type fakePublisher struct {
	mu   sync.Mutex
	seen map[layout.Id][][]byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{seen: make(map[layout.Id][][]byte)}
}

func (p *fakePublisher) Publish(terminalID layout.Id, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[terminalID] = append(p.seen[terminalID], append([]byte(nil), data...))
}

func (p *fakePublisher) count(id layout.Id) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen[id])
}

func TestHostCreateSpawnsAndPumpsOutput(t *testing.T) {
	group := asyncutil.NewGroup(context.Background())
	t.Cleanup(group.Close)

	pub := newFakePublisher()
	h := New(group, echoConfig(), pub)

	id, handle, err := h.Create(80, 24)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		cells := handle.VisibleCells()
		for _, c := range cells {
			if c.Char == 'h' {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return pub.count(id) > 0 }, 2*time.Second, 10*time.Millisecond)

	snap, err := h.Snapshot(string(id))
	require.NoError(t, err)
	assert.Contains(t, string(snap), "hello-gridmux")

	got, ok := h.Get(id)
	require.True(t, ok)
	assert.Equal(t, handle, got)

	require.NoError(t, h.Close(id))
	_, ok = h.Get(id)
	assert.False(t, ok)
}

func TestHostSnapshotUnknownIDFails(t *testing.T) {
	group := asyncutil.NewGroup(context.Background())
	t.Cleanup(group.Close)
	h := New(group, echoConfig(), nil)

	_, err := h.Snapshot("missing")
	assert.Error(t, err)
}
