package apprt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
)

type recordingPublisher struct {
	mu    sync.Mutex
	calls []json.RawMessage
}

func (p *recordingPublisher) Publish(appID, kind string, viewState json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, viewState)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newTestRegistry(t *testing.T) (*Registry, *recordingPublisher) {
	t.Helper()
	group := asyncutil.NewGroup(context.Background())
	t.Cleanup(group.Close)
	pub := &recordingPublisher{}
	r := NewRegistry(group, pub)
	r.RegisterFactory("task_browser", NewTaskBrowser)
	return r, pub
}

func TestCreateUnknownKindFails(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("nonexistent")
	assert.Error(t, err)
}

func TestCreateAndViewState(t *testing.T) {
	r, _ := newTestRegistry(t)
	id, err := r.Create("task_browser")
	require.NoError(t, err)

	data, kind, err := r.ViewState(id)
	require.NoError(t, err)
	assert.Equal(t, "task_browser", kind)

	var vs TaskBrowserViewState
	require.NoError(t, json.Unmarshal(data, &vs))
	assert.Len(t, vs.Columns, 3)
}

func TestHandleActionSelectAndMoveCard(t *testing.T) {
	r, _ := newTestRegistry(t)
	id, err := r.Create("task_browser")
	require.NoError(t, err)

	selectResult := r.HandleAction(id, json.RawMessage(`{"op":"select","col":1,"row":0}`))
	assert.True(t, selectResult.OK)

	badResult := r.HandleAction(id, json.RawMessage(`{"op":"select","col":99}`))
	assert.False(t, badResult.OK)

	moveResult := r.HandleAction(id, json.RawMessage(`{"op":"move_card","card_id":"nope","to_column":"done"}`))
	assert.False(t, moveResult.OK)
}

func TestCloseRemovesAppAndRejectsFurtherActions(t *testing.T) {
	r, _ := newTestRegistry(t)
	id, err := r.Create("task_browser")
	require.NoError(t, err)

	require.NoError(t, r.Close(id))
	assert.Error(t, r.Close(id))

	result := r.HandleAction(id, json.RawMessage(`{"op":"refresh"}`))
	assert.False(t, result.OK)
}

func TestHandleActionSchedulesDebouncedPublish(t *testing.T) {
	r, pub := newTestRegistry(t)
	id, err := r.Create("task_browser")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		r.HandleAction(id, json.RawMessage(`{"op":"refresh"}`))
	}

	require.Eventually(t, func() bool {
		return pub.count() >= 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(publishDebounce + 150*time.Millisecond)
	assert.LessOrEqual(t, pub.count(), 2, "five rapid actions should coalesce to far fewer publishes")
}

func TestSearchFiltersCards(t *testing.T) {
	card := TaskCard{ID: "1", Title: "Fix login bug", StateName: "todo"}
	assert.True(t, containsFold(card.Title, "login"))
	assert.True(t, containsFold(card.Title, "LOGIN"))
	assert.False(t, containsFold(card.Title, "payments"))
}
