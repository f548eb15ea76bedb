package apprt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/andyrewlee/gridmux/internal/dispatch"
)

// TaskCard is one row in a TaskBrowser column: the domain analogue of the
// teacher's board.IssueCard, stripped to plain JSON-serializable fields.
type TaskCard struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Labels    []string `json:"labels,omitempty"`
	Assignee  string   `json:"assignee,omitempty"`
	StateName string   `json:"state_name"`
}

// TaskColumn groups cards under one status heading.
type TaskColumn struct {
	Name  string     `json:"name"`
	Cards []TaskCard `json:"cards"`
}

// TaskBrowserViewState is the JSON view state published to subscribers.
type TaskBrowserViewState struct {
	Columns      []TaskColumn `json:"columns"`
	SelectedCol  int          `json:"selected_col"`
	SelectedRow  int          `json:"selected_row"`
	Search       string       `json:"search,omitempty"`
	Truncated    bool         `json:"truncated,omitempty"`
}

// taskBrowserAction is the action enum TaskBrowser understands, tagged by
// Op.
type taskBrowserAction struct {
	Op       string `json:"op"`
	CardID   string `json:"card_id,omitempty"`
	ToColumn string `json:"to_column,omitempty"`
	Search   string `json:"search,omitempty"`
	Col      int    `json:"col,omitempty"`
	Row      int    `json:"row,omitempty"`
}

// TaskBrowser is a minimal example app exercising the runtime end to end:
// a fixed set of Kanban-style columns a client can select within, move
// cards between, and filter by search text.
type TaskBrowser struct {
	mu          sync.Mutex
	columns     []TaskColumn
	selectedCol int
	selectedRow int
	search      string
}

// NewTaskBrowser seeds a TaskBrowser with starter columns. Real
// deployments would populate columns from an external issue tracker via
// the dispatcher's VCS-adjacent collaborators; this example keeps static
// data so the runtime can be exercised without one.
func NewTaskBrowser() (App, error) {
	return &TaskBrowser{
		columns: []TaskColumn{
			{Name: "todo"},
			{Name: "in_progress"},
			{Name: "done"},
		},
	}, nil
}

// KindTag implements App.
func (t *TaskBrowser) KindTag() string { return "task_browser" }

// ViewState implements App.
func (t *TaskBrowser) ViewState() (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	vs := TaskBrowserViewState{
		SelectedCol: t.selectedCol,
		SelectedRow: t.selectedRow,
		Search:      t.search,
	}
	for _, col := range t.columns {
		cards := col.Cards
		if t.search != "" {
			cards = filterCards(cards, t.search)
		}
		truncated, didTruncate := TruncateList(cards)
		if didTruncate {
			vs.Truncated = true
		}
		vs.Columns = append(vs.Columns, TaskColumn{Name: col.Name, Cards: truncated})
	}
	return json.Marshal(vs)
}

func filterCards(cards []TaskCard, search string) []TaskCard {
	out := make([]TaskCard, 0, len(cards))
	for _, c := range cards {
		if containsFold(c.Title, search) {
			out = append(out, c)
		}
	}
	return out
}

func containsFold(haystack, needle string) bool {
	hl, nl := []rune(haystack), []rune(needle)
	if len(nl) == 0 {
		return true
	}
	toLower := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			out[i] = r
		}
		return out
	}
	hl, nl = toLower(hl), toLower(nl)
	for i := 0; i+len(nl) <= len(hl); i++ {
		match := true
		for j := range nl {
			if hl[i+j] != nl[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// HandleAction implements App.
func (t *TaskBrowser) HandleAction(raw json.RawMessage) dispatch.ActionResult {
	var action taskBrowserAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return dispatch.Failure(fmt.Sprintf("task_browser: malformed action: %v", err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch action.Op {
	case "select":
		if action.Col < 0 || action.Col >= len(t.columns) {
			return dispatch.Failure("task_browser: column out of range")
		}
		t.selectedCol = action.Col
		t.selectedRow = action.Row
		return dispatch.Success(nil)
	case "search":
		t.search = action.Search
		return dispatch.Success(nil)
	case "move_card":
		return t.moveCard(action.CardID, action.ToColumn)
	case "refresh":
		return dispatch.Success(nil)
	default:
		return dispatch.Failure(fmt.Sprintf("task_browser: unknown op %q", action.Op))
	}
}

func (t *TaskBrowser) moveCard(cardID, toColumn string) dispatch.ActionResult {
	var destIdx = -1
	for i, col := range t.columns {
		if col.Name == toColumn {
			destIdx = i
		}
	}
	if destIdx < 0 {
		return dispatch.Failure(fmt.Sprintf("task_browser: unknown column %q", toColumn))
	}

	for i, col := range t.columns {
		for j, card := range col.Cards {
			if card.ID == cardID {
				t.columns[i].Cards = append(col.Cards[:j:j], col.Cards[j+1:]...)
				t.columns[destIdx].Cards = append(t.columns[destIdx].Cards, card)
				return dispatch.Success(nil)
			}
		}
	}
	return dispatch.Failure(fmt.Sprintf("task_browser: unknown card %q", cardID))
}

// Close implements App. TaskBrowser holds no background resources.
func (t *TaskBrowser) Close() {}
