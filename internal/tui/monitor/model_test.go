package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payagent/internal/errors"
	"payagent/internal/txn/domain"
	txnmonitor "payagent/internal/txn/monitor"
)

type fakeMonitor struct {
	mu        sync.Mutex
	state     txnmonitor.State
	pin       string
	submitted []string
	submitErr error
	closed    int
	updates   chan txnmonitor.State
	done      chan struct{}
}

func newFakeMonitor(status domain.Status) *fakeMonitor {
	return &fakeMonitor{
		state: txnmonitor.State{
			ID:          "t1",
			HasSnapshot: true,
			Status:      status,
			Transaction: domain.Transaction{ID: "t1", Vendor: "Acme", Amount: decimal.NewFromInt(500), Status: status},
			FeedURL:     "http://agent/static/live_feed.png?t=1",
		},
		updates: make(chan txnmonitor.State, 1),
		done:    make(chan struct{}),
	}
}

func (f *fakeMonitor) ID() domain.ID { return "t1" }

func (f *fakeMonitor) State() txnmonitor.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeMonitor) Updates() <-chan txnmonitor.State { return f.updates }
func (f *fakeMonitor) Done() <-chan struct{} { return f.done }

func (f *fakeMonitor) SetPIN(pin string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pin = pin
}

func (f *fakeMonitor) PIN() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pin
}

func (f *fakeMonitor) SubmitPIN(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, f.pin)
	f.pin = ""
	return f.submitErr
}

func (f *fakeMonitor) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	if f.closed == 1 {
		f.state.Closed = true
		f.state.Reason = txnmonitor.ReasonOperator
		close(f.done)
	}
}

func typeKeys(t *testing.T, m Model, keys string) Model {
	t.Helper()
	for _, r := range keys {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func TestDigitsFillThePINBufferOnlyWhileWaiting(t *testing.T) {
	f := newFakeMonitor(domain.StatusQueuedForPayment)
	m := NewModel(context.Background(), f, nil, 4, 6)

	m = typeKeys(t, m, "12")
	assert.Empty(t, f.PIN())

	next, _ := m.Update(stateMsg(txnmonitor.State{ID: "t1", HasSnapshot: true, Status: domain.StatusWaitingForPIN}))
	m = next.(Model)
	m = typeKeys(t, m, "12345678")
	assert.Equal(t, "123456", f.PIN(), "input stops at the maximum length")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	m = next.(Model)
	assert.Equal(t, "12345", f.PIN())
	assert.Contains(t, m.View(), "●●●●●○")
}

func TestEnterSubmitsThePIN(t *testing.T) {
	f := newFakeMonitor(domain.StatusWaitingForPIN)
	m := NewModel(context.Background(), f, nil, 4, 6)
	m = typeKeys(t, m, "123456")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.Submitting)

	_, again := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, again, "a second enter while submitting is ignored")

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.Submitting)
	assert.Equal(t, []string{"123456"}, f.submitted)
	assert.Empty(t, f.PIN())
}

func TestPINFailureIsLogged(t *testing.T) {
	f := newFakeMonitor(domain.StatusWaitingForPIN)
	f.submitErr = errors.Validation("PIN must be 4 to 6 characters")
	m := NewModel(context.Background(), f, nil, 4, 6)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	next, _ = m.Update(cmd())
	m = next.(Model)

	last := m.Logs.Logs[len(m.Logs.Logs)-1]
	assert.Equal(t, LogLevelError, last.Level)
	assert.Contains(t, last.Message, "PIN must be 4 to 6 characters")
}

func TestStatusChangesAreLogged(t *testing.T) {
	f := newFakeMonitor(domain.StatusQueuedForPayment)
	m := NewModel(context.Background(), f, nil, 4, 6)

	next, cmd := m.Update(stateMsg(txnmonitor.State{ID: "t1", HasSnapshot: true, Status: domain.StatusPaid, ClosingAt: time.Now().Add(3 * time.Second)}))
	m = next.(Model)
	require.NotNil(t, cmd, "the model keeps listening while the grace delay runs")

	var messages []string
	for _, e := range m.Logs.Logs {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Status: "+domain.StatusPaid.Label())
	assert.Contains(t, m.View(), "Payment completed.")
}

func TestCloseKeyClosesTheSession(t *testing.T) {
	f := newFakeMonitor(domain.StatusQueuedForPayment)
	m := NewModel(context.Background(), f, nil, 4, 6)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, 1, f.closed)

	next, quit := m.Update(msg)
	m = next.(Model)
	assert.True(t, m.Closed)
	require.NotNil(t, quit)
	assert.Equal(t, tea.Quit(), quit())
	assert.Contains(t, m.View(), "Monitor closed.")
}

func TestWaitForStateReturnsClosedWhenDone(t *testing.T) {
	f := newFakeMonitor(domain.StatusPaid)
	f.Close()

	msg := waitForState(f)()
	assert.IsType(t, closedMsg{}, msg)
}

func TestOpenFeedUsesCurrentURL(t *testing.T) {
	f := newFakeMonitor(domain.StatusQueuedForPayment)
	var opened string
	m := NewModel(context.Background(), f, func(url string) error {
		opened = url
		return nil
	}, 4, 6)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'o'}})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, "http://agent/static/live_feed.png?t=1", opened)
}

func TestLogsPaneScrolls(t *testing.T) {
	p := NewLogsPane(2)
	for i := 0; i < 5; i++ {
		p.AddLog(LogLevelInfo, "entry")
	}
	assert.Equal(t, 3, p.Scroll)
	assert.Len(t, p.Visible(), 2)

	p.ScrollUp()
	assert.Equal(t, 2, p.Scroll)
	p.ScrollDown()
	p.ScrollDown()
	assert.Equal(t, 3, p.Scroll)
}
