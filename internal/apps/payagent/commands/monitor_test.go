package payagent

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"payagent/internal/apps/common"
	"payagent/internal/apps/common/commands"
	"payagent/internal/txn/domain"
	txnmonitor "payagent/internal/txn/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSession hands out states one by one and records submitted PINs.
type scriptedSession struct {
	updates chan txnmonitor.State
	done    chan struct{}

	mu      sync.Mutex
	current txnmonitor.State
	pins    []string
}

func newScriptedSession() *scriptedSession {
	return &scriptedSession{updates: make(chan txnmonitor.State), done: make(chan struct{})}
}

func (s *scriptedSession) ID() domain.ID { return "t1" }
func (s *scriptedSession) Updates() <-chan txnmonitor.State { return s.updates }
func (s *scriptedSession) Done() <-chan struct{} { return s.done }

func (s *scriptedSession) State() txnmonitor.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *scriptedSession) ProvidePIN(ctx context.Context, pin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins = append(s.pins, pin)
	return nil
}

func (s *scriptedSession) Pins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pins...)
}

// play delivers one authoritative state per poll count and then closes.
func (s *scriptedSession) play(steps ...txnmonitor.State) {
	for _, st := range steps {
		s.mu.Lock()
		s.current = st
		s.mu.Unlock()
		s.updates <- st
	}
	close(s.done)
}

func polled(status domain.Status, polls int) txnmonitor.State {
	return txnmonitor.State{ID: "t1", HasSnapshot: true, Status: status, Polls: polls, UpdatedAt: time.Now()}
}

func stubPrompt(t *testing.T, pins ...string) *int {
	t.Helper()
	calls := 0
	prevPrompt, prevInteractive := promptPIN, interactive
	promptPIN = func(minLen, maxLen int) (string, error) {
		pin := pins[len(pins)-1]
		if calls < len(pins) {
			pin = pins[calls]
		}
		calls++
		return pin, nil
	}
	interactive = func() bool { return true }
	t.Cleanup(func() {
		promptPIN, interactive = prevPrompt, prevInteractive
	})
	return &calls
}

func streamBase(out *bytes.Buffer) *commands.BaseCommand {
	base := commands.NewBaseCommand(&common.Context{BinaryName: "payagent"}, nil)
	base.Out = out
	return base
}

func TestPlainMonitorPromptsAgainAfterRejectedPIN(t *testing.T) {
	calls := stubPrompt(t, "0000", "1234")
	s := newScriptedSession()
	var out bytes.Buffer

	go s.play(
		polled(domain.StatusWaitingForPIN, 1),
		polled(domain.StatusWaitingForPIN, 2),
		polled(domain.StatusWaitingForPIN, 3),
		polled(domain.StatusPaid, 4),
	)
	streamSession(context.Background(), streamBase(&out), s, 4, 6)

	require.Equal(t, 2, *calls)
	assert.Equal(t, []string{"0000", "1234"}, s.Pins())
	assert.Contains(t, out.String(), "still waiting for the PIN")
}

func TestPlainMonitorWaitsForAPollAfterTheSend(t *testing.T) {
	calls := stubPrompt(t, "1234")
	s := newScriptedSession()
	var out bytes.Buffer

	// the poll right after the send may predate it
	go s.play(
		polled(domain.StatusWaitingForPIN, 1),
		polled(domain.StatusWaitingForPIN, 2),
		polled(domain.StatusPaid, 3),
	)
	streamSession(context.Background(), streamBase(&out), s, 4, 6)

	assert.Equal(t, 1, *calls)
	assert.NotContains(t, out.String(), "still waiting for the PIN")
}

func TestPlainMonitorSkipsOptimisticAndPendingStates(t *testing.T) {
	calls := stubPrompt(t, "1234")
	s := newScriptedSession()
	var out bytes.Buffer

	optimistic := polled(domain.StatusWaitingForPIN, 0)
	optimistic.Optimistic = true
	pending := polled(domain.StatusWaitingForPIN, 1)
	pending.PINPending = true

	go s.play(optimistic, pending)
	streamSession(context.Background(), streamBase(&out), s, 4, 6)

	assert.Equal(t, 0, *calls)
	assert.Empty(t, s.Pins())
}
