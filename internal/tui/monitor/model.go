// Package monitor renders a live monitor session as a terminal dashboard
// where the operator watches the agent and enters the step-up PIN.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"payagent/internal/txn/domain"
	txnmonitor "payagent/internal/txn/monitor"
	"payagent/internal/ui"
)

// Monitor is the live session the dashboard drives
type Monitor interface {
	ID() domain.ID
	State() txnmonitor.State
	Updates() <-chan txnmonitor.State
	Done() <-chan struct{}
	SetPIN(pin string)
	PIN() string
	SubmitPIN(ctx context.Context) error
	Close()
}

// FeedOpener shows the live feed, usually in a browser
type FeedOpener func(url string) error

type (
	stateMsg     txnmonitor.State
	closedMsg    struct{}
	pinResultMsg struct{ err error }
	feedMsg      struct{ err error }
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}).
			Background(lipgloss.AdaptiveColor{Light: "#0055AA", Dark: "#1E90FF"}).
			Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#AA8800", Dark: "#FFD700"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#808080"})
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#000000"}).
			Background(lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#A0A0A0"}).
			Padding(0, 1)
	activeBorder   = lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"}
	inactiveBorder = lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#4A4A4A"}
)

// Model is the bubbletea model of the monitor dashboard
type Model struct {
	ctx      context.Context
	session  Monitor
	openFeed FeedOpener
	pinMin   int
	pinMax   int

	State      txnmonitor.State
	Logs       *LogsPane
	Submitting bool
	Closed     bool
	Width      int
	Height     int
}

// NewModel creates the dashboard for session. openFeed may be nil.
func NewModel(ctx context.Context, session Monitor, openFeed FeedOpener, pinMin, pinMax int) Model {
	m := Model{
		ctx:      ctx,
		session:  session,
		openFeed: openFeed,
		pinMin:   pinMin,
		pinMax:   pinMax,
		State:    session.State(),
		Logs:     NewLogsPane(6),
		Width:    80,
		Height:   24,
	}
	m.Logs.AddLog(LogLevelInfo, fmt.Sprintf("Monitoring %s (%s)", session.ID(), m.State.Status.Label()))
	return m
}

func (m Model) Init() tea.Cmd {
	return waitForState(m.session)
}

// waitForState delivers the next published state, or closedMsg once the
// session is done.
func waitForState(s Monitor) tea.Cmd {
	return func() tea.Msg {
		select {
		case st := <-s.Updates():
			return stateMsg(st)
		case <-s.Done():
			return closedMsg{}
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.applyState(txnmonitor.State(msg))
		if m.State.Closed {
			return m.closed()
		}
		return m, waitForState(m.session)
	case closedMsg:
		m.applyState(m.session.State())
		return m.closed()
	case pinResultMsg:
		m.Submitting = false
		if msg.err != nil {
			m.Logs.AddLog(LogLevelError, "PIN not sent: "+msg.err.Error())
		} else {
			m.Logs.AddLog(LogLevelInfo, "PIN sent, waiting for the agent")
		}
	case feedMsg:
		if msg.err != nil {
			m.Logs.AddLog(LogLevelError, "Could not open live feed: "+msg.err.Error())
		}
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) closed() (tea.Model, tea.Cmd) {
	if !m.Closed {
		m.Closed = true
		level := LogLevelInfo
		switch m.State.Reason {
		case txnmonitor.ReasonCompleted:
			level = LogLevelSuccess
		case txnmonitor.ReasonUnauthenticated:
			level = LogLevelError
		}
		m.Logs.AddLog(level, fmt.Sprintf("Monitor closed (%s)", m.State.Reason))
	}
	return m, tea.Quit
}

func (m *Model) applyState(st txnmonitor.State) {
	prev := m.State
	m.State = st

	if st.HasSnapshot && (st.Status != prev.Status || (prev.Optimistic && !st.Optimistic)) {
		label := st.Status.Label()
		if st.Optimistic {
			label += " (unconfirmed)"
		}
		level := LogLevelInfo
		switch {
		case st.Status == domain.StatusWaitingForPIN:
			level = LogLevelWarn
			label += ", enter the PIN"
		case st.Status == domain.StatusPaid:
			level = LogLevelSuccess
		}
		m.Logs.AddLog(level, "Status: "+label)
	}
	if st.LastError != "" && st.LastError != prev.LastError {
		m.Logs.AddLog(LogLevelWarn, "Poll failed: "+st.LastError)
	}
	if st.Closing() && !prev.Closing() {
		m.Logs.AddLog(LogLevelSuccess, fmt.Sprintf("Paid, closing in %s", time.Until(st.ClosingAt).Round(time.Second)))
	}
}

func (m Model) waitingForPIN() bool {
	return !m.Closed && m.State.Status == domain.StatusWaitingForPIN
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEscape:
		return m, m.closeCmd()
	case tea.KeyUp:
		m.Logs.ScrollUp()
		return m, nil
	case tea.KeyDown:
		m.Logs.ScrollDown()
		return m, nil
	case tea.KeyBackspace:
		if pin := m.session.PIN(); pin != "" {
			m.session.SetPIN(pin[:len(pin)-1])
		}
		return m, nil
	case tea.KeyEnter:
		if !m.waitingForPIN() || m.Submitting {
			return m, nil
		}
		m.Submitting = true
		return m, m.submitCmd()
	}

	key := msg.String()
	switch {
	case key == "q":
		return m, m.closeCmd()
	case key == "o":
		return m, m.feedCmd()
	case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
		if pin := m.session.PIN(); m.waitingForPIN() && len(pin) < m.pinMax {
			m.session.SetPIN(pin + key)
		}
	}
	return m, nil
}

func (m Model) closeCmd() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		s.Close()
		return closedMsg{}
	}
}

func (m Model) submitCmd() tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		return pinResultMsg{err: s.SubmitPIN(ctx)}
	}
}

func (m Model) feedCmd() tea.Cmd {
	url, open := m.State.FeedURL, m.openFeed
	if url == "" || open == nil {
		return nil
	}
	return func() tea.Msg {
		return feedMsg{err: open(url)}
	}
}

func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	header := headerStyle.Width(width).Align(lipgloss.Center).
		Render(fmt.Sprintf("PAYAGENT  ▸  MONITOR  ▸  %s", m.session.ID()))

	pane := func(active bool) lipgloss.Style {
		border := inactiveBorder
		if active {
			border = activeBorder
		}
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1).
			Width(width - 2)
	}

	details := pane(!m.waitingForPIN()).Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("1. TRANSACTION"),
		m.renderDetails(),
	))
	pin := pane(m.waitingForPIN()).Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("2. PIN"),
		m.renderPIN(),
	))
	logs := pane(false).Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("EVENTS"),
		m.Logs.Render(),
	))
	footer := footerStyle.Width(width).Render(m.helpText())

	return lipgloss.JoinVertical(lipgloss.Left, header, details, pin, logs, footer)
}

func (m Model) renderDetails() string {
	st := m.State
	if !st.HasSnapshot {
		return mutedStyle.Render("Waiting for the first snapshot...")
	}
	tx := st.Transaction
	status := ui.FormatStatus(st.Status)
	if st.Optimistic {
		status += mutedStyle.Render(" (unconfirmed)")
	}

	lines := []string{
		fmt.Sprintf("vendor:  %s", tx.Vendor),
		fmt.Sprintf("amount:  %s", ui.FormatAmount(tx.Amount)),
		fmt.Sprintf("account: %s", ui.MaskAccount(tx.AccountNumber)),
		fmt.Sprintf("status:  %s", status),
	}
	if st.FeedURL != "" {
		lines = append(lines, fmt.Sprintf("feed:    %s", ui.CreateHyperlink(st.FeedURL, "live screen")))
	}
	meta := fmt.Sprintf("polls: %d", st.Polls)
	if !st.UpdatedAt.IsZero() {
		meta += "  updated " + st.UpdatedAt.Format("15:04:05")
	}
	lines = append(lines, mutedStyle.Render(meta))
	return strings.Join(lines, "\n")
}

func (m Model) renderPIN() string {
	switch {
	case m.Closed:
		return mutedStyle.Render("Monitor closed.")
	case m.State.Closing():
		return ui.Success("Payment completed.")
	case !m.waitingForPIN():
		return mutedStyle.Render("No PIN requested.")
	case m.Submitting || m.State.PINPending:
		return "Sending PIN..."
	}
	pin := m.session.PIN()
	rest := m.pinMax - len(pin)
	if rest < 0 {
		rest = 0
	}
	masked := strings.Repeat("●", len(pin)) + strings.Repeat("○", rest)
	return fmt.Sprintf("%s  %s", masked, mutedStyle.Render(fmt.Sprintf("%d-%d digits, enter to send", m.pinMin, m.pinMax)))
}

func (m Model) helpText() string {
	if m.waitingForPIN() {
		return "0-9: PIN • ⌫: delete • enter: send • o: live feed • q: close"
	}
	return "↑/↓: scroll events • o: live feed • q: close"
}

// Run shows the dashboard until the monitor closes or the operator quits
func Run(ctx context.Context, session Monitor, openFeed FeedOpener, pinMin, pinMax int) (txnmonitor.State, error) {
	program := tea.NewProgram(NewModel(ctx, session, openFeed, pinMin, pinMax), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return session.State(), err
	}
	return session.State(), nil
}
