package monitor

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarn    LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelSuccess LogLevel = "SUCCESS"
)

const maxLogEntries = 100

// LogEntry is one line of the monitor's event log
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
}

// LogsPane keeps the recent events of a monitor and the scroll position
type LogsPane struct {
	Logs     []LogEntry
	MaxLines int
	Scroll   int
	now      func() time.Time
}

// NewLogsPane creates an empty logs pane showing maxLines lines
func NewLogsPane(maxLines int) *LogsPane {
	return &LogsPane{MaxLines: maxLines, now: time.Now}
}

// AddLog appends an entry and scrolls to it
func (p *LogsPane) AddLog(level LogLevel, message string) {
	p.Logs = append(p.Logs, LogEntry{Timestamp: p.now(), Level: level, Message: message})
	if len(p.Logs) > maxLogEntries {
		p.Logs = p.Logs[len(p.Logs)-maxLogEntries:]
	}
	p.ScrollToBottom()
}

// ScrollUp scrolls up in the log view
func (p *LogsPane) ScrollUp() {
	if p.Scroll > 0 {
		p.Scroll--
	}
}

// ScrollDown scrolls down in the log view
func (p *LogsPane) ScrollDown() {
	if p.Scroll < p.maxScroll() {
		p.Scroll++
	}
}

// ScrollToBottom scrolls to the most recent entry
func (p *LogsPane) ScrollToBottom() {
	p.Scroll = p.maxScroll()
}

func (p *LogsPane) maxScroll() int {
	if n := len(p.Logs) - p.MaxLines; n > 0 {
		return n
	}
	return 0
}

// Visible returns the entries inside the scroll window
func (p *LogsPane) Visible() []LogEntry {
	if len(p.Logs) == 0 {
		return nil
	}
	start := p.Scroll
	if start < 0 {
		start = 0
	}
	if start >= len(p.Logs) {
		return nil
	}
	end := start + p.MaxLines
	if end > len(p.Logs) {
		end = len(p.Logs)
	}
	return p.Logs[start:end]
}

// Render formats the visible entries
func (p *LogsPane) Render() string {
	visible := p.Visible()
	if len(visible) == 0 {
		return mutedStyle.Render("No events yet...")
	}
	lines := make([]string, 0, len(visible))
	for _, entry := range visible {
		lines = append(lines, formatLogEntry(entry))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func formatLogEntry(entry LogEntry) string {
	return fmt.Sprintf("[%s] %s: %s",
		lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#B0B0B0"}).Italic(true).Render(entry.Timestamp.Format("15:04:05")),
		levelStyle(entry.Level).Render(string(entry.Level)),
		entry.Message,
	)
}

func levelStyle(level LogLevel) lipgloss.Style {
	switch level {
	case LogLevelWarn:
		return lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CC8800", Dark: "#FFA500"})
	case LogLevelError:
		return lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF6B6B"}).Bold(true)
	case LogLevelSuccess:
		return lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#008800", Dark: "#00FF7F"})
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0088CC", Dark: "#00BFFF"})
	}
}
