package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"payagent/internal/txn/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#AA8800", Dark: "#FFD700"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#808080"})
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF6B6B"}).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#008800", Dark: "#00FF7F"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CC8800", Dark: "#FFA500"})
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0088CC", Dark: "#00BFFF"})
)

// StatusStyle returns the color a status is rendered with
func StatusStyle(status domain.Status) lipgloss.Style {
	switch {
	case status == domain.StatusWaitingForPIN:
		return warnStyle.Bold(true)
	case status.Stage() == domain.StageTerminal:
		return okStyle
	case status.Stage() == domain.StageInFlight:
		return infoStyle
	case status.Stage() == domain.StageReview:
		return lipgloss.NewStyle()
	default:
		return errorStyle
	}
}

// FormatStatus renders the status label in its color
func FormatStatus(status domain.Status) string {
	return StatusStyle(status).Render(status.Label())
}

// FormatAmount renders a decimal amount with two places
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Header renders a section title
func Header(title string) string {
	return headerStyle.Render(title)
}

// Muted renders secondary text
func Muted(text string) string {
	return mutedStyle.Render(text)
}

// Success renders a confirmation line
func Success(text string) string {
	return okStyle.Render("✔ " + text)
}

// Warning renders a warning line
func Warning(text string) string {
	return warnStyle.Render("! " + text)
}

// Failure renders an error line
func Failure(text string) string {
	return errorStyle.Render("✘ " + text)
}

// MaskAccount keeps the last four characters of an account number
func MaskAccount(account *string) string {
	if account == nil || strings.TrimSpace(*account) == "" {
		return "-"
	}
	acct := strings.TrimSpace(*account)
	if len(acct) <= 4 {
		return acct
	}
	return strings.Repeat("*", len(acct)-4) + acct[len(acct)-4:]
}

var (
	cardPattern = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	ibanPattern = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{1,30}\b`)
	nonDigit    = regexp.MustCompile(`\D`)
)

// MaskSensitive hides card-like digit runs and IBANs in free text, keeping the
// last four characters of each.
func MaskSensitive(text string) string {
	text = cardPattern.ReplaceAllStringFunc(text, func(match string) string {
		digits := nonDigit.ReplaceAllString(match, "")
		if len(digits) < 13 {
			return match
		}
		return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
	})
	return ibanPattern.ReplaceAllStringFunc(text, func(match string) string {
		if len(match) <= 8 {
			return match
		}
		return match[:4] + strings.Repeat("*", len(match)-8) + match[len(match)-4:]
	})
}

// QueueRow is one rendered line of the pending queue
type QueueRow struct {
	Transaction domain.Transaction
	Action      string
	Note        string
}

// RenderQueue renders pending transactions as an aligned table
func RenderQueue(rows []QueueRow, fetchedAt time.Time) string {
	var b strings.Builder
	title := fmt.Sprintf("PENDING TRANSACTIONS (%d)", len(rows))
	b.WriteString(Header(title))
	if !fetchedAt.IsZero() {
		b.WriteString(" " + Muted("as of "+fetchedAt.Format("15:04:05")))
	}
	b.WriteString("\n")

	if len(rows) == 0 {
		b.WriteString(Muted("No transactions awaiting review."))
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-10s %-8s %-24s %12s  %-12s %-22s %s\n",
		"ID", "BATCH", "VENDOR", "AMOUNT", "ACCOUNT", "STATUS", "NEXT")
	for _, row := range rows {
		tx := row.Transaction
		status := tx.Status.Label()
		if tx.Optimistic {
			status += "*"
		}
		// pad before styling, escape codes would break the alignment
		status = StatusStyle(tx.Status).Render(fmt.Sprintf("%-22s", status))
		next := row.Action
		if row.Note != "" {
			next += " " + Muted("("+row.Note+")")
		}
		fmt.Fprintf(&b, "%-10s %-8s %-24s %12s  %-12s %s %s\n",
			TruncateText(tx.ID.String(), 10),
			TruncateText(tx.BatchID, 8),
			TruncateText(tx.Vendor, 24),
			FormatAmount(tx.Amount),
			MaskAccount(tx.AccountNumber),
			status,
			next,
		)
	}
	return b.String()
}

// RenderTransaction prints the detail block of one transaction
func RenderTransaction(tx domain.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", Header("[transaction "+tx.ID.String()+"]"))
	fmt.Fprintf(&b, "batch: %s\n", tx.BatchID)
	fmt.Fprintf(&b, "vendor: %s\n", tx.Vendor)
	fmt.Fprintf(&b, "amount: %s\n", FormatAmount(tx.Amount))
	fmt.Fprintf(&b, "account: %s\n", MaskAccount(tx.AccountNumber))
	if tx.IFSCCode != nil {
		fmt.Fprintf(&b, "ifsc: %s\n", *tx.IFSCCode)
	}
	if tx.Remarks != nil {
		fmt.Fprintf(&b, "remarks: %s\n", *tx.Remarks)
	}
	fmt.Fprintf(&b, "status: %s\n", FormatStatus(tx.Status))
	if !tx.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "created: %s\n", tx.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// RenderAudits renders the audit trail, masking sensitive values in the raw
// responses.
func RenderAudits(records []domain.AuditRecord, width int) string {
	var b strings.Builder
	b.WriteString(Header(fmt.Sprintf("AUDIT TRAIL (%d)", len(records))))
	b.WriteString("\n")
	if width <= 0 {
		width = 80
	}
	for _, rec := range records {
		when := "-"
		if !rec.CreatedAt.IsZero() {
			when = rec.CreatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&b, "%-6s %s %s  %s\n",
			rec.ID.String(), when, Muted(rec.ShortHash()),
			TruncateText(MaskSensitive(string(rec.RawResponse)), width))
	}
	return b.String()
}

// TruncateText truncates text to the specified length, adding "..." if truncated
func TruncateText(text string, maxLen int) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.Join(strings.Fields(text), " ")

	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return text[:maxLen]
	}
	return text[:maxLen-3] + "..."
}
