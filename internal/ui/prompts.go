package ui

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/manifoldco/promptui"
	"github.com/pkg/browser"

	"payagent/internal/errors"
)

var selectTemplates = &promptui.SelectTemplates{
	Label:    "{{ . }}?",
	Active:   `{{ "✔" | cyan }} {{ . | cyan }}`,
	Inactive: `  {{ . }}`,
	Selected: `{{ "✔" | green }} {{ . | green }}`,
}

// ErrAborted is returned when the operator leaves a prompt with ctrl-c or ctrl-d
var ErrAborted = errors.Validation("aborted by operator")

func promptErr(err error) error {
	if stderrors.Is(err, promptui.ErrInterrupt) || stderrors.Is(err, promptui.ErrEOF) || stderrors.Is(err, promptui.ErrAbort) {
		return ErrAborted
	}
	return err
}

// PromptCredentials asks for the username (prefilled with def) and the password
func PromptCredentials(def string) (string, string, error) {
	userPrompt := promptui.Prompt{
		Label:   "Username",
		Default: def,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("username is required")
			}
			return nil
		},
	}
	username, err := userPrompt.Run()
	if err != nil {
		return "", "", promptErr(err)
	}

	passPrompt := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
	}
	password, err := passPrompt.Run()
	if err != nil {
		return "", "", promptErr(err)
	}
	return strings.TrimSpace(username), password, nil
}

// ValidatePIN checks the PIN is all digits and within bounds
func ValidatePIN(pin string, minLen, maxLen int) error {
	if len(pin) < minLen || len(pin) > maxLen {
		return fmt.Errorf("PIN must be %d to %d digits", minLen, maxLen)
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("PIN must contain digits only")
		}
	}
	return nil
}

// PromptPIN asks for the step-up PIN without echoing it
func PromptPIN(minLen, maxLen int) (string, error) {
	prompt := promptui.Prompt{
		Label:    fmt.Sprintf("PIN (%d-%d digits)", minLen, maxLen),
		Mask:     '*',
		Validate: func(s string) error { return ValidatePIN(s, minLen, maxLen) },
	}
	pin, err := prompt.Run()
	if err != nil {
		return "", promptErr(err)
	}
	return pin, nil
}

// Confirm asks a yes/no question
func Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	if err != nil {
		if stderrors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, promptErr(err)
	}
	return true, nil
}

// PickRow lets the operator choose one queue row. It returns the row index.
func PickRow(rows []QueueRow) (int, error) {
	if len(rows) == 0 {
		return -1, errors.Validation("no transactions to pick from")
	}

	items := make([]string, len(rows))
	for i, row := range rows {
		tx := row.Transaction
		items[i] = fmt.Sprintf("[%d] %s - %s %s (%s)", i+1, tx.ID, TruncateText(tx.Vendor, 40),
			FormatAmount(tx.Amount), tx.Status.Label())
	}

	prompt := promptui.Select{
		Label:             "Select a transaction",
		Items:             items,
		Size:              min(12, len(items)),
		StartInSearchMode: len(items) > 12,
		Templates:         selectTemplates,
	}
	index, _, err := prompt.Run()
	if err != nil {
		return -1, promptErr(err)
	}
	return index, nil
}

// PickAction shows the action menu for a selected transaction
func PickAction(actions []string) (string, error) {
	prompt := promptui.Select{
		Label:     "Select action",
		Items:     actions,
		Size:      len(actions),
		Templates: selectTemplates,
	}
	_, action, err := prompt.Run()
	if err != nil {
		return "", promptErr(err)
	}
	return action, nil
}

// PromptText asks for a free-text value, prefilled with def
func PromptText(label, def string) (string, error) {
	prompt := promptui.Prompt{Label: label, Default: def}
	value, err := prompt.Run()
	if err != nil {
		return "", promptErr(err)
	}
	return value, nil
}

// OpenURL opens url in the default browser
func OpenURL(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return errors.Wrap(err, errors.ErrorTypeExternal, "failed to open browser")
	}
	return nil
}
