package ui

import (
	"fmt"
	"os"
)

// CreateHyperlink creates a clickable hyperlink using ANSI escape sequences
// Falls back to plain text if hyperlinks are disabled
func CreateHyperlink(url, text string) string {
	if !hyperlinksEnabled() {
		return fmt.Sprintf("%s (%s)", text, url)
	}
	return fmt.Sprintf("\x1b]8;;%s\x1b\\%s\x1b]8;;\x1b\\", url, text)
}

func hyperlinksEnabled() bool {
	if os.Getenv("PAYAGENT_NO_HYPERLINKS") == "1" || os.Getenv("TERM") == "dumb" || os.Getenv("CI") != "" {
		return false
	}
	return IsInteractive()
}

// IsInteractive returns true if running in an interactive terminal
func IsInteractive() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
