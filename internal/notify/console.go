package notify

import (
	"context"
	"fmt"

	"github.com/fatih/color"
)

// ConsoleSink writes notifications to the terminal with color.
type ConsoleSink struct{}

// NewConsoleSink creates a new console notification sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes the notification to the terminal.
func (s *ConsoleSink) Send(_ context.Context, n Notification) error {
	prefix := color.CyanString("[NOTIFY]")
	if n.RuleID != "" {
		fmt.Printf("%s [%s] %s\n", prefix, n.RuleID, n.Message)
	} else {
		fmt.Printf("%s %s\n", prefix, n.Message)
	}
	return nil
}
