// Package notify holds the channels used to reach a user's emergency contacts.
// Every channel is best effort: callers log failures and carry on.
package notify

import "context"

// SmsResult is the provider response, passed back to the client as is.
type SmsResult map[string]interface{}

type SmsSender interface {
	// Enabled reports whether the sender has the credentials it needs.
	Enabled() bool
	Send(ctx context.Context, message string, numbers []string) (SmsResult, error)
}

type EmailSender interface {
	Enabled() bool
	Send(ctx context.Context, subject string, recipients []string, body string) error
}

// ErrorResult wraps a message in the same shape providers use for failures.
func ErrorResult(msg string) SmsResult {
	return SmsResult{"error": msg}
}
