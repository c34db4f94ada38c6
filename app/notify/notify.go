// Package notify defines user notifications shown by the UI and relays the severe ones
// to an external webhook
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
)

// Severity of a notification, rendered by the UI as background color
type Severity int

// severities
const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityDanger
	SeverityWarning
)

var severityNames = map[Severity]string{
	SeverityInfo:    "info",
	SeveritySuccess: "success",
	SeverityDanger:  "danger",
	SeverityWarning: "warning",
}

// String returns severity name as the UI expects it
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "info"
}

// ParseSeverity converts name to Severity
func ParseSeverity(name string) (Severity, error) {
	for k, v := range severityNames {
		if strings.EqualFold(v, name) {
			return k, nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", name)
}

// Notification is a message for the user
type Notification struct {
	Message  string
	Severity Severity
}

// Payload returns the positional [message, severity] form sent with "notify" event
func (n Notification) Payload() []string {
	return []string{n.Message, n.Severity.String()}
}

// Sender delivers text to destination, implemented by go-pkgz/notify senders
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

// Relay forwards notifications at or above Threshold to a webhook
type Relay struct {
	Destination string
	Threshold   Severity // only SeverityWarning and SeverityDanger make sense
	HostName    string
	Sender      Sender
	Timeout     time.Duration
}

// NewWebhookRelay makes relay posting danger notifications to webhook url
func NewWebhookRelay(url, hostName string, timeout time.Duration) *Relay {
	return &Relay{
		Destination: url,
		Threshold:   SeverityDanger,
		HostName:    hostName,
		Sender:      notify.NewWebhook(notify.WebhookParams{Timeout: timeout, Headers: []string{"Content-Type:text/plain"}}),
		Timeout:     timeout,
	}
}

// Forward sends notification if severe enough. Nil relay is a no-op.
func (r *Relay) Forward(ctx context.Context, n Notification) error {
	if r == nil || r.Sender == nil || !r.severe(n.Severity) {
		return nil
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	text := fmt.Sprintf("offlinebay on %s [%s]: %s", r.HostName, n.Severity, n.Message)
	if err := r.Sender.Send(ctx, r.Destination, text); err != nil {
		return fmt.Errorf("failed to relay notification: %w", err)
	}
	log.Printf("[DEBUG] relayed %s notification to %s", n.Severity, r.Destination)
	return nil
}

// warning and danger are ranked above info and success regardless of enum order
func (r *Relay) severe(s Severity) bool {
	rank := map[Severity]int{SeverityInfo: 0, SeveritySuccess: 0, SeverityWarning: 1, SeverityDanger: 2}
	return rank[s] >= rank[r.Threshold] && rank[s] > 0
}
