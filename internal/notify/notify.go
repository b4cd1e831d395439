// Package notify carries classified failures out of the event-driven
// handlers, which have no caller to return errors to.
package notify

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrorNotification is the payload posted to the error channel.
type ErrorNotification struct {
	Subject       string
	Component     string
	CorrelationID string
	RelatedData   string
	Err           error
}

// Notifier publishes error notifications to an external channel.
type Notifier interface {
	NotifyError(ctx context.Context, notification ErrorNotification)
}

// LogNotifier writes notifications to the structured log. Deployments
// that need paging wire their own implementation.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) NotifyError(_ context.Context, notification ErrorNotification) {
	logrus.WithFields(logrus.Fields{
		"component":     notification.Component,
		"correlationId": notification.CorrelationID,
		"relatedData":   notification.RelatedData,
	}).WithError(notification.Err).Error(notification.Subject)
}

// CollectingNotifier records notifications for assertions in tests.
// Handlers notify from concurrent goroutines, so access is locked.
type CollectingNotifier struct {
	mu            sync.Mutex
	notifications []ErrorNotification
}

func (n *CollectingNotifier) NotifyError(_ context.Context, notification ErrorNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
}

// Notifications returns a copy of everything recorded so far.
func (n *CollectingNotifier) Notifications() []ErrorNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ErrorNotification(nil), n.notifications...)
}
