package main

import (
	"context"

	"github.com/enverbisevac/coord/queue"
	"github.com/enverbisevac/coord/users"
	"github.com/go-logr/logr"
)

type email struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
}

// registerHandlers installs the handlers for the message types coordd
// produces.
func registerHandlers(registry *queue.Registry) {
	registry.RegisterFunc("email", handleEmail)
	registry.RegisterFunc(users.NotificationType, handleNotification)
}

// handleEmail only logs the recipient of an email message; coordd has no
// mail transport.
func handleEmail(ctx context.Context, msg queue.Message) (bool, error) {
	var e email
	if err := msg.Bind(&e); err != nil {
		return false, err
	}
	logr.FromContextOrDiscard(ctx).Info("processing email", "to", e.To, "subject", e.Subject)
	return true, nil
}

// handleNotification logs the user a notification was raised for.
func handleNotification(ctx context.Context, msg queue.Message) (bool, error) {
	var n users.Notification
	if err := msg.Bind(&n); err != nil {
		return false, err
	}
	logr.FromContextOrDiscard(ctx).Info("processing notification", "userId", n.UserID)
	return true, nil
}
