// Package notify delivers operator alerts for relay events.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Alert is a single operator notification.
type Alert struct {
	Subject string
	Body    string
	At      time.Time
}

// Notifier delivers an alert to its destination.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, alert Alert) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

// LogNotifier writes alerts to the log. It is the fallback when no mail
// transport is configured.
type LogNotifier struct {
	Logger *logging.Logger
}

// Notify logs the alert at warn level.
func (n LogNotifier) Notify(_ context.Context, alert Alert) error {
	if n.Logger == nil {
		return nil
	}
	n.Logger.Warn("Alert",
		zap.String("subject", alert.Subject),
		zap.String("body", alert.Body),
		zap.Time("at", alert.At))
	return nil
}

// Fanout delivers every alert to each notifier in order. Delivery continues
// past failures and the errors are joined.
type Fanout []Notifier

// Notify implements Notifier.
func (f Fanout) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
