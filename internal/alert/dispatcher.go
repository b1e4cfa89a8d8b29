// Package alert notifies operators when a cycle starts cold or from older
// states than intended.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
	"github.com/couchcryptid/flash-forecast-service/internal/observability"
	"github.com/couchcryptid/flash-forecast-service/internal/states"
)

// Sender delivers one composed message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Dispatcher composes and sends start-condition alerts. Delivery failures are
// logged, never propagated; an alert failure must not fail the cycle.
type Dispatcher struct {
	sender     Sender
	systemName string
	recipients []string
	enabled    bool
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewDispatcher creates a Dispatcher. With enabled false, or a nil sender,
// Notify is a no-op.
func NewDispatcher(sender Sender, systemName string, recipients []string, enabled bool, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		systemName: systemName,
		recipients: recipients,
		enabled:    enabled,
		logger:     logger,
		metrics:    metrics,
	}
}

// Notify sends one message per recipient for cold and degraded starts.
// Warm starts never alert.
func (d *Dispatcher) Notify(ctx context.Context, plan domain.CyclePlan, res states.Resolution) {
	if !d.enabled || d.sender == nil || res.Class == domain.WarmStart {
		return
	}

	var subject, body string
	switch res.Class {
	case domain.ColdStart:
		subject = fmt.Sprintf("%s failed for %s", d.systemName, domain.StateStamp(plan.Current))
		body = fmt.Sprintf("Missing states from %s to %s. Starting model with cold states.",
			domain.StateStamp(res.ScanStop), domain.StateStamp(plan.SystemStart))
	case domain.DegradedStart:
		subject = fmt.Sprintf("%s warning for %s", d.systemName, domain.StateStamp(plan.Current))
		body = fmt.Sprintf("Using states from %s instead of %s.",
			domain.StateStamp(res.StartTime), domain.StateStamp(plan.SystemStart))
	}

	for _, to := range d.recipients {
		if err := d.sender.Send(ctx, to, subject, body); err != nil {
			d.logger.Warn("alert delivery failed", "recipient", to, "error", err)
			d.metrics.AlertFailures.Inc()
			continue
		}
		d.metrics.AlertsSent.Inc()
	}
	d.logger.Info("start-condition alert dispatched", "class", res.Class.String(), "recipients", len(d.recipients))
}
