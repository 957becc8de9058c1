package notification

import (
	"context"
	"fmt"
	"time"

	"salesops_backend/internal/events"
	"salesops_backend/platform/logger"
)

// Sender is the delivery mechanism for operator alerts.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// Alerter turns distribution incidents into operator emails. It listens for
// assignments whose CRM push failed: the lead is assigned locally but still
// unrouted in the CRM, which the on-call operator may need to fix by hand if
// the retry queue also gives up.
type Alerter struct {
	sender Sender
	log    *logger.Logger
}

// NewAlerter creates the alerter. A nil sender is allowed and produces a
// no-op alerter, so callers do not need to branch on email configuration.
func NewAlerter(sender *Mailer, log *logger.Logger) *Alerter {
	a := &Alerter{log: log}
	if sender != nil {
		a.sender = sender
	}
	return a
}

// RegisterHandlers subscribes the alerter to distribution events.
func (a *Alerter) RegisterHandlers(bus events.Bus) {
	if a.sender == nil {
		return
	}
	bus.Subscribe(events.LeadDistributed{}.EventName(), events.HandlerFunc(a.onLeadDistributed))
}

func (a *Alerter) onLeadDistributed(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadDistributed)
	if !ok {
		return nil
	}
	if e.CRMSynced {
		return nil
	}

	subject := fmt.Sprintf("[salesops] CRM sync failed for unit %s", e.UnitName)
	body := fmt.Sprintf(
		"A lead was assigned locally but the CRM push failed.\n\n"+
			"Unit:     %s (%s)\n"+
			"Vendor:   %s (%s)\n"+
			"Lead:     %s\n"+
			"Position: %d of %d\n"+
			"Time:     %s\n"+
			"Error:    %s\n\n"+
			"The assignment will be retried automatically. If the retries keep\n"+
			"failing, reassign the lead in the CRM by hand.\n",
		e.UnitName, e.UnitID,
		e.VendorName, e.VendorID,
		e.LeadID,
		e.Position, e.QueueSize,
		e.OccurredAt().Format(time.RFC3339),
		e.CRMError,
	)

	if err := a.sender.Send(ctx, subject, body); err != nil {
		a.log.Error("failed to send crm sync alert", "unit_id", e.UnitID, "error", err)
		return err
	}

	a.log.Info("crm sync alert sent", "unit_id", e.UnitID, "lead_id", e.LeadID)
	return nil
}
