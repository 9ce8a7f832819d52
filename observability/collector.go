package observability

import (
	"gitbounty/core/events"
	"gitbounty/core/types"
	"gitbounty/native/bounty"
	"gitbounty/native/verify"
)

// attributed is the shape of module events carrying a structured payload.
type attributed interface {
	events.Event
	Event() *types.Event
}

// EventCollector is an events.Emitter that projects ledger and coordinator
// lifecycle events onto the Prometheus collectors. Wiring it as the engine
// and coordinator emitter keeps the counters correct for every transition
// source, including oracle callbacks that never pass through the RPC layer.
type EventCollector struct {
	metrics *BountyMetrics
}

// NewEventCollector returns a collector feeding the process-wide metrics.
func NewEventCollector() *EventCollector {
	return &EventCollector{metrics: Metrics()}
}

// Emit implements events.Emitter.
func (c *EventCollector) Emit(evt events.Event) {
	if c == nil || evt == nil {
		return
	}
	payload, ok := evt.(attributed)
	if !ok {
		return
	}
	event := payload.Event()
	if event == nil {
		return
	}
	switch event.Type {
	case bounty.EventTypeBountyCreated:
		c.metrics.Funded.Inc()
		c.metrics.OpenBounties.Inc()
	case bounty.EventTypeBountyStatus:
		c.applyTransition(event.Attributes["from"], event.Attributes["to"])
	case bounty.EventTypeBountyPaid:
		c.metrics.Payouts.Inc()
	case bounty.EventTypeBountyRefunded:
		c.metrics.Refunds.Inc()
	case verify.EventTypeComplete:
		if event.Attributes["scriptError"] != "" {
			c.metrics.ScriptErrors.Inc()
		}
	}
}

func (c *EventCollector) applyTransition(from, to string) {
	open := bounty.StatusOpen.String()
	verifying := bounty.StatusVerifying.String()
	switch {
	case from == open && to == verifying:
		c.metrics.OpenBounties.Dec()
	case from == verifying && to == open:
		// Rejections reopen the bounty, whether oracle- or owner-driven.
		c.metrics.Rejections.Inc()
		c.metrics.OpenBounties.Inc()
	case from == open && to == bounty.StatusRefunded.String():
		c.metrics.OpenBounties.Dec()
	}
}
