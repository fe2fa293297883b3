package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/pos-billing/internal/core/datamodel/client"
	"github.com/frahmantamala/pos-billing/internal/core/events"
	"github.com/frahmantamala/pos-billing/internal/subscription"
)

// ClientGetter is the slice of the client repository the event handler
// needs to resolve a tenant's contact details.
type ClientGetter interface {
	GetByID(id int64) (*client.Client, error)
}

// EventHandler turns billing lifecycle events into customer emails. A
// client without an email address is logged and skipped, never an error:
// the billing outcome already committed, mail is best effort.
type EventHandler struct {
	clients  ClientGetter
	notifier subscription.Notifier
	logger   *slog.Logger
}

func NewEventHandler(clients ClientGetter, notifier subscription.Notifier, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		clients:  clients,
		notifier: notifier,
		logger:   logger,
	}
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeRenewalSucceeded, h.HandleRenewalSucceeded)
	eventBus.Subscribe(events.EventTypeRenewalFailed, h.HandleRenewalFailed)
	eventBus.Subscribe(events.EventTypeSubscriptionSuspended, h.HandleSubscriptionSuspended)
	eventBus.Subscribe(events.EventTypeSubscriptionReactivated, h.HandleSubscriptionReactivated)

	h.logger.Info("notification event handlers registered",
		"handlers", []string{
			events.EventTypeRenewalSucceeded,
			events.EventTypeRenewalFailed,
			events.EventTypeSubscriptionSuspended,
			events.EventTypeSubscriptionReactivated,
		})
}

func (h *EventHandler) HandleRenewalSucceeded(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.RenewalSucceededEvent)
	if !ok {
		return fmt.Errorf("expected RenewalSucceededEvent, got %T", event)
	}

	email, name, ok := h.contact(e.ClientID, event.EventType())
	if !ok {
		return nil
	}
	return h.notifier.SendRenewalSuccess(ctx, email, name, e.AmountIDR, e.NextBillingDate)
}

func (h *EventHandler) HandleRenewalFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.RenewalFailedEvent)
	if !ok {
		return fmt.Errorf("expected RenewalFailedEvent, got %T", event)
	}

	email, name, ok := h.contact(e.ClientID, event.EventType())
	if !ok {
		return nil
	}
	return h.notifier.SendRenewalFailed(ctx, email, name, e.AmountIDR, e.FailureReason, e.NextRetryAt, e.SuspendWarning)
}

func (h *EventHandler) HandleSubscriptionSuspended(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.SubscriptionSuspendedEvent)
	if !ok {
		return fmt.Errorf("expected SubscriptionSuspendedEvent, got %T", event)
	}

	email, name, ok := h.contact(e.ClientID, event.EventType())
	if !ok {
		return nil
	}
	return h.notifier.SendSuspended(ctx, email, name)
}

func (h *EventHandler) HandleSubscriptionReactivated(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.SubscriptionReactivatedEvent)
	if !ok {
		return fmt.Errorf("expected SubscriptionReactivatedEvent, got %T", event)
	}

	email, name, ok := h.contact(e.ClientID, event.EventType())
	if !ok {
		return nil
	}
	return h.notifier.SendReactivated(ctx, email, name)
}

func (h *EventHandler) contact(clientID int64, eventType string) (email, name string, ok bool) {
	cl, err := h.clients.GetByID(clientID)
	if err != nil {
		h.logger.Error("failed to load client for billing email",
			"client_id", clientID, "event_type", eventType, "error", err)
		return "", "", false
	}
	if cl.Email == nil || *cl.Email == "" {
		h.logger.Warn("client has no email address, skipping billing email",
			"client_id", clientID, "event_type", eventType)
		return "", "", false
	}
	return *cl.Email, cl.Name, true
}
