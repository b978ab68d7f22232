package wardroom

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/events"
)

// Relay turns committed issue events from the dispatcher into ward broadcasts.
type Relay struct {
	hub    *Hub
	logger *zap.Logger
}

// NewRelay builds a relay for hub.
func NewRelay(hub *Hub, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{hub: hub, logger: logger}
}

// Register subscribes the relay to issue events.
func (r *Relay) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventIssueCreated, r.handleIssueCreated)
	dispatcher.Subscribe(events.EventIssueStatusChanged, r.handleIssueStatusChanged)
}

func (r *Relay) handleIssueCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	delivered := r.hub.Broadcast(IssueCreated{
		IssueID:  event.IssueID,
		Ward:     payload.Ward,
		Category: string(payload.Category),
		Title:    payload.Title,
	})
	r.logger.Debug("relayed new issue",
		zap.String("issue_id", event.IssueID),
		zap.String("ward", payload.Ward),
		zap.Int("delivered", delivered))
	return nil
}

func (r *Relay) handleIssueStatusChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	delivered := r.hub.Broadcast(IssueStatusChanged{
		IssueID: event.IssueID,
		Ward:    payload.Ward,
		Status:  string(payload.NewStatus),
		Message: payload.Message,
	})
	r.logger.Debug("relayed issue update",
		zap.String("issue_id", event.IssueID),
		zap.String("ward", payload.Ward),
		zap.Int("delivered", delivered))
	return nil
}
