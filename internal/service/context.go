package service

import (
	"context"

	"github.com/google/uuid"
)

type actorKey struct{}

// WithActor attaches the acting user to ctx so audit entries can name them
func WithActor(ctx context.Context, userID string) context.Context {
	id, err := uuid.Parse(userID)
	if err != nil {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, id)
}

// ActorFrom returns the acting user, or nil for system jobs
func ActorFrom(ctx context.Context) *uuid.UUID {
	id, ok := ctx.Value(actorKey{}).(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}

// Event names pushed to websocket subscribers
const (
	EventPermissionCreated = "permission.created"
	EventSuperadminRepair  = "superadmin.repaired"
	EventLedgerImported    = "ledger.imported"
	EventPayslipsGenerated = "payslips.generated"
)

// Publisher fans events out to live subscribers. Implementations must not block.
type Publisher interface {
	Publish(event string, payload interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
