// Package ingest implements C2, the ingest publisher: adapter handling,
// the throttle gate, off-exchange inference, and the validate-then-store-
// then-publish pipeline.
package ingest

import (
	"context"

	"github.com/equitystream/equitystream/internal/model"
)

// Handlers receives events from an Adapter. Grounded on the teacher's
// pkg/events.EventPublisher/ExchangeConnector callback shape, narrowed to
// the two entity kinds this system cares about.
type Handlers struct {
	OnTrade func(ctx context.Context, p model.Print)
	OnQuote func(ctx context.Context, q model.Quote)
}

// Adapter is the pluggable event source contract (§4.2, §6). stop must be
// idempotent and must cease invoking handlers before it returns.
type Adapter interface {
	Name() string
	Start(ctx context.Context, handlers Handlers) error
	Stop() error
}
