// File: internal/infra/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/adapter"
	"elearn-entitlements/internal/domain/ports/repository"
	"elearn-entitlements/internal/infra/worker"
)

var _ adapter.SideEffectDispatcher = (*Dispatcher)(nil)

// Emitter pushes a live update to a connected client, when a realtime channel
// exists. Implementations are free to drop events for offline recipients.
type Emitter interface {
	Emit(ctx context.Context, recipientID, event string, payload map[string]interface{}) error
}

// Dispatcher hands side effects to the worker pool and returns immediately.
// Tasks get their own detached context: cancelling the request that produced
// a grant never cancels an already-dispatched side effect. Failures are
// logged, never propagated.
type Dispatcher struct {
	notifications repository.NotificationLogRepository
	emitter       Emitter
	pool          *worker.Pool
	log           *zerolog.Logger
	timeout       time.Duration
}

func NewDispatcher(notifications repository.NotificationLogRepository, emitter Emitter, pool *worker.Pool, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		emitter:       emitter,
		pool:          pool,
		log:           logger,
		timeout:       10 * time.Second,
	}
}

func (d *Dispatcher) Notify(_ context.Context, recipientID string, kind model.NotificationKind, payload map[string]interface{}) {
	if recipientID == "" {
		// Missing recipient is non-fatal: log and skip, without dumping
		// unrelated data.
		d.log.Warn().Str("kind", string(kind)).Msg("notify skipped: no recipient")
		return
	}
	n := &model.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
	err := d.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return d.notifications.Save(ctx, nil, n)
	})
	if err != nil {
		d.log.Error().Err(err).Str("recipient", recipientID).Str("kind", string(kind)).Msg("notify dropped")
	}
}

func (d *Dispatcher) Emit(_ context.Context, recipientID, event string, payload map[string]interface{}) {
	if d.emitter == nil || recipientID == "" {
		return
	}
	err := d.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return d.emitter.Emit(ctx, recipientID, event, payload)
	})
	if err != nil {
		d.log.Error().Err(err).Str("recipient", recipientID).Str("event", event).Msg("emit dropped")
	}
}

// NoopEmitter is used when no realtime channel is configured.
type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, string, string, map[string]interface{}) error { return nil }
