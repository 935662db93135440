package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"beamsched/internal/store"
)

// Event types emitted for finished searches.
const (
	EventSearchCompleted = "search.completed"
	EventSearchFailed    = "search.failed"
)

type Publisher struct {
	Store store.Store
	Log   *slog.Logger
}

func NewPublisher(s store.Store, log *slog.Logger) *Publisher {
	return &Publisher{Store: s, Log: log}
}

// Emit queues an event for every subscription of the tenant to eventType.
// It returns the number of deliveries queued.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		return 0, fmt.Errorf("subscriptions for %s: %w", eventType, err)
	}
	if len(subs) == 0 {
		return 0, nil
	}
	body, err := json.Marshal(map[string]any{
		"id":       "evt_" + uuid.NewString(),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	})
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", eventType, err)
	}
	queued := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			if p.Log != nil {
				p.Log.Warn("enqueue webhook", slog.String("subscription", s.ID), slog.Any("error", err))
			}
			continue
		}
		queued++
	}
	return queued, nil
}
