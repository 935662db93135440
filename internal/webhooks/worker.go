package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"beamsched/internal/metrics"
	"beamsched/internal/store"
)

const (
	batchSize    = 50
	pollInterval = time.Second
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	MaxAttempts int
	Log         *slog.Logger
}

func NewWorker(s store.Store, maxAttempts int, log *slog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, MaxAttempts: maxAttempts, Log: log}
}

// Run polls for due deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.processOnce(ctx); err != nil && ctx.Err() == nil {
				w.Log.Warn("webhook poll", slog.Any("error", err))
			}
		}
	}
}

// processOnce sends one batch and returns how many deliveries were tried.
func (w *Worker) processOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch due deliveries: %w", err)
	}
	for _, it := range items {
		code, latency, sendErr := w.send(ctx, it)
		success := sendErr == nil
		lastErr := ""
		if sendErr != nil {
			lastErr = sendErr.Error()
		}

		status := store.DeliveryDelivered
		switch {
		case success:
			err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
		case it.Attempts+1 >= w.MaxAttempts:
			status = store.DeliveryFailed
			err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
			w.Log.Warn("webhook dead-lettered", slog.String("delivery", it.ID), slog.String("event", it.EventType), slog.Int("attempts", it.Attempts+1))
		default:
			status = store.DeliveryRetry
			next := time.Now().Add(nextBackoff(it.Attempts))
			err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
		}
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
		metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
		if err != nil {
			return len(items), fmt.Errorf("record delivery %s: %w", it.ID, err)
		}
	}
	return len(items), nil
}

// send posts the payload. Any non-2xx status is an error.
func (w *Worker) send(ctx context.Context, it store.WebhookDelivery) (int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return 0, latency, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, latency, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, latency, nil
}

func nextBackoff(attempts int) time.Duration {
	attempts = min(max(attempts, 0), 10)
	return min(time.Second*time.Duration(1<<attempts), time.Hour)
}
