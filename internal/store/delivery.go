package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Delivery statuses. A failed delivery has been dead-lettered.
const (
	DeliveryPending   = "pending"
	DeliveryRetry     = "retry"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

// computeDedupKey uses the payload "id" when present, else a short hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// pqStringArray passes nil for empty slices so the column stays NULL.
func pqStringArray(v []string) any {
	if len(v) == 0 {
		return nil
	}
	return v
}
