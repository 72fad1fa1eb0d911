// Package events defines the publish contract toward the platform event bus.
package events

import "context"

// Connection status values carried on the completion event.
const (
	StatusConnected = "connected"
	StatusFailed    = "failed"
)

// ProviderConnectionCompleted announces the terminal outcome of an OAuth
// callback. Delivery is fire-and-forget, at-least-once; store writes are
// committed before it is published.
type ProviderConnectionCompleted struct {
	ProviderID       string         `json:"providerId"`
	ConnectionStatus string         `json:"connectionStatus"`
	ConnectionID     int64          `json:"connectionId,omitempty"`
	OrgID            int64          `json:"orgId"`
	UserID           int64          `json:"userId"`
	ExternalAccount  map[string]any `json:"externalAccountMetadata,omitempty"`
}

// Publisher pushes events to the external bus.
type Publisher interface {
	Publish(ctx context.Context, event ProviderConnectionCompleted) error
}
