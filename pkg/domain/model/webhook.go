package model

import "time"

// WebhookEventType represents the type of webhook event received
type WebhookEventType string

const (
	EventTypePush    WebhookEventType = "push"
	EventTypePing    WebhookEventType = "ping"
	EventTypeUnknown WebhookEventType = "unknown"
)

// WebhookEvent represents a webhook event received from GitHub
type WebhookEvent struct {
	ID         string           // Retrieved from X-GitHub-Delivery header
	Type       WebhookEventType // Retrieved from X-GitHub-Event header
	Action     string           // Event action, empty for push
	Repository string           // Repository full name
	Sender     string           // Sender username
	ReceivedAt time.Time        // Time when the event was received
	RawPayload []byte           // Raw JSON payload
}

// IsSupportedEvent checks if the event is supported
func (e *WebhookEvent) IsSupportedEvent() bool {
	switch e.Type {
	case EventTypePush, EventTypePing:
		return true
	default:
		return false
	}
}

// PushInfo represents the parts of a push event used to notify jobs
type PushInfo struct {
	CloneURL string // HTTPS clone URL of the repository
	SSHURL   string // SCP-like clone URL
	Ref      string // Fully qualified ref, e.g. refs/heads/main
	Branch   string // Ref without refs/heads/, empty for tags
	After    string // Commit SHA after the push
	Deleted  bool   // The ref was deleted
}
