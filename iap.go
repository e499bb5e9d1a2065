// Package iap provides the domain types and interfaces of an in-app purchase
// backend. Devices register for an app, authenticate with a signed client
// token, submit store receipts and query the resulting subscription.
package iap

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// TimeLayout is the wire format for expiry timestamps shared by the API
// and the storefront.
const TimeLayout = "2006-01-02 15:04:05"

// OS is the operating system a Device runs on.
type OS int

const (
	// IOS is an Apple device.
	IOS OS = 1
	// Android is an Android device.
	Android OS = 2
)

// Valid reports whether o is a supported operating system.
func (o OS) Valid() bool {
	return o == IOS || o == Android
}

// Status is the lifecycle state of a Subscription.
type Status string

const (
	// StatusStarted marks a new or restarted subscription.
	StatusStarted Status = "started"
	// StatusRenewed marks a subscription purchased again after it lapsed.
	StatusRenewed Status = "renewed"
	// StatusCanceled marks a subscription whose receipt was rejected
	// during renewal.
	StatusCanceled Status = "canceled"
)

// App is a client application devices may register for.
type App struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Device is a registered client installation. A Device is uniquely
// identified by its UID and AppID and is never mutated once created.
type Device struct {
	ID        string
	UID       string
	AppID     int64
	Language  string
	OS        OS
	CreatedAt time.Time
}

// Subscription is the purchase state of a UID for an App. There is at
// most one Subscription per (UID, AppID).
type Subscription struct {
	ID        string
	UID       string
	AppID     int64
	Receipt   string
	Status    Status
	ExpireAt  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is the decoded payload of a client token.
type Identity struct {
	UID      string
	AppID    int64
	IssuedAt time.Time
}

// ReceiptResult is the outcome of a storefront receipt validation.
type ReceiptResult struct {
	Accepted bool
	ExpireAt time.Time
}

// Webhook is a callback registered by an App owner to be notified of
// subscription changes.
type Webhook struct {
	ID        string
	AppID     int64
	URL       string
	Secret    string
	Events    []Status
	CreatedAt time.Time
}

// SubscriptionEvent is published whenever a Subscription changes state.
type SubscriptionEvent struct {
	ID         string    `json:"id"`
	UID        string    `json:"uid"`
	AppID      int64     `json:"app_id"`
	Status     Status    `json:"status"`
	ExpireAt   time.Time `json:"expire_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Message is a broker agnostic envelope written to and read from a Queue.
type Message struct {
	ID      string            `json:"id"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body"`
}

// MessageHandler processes a single Message consumed from a Queue.
// A Message is acknowledged only when the handler returns nil.
type MessageHandler func(ctx context.Context, msg *Message) error

// TokenService issues and validates client tokens.
type TokenService interface {
	// Issue creates a signed token for a uid and app. The tokenID
	// is used for correlation only and is not encoded in the token.
	Issue(tokenID, uid string, appID int64) (string, error)
	// Validate verifies a token's signature and returns its Identity.
	Validate(token string) (*Identity, error)
}

// ReceiptValidator validates purchase receipts against a storefront.
type ReceiptValidator interface {
	Validate(ctx context.Context, receipt string) (*ReceiptResult, error)
}

// SubscriptionService applies purchase and renewal transitions to
// Subscriptions.
type SubscriptionService interface {
	// Purchase records a validated purchase for an Identity.
	Purchase(ctx context.Context, identity *Identity, receipt string, expireAt time.Time) (*Subscription, error)
	// Renew applies a storefront re-validation to a lapsed Subscription.
	// It returns nil when the Subscription no longer qualifies for renewal.
	Renew(ctx context.Context, uid string, appID int64, result *ReceiptResult) (*Subscription, error)
}

// SubscriptionCache caches Subscriptions for read only lookups.
type SubscriptionCache interface {
	// Get returns a cached Subscription or nil if it is not cached.
	Get(ctx context.Context, uid string, appID int64) (*Subscription, error)
	// Set caches a Subscription unless a newer write was already
	// cached or invalidated.
	Set(ctx context.Context, sub *Subscription) error
	// Invalidate evicts the cached Subscription after sub was committed.
	Invalidate(ctx context.Context, sub *Subscription) error
}

// Queue is a broker backed message queue with at-least-once delivery.
type Queue interface {
	// Publish returns once the broker has durably accepted the Message.
	Publish(ctx context.Context, topic string, msg *Message) error
	// Consume blocks, passing every Message of a topic to the handler
	// until the context is cancelled or the broker connection fails.
	Consume(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// EventPublisher publishes SubscriptionEvents.
type EventPublisher interface {
	Publish(ctx context.Context, sub *Subscription) error
}

// AppRepository represents a local storage for App.
type AppRepository interface {
	ByID(ctx context.Context, appID int64) (*App, error)
	Create(ctx context.Context, app *App) error
}

// DeviceRepository represents a local storage for Device.
type DeviceRepository interface {
	// ByIdentity retrieves the Device registered for a uid and app.
	ByIdentity(ctx context.Context, uid string, appID int64) (*Device, error)
	// Create persists a new Device. It returns ErrAlreadyExists if a
	// Device for the same uid and app was registered concurrently.
	Create(ctx context.Context, device *Device) error
}

// SubscriptionRepository represents a local storage for Subscription.
type SubscriptionRepository interface {
	ByIdentity(ctx context.Context, uid string, appID int64) (*Subscription, error)
	// GetForUpdate locks the (uid, appID) key for the remainder of the
	// current transaction and returns the Subscription if one exists.
	// A missing Subscription is returned as nil with a nil error.
	GetForUpdate(ctx context.Context, uid string, appID int64) (*Subscription, error)
	Create(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
	// Lapsed lists non canceled Subscriptions expired before now and
	// not updated since updatedBefore.
	Lapsed(ctx context.Context, now, updatedBefore time.Time, limit int) ([]*Subscription, error)
}

// WebhookRepository represents a local storage for Webhook.
type WebhookRepository interface {
	Create(ctx context.Context, webhook *Webhook) error
	// ByEvent lists the Webhooks of an app subscribed to a status.
	ByEvent(ctx context.Context, appID int64, status Status) ([]*Webhook, error)
	// RecordDelivery marks an event as delivered to a Webhook. It returns
	// false if the delivery was already recorded.
	RecordDelivery(ctx context.Context, eventID, webhookID string) (bool, error)
	IsDelivered(ctx context.Context, eventID, webhookID string) (bool, error)
}

// RepositoryManager manages repositories stored in storage with
// atomic operations.
type RepositoryManager interface {
	// NewWithTransaction returns a manager whose repositories share a
	// single transaction.
	NewWithTransaction(ctx context.Context) (RepositoryManager, error)
	// WithAtomic runs an operation inside the manager's transaction,
	// committing on success and rolling back on failure.
	WithAtomic(operation func() (interface{}, error)) (interface{}, error)
	App() AppRepository
	Device() DeviceRepository
	Subscription() SubscriptionRepository
	Webhook() WebhookRepository
}

// DeviceAPI provides HTTP handlers for device registration.
type DeviceAPI interface {
	// Register registers a Device and returns a client token for it.
	Register(w http.ResponseWriter, r *http.Request) (interface{}, error)
}

// PurchaseAPI provides HTTP handlers for purchases and subscription lookups.
type PurchaseAPI interface {
	Purchase(w http.ResponseWriter, r *http.Request) (interface{}, error)
	CheckSubscription(w http.ResponseWriter, r *http.Request) (interface{}, error)
}
