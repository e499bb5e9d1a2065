package test

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fmitra/iap"
)

// Logger mocks go-kit's log.Logger and records every entry.
type Logger struct {
	mu      sync.Mutex
	Entries [][]interface{}
}

// Log mock.
func (m *Logger) Log(keyvals ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, keyvals)
	return nil
}

// Count returns the number of recorded entries.
func (m *Logger) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

// TokenService mocks iap.TokenService interface.
type TokenService struct {
	IssueFn    func() (string, error)
	ValidateFn func() (*iap.Identity, error)
	Calls      struct {
		Issue    int
		Validate int
	}
}

// Issue mock.
func (m *TokenService) Issue(tokenID, uid string, appID int64) (string, error) {
	m.Calls.Issue++
	if m.IssueFn != nil {
		return m.IssueFn()
	}
	return "", errors.New("failed to issue token")
}

// Validate mock.
func (m *TokenService) Validate(token string) (*iap.Identity, error) {
	m.Calls.Validate++
	if m.ValidateFn != nil {
		return m.ValidateFn()
	}
	return nil, iap.ErrBadSignature("Invalid client_token")
}

// ReceiptValidator mocks iap.ReceiptValidator interface.
type ReceiptValidator struct {
	ValidateFn func() (*iap.ReceiptResult, error)
	Calls      struct {
		Validate int
	}
}

// Validate mock.
func (m *ReceiptValidator) Validate(ctx context.Context, receipt string) (*iap.ReceiptResult, error) {
	m.Calls.Validate++
	if m.ValidateFn != nil {
		return m.ValidateFn()
	}
	return nil, iap.ErrStorefront("Receipt validation is currently unavailable")
}

// SubscriptionService mocks iap.SubscriptionService interface.
type SubscriptionService struct {
	PurchaseFn func() (*iap.Subscription, error)
	RenewFn    func() (*iap.Subscription, error)
	Calls      struct {
		Purchase int
		Renew    int
	}
}

// Purchase mock.
func (m *SubscriptionService) Purchase(ctx context.Context, identity *iap.Identity, receipt string, expireAt time.Time) (*iap.Subscription, error) {
	m.Calls.Purchase++
	if m.PurchaseFn != nil {
		return m.PurchaseFn()
	}
	return nil, errors.New("failed to purchase")
}

// Renew mock.
func (m *SubscriptionService) Renew(ctx context.Context, uid string, appID int64, result *iap.ReceiptResult) (*iap.Subscription, error) {
	m.Calls.Renew++
	if m.RenewFn != nil {
		return m.RenewFn()
	}
	return nil, errors.New("failed to renew")
}

// SubscriptionCache mocks iap.SubscriptionCache interface.
type SubscriptionCache struct {
	GetFn        func() (*iap.Subscription, error)
	SetFn        func() error
	InvalidateFn func() error
	Calls        struct {
		Get        int
		Set        int
		Invalidate int
	}
}

// Get mock.
func (m *SubscriptionCache) Get(ctx context.Context, uid string, appID int64) (*iap.Subscription, error) {
	m.Calls.Get++
	if m.GetFn != nil {
		return m.GetFn()
	}
	return nil, nil
}

// Set mock.
func (m *SubscriptionCache) Set(ctx context.Context, sub *iap.Subscription) error {
	m.Calls.Set++
	if m.SetFn != nil {
		return m.SetFn()
	}
	return nil
}

// Invalidate mock.
func (m *SubscriptionCache) Invalidate(ctx context.Context, sub *iap.Subscription) error {
	m.Calls.Invalidate++
	if m.InvalidateFn != nil {
		return m.InvalidateFn()
	}
	return nil
}

// EventPublisher mocks iap.EventPublisher interface.
type EventPublisher struct {
	PublishFn func() error
	Published []*iap.Subscription
}

// Publish mock.
func (m *EventPublisher) Publish(ctx context.Context, sub *iap.Subscription) error {
	m.Published = append(m.Published, sub)
	if m.PublishFn != nil {
		return m.PublishFn()
	}
	return nil
}

// Queue mocks iap.Queue interface.
type Queue struct {
	mu        sync.Mutex
	PublishFn func(topic string, msg *iap.Message) error
	ConsumeFn func(ctx context.Context, topic string, handler iap.MessageHandler) error
	Published []*iap.Message
	Calls     struct {
		Publish int
		Consume int
		Close   int
	}
}

// Publish mock.
func (m *Queue) Publish(ctx context.Context, topic string, msg *iap.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Publish++
	if m.PublishFn != nil {
		if err := m.PublishFn(topic, msg); err != nil {
			return err
		}
	}
	m.Published = append(m.Published, msg)
	return nil
}

// Consume mock.
func (m *Queue) Consume(ctx context.Context, topic string, handler iap.MessageHandler) error {
	m.Calls.Consume++
	if m.ConsumeFn != nil {
		return m.ConsumeFn(ctx, topic, handler)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Close mock.
func (m *Queue) Close() error {
	m.Calls.Close++
	return nil
}

// RepositoryManager mocks iap.RepositoryManager interface.
type RepositoryManager struct {
	NewWithTransactionFn func() (iap.RepositoryManager, error)
	WithAtomicFn         func() (interface{}, error)
	AppFn                func() iap.AppRepository
	DeviceFn             func() iap.DeviceRepository
	SubscriptionFn       func() iap.SubscriptionRepository
	WebhookFn            func() iap.WebhookRepository
	Calls                struct {
		NewWithTransaction int
		WithAtomic         int
		App                int
		Device             int
		Subscription       int
		Webhook            int
	}
}

// NewWithTransaction mock.
func (m *RepositoryManager) NewWithTransaction(ctx context.Context) (iap.RepositoryManager, error) {
	m.Calls.NewWithTransaction++
	if m.NewWithTransactionFn != nil {
		return m.NewWithTransactionFn()
	}

	return m, nil
}

// WithAtomic mock. Without WithAtomicFn the operation is executed.
func (m *RepositoryManager) WithAtomic(operation func() (interface{}, error)) (interface{}, error) {
	m.Calls.WithAtomic++
	if m.WithAtomicFn != nil {
		return m.WithAtomicFn()
	}
	return operation()
}

// App mock.
func (m *RepositoryManager) App() iap.AppRepository {
	m.Calls.App++
	if m.AppFn != nil {
		return m.AppFn()
	}
	return &AppRepository{}
}

// Device mock.
func (m *RepositoryManager) Device() iap.DeviceRepository {
	m.Calls.Device++
	if m.DeviceFn != nil {
		return m.DeviceFn()
	}
	return &DeviceRepository{}
}

// Subscription mock.
func (m *RepositoryManager) Subscription() iap.SubscriptionRepository {
	m.Calls.Subscription++
	if m.SubscriptionFn != nil {
		return m.SubscriptionFn()
	}
	return &SubscriptionRepository{}
}

// Webhook mock.
func (m *RepositoryManager) Webhook() iap.WebhookRepository {
	m.Calls.Webhook++
	if m.WebhookFn != nil {
		return m.WebhookFn()
	}
	return &WebhookRepository{}
}

// AppRepository mocks iap.AppRepository.
type AppRepository struct {
	ByIDFn   func() (*iap.App, error)
	CreateFn func() error
	Calls    struct {
		ByID   int
		Create int
	}
}

// ByID mock.
func (m *AppRepository) ByID(ctx context.Context, appID int64) (*iap.App, error) {
	m.Calls.ByID++
	if m.ByIDFn != nil {
		return m.ByIDFn()
	}
	return &iap.App{ID: appID}, nil
}

// Create mock.
func (m *AppRepository) Create(ctx context.Context, app *iap.App) error {
	m.Calls.Create++
	if m.CreateFn != nil {
		return m.CreateFn()
	}
	return nil
}

// DeviceRepository mocks iap.DeviceRepository.
type DeviceRepository struct {
	ByIdentityFn func() (*iap.Device, error)
	CreateFn     func() error
	Calls        struct {
		ByIdentity int
		Create     int
	}
}

// ByIdentity mock.
func (m *DeviceRepository) ByIdentity(ctx context.Context, uid string, appID int64) (*iap.Device, error) {
	m.Calls.ByIdentity++
	if m.ByIdentityFn != nil {
		return m.ByIdentityFn()
	}
	return nil, iap.ErrNotFound("device does not exist")
}

// Create mock.
func (m *DeviceRepository) Create(ctx context.Context, device *iap.Device) error {
	m.Calls.Create++
	if m.CreateFn != nil {
		return m.CreateFn()
	}
	return nil
}

// SubscriptionRepository mocks iap.SubscriptionRepository.
type SubscriptionRepository struct {
	ByIdentityFn   func() (*iap.Subscription, error)
	GetForUpdateFn func() (*iap.Subscription, error)
	CreateFn       func(sub *iap.Subscription) error
	UpdateFn       func(sub *iap.Subscription) error
	LapsedFn       func() ([]*iap.Subscription, error)
	Calls          struct {
		ByIdentity   int
		GetForUpdate int
		Create       int
		Update       int
		Lapsed       int
	}
}

// ByIdentity mock.
func (m *SubscriptionRepository) ByIdentity(ctx context.Context, uid string, appID int64) (*iap.Subscription, error) {
	m.Calls.ByIdentity++
	if m.ByIdentityFn != nil {
		return m.ByIdentityFn()
	}
	return nil, iap.ErrNotFound("Subscription not found")
}

// GetForUpdate mock.
func (m *SubscriptionRepository) GetForUpdate(ctx context.Context, uid string, appID int64) (*iap.Subscription, error) {
	m.Calls.GetForUpdate++
	if m.GetForUpdateFn != nil {
		return m.GetForUpdateFn()
	}
	return nil, nil
}

// Create mock.
func (m *SubscriptionRepository) Create(ctx context.Context, sub *iap.Subscription) error {
	m.Calls.Create++
	if m.CreateFn != nil {
		return m.CreateFn(sub)
	}
	return nil
}

// Update mock.
func (m *SubscriptionRepository) Update(ctx context.Context, sub *iap.Subscription) error {
	m.Calls.Update++
	if m.UpdateFn != nil {
		return m.UpdateFn(sub)
	}
	return nil
}

// Lapsed mock.
func (m *SubscriptionRepository) Lapsed(ctx context.Context, now, updatedBefore time.Time, limit int) ([]*iap.Subscription, error) {
	m.Calls.Lapsed++
	if m.LapsedFn != nil {
		return m.LapsedFn()
	}
	return []*iap.Subscription{}, nil
}

// WebhookRepository mocks iap.WebhookRepository.
type WebhookRepository struct {
	CreateFn         func() error
	ByEventFn        func() ([]*iap.Webhook, error)
	RecordDeliveryFn func() (bool, error)
	IsDeliveredFn    func() (bool, error)
	Calls            struct {
		Create         int
		ByEvent        int
		RecordDelivery int
		IsDelivered    int
	}
}

// Create mock.
func (m *WebhookRepository) Create(ctx context.Context, webhook *iap.Webhook) error {
	m.Calls.Create++
	if m.CreateFn != nil {
		return m.CreateFn()
	}
	return nil
}

// ByEvent mock.
func (m *WebhookRepository) ByEvent(ctx context.Context, appID int64, status iap.Status) ([]*iap.Webhook, error) {
	m.Calls.ByEvent++
	if m.ByEventFn != nil {
		return m.ByEventFn()
	}
	return []*iap.Webhook{}, nil
}

// RecordDelivery mock.
func (m *WebhookRepository) RecordDelivery(ctx context.Context, eventID, webhookID string) (bool, error) {
	m.Calls.RecordDelivery++
	if m.RecordDeliveryFn != nil {
		return m.RecordDeliveryFn()
	}
	return true, nil
}

// IsDelivered mock.
func (m *WebhookRepository) IsDelivered(ctx context.Context, eventID, webhookID string) (bool, error) {
	m.Calls.IsDelivered++
	if m.IsDeliveredFn != nil {
		return m.IsDeliveredFn()
	}
	return false, nil
}
