package test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fmitra/iap"
)

// MemoryStore is an in-memory iap.RepositoryManager. Subscription
// writes made in a transaction are applied on commit, and
// GetForUpdate holds a per (uid, app_id) lock until the transaction
// ends, mirroring the Postgres implementation.
type MemoryStore struct {
	mu         sync.Mutex
	nextID     int
	apps       map[int64]*iap.App
	devices    map[string]*iap.Device
	subs       map[string]*iap.Subscription
	webhooks   map[string]*iap.Webhook
	deliveries map[string]bool

	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:       map[int64]*iap.App{},
		devices:    map[string]*iap.Device{},
		subs:       map[string]*iap.Subscription{},
		webhooks:   map[string]*iap.Webhook{},
		deliveries: map[string]bool{},
		locks:      map[string]chan struct{}{},
	}
}

func key(uid string, appID int64) string {
	return fmt.Sprintf("%d:%s", appID, uid)
}

func (s *MemoryStore) id() string {
	s.nextID++
	return fmt.Sprintf("%026d", s.nextID)
}

// lock acquires the per key lock or fails when ctx is done.
func (s *MemoryStore) lock(ctx context.Context, k string) error {
	s.lockMu.Lock()
	l, ok := s.locks[k]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[k] = l
	}
	s.lockMu.Unlock()

	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemoryStore) unlock(k string) {
	s.lockMu.Lock()
	l := s.locks[k]
	s.lockMu.Unlock()
	<-l
}

// NewWithTransaction returns a transactional view of the store.
func (s *MemoryStore) NewWithTransaction(ctx context.Context) (iap.RepositoryManager, error) {
	return &memoryTx{
		store:  s,
		staged: map[string]*stagedSub{},
	}, nil
}

// WithAtomic is only supported on a transaction.
func (s *MemoryStore) WithAtomic(operation func() (interface{}, error)) (interface{}, error) {
	return nil, errors.New("cannot complete operation outside of transaction")
}

// App returns an AppRepository.
func (s *MemoryStore) App() iap.AppRepository { return &memoryApps{store: s} }

// Device returns a DeviceRepository.
func (s *MemoryStore) Device() iap.DeviceRepository { return &memoryDevices{store: s} }

// Subscription returns a SubscriptionRepository.
func (s *MemoryStore) Subscription() iap.SubscriptionRepository {
	return &memorySubs{store: s}
}

// Webhook returns a WebhookRepository.
func (s *MemoryStore) Webhook() iap.WebhookRepository { return &memoryWebhooks{store: s} }

// Subscriptions returns a copy of all stored Subscriptions.
func (s *MemoryStore) Subscriptions() []*iap.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make([]*iap.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		c := *sub
		subs = append(subs, &c)
	}
	return subs
}

type stagedSub struct {
	sub    *iap.Subscription
	create bool
}

type memoryTx struct {
	store  *MemoryStore
	done   bool
	held   []string
	staged map[string]*stagedSub
}

func (t *memoryTx) NewWithTransaction(ctx context.Context) (iap.RepositoryManager, error) {
	return t.store.NewWithTransaction(ctx)
}

func (t *memoryTx) WithAtomic(operation func() (interface{}, error)) (interface{}, error) {
	if t.done {
		return nil, errors.New("cannot complete operation outside of transaction")
	}

	defer func() {
		t.done = true
		for _, k := range t.held {
			t.store.unlock(k)
		}
		t.held = nil
	}()

	entity, err := operation()
	if err != nil {
		return nil, err
	}

	if err = t.commit(); err != nil {
		return entity, errors.Wrap(err, "commit failed")
	}

	return entity, nil
}

func (t *memoryTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, st := range t.staged {
		_, exists := s.subs[k]
		if st.create && exists {
			return iap.ErrAlreadyExists("subscription already exists")
		}
		if !st.create && !exists {
			return errors.New("wrong number of subscriptions updated: 0")
		}
	}
	for k, st := range t.staged {
		c := *st.sub
		s.subs[k] = &c
	}

	return nil
}

func (t *memoryTx) App() iap.AppRepository       { return &memoryApps{store: t.store} }
func (t *memoryTx) Device() iap.DeviceRepository { return &memoryDevices{store: t.store} }
func (t *memoryTx) Subscription() iap.SubscriptionRepository {
	return &memorySubs{store: t.store, tx: t}
}
func (t *memoryTx) Webhook() iap.WebhookRepository { return &memoryWebhooks{store: t.store} }

type memoryApps struct {
	store *MemoryStore
}

func (r *memoryApps) ByID(ctx context.Context, appID int64) (*iap.App, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	app, ok := r.store.apps[appID]
	if !ok {
		return nil, iap.ErrNotFound("app does not exist")
	}
	c := *app
	return &c, nil
}

func (r *memoryApps) Create(ctx context.Context, app *iap.App) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if app.ID == 0 {
		app.ID = int64(len(r.store.apps) + 1)
	}
	app.CreatedAt = time.Now().UTC()
	c := *app
	r.store.apps[app.ID] = &c
	return nil
}

type memoryDevices struct {
	store *MemoryStore
}

func (r *memoryDevices) ByIdentity(ctx context.Context, uid string, appID int64) (*iap.Device, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	device, ok := r.store.devices[key(uid, appID)]
	if !ok {
		return nil, iap.ErrNotFound("device does not exist")
	}
	c := *device
	return &c, nil
}

func (r *memoryDevices) Create(ctx context.Context, device *iap.Device) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(device.UID, device.AppID)
	if _, ok := r.store.devices[k]; ok {
		return iap.ErrAlreadyExists("device already exists")
	}
	if _, ok := r.store.apps[device.AppID]; !ok {
		return errors.New("app foreign key violation")
	}

	device.ID = r.store.id()
	device.CreatedAt = time.Now().UTC()
	c := *device
	r.store.devices[k] = &c
	return nil
}

type memorySubs struct {
	store *MemoryStore
	tx    *memoryTx
}

func (r *memorySubs) ByIdentity(ctx context.Context, uid string, appID int64) (*iap.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sub, ok := r.store.subs[key(uid, appID)]
	if !ok {
		return nil, iap.ErrNotFound("subscription does not exist")
	}
	c := *sub
	return &c, nil
}

func (r *memorySubs) GetForUpdate(ctx context.Context, uid string, appID int64) (*iap.Subscription, error) {
	if r.tx == nil {
		return nil, errors.New("cannot lock outside of transaction")
	}

	k := key(uid, appID)
	if !r.tx.holds(k) {
		if err := r.store.lock(ctx, k); err != nil {
			return nil, errors.Wrap(err, "failed to acquire subscription lock")
		}
		r.tx.held = append(r.tx.held, k)
	}

	if st, ok := r.tx.staged[k]; ok {
		c := *st.sub
		return &c, nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sub, ok := r.store.subs[k]
	if !ok {
		return nil, nil
	}
	c := *sub
	return &c, nil
}

func (r *memorySubs) Create(ctx context.Context, sub *iap.Subscription) error {
	r.store.mu.Lock()
	sub.ID = r.store.id()
	r.store.mu.Unlock()

	return r.write(sub, true)
}

func (r *memorySubs) Update(ctx context.Context, sub *iap.Subscription) error {
	return r.write(sub, false)
}

func (r *memorySubs) write(sub *iap.Subscription, create bool) error {
	k := key(sub.UID, sub.AppID)
	c := *sub

	if r.tx != nil {
		if st, ok := r.tx.staged[k]; ok {
			create = st.create
		}
		r.tx.staged[k] = &stagedSub{sub: &c, create: create}
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.subs[k]; create && exists {
		return iap.ErrAlreadyExists("subscription already exists")
	}
	r.store.subs[k] = &c
	return nil
}

func (r *memorySubs) Lapsed(ctx context.Context, now, updatedBefore time.Time, limit int) ([]*iap.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	subs := []*iap.Subscription{}
	for _, sub := range r.store.subs {
		if sub.Status == iap.StatusCanceled {
			continue
		}
		if !sub.ExpireAt.Before(now) || sub.UpdatedAt.After(updatedBefore) {
			continue
		}
		c := *sub
		subs = append(subs, &c)
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].ExpireAt.Before(subs[j].ExpireAt)
	})
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}

	return subs, nil
}

func (t *memoryTx) holds(k string) bool {
	for _, h := range t.held {
		if h == k {
			return true
		}
	}
	return false
}

type memoryWebhooks struct {
	store *MemoryStore
}

func (r *memoryWebhooks) Create(ctx context.Context, webhook *iap.Webhook) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	webhook.ID = r.store.id()
	webhook.CreatedAt = time.Now().UTC()
	c := *webhook
	r.store.webhooks[webhook.ID] = &c
	return nil
}

func (r *memoryWebhooks) ByEvent(ctx context.Context, appID int64, status iap.Status) ([]*iap.Webhook, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	webhooks := []*iap.Webhook{}
	for _, w := range r.store.webhooks {
		if w.AppID != appID {
			continue
		}
		for _, e := range w.Events {
			if e == status {
				c := *w
				webhooks = append(webhooks, &c)
				break
			}
		}
	}

	sort.Slice(webhooks, func(i, j int) bool {
		return webhooks[i].ID < webhooks[j].ID
	})

	return webhooks, nil
}

func (r *memoryWebhooks) RecordDelivery(ctx context.Context, eventID, webhookID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := eventID + ":" + webhookID
	if r.store.deliveries[k] {
		return false, nil
	}
	r.store.deliveries[k] = true
	return true, nil
}

func (r *memoryWebhooks) IsDelivered(ctx context.Context, eventID, webhookID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.deliveries[eventID+":"+webhookID], nil
}
