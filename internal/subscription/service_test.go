package subscription

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/test"
)

func TestSubscriptionSvc_PurchaseFailures(t *testing.T) {
	now := time.Now()
	identity := &iap.Identity{UID: "d1", AppID: 1}

	tt := []struct {
		name     string
		repoMngr *test.RepositoryManager
	}{
		{
			name: "Transaction start failure",
			repoMngr: &test.RepositoryManager{
				NewWithTransactionFn: func() (iap.RepositoryManager, error) {
					return nil, errors.New("whoops")
				},
			},
		},
		{
			name: "Lock failure",
			repoMngr: &test.RepositoryManager{
				SubscriptionFn: func() iap.SubscriptionRepository {
					return &test.SubscriptionRepository{
						GetForUpdateFn: func() (*iap.Subscription, error) {
							return nil, errors.New("lock timeout")
						},
					}
				},
			},
		},
		{
			name: "Create failure",
			repoMngr: &test.RepositoryManager{
				SubscriptionFn: func() iap.SubscriptionRepository {
					return &test.SubscriptionRepository{
						CreateFn: func(*iap.Subscription) error {
							return errors.New("insert failed")
						},
					}
				},
			},
		},
		{
			name: "Update failure",
			repoMngr: &test.RepositoryManager{
				SubscriptionFn: func() iap.SubscriptionRepository {
					return &test.SubscriptionRepository{
						GetForUpdateFn: func() (*iap.Subscription, error) {
							return &iap.Subscription{UID: "d1", AppID: 1}, nil
						},
						UpdateFn: func(*iap.Subscription) error {
							return errors.New("update failed")
						},
					}
				},
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cache := &test.SubscriptionCache{}
			svc := NewService(
				WithLogger(&test.Logger{}),
				WithRepoManager(tc.repoMngr),
				WithCache(cache),
			)

			sub, err := svc.Purchase(context.Background(), identity, "receipt-1", now.Add(time.Hour))
			if err == nil {
				t.Error("expected error")
			}
			if sub != nil {
				t.Error("expected nil subscription")
			}
			if iap.ErrorCode(err) != iap.EInternal {
				t.Errorf("expected internal error, got %v", iap.ErrorCode(err))
			}
			if cache.Calls.Invalidate != 0 {
				t.Error("cache should not be invalidated on failure")
			}
		})
	}
}

func TestSubscriptionSvc_PurchaseWrites(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	identity := &iap.Identity{UID: "d1", AppID: 1}

	tt := []struct {
		name        string
		existing    *iap.Subscription
		status      iap.Status
		createCalls int
		updateCalls int
	}{
		{
			name:        "Creates new subscription",
			existing:    nil,
			status:      iap.StatusStarted,
			createCalls: 1,
		},
		{
			name: "Renews expired subscription",
			existing: &iap.Subscription{
				UID: "d1", AppID: 1, Status: iap.StatusStarted, ExpireAt: now.Add(-time.Hour),
			},
			status:      iap.StatusRenewed,
			updateCalls: 1,
		},
		{
			name: "Restarts canceled subscription",
			existing: &iap.Subscription{
				UID: "d1", AppID: 1, Status: iap.StatusCanceled, ExpireAt: now.Add(-time.Hour),
			},
			status:      iap.StatusStarted,
			updateCalls: 1,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			subRepo := &test.SubscriptionRepository{
				GetForUpdateFn: func() (*iap.Subscription, error) {
					return tc.existing, nil
				},
			}
			repoMngr := &test.RepositoryManager{
				SubscriptionFn: func() iap.SubscriptionRepository { return subRepo },
			}
			cache := &test.SubscriptionCache{
				InvalidateFn: func() error { return errors.New("redis is down") },
			}
			logger := &test.Logger{}
			svc := NewService(
				WithLogger(logger),
				WithRepoManager(repoMngr),
				WithCache(cache),
				WithClock(func() time.Time { return now }),
			)

			expireAt := now.AddDate(0, 0, 30)
			sub, err := svc.Purchase(context.Background(), identity, "receipt-1", expireAt)
			if err != nil {
				t.Fatal("failed to purchase:", err)
			}

			if sub.Status != tc.status {
				t.Errorf("incorrect status, want %s got %s", tc.status, sub.Status)
			}
			if !sub.ExpireAt.Equal(expireAt) {
				t.Errorf("incorrect expiry, want %s got %s", expireAt, sub.ExpireAt)
			}
			if subRepo.Calls.Create != tc.createCalls {
				t.Errorf("incorrect create calls, want %v got %v", tc.createCalls, subRepo.Calls.Create)
			}
			if subRepo.Calls.Update != tc.updateCalls {
				t.Errorf("incorrect update calls, want %v got %v", tc.updateCalls, subRepo.Calls.Update)
			}
			if repoMngr.Calls.WithAtomic != 1 {
				t.Errorf("expected 1 transaction, got %v", repoMngr.Calls.WithAtomic)
			}
			if cache.Calls.Invalidate != 1 {
				t.Errorf("expected cache invalidation, got %v", cache.Calls.Invalidate)
			}
			if logger.Count() != 1 {
				t.Errorf("expected invalidation failure to be logged, got %v entries", logger.Count())
			}
		})
	}
}

func TestSubscriptionSvc_PurchaseSerializesSameKey(t *testing.T) {
	store := test.NewMemoryStore()
	svc := NewService(WithRepoManager(store))
	identity := &iap.Identity{UID: "d1", AppID: 1}
	now := time.Now().UTC()

	concurrency := 25
	wg := sync.WaitGroup{}
	errc := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			expireAt := now.AddDate(0, 0, i+1)
			_, err := svc.Purchase(context.Background(), identity, fmt.Sprintf("receipt-%d", i), expireAt)
			if err != nil {
				errc <- err
			}
		}(i)
	}
	wg.Wait()
	close(errc)

	for err := range errc {
		t.Error("concurrent purchase failed:", err)
	}

	subs := store.Subscriptions()
	if len(subs) != 1 {
		t.Fatalf("expected a single subscription, got %v", len(subs))
	}
	if subs[0].Status != iap.StatusStarted {
		t.Errorf("incorrect status, want %s got %s", iap.StatusStarted, subs[0].Status)
	}
}

func TestSubscriptionSvc_PurchaseDifferentKeysIndependent(t *testing.T) {
	store := test.NewMemoryStore()
	svc := NewService(WithRepoManager(store))
	expireAt := time.Now().AddDate(0, 0, 30)

	ctx := context.Background()
	txClient, err := store.NewWithTransaction(ctx)
	if err != nil {
		t.Fatal("failed to start transaction:", err)
	}

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := txClient.WithAtomic(func() (interface{}, error) {
			if _, err := txClient.Subscription().GetForUpdate(ctx, "d1", 1); err != nil {
				return nil, err
			}
			close(locked)
			<-release
			return nil, nil
		})
		done <- err
	}()
	<-locked

	otherCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = svc.Purchase(otherCtx, &iap.Identity{UID: "d2", AppID: 1}, "receipt-1", expireAt)
	if err != nil {
		t.Error("purchase for a different uid should not block:", err)
	}
	_, err = svc.Purchase(otherCtx, &iap.Identity{UID: "d1", AppID: 2}, "receipt-1", expireAt)
	if err != nil {
		t.Error("purchase for a different app should not block:", err)
	}

	blockedCtx, cancelBlocked := context.WithTimeout(ctx, time.Millisecond*50)
	defer cancelBlocked()
	_, err = svc.Purchase(blockedCtx, &iap.Identity{UID: "d1", AppID: 1}, "receipt-1", expireAt)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("purchase for a locked key should wait, got %v", err)
	}

	close(release)
	if err = <-done; err != nil {
		t.Error("locking transaction failed:", err)
	}

	_, err = svc.Purchase(ctx, &iap.Identity{UID: "d1", AppID: 1}, "receipt-1", expireAt)
	if err != nil {
		t.Error("purchase after release failed:", err)
	}
}

func TestSubscriptionSvc_Renew(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	lapsed := now.Add(-time.Hour)
	stale := now.Add(-time.Hour * 2)
	newExpiry := now.AddDate(1, 0, 0)

	tt := []struct {
		name     string
		existing *iap.Subscription
		result   *iap.ReceiptResult
		skipped  bool
		status   iap.Status
		expireAt time.Time
	}{
		{
			name:    "Missing subscription",
			result:  &iap.ReceiptResult{Accepted: true, ExpireAt: newExpiry},
			skipped: true,
		},
		{
			name: "Canceled subscription",
			existing: &iap.Subscription{
				Status: iap.StatusCanceled, ExpireAt: lapsed, UpdatedAt: stale,
			},
			result:  &iap.ReceiptResult{Accepted: true, ExpireAt: newExpiry},
			skipped: true,
		},
		{
			name: "Active subscription",
			existing: &iap.Subscription{
				Status: iap.StatusStarted, ExpireAt: now.Add(time.Hour), UpdatedAt: stale,
			},
			result:  &iap.ReceiptResult{Accepted: true, ExpireAt: newExpiry},
			skipped: true,
		},
		{
			name: "Recently updated subscription",
			existing: &iap.Subscription{
				Status: iap.StatusStarted, ExpireAt: lapsed, UpdatedAt: now.Add(-time.Minute),
			},
			result:  &iap.ReceiptResult{Accepted: true, ExpireAt: newExpiry},
			skipped: true,
		},
		{
			name: "Accepted receipt renews",
			existing: &iap.Subscription{
				UID: "d1", AppID: 1, Receipt: "receipt-1",
				Status: iap.StatusStarted, ExpireAt: lapsed, UpdatedAt: stale,
			},
			result:   &iap.ReceiptResult{Accepted: true, ExpireAt: newExpiry},
			status:   iap.StatusRenewed,
			expireAt: newExpiry,
		},
		{
			name: "Rejected receipt cancels",
			existing: &iap.Subscription{
				UID: "d1", AppID: 1, Receipt: "receipt-1",
				Status: iap.StatusRenewed, ExpireAt: lapsed, UpdatedAt: stale,
			},
			result:   &iap.ReceiptResult{Accepted: false},
			status:   iap.StatusCanceled,
			expireAt: lapsed,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			var updated *iap.Subscription
			subRepo := &test.SubscriptionRepository{
				GetForUpdateFn: func() (*iap.Subscription, error) {
					return tc.existing, nil
				},
				UpdateFn: func(sub *iap.Subscription) error {
					updated = sub
					return nil
				},
			}
			repoMngr := &test.RepositoryManager{
				SubscriptionFn: func() iap.SubscriptionRepository { return subRepo },
			}
			svc := NewService(
				WithRepoManager(repoMngr),
				WithClock(func() time.Time { return now }),
			)

			sub, err := svc.Renew(context.Background(), "d1", 1, tc.result)
			if err != nil {
				t.Fatal("failed to renew:", err)
			}

			if tc.skipped {
				if sub != nil || subRepo.Calls.Update != 0 {
					t.Error("expected renewal to be skipped")
				}
				return
			}

			if sub == nil || updated == nil {
				t.Fatal("expected subscription to be updated")
			}
			if sub.Status != tc.status {
				t.Errorf("incorrect status, want %s got %s", tc.status, sub.Status)
			}
			if !sub.ExpireAt.Equal(tc.expireAt) {
				t.Errorf("incorrect expiry, want %s got %s", tc.expireAt, sub.ExpireAt)
			}
			if sub.Receipt != "receipt-1" {
				t.Errorf("receipt should be kept, got %s", sub.Receipt)
			}
			if !sub.UpdatedAt.Equal(now) {
				t.Errorf("incorrect updated_at, want %s got %s", now, sub.UpdatedAt)
			}
		})
	}
}
