package renewal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/subscription"
	"github.com/fmitra/iap/internal/test"
)

type receiptFake struct {
	results map[string]*iap.ReceiptResult
	calls   []string
}

func (r *receiptFake) Validate(ctx context.Context, receipt string) (*iap.ReceiptResult, error) {
	r.calls = append(r.calls, receipt)
	result, ok := r.results[receipt]
	if !ok {
		return nil, iap.ErrStorefront("Receipt validation is currently unavailable")
	}
	return result, nil
}

func TestWorker_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	renewedExpiry := now.AddDate(0, 1, 0)

	store := test.NewMemoryStore()
	seed := []*iap.Subscription{
		{UID: "accepted", Receipt: "r-ok", Status: iap.StatusStarted,
			ExpireAt: now.AddDate(0, 0, -1), UpdatedAt: now.AddDate(0, 0, -2)},
		{UID: "rejected", Receipt: "r-bad", Status: iap.StatusRenewed,
			ExpireAt: now.AddDate(0, 0, -3), UpdatedAt: now.AddDate(0, 0, -4)},
		{UID: "unavailable", Receipt: "r-err", Status: iap.StatusStarted,
			ExpireAt: now.AddDate(0, 0, -2), UpdatedAt: now.AddDate(0, 0, -3)},
		{UID: "recent", Receipt: "r-ok", Status: iap.StatusStarted,
			ExpireAt: now.AddDate(0, 0, -1), UpdatedAt: now.Add(-time.Minute * 10)},
		{UID: "active", Receipt: "r-ok", Status: iap.StatusStarted,
			ExpireAt: now.AddDate(0, 0, 1), UpdatedAt: now.AddDate(0, 0, -2)},
		{UID: "canceled", Receipt: "r-ok", Status: iap.StatusCanceled,
			ExpireAt: now.AddDate(0, 0, -1), UpdatedAt: now.AddDate(0, 0, -2)},
	}
	for _, sub := range seed {
		sub.AppID = 1
		sub.CreatedAt = sub.UpdatedAt
		if err := store.Subscription().Create(ctx, sub); err != nil {
			t.Fatal("failed to seed subscription:", err)
		}
	}

	receiptSvc := &receiptFake{results: map[string]*iap.ReceiptResult{
		"r-ok":  {Accepted: true, ExpireAt: renewedExpiry},
		"r-bad": {Accepted: false},
	}}
	publisher := &test.EventPublisher{}
	logger := &test.Logger{}
	subscriptionSvc := subscription.NewService(
		subscription.WithRepoManager(store),
		subscription.WithClock(clock),
		subscription.WithRenewalCooldown(time.Minute*30),
	)
	worker := NewWorker(store, receiptSvc, subscriptionSvc, publisher,
		WithLogger(logger),
		WithClock(clock),
		WithCooldown(time.Minute*30),
	)

	changed, err := worker.RunOnce(ctx)
	if err != nil {
		t.Fatal("expected nil error, received:", err)
	}
	if changed != 2 {
		t.Errorf("incorrect changed count, want 2 got %v", changed)
	}
	if len(receiptSvc.calls) != 3 {
		t.Errorf("incorrect validation count, want 3 got %v: %v", len(receiptSvc.calls), receiptSvc.calls)
	}
	// warning for the unavailable storefront and the pass summary
	if logger.Count() != 2 {
		t.Errorf("incorrect logger count, want 2 got %v", logger.Count())
	}

	published := map[string]iap.Status{}
	for _, sub := range publisher.Published {
		published[sub.UID] = sub.Status
	}
	want := map[string]iap.Status{
		"accepted": iap.StatusRenewed,
		"rejected": iap.StatusCanceled,
	}
	if len(published) != len(want) {
		t.Fatalf("incorrect published events, want %v got %v", want, published)
	}
	for uid, status := range want {
		if published[uid] != status {
			t.Errorf("incorrect status for %s, want %s got %s", uid, status, published[uid])
		}
	}

	stored := map[string]*iap.Subscription{}
	for _, sub := range store.Subscriptions() {
		stored[sub.UID] = sub
	}
	if !stored["accepted"].ExpireAt.Equal(renewedExpiry) {
		t.Errorf("incorrect renewed expiry, want %s got %s", renewedExpiry, stored["accepted"].ExpireAt)
	}
	if !stored["rejected"].ExpireAt.Equal(now.AddDate(0, 0, -3)) {
		t.Errorf("canceled subscription expiry changed: %s", stored["rejected"].ExpireAt)
	}
	if stored["unavailable"].Status != iap.StatusStarted {
		t.Errorf("subscription changed without validation: %s", stored["unavailable"].Status)
	}

	changed, err = worker.RunOnce(ctx)
	if err != nil {
		t.Fatal("expected nil error, received:", err)
	}
	if changed != 0 {
		t.Errorf("renewed subscriptions renewed again, got %v changes", changed)
	}
}

func TestWorker_RunOnceLapsedFailure(t *testing.T) {
	subscriptionRepo := &test.SubscriptionRepository{
		LapsedFn: func() ([]*iap.Subscription, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}
	repoMngr := &test.RepositoryManager{
		SubscriptionFn: func() iap.SubscriptionRepository { return subscriptionRepo },
	}
	receiptSvc := &test.ReceiptValidator{}
	worker := NewWorker(repoMngr, receiptSvc, &test.SubscriptionService{}, &test.EventPublisher{})

	if _, err := worker.RunOnce(context.Background()); err == nil {
		t.Error("expected error, received nil")
	}
	if receiptSvc.Calls.Validate != 0 {
		t.Errorf("receipts validated after failed listing")
	}
}

func TestWorker_PublishFailureKeepsRenewal(t *testing.T) {
	now := time.Now().UTC()
	subscriptionRepo := &test.SubscriptionRepository{
		LapsedFn: func() ([]*iap.Subscription, error) {
			return []*iap.Subscription{{UID: "d1", AppID: 1, Receipt: "r1"}}, nil
		},
	}
	repoMngr := &test.RepositoryManager{
		SubscriptionFn: func() iap.SubscriptionRepository { return subscriptionRepo },
	}
	receiptSvc := &test.ReceiptValidator{
		ValidateFn: func() (*iap.ReceiptResult, error) {
			return &iap.ReceiptResult{Accepted: true, ExpireAt: now.AddDate(0, 1, 0)}, nil
		},
	}
	subscriptionSvc := &test.SubscriptionService{
		RenewFn: func() (*iap.Subscription, error) {
			return &iap.Subscription{UID: "d1", AppID: 1, Status: iap.StatusRenewed}, nil
		},
	}
	publisher := &test.EventPublisher{
		PublishFn: func() error { return fmt.Errorf("broker unavailable") },
	}
	logger := &test.Logger{}
	worker := NewWorker(repoMngr, receiptSvc, subscriptionSvc, publisher, WithLogger(logger))

	changed, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatal("expected nil error, received:", err)
	}
	if changed != 1 {
		t.Errorf("incorrect changed count, want 1 got %v", changed)
	}
	if len(publisher.Published) != 1 {
		t.Errorf("incorrect publish attempts, want 1 got %v", len(publisher.Published))
	}
	if logger.Count() != 2 {
		t.Errorf("incorrect logger count, want 2 got %v", logger.Count())
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	repoMngr := &test.RepositoryManager{}
	worker := NewWorker(repoMngr, &test.ReceiptValidator{}, &test.SubscriptionService{},
		&test.EventPublisher{}, WithInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	if err := worker.Run(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if repoMngr.Calls.Subscription < 2 {
		t.Errorf("expected repeated passes, got %v", repoMngr.Calls.Subscription)
	}
}
