package httpapi

import (
	"net/http"
)

// MockLimiterFactory is a stub for LimiterFactory interface.
type MockLimiterFactory struct {
	RateLimitFn func() error
	Prefixes    []string
}

// MockLimiter is a stub for Limiter interface.
type MockLimiter struct {
	RateLimitFn func() error
	Calls       int
}

// RateLimit mock.
func (m *MockLimiter) RateLimit(r *http.Request) error {
	m.Calls++
	if m.RateLimitFn != nil {
		return m.RateLimitFn()
	}
	return nil
}

// NewLimiter mock.
func (m *MockLimiterFactory) NewLimiter(prefix string, rate Rate, max int64) Limiter {
	m.Prefixes = append(m.Prefixes, prefix)
	return &MockLimiter{RateLimitFn: m.RateLimitFn}
}
