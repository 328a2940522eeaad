package worker

import (
	"context"
	"time"
)

// TimeProvider is an interface that provides time-related functionality
// that can be mocked in tests
type TimeProvider interface {
	// Now returns the current time
	Now() time.Time

	// Since returns the time elapsed since t
	Since(t time.Time) time.Duration

	// Sleep blocks for d or until the context is cancelled
	Sleep(ctx context.Context, d time.Duration) error
}

// RealTimeProvider is the default implementation of TimeProvider
// that uses the actual system time
type RealTimeProvider struct{}

// Now returns the current time
func (rtp RealTimeProvider) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t
func (rtp RealTimeProvider) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Sleep blocks for d or until the context is cancelled
func (rtp RealTimeProvider) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewRealTimeProvider creates a new RealTimeProvider
func NewRealTimeProvider() TimeProvider {
	return &RealTimeProvider{}
}
