package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/coven-chat/internal/model"
	"github.com/2389/coven-chat/internal/model/fake"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		raw   model.Availability
		err   error
		want  Reason
		avail bool
		title string
	}{
		{"ready", model.AvailabilityReady, nil, ReasonNone, true, "Available"},
		{"not ready", model.AvailabilityNotReady, nil, ReasonModelDownloading, false, "Model Downloading"},
		{"ineligible", model.AvailabilityIneligible, nil, ReasonDeviceIneligible, false, "Device Not Supported"},
		{"disabled", model.AvailabilityDisabled, nil, ReasonFeatureDisabled, false, "AI Disabled"},
		{"unknown", model.AvailabilityUnknown, nil, ReasonUnknown, false, "Unavailable"},
		{"check error", model.AvailabilityReady, errors.New("timeout"), ReasonUnknown, false, "Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.raw, tt.err)
			assert.Equal(t, tt.want, got.Reason)
			assert.Equal(t, tt.avail, got.Available)
			assert.Equal(t, tt.title, got.Title)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestUnavailable_NoneBecomesUnknown(t *testing.T) {
	s := Unavailable(ReasonNone)
	assert.False(t, s.Available)
	assert.Equal(t, ReasonUnknown, s.Reason)
}

func TestMonitor_InitialStateIsUnknown(t *testing.T) {
	m := NewMonitor(fake.New(), nil)
	assert.False(t, m.State().Available)
	assert.Equal(t, ReasonUnknown, m.State().Reason)
}

func TestMonitor_CheckIsIdempotent(t *testing.T) {
	p := fake.New()
	p.SetAvailability(fake.AvailabilityResult{Availability: model.AvailabilityNotReady})
	m := NewMonitor(p, nil)

	first := m.Check(context.Background())
	second := m.Check(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, ReasonModelDownloading, m.State().Reason)
}

func TestMonitor_CheckTracksChanges(t *testing.T) {
	p := fake.New()
	p.SetAvailability(
		fake.AvailabilityResult{Availability: model.AvailabilityDisabled},
		fake.AvailabilityResult{Availability: model.AvailabilityReady},
	)
	m := NewMonitor(p, nil)

	assert.Equal(t, ReasonFeatureDisabled, m.Check(context.Background()).Reason)
	assert.True(t, m.Check(context.Background()).Available)
	assert.True(t, m.State().Available)
}

func TestMonitor_WatchReportsTransitions(t *testing.T) {
	p := fake.New()
	p.SetAvailability(
		fake.AvailabilityResult{Availability: model.AvailabilityNotReady},
		fake.AvailabilityResult{Availability: model.AvailabilityNotReady},
		fake.AvailabilityResult{Availability: model.AvailabilityReady},
	)
	m := NewMonitor(p, nil)
	m.Check(context.Background())

	var mu sync.Mutex
	var seen []State

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Watch(ctx, 5*time.Millisecond, func(s State) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.True(t, seen[0].Available)
}

func TestMonitor_WatchZeroIntervalReturns(t *testing.T) {
	m := NewMonitor(fake.New(), nil)
	m.Watch(context.Background(), 0, nil)
}
