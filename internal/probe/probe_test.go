package probe

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightsguard/incident-core/internal/model"
)

type stubbornLocation struct{}

// AcquireLocation ignores ctx entirely.
func (stubbornLocation) AcquireLocation(context.Context, LocationOptions) (model.Location, error) {
	time.Sleep(200 * time.Millisecond)
	return model.Location{Latitude: 1, Longitude: 1, Timestamp: time.Now()}, nil
}

type failingLocation struct{ err error }

func (f failingLocation) AcquireLocation(context.Context, LocationOptions) (model.Location, error) {
	return model.Location{}, f.err
}

type slowDevice struct {
	delay    time.Duration
	released atomic.Bool
}

func (d *slowDevice) AcquireStream(context.Context, CaptureOptions) (Stream, error) {
	time.Sleep(d.delay)
	return &trackedStream{released: &d.released}, nil
}

type trackedStream struct{ released *atomic.Bool }

func (s *trackedStream) Next(context.Context) ([]byte, error) { return nil, io.EOF }

func (s *trackedStream) Release() error {
	s.released.Store(true)
	return nil
}

func TestLocation_HardTimeout(t *testing.T) {
	start := time.Now()
	_, err := Location(context.Background(), stubbornLocation{}, 20*time.Millisecond, DefaultLocationOptions())
	require.ErrorIs(t, err, model.ErrTimeout)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestLocation_ClassifiesFailures(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
		is   error
	}{
		{model.ErrPermissionDenied, KindPermissionDenied, model.ErrPermissionDenied},
		{model.ErrNotSupported, KindNotSupported, model.ErrUnavailable},
		{errors.New("gps chip on fire"), KindUnavailable, model.ErrUnavailable},
	}
	for _, tc := range cases {
		_, err := Location(context.Background(), failingLocation{err: tc.err}, time.Second, DefaultLocationOptions())
		assert.Equal(t, tc.kind, KindOf(err), tc.err.Error())
		assert.ErrorIs(t, err, tc.is)
	}
}

func TestLocation_RejectsOutOfRangeFix(t *testing.T) {
	r := NewReportedLocation(nil)
	r.last = &model.Location{Latitude: 120, Longitude: 0, Timestamp: time.Now()}
	_, err := Location(context.Background(), r, time.Second, LocationOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestDevice_LateStreamReleased(t *testing.T) {
	d := &slowDevice{delay: 50 * time.Millisecond}
	_, err := Device(context.Background(), d, 10*time.Millisecond, DefaultCaptureOptions())
	require.ErrorIs(t, err, model.ErrTimeout)
	require.Eventually(t, d.released.Load, time.Second, 5*time.Millisecond)
}

func TestReportedLocation_FreshFixReturnedImmediately(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewReportedLocation(func() time.Time { return now })
	fix := model.Location{Latitude: 37, Longitude: -122, Timestamp: now.Add(-30 * time.Second)}
	require.NoError(t, r.Report(fix))

	got, err := Location(context.Background(), r, time.Second, DefaultLocationOptions())
	require.NoError(t, err)
	assert.Equal(t, fix, got)
}

func TestReportedLocation_StaleFixWaitsForReport(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewReportedLocation(func() time.Time { return now })
	require.NoError(t, r.Report(model.Location{Latitude: 1, Longitude: 1, Timestamp: now.Add(-5 * time.Minute)}))

	fresh := model.Location{Latitude: 2, Longitude: 2, Timestamp: now}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = r.Report(fresh)
	}()
	got, err := Location(context.Background(), r, time.Second, DefaultLocationOptions())
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestReportedLocation_DenialWakesWaiters(t *testing.T) {
	r := NewReportedLocation(nil)
	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Deny(KindPermissionDenied, "user declined")
	}()
	_, err := Location(context.Background(), r, time.Second, DefaultLocationOptions())
	require.ErrorIs(t, err, model.ErrPermissionDenied)
}

func TestReportedLocation_NoReportTimesOut(t *testing.T) {
	r := NewReportedLocation(nil)
	_, err := Location(context.Background(), r, 20*time.Millisecond, DefaultLocationOptions())
	require.ErrorIs(t, err, model.ErrTimeout)
}

func TestRelayDevice_Lifecycle(t *testing.T) {
	ctx := context.Background()
	d := NewRelayDevice()

	_, err := Device(ctx, d, time.Second, DefaultCaptureOptions())
	require.ErrorIs(t, err, model.ErrNotSupported)

	d.Announce(true, "", "")
	s, err := Device(ctx, d, time.Second, DefaultCaptureOptions())
	require.NoError(t, err)
	assert.True(t, d.Busy())

	_, err = Device(ctx, d, time.Second, DefaultCaptureOptions())
	require.ErrorIs(t, err, model.ErrDeviceBusy)

	go func() { _ = d.Push(ctx, []byte("chunk-1")) }()
	chunk, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chunk-1", string(chunk))

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	assert.False(t, d.Busy())
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, d.Push(ctx, []byte("late")), model.ErrInvalidState)
}

func TestRelayDevice_Denied(t *testing.T) {
	d := NewRelayDevice()
	d.Announce(false, KindPermissionDenied, "camera blocked")
	_, err := Device(context.Background(), d, time.Second, DefaultCaptureOptions())
	require.ErrorIs(t, err, model.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "camera blocked")
}
