package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rightsguard/incident-core/internal/model"
)

// ReportedLocation is a LocationProvider fed by fixes the handset reports.
// Acquire returns a fix that is fresh enough, or waits for the next report.
type ReportedLocation struct {
	mu      sync.Mutex
	last    *model.Location
	denial  *Error
	waiters []chan struct{}
	now     func() time.Time
}

func NewReportedLocation(now func() time.Time) *ReportedLocation {
	if now == nil {
		now = time.Now
	}
	return &ReportedLocation{now: now}
}

// Report records a fix and wakes pending acquisitions. It clears any earlier denial.
func (r *ReportedLocation) Report(loc model.Location) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.last = &loc
	r.denial = nil
	r.wakeLocked()
	r.mu.Unlock()
	return nil
}

// Deny records that the handset refused or cannot provide a fix.
func (r *ReportedLocation) Deny(kind Kind, reason string) {
	r.mu.Lock()
	r.denial = &Error{Probe: "location", Kind: kind, Err: errors.New(reason)}
	r.wakeLocked()
	r.mu.Unlock()
}

func (r *ReportedLocation) wakeLocked() {
	for _, w := range r.waiters {
		close(w)
	}
	r.waiters = nil
}

// AcquireLocation implements LocationProvider.
func (r *ReportedLocation) AcquireLocation(ctx context.Context, opts LocationOptions) (model.Location, error) {
	for {
		r.mu.Lock()
		if r.denial != nil {
			err := r.denial
			r.mu.Unlock()
			return model.Location{}, err
		}
		if r.last != nil && (opts.MaxAge <= 0 || r.now().Sub(r.last.Timestamp) <= opts.MaxAge) {
			loc := *r.last
			r.mu.Unlock()
			return loc, nil
		}
		wait := make(chan struct{})
		r.waiters = append(r.waiters, wait)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.Location{}, ctx.Err()
		case <-wait:
		}
	}
}

// RelayDevice is a CaptureDevice whose chunks are pushed by the handset. It
// holds at most one open stream.
type RelayDevice struct {
	mu        sync.Mutex
	available bool
	denial    *Error
	held      *relayStream
}

func NewRelayDevice() *RelayDevice { return &RelayDevice{} }

// Announce records whether the handset can capture. A non-empty kind marks
// the device as refused for that reason.
func (d *RelayDevice) Announce(available bool, kind Kind, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.available = available
	d.denial = nil
	if kind != "" {
		d.denial = &Error{Probe: "capture", Kind: kind, Err: errors.New(reason)}
	}
}

// AcquireStream implements CaptureDevice.
func (d *RelayDevice) AcquireStream(_ context.Context, _ CaptureOptions) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denial != nil {
		return nil, d.denial
	}
	if !d.available {
		return nil, &Error{Probe: "capture", Kind: KindNotSupported}
	}
	if d.held != nil {
		return nil, &Error{Probe: "capture", Kind: KindDeviceBusy}
	}
	s := &relayStream{dev: d, ch: make(chan []byte), done: make(chan struct{})}
	d.held = s
	return s, nil
}

// Push hands a chunk to the open stream. It returns once the chunk has been
// taken by the reader.
func (d *RelayDevice) Push(ctx context.Context, chunk []byte) error {
	d.mu.Lock()
	s := d.held
	d.mu.Unlock()
	if s == nil {
		return fmt.Errorf("%w: no open capture stream", model.ErrInvalidState)
	}
	select {
	case s.ch <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("%w: capture stream released", model.ErrInvalidState)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether a stream is open.
func (d *RelayDevice) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held != nil
}

type relayStream struct {
	dev  *RelayDevice
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (s *relayStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case c := <-s.ch:
		return c, nil
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *relayStream) Release() error {
	s.once.Do(func() {
		close(s.done)
		s.dev.mu.Lock()
		if s.dev.held == s {
			s.dev.held = nil
		}
		s.dev.mu.Unlock()
	})
	return nil
}
