// Package probe defines the single-shot capability probes used to open an
// incident: a location fix and a live capture stream. Probes never retry.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rightsguard/incident-core/internal/model"
)

// Kind classifies a probe failure.
type Kind string

const (
	KindNotSupported     Kind = "not_supported"
	KindPermissionDenied Kind = "permission_denied"
	KindTimeout          Kind = "timeout"
	KindDeviceBusy       Kind = "device_busy"
	KindUnavailable      Kind = "unavailable"
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotSupported:
		return model.ErrNotSupported
	case KindPermissionDenied:
		return model.ErrPermissionDenied
	case KindTimeout:
		return model.ErrTimeout
	case KindDeviceBusy:
		return model.ErrDeviceBusy
	default:
		return model.ErrUnavailable
	}
}

// Error is a classified probe failure. It matches the model sentinel for its
// Kind under errors.Is.
type Error struct {
	Probe string
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s probe: %s", e.Probe, e.Kind)
	}
	return fmt.Sprintf("%s probe: %s: %v", e.Probe, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf extracts the failure kind, or "" when err is not a probe failure.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// LocationOptions tune a location fix.
type LocationOptions struct {
	HighAccuracy bool
	// MaxAge is the oldest cached fix that may be returned.
	MaxAge time.Duration
}

// DefaultLocationOptions asks for a high-accuracy fix no older than a minute.
func DefaultLocationOptions() LocationOptions {
	return LocationOptions{HighAccuracy: true, MaxAge: time.Minute}
}

// CaptureOptions tune a capture stream.
type CaptureOptions struct {
	Audio  bool
	Video  bool
	Facing string
}

// DefaultCaptureOptions records audio and video from the rear camera.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{Audio: true, Video: true, Facing: "environment"}
}

// LocationProvider produces one location fix.
type LocationProvider interface {
	AcquireLocation(ctx context.Context, opts LocationOptions) (model.Location, error)
}

// Stream is a live capture. Next blocks for the next chunk and returns
// io.EOF once the stream has been released.
type Stream interface {
	Next(ctx context.Context) ([]byte, error)
	Release() error
}

// CaptureDevice opens capture streams.
type CaptureDevice interface {
	AcquireStream(ctx context.Context, opts CaptureOptions) (Stream, error)
}

type locationResult struct {
	loc model.Location
	err error
}

// Location runs p with a hard timeout. The deadline holds even when the
// provider ignores ctx.
func Location(ctx context.Context, p LocationProvider, timeout time.Duration, opts LocationOptions) (model.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan locationResult, 1)
	go func() {
		loc, err := p.AcquireLocation(ctx, opts)
		ch <- locationResult{loc: loc, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return model.Location{}, classify("location", r.err)
		}
		if err := r.loc.Validate(); err != nil {
			return model.Location{}, &Error{Probe: "location", Kind: KindUnavailable, Err: err}
		}
		return r.loc, nil
	case <-ctx.Done():
		return model.Location{}, classify("location", ctx.Err())
	}
}

type streamResult struct {
	s   Stream
	err error
}

// Device runs d with a hard timeout. A stream that arrives after the deadline
// is released immediately so the device is never left open.
func Device(ctx context.Context, d CaptureDevice, timeout time.Duration, opts CaptureOptions) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan streamResult, 1)
	go func() {
		s, err := d.AcquireStream(ctx, opts)
		ch <- streamResult{s: s, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, classify("capture", r.err)
		}
		return r.s, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.s != nil {
				_ = r.s.Release()
			}
		}()
		return nil, classify("capture", ctx.Err())
	}
}

func classify(probe string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	kind := KindUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, model.ErrTimeout):
		kind = KindTimeout
	case errors.Is(err, model.ErrPermissionDenied):
		kind = KindPermissionDenied
	case errors.Is(err, model.ErrDeviceBusy):
		kind = KindDeviceBusy
	case errors.Is(err, model.ErrNotSupported):
		kind = KindNotSupported
	}
	return &Error{Probe: probe, Kind: kind, Err: err}
}
