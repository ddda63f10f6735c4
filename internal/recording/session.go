// Package recording drives the capture lifecycle of one incident:
// acquire a location fix, open the incident, acquire a capture stream,
// buffer chunks while active, then seal the buffer and complete the incident.
//
//	idle → acquiring_location → acquiring_device → active → finalizing → idle
//	  any non-idle phase → aborted → idle
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rightsguard/incident-core/internal/appstate"
	"github.com/rightsguard/incident-core/internal/incidentlog"
	"github.com/rightsguard/incident-core/internal/model"
	"github.com/rightsguard/incident-core/internal/probe"
)

// Phase is a session state.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseAcquiringLocation Phase = "acquiring_location"
	PhaseAcquiringDevice   Phase = "acquiring_device"
	PhaseActive            Phase = "active"
	PhaseFinalizing        Phase = "finalizing"
	PhaseAborted           Phase = "aborted"
)

// ErrAborted is returned by Start when an abort request was honored before
// the session became active.
var ErrAborted = errors.New("recording session aborted")

// Config bounds the session.
type Config struct {
	LocationTimeout time.Duration
	DeviceTimeout   time.Duration
	LocationOptions probe.LocationOptions
	CaptureOptions  probe.CaptureOptions
	// MaxBufferBytes caps buffered capture data; 0 means unbounded.
	MaxBufferBytes int64
	// Tick is the elapsed-counter period.
	Tick time.Duration
	// OnTransition, when set, observes every phase change.
	OnTransition func(from, to Phase)
}

// Status is a point-in-time view of the session.
type Status struct {
	Phase          Phase  `json:"phase"`
	IncidentID     string `json:"incidentId,omitempty"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Chunks         int    `json:"chunks"`
	Bytes          int64  `json:"bytes"`
	DroppedChunks  int    `json:"droppedChunks,omitempty"`
}

// Session is the single recording session of a user. At most one capture
// runs at a time; Start while busy fails with model.ErrSessionAlreadyActive.
type Session struct {
	cfg       Config
	locations probe.LocationProvider
	device    probe.CaptureDevice
	incidents *incidentlog.Log
	state     *appstate.Store
	sealer    Sealer
	log       zerolog.Logger

	mu             sync.Mutex
	phase          Phase
	incidentID     string
	chunks         [][]byte
	size           int64
	dropped        int
	elapsed        int
	stream         probe.Stream
	stopWorkers    context.CancelFunc
	workers        sync.WaitGroup
	abortRequested bool
}

// New builds an idle session. sealer may be nil, in which case finished
// captures keep a null recording reference.
func New(cfg Config, locations probe.LocationProvider, device probe.CaptureDevice, incidents *incidentlog.Log, state *appstate.Store, sealer Sealer, log zerolog.Logger) *Session {
	if cfg.LocationTimeout <= 0 {
		cfg.LocationTimeout = 5 * time.Second
	}
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = 10 * time.Second
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.LocationOptions == (probe.LocationOptions{}) {
		cfg.LocationOptions = probe.DefaultLocationOptions()
	}
	if cfg.CaptureOptions == (probe.CaptureOptions{}) {
		cfg.CaptureOptions = probe.DefaultCaptureOptions()
	}
	return &Session{
		cfg:       cfg,
		locations: locations,
		device:    device,
		incidents: incidents,
		state:     state,
		sealer:    sealer,
		log:       log.With().Str("component", "recording").Logger(),
		phase:     PhaseIdle,
	}
}

// Status reports the current phase and counters.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Phase:          s.phase,
		IncidentID:     s.incidentID,
		ElapsedSeconds: s.elapsed,
		Chunks:         len(s.chunks),
		Bytes:          s.size,
		DroppedChunks:  s.dropped,
	}
}

// Start opens an incident for ownerID and begins capture. When the location
// cannot be acquired no incident is created. When the capture device cannot
// be acquired the incident is returned together with the error and stays
// active with no recording.
func (s *Session) Start(ctx context.Context, ownerID string) (model.Incident, error) {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		return model.Incident{}, fmt.Errorf("%w: phase %s", model.ErrSessionAlreadyActive, phase)
	}
	s.resetLocked()
	s.setPhaseLocked(PhaseAcquiringLocation)
	s.mu.Unlock()

	loc, err := probe.Location(ctx, s.locations, s.cfg.LocationTimeout, s.cfg.LocationOptions)
	if err != nil {
		s.abortToIdle("location", err)
		return model.Incident{}, fmt.Errorf("%w: %w", model.ErrLocationUnavailable, err)
	}
	if _, err := s.state.Dispatch(ctx, appstate.RecordLocation(loc)); err != nil {
		s.log.Warn().Err(err).Msg("location not recorded in app state")
	}
	if !s.advance(PhaseAcquiringDevice) {
		s.abortToIdle("location", ErrAborted)
		return model.Incident{}, ErrAborted
	}

	inc, err := s.incidents.Create(ctx, incidentlog.Draft{OwnerID: ownerID, Location: loc})
	if err != nil {
		s.abortToIdle("incident", err)
		return model.Incident{}, err
	}
	s.mu.Lock()
	s.incidentID = inc.ID
	s.mu.Unlock()
	if _, err := s.state.Dispatch(ctx, appstate.AppendIncident(inc)); err != nil {
		s.log.Warn().Err(err).Str("incident_id", inc.ID).Msg("incident not added to app state")
	}

	stream, err := probe.Device(ctx, s.device, s.cfg.DeviceTimeout, s.cfg.CaptureOptions)
	if err != nil {
		s.abortToIdle("device", err)
		return inc, fmt.Errorf("%w: %w", model.ErrCaptureDeviceUnavailable, err)
	}
	// The flag is raised before the session turns active so a Stop, which
	// clears it, can never be overtaken.
	if _, err := s.state.Dispatch(ctx, appstate.SetCaptureActive(true)); err != nil {
		s.log.Warn().Err(err).Msg("capture flag not set")
	}
	if !s.activate(stream) {
		_ = stream.Release()
		if _, err := s.state.Dispatch(ctx, appstate.SetCaptureActive(false)); err != nil {
			s.log.Warn().Err(err).Msg("capture flag not cleared")
		}
		s.abortToIdle("device", ErrAborted)
		return inc, ErrAborted
	}
	s.log.Info().Str("incident_id", inc.ID).Msg("capture active")
	return inc, nil
}

// Stop finalizes an active capture: the buffer is sealed into one artifact,
// the incident is completed, and the device is released. The session returns
// to idle even when the incident update fails.
func (s *Session) Stop(ctx context.Context) (model.Incident, error) {
	s.mu.Lock()
	if s.phase != PhaseActive {
		phase := s.phase
		s.mu.Unlock()
		return model.Incident{}, fmt.Errorf("%w: phase %s", model.ErrNoActiveSession, phase)
	}
	s.setPhaseLocked(PhaseFinalizing)
	s.mu.Unlock()

	id, data := s.drain()
	ref := s.seal(ctx, id, data)

	status := model.StatusCompleted
	inc, err := s.incidents.Update(ctx, id, incidentlog.Patch{Status: &status, RecordingURL: ref})
	if err != nil {
		s.log.Error().Err(err).Str("incident_id", id).Msg("incident completion failed")
	}
	s.syncState(ctx)

	s.mu.Lock()
	s.setPhaseLocked(PhaseIdle)
	s.resetLocked()
	s.mu.Unlock()
	return inc, err
}

// Abort cancels the session. An active capture is torn down immediately and
// whatever was buffered is still sealed onto the incident, which stays
// active. During acquisition the request is honored at the next phase
// boundary.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	switch s.phase {
	case PhaseIdle:
		s.mu.Unlock()
		return model.ErrNoActiveSession
	case PhaseAcquiringLocation, PhaseAcquiringDevice:
		s.abortRequested = true
		s.mu.Unlock()
		return nil
	case PhaseActive:
		s.setPhaseLocked(PhaseAborted)
		s.mu.Unlock()
	default:
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot abort in phase %s", model.ErrInvalidState, phase)
	}

	id, data := s.drain()
	if ref := s.seal(ctx, id, data); ref != nil {
		if _, err := s.incidents.Update(ctx, id, incidentlog.Patch{RecordingURL: ref}); err != nil {
			s.log.Error().Err(err).Str("incident_id", id).Msg("partial recording not attached")
		}
	}
	s.syncState(ctx)

	s.mu.Lock()
	s.setPhaseLocked(PhaseIdle)
	s.resetLocked()
	s.mu.Unlock()
	return nil
}

// advance moves to next unless an abort was requested.
func (s *Session) advance(next Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abortRequested {
		return false
	}
	s.setPhaseLocked(next)
	return true
}

func (s *Session) activate(stream probe.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abortRequested {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stream = stream
	s.stopWorkers = cancel
	s.setPhaseLocked(PhaseActive)

	s.workers.Add(2)
	go s.readChunks(ctx, stream)
	go s.tick(ctx)
	return true
}

func (s *Session) readChunks(ctx context.Context, stream probe.Stream) {
	defer s.workers.Done()
	for {
		chunk, err := stream.Next(ctx)
		if err != nil {
			return
		}
		s.appendChunk(chunk)
	}
}

func (s *Session) tick(ctx context.Context) {
	defer s.workers.Done()
	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.mu.Lock()
			s.elapsed++
			s.mu.Unlock()
		}
	}
}

func (s *Session) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxBufferBytes > 0 && s.size+int64(len(chunk)) > s.cfg.MaxBufferBytes {
		if s.dropped == 0 {
			s.log.Warn().Int64("limit", s.cfg.MaxBufferBytes).Str("incident_id", s.incidentID).Msg("capture buffer full; dropping chunks")
		}
		s.dropped++
		return
	}
	s.chunks = append(s.chunks, chunk)
	s.size += int64(len(chunk))
}

// drain stops the workers, releases the device and returns the buffer.
func (s *Session) drain() (string, []byte) {
	s.mu.Lock()
	stop, stream := s.stopWorkers, s.stream
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.workers.Wait()
	if stream != nil {
		if err := stream.Release(); err != nil {
			s.log.Warn().Err(err).Msg("capture release failed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = nil
	s.stopWorkers = nil
	return s.incidentID, bytes.Join(s.chunks, nil)
}

// seal returns nil when there is nothing to seal or sealing fails.
func (s *Session) seal(ctx context.Context, incidentID string, data []byte) *string {
	if len(data) == 0 || s.sealer == nil {
		return nil
	}
	ref, err := s.sealer.Seal(ctx, incidentID, ContentType, data)
	if err != nil {
		s.log.Error().Err(err).Str("incident_id", incidentID).Int("bytes", len(data)).Msg("recording not sealed")
		return nil
	}
	return &ref
}

func (s *Session) syncState(ctx context.Context) {
	if _, err := s.state.Dispatch(ctx, appstate.ReplaceIncidentLog(s.incidents.List())); err != nil {
		s.log.Warn().Err(err).Msg("incident list not synced to app state")
	}
	if _, err := s.state.Dispatch(ctx, appstate.SetCaptureActive(false)); err != nil {
		s.log.Warn().Err(err).Msg("capture flag not cleared")
	}
}

func (s *Session) abortToIdle(stage string, cause error) {
	s.log.Warn().Err(cause).Str("stage", stage).Msg("recording session aborted")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPhaseLocked(PhaseAborted)
	s.setPhaseLocked(PhaseIdle)
	s.resetLocked()
}

func (s *Session) setPhaseLocked(next Phase) {
	prev := s.phase
	s.phase = next
	if s.cfg.OnTransition != nil && prev != next {
		s.cfg.OnTransition(prev, next)
	}
}

func (s *Session) resetLocked() {
	s.incidentID = ""
	s.chunks = nil
	s.size = 0
	s.dropped = 0
	s.elapsed = 0
	s.abortRequested = false
}
