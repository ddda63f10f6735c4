// Package incidentlog owns incident records. It is the only writer of
// incidents and writes the full list through to the persistent store on
// every mutation.
package incidentlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rightsguard/incident-core/internal/kvstore"
	"github.com/rightsguard/incident-core/internal/model"
)

// Log is an ordered, persisted collection of incidents. All mutations are
// serialized; a racing update for the same id waits for the one in flight.
type Log struct {
	mu        sync.Mutex
	incidents map[string]model.Incident

	kv  *kvstore.Store
	key string
	log zerolog.Logger

	now   func() time.Time
	newID func() string
}

// Option customizes a Log.
type Option func(*Log)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(l *Log) { l.now = now } }

// WithIDGenerator replaces the default UUIDv7 generator.
func WithIDGenerator(gen func() string) Option { return func(l *Log) { l.newID = gen } }

// New loads the incidents stored under key. Entries repeating an earlier id
// are dropped with a warning.
func New(ctx context.Context, kv *kvstore.Store, key string, log zerolog.Logger, opts ...Option) *Log {
	l := &Log{
		incidents: make(map[string]model.Incident),
		kv:        kv,
		key:       key,
		log:       log.With().Str("component", "incidentlog").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newUUIDv7,
	}
	for _, o := range opts {
		o(l)
	}

	stored := kvstore.Get(ctx, kv, key, []model.Incident{})
	for _, inc := range stored {
		if _, dup := l.incidents[inc.ID]; dup || inc.ID == "" {
			l.log.Warn().Str("incident_id", inc.ID).Msg("skipping duplicate or unnamed stored incident")
			continue
		}
		l.incidents[inc.ID] = inc
	}
	return l
}

// Draft is the caller-supplied part of a new incident.
type Draft struct {
	// ID is normally empty; the log mints one.
	ID       string
	OwnerID  string
	Location model.Location
	Notes    string
}

// Create stores a new active incident. The location is required.
func (l *Log) Create(ctx context.Context, d Draft) (model.Incident, error) {
	if err := d.Location.Validate(); err != nil {
		return model.Incident{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := d.ID
	if id == "" {
		id = l.newID()
	}
	if _, exists := l.incidents[id]; exists {
		return model.Incident{}, fmt.Errorf("%w: incident %s", model.ErrDuplicateID, id)
	}
	inc := model.Incident{
		ID:        id,
		OwnerID:   model.OwnerOrAnonymous(d.OwnerID),
		CreatedAt: l.now(),
		Location:  d.Location,
		Notes:     d.Notes,
		Status:    model.StatusActive,
	}
	l.incidents[id] = inc
	l.writeThrough(ctx, "create", id)
	return clone(inc), nil
}

// List returns every incident, newest first.
func (l *Log) List() []model.Incident {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked()
}

// Get returns the incident with id or a model.NotFoundError.
func (l *Log) Get(id string) (model.Incident, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inc, ok := l.incidents[id]
	if !ok {
		return model.Incident{}, model.NotFoundError{Kind: "incident", ID: id}
	}
	return clone(inc), nil
}

// Patch lists the fields an update may touch. Nil means unchanged. Location
// exists only so an attempt to change it can be rejected.
type Patch struct {
	Notes        *string               `json:"notes,omitempty"`
	RecordingURL *string               `json:"recordingUrl,omitempty"`
	Status       *model.IncidentStatus `json:"status,omitempty"`
	Location     *model.Location       `json:"location,omitempty"`
}

// Update applies p to the incident with id. A patch touching the location
// fails with model.ErrImmutableField and leaves the incident unchanged.
func (l *Log) Update(ctx context.Context, id string, p Patch) (model.Incident, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inc, ok := l.incidents[id]
	if !ok {
		return model.Incident{}, model.NotFoundError{Kind: "incident", ID: id}
	}
	if p.Location != nil {
		return clone(inc), model.ImmutableFieldError{Field: "location"}
	}
	if p.Status != nil {
		if err := checkTransition(inc.Status, *p.Status); err != nil {
			return clone(inc), err
		}
		inc.Status = *p.Status
	}
	if p.Notes != nil {
		inc.Notes = *p.Notes
	}
	if p.RecordingURL != nil {
		u := *p.RecordingURL
		inc.RecordingURL = &u
	}
	l.incidents[id] = inc
	l.writeThrough(ctx, "update", id)
	return clone(inc), nil
}

// Delete removes the incident with id. An unknown id is logged and ignored.
func (l *Log) Delete(ctx context.Context, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.incidents[id]; !ok {
		l.log.Warn().Str("incident_id", id).Msg("delete of unknown incident ignored")
		return
	}
	delete(l.incidents, id)
	l.writeThrough(ctx, "delete", id)
}

// Clear removes every incident.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.incidents = make(map[string]model.Incident)
	return l.kv.Remove(ctx, l.key)
}

// Replace swaps the whole log for list, as when restoring a backup. An empty
// or repeated id, an invalid location or an unknown status rejects the list
// and leaves the log unchanged.
func (l *Log) Replace(ctx context.Context, list []model.Incident) error {
	next := make(map[string]model.Incident, len(list))
	for _, inc := range list {
		if inc.ID == "" {
			return model.NewValidationError("logId", "required")
		}
		if _, dup := next[inc.ID]; dup {
			return fmt.Errorf("%w: incident %s", model.ErrDuplicateID, inc.ID)
		}
		if err := inc.Location.Validate(); err != nil {
			return err
		}
		switch inc.Status {
		case model.StatusActive, model.StatusCompleted:
		default:
			return model.NewValidationError("status", "must be active or completed")
		}
		inc.OwnerID = model.OwnerOrAnonymous(inc.OwnerID)
		next[inc.ID] = clone(inc)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.incidents = next
	l.writeThrough(ctx, "replace", "")
	return nil
}

func checkTransition(from, to model.IncidentStatus) error {
	switch to {
	case from:
		return nil
	case model.StatusCompleted:
		if from == model.StatusActive {
			return nil
		}
	}
	return fmt.Errorf("%w: incident status %s -> %s", model.ErrInvalidState, from, to)
}

// writeThrough persists the full list. A rejected write is logged; the
// in-memory log stays authoritative and the next successful write catches
// storage up.
func (l *Log) writeThrough(ctx context.Context, op, id string) {
	if err := l.kv.Put(ctx, l.key, l.sortedLocked()); err != nil {
		l.log.Error().Err(err).Str("op", op).Str("incident_id", id).Msg("incident write-through failed")
	}
}

func (l *Log) sortedLocked() []model.Incident {
	out := make([]model.Incident, 0, len(l.incidents))
	for _, inc := range l.incidents {
		out = append(out, clone(inc))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func clone(in model.Incident) model.Incident {
	if in.RecordingURL != nil {
		u := *in.RecordingURL
		in.RecordingURL = &u
	}
	return in
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
