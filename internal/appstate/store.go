package appstate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rightsguard/incident-core/internal/kvstore"
	"github.com/rightsguard/incident-core/internal/model"
	"github.com/rightsguard/incident-core/internal/shardqueue"
)

// Store holds the current State and serializes dispatch.
type Store struct {
	mu    sync.Mutex
	state State

	kv    *kvstore.Store
	key   string
	queue *shardqueue.Executor
	log   zerolog.Logger
}

// New restores the snapshot saved under key, falling back to Default when it
// is absent or unreadable. A stale field is dropped on its own so the rest of
// the saved state survives. Snapshot writes are scheduled on queue.
func New(ctx context.Context, kv *kvstore.Store, key string, queue *shardqueue.Executor, log zerolog.Logger) *Store {
	s := &Store{
		state: Default(),
		kv:    kv,
		key:   key,
		queue: queue,
		log:   log.With().Str("component", "appstate").Logger(),
	}

	var snap Snapshot
	if !kv.Load(ctx, key, &snap) {
		s.log.Info().Str("key", key).Msg("no saved state; starting from defaults")
		return s
	}
	restored := restore(snap, s.log)
	s.state = restored
	s.log.Info().
		Int("incidents", len(restored.Incidents)).
		Int("contacts", len(restored.User.TrustedContacts)).
		Msg("state restored")
	return s
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Dispatch applies a to the current state. On success the new state is
// committed and a persistence write is scheduled; a failed write is logged and
// does not roll the state back. A rejected action leaves the state unchanged.
func (s *Store) Dispatch(ctx context.Context, a Action) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := a.apply(s.state.Clone())
	if err != nil {
		s.log.Debug().Err(err).Str("action", a.Name()).Msg("action rejected")
		return s.state.Clone(), err
	}
	s.state = next
	s.schedulePersist(ctx, a.Name(), next.Clone())
	return next.Clone(), nil
}

// Flush waits until every scheduled snapshot write has been attempted.
func (s *Store) Flush(ctx context.Context) error {
	return s.queue.Barrier(ctx, s.key)
}

// schedulePersist must be called with s.mu held so writes are queued in
// commit order.
func (s *Store) schedulePersist(ctx context.Context, action string, snapshot State) {
	jobCtx := context.WithoutCancel(ctx)
	job := shardqueue.JobFunc(func(ctx context.Context) error {
		return s.kv.Put(ctx, s.key, snapshot)
	})
	if err := s.queue.Submit(jobCtx, s.key, job); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("state persistence not scheduled")
	}
}

// restore builds a state from a saved snapshot field by field. Unlike
// LoadSnapshot it never rejects the whole document: an invalid location is
// dropped and repeated incident ids keep their first entry.
func restore(snap Snapshot, log zerolog.Logger) State {
	s := Default()
	if snap.User != nil {
		s.User = *snap.User
		s.User.TrustedContacts = dedupe(snap.User.TrustedContacts)
	}
	if snap.CurrentLocation != nil {
		if err := snap.CurrentLocation.Validate(); err != nil {
			log.Warn().Err(err).Msg("dropping stale saved location")
		} else {
			loc := *snap.CurrentLocation
			s.CurrentLocation = &loc
		}
	}
	if snap.Incidents != nil {
		seen := make(map[string]struct{}, len(snap.Incidents))
		s.Incidents = make([]model.Incident, 0, len(snap.Incidents))
		for _, inc := range snap.Incidents {
			if _, dup := seen[inc.ID]; dup || inc.ID == "" {
				log.Warn().Str("incident_id", inc.ID).Msg("skipping duplicate or unnamed saved incident")
				continue
			}
			seen[inc.ID] = struct{}{}
			s.Incidents = append(s.Incidents, cloneIncident(inc))
		}
	}
	if snap.SelectedLanguage != nil && *snap.SelectedLanguage != "" {
		s.SelectedLanguage = *snap.SelectedLanguage
	}
	// A capture cannot outlive the process that started it.
	s.CaptureActive = false
	return s
}
