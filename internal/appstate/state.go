// Package appstate is the process-wide application state container. State is
// an immutable value replaced wholesale by dispatching named actions; every
// committed action schedules a full snapshot write to the persistent store.
package appstate

import (
	"slices"

	"github.com/rightsguard/incident-core/internal/model"
)

// DefaultLanguage is the language selected on first launch.
const DefaultLanguage = "english"

// State is one immutable snapshot of the application.
type State struct {
	User             model.UserProfile `json:"user"`
	CurrentLocation  *model.Location   `json:"currentLocation"`
	CaptureActive    bool              `json:"isRecording"`
	Incidents        []model.Incident  `json:"incidentLogs"`
	SelectedLanguage string            `json:"selectedLanguage"`
}

// Default is the state used when nothing usable has been persisted.
func Default() State {
	return State{
		User:             model.UserProfile{TrustedContacts: []string{}},
		Incidents:        []model.Incident{},
		SelectedLanguage: DefaultLanguage,
	}
}

// Clone returns a deep copy so callers cannot alias committed state.
func (s State) Clone() State {
	out := s
	out.User.TrustedContacts = slices.Clone(s.User.TrustedContacts)
	if out.User.TrustedContacts == nil {
		out.User.TrustedContacts = []string{}
	}
	if s.User.CreatedAt != nil {
		t := *s.User.CreatedAt
		out.User.CreatedAt = &t
	}
	if s.CurrentLocation != nil {
		loc := *s.CurrentLocation
		out.CurrentLocation = &loc
	}
	out.Incidents = make([]model.Incident, len(s.Incidents))
	for i, inc := range s.Incidents {
		out.Incidents[i] = cloneIncident(inc)
	}
	return out
}

// IncidentIDs returns the ids of the held incidents in order.
func (s State) IncidentIDs() []string {
	ids := make([]string, len(s.Incidents))
	for i, inc := range s.Incidents {
		ids[i] = inc.ID
	}
	return ids
}

func cloneIncident(in model.Incident) model.Incident {
	if in.RecordingURL != nil {
		u := *in.RecordingURL
		in.RecordingURL = &u
	}
	return in
}

// Snapshot is a partial state. Nil fields are left unchanged by LoadSnapshot;
// it is also the decode target for persisted state, so missing or stale
// fields in older documents are tolerated.
type Snapshot struct {
	User             *model.UserProfile `json:"user,omitempty"`
	CurrentLocation  *model.Location    `json:"currentLocation,omitempty"`
	Incidents        []model.Incident   `json:"incidentLogs,omitempty"`
	SelectedLanguage *string            `json:"selectedLanguage,omitempty"`
}

// SnapshotOf converts a full state into a snapshot carrying every field.
func SnapshotOf(s State) Snapshot {
	c := s.Clone()
	return Snapshot{
		User:             &c.User,
		CurrentLocation:  c.CurrentLocation,
		Incidents:        c.Incidents,
		SelectedLanguage: &c.SelectedLanguage,
	}
}

// Validate reports whether LoadSnapshot would accept snap.
func (snap Snapshot) Validate() error {
	_, err := LoadSnapshot(snap).apply(Default())
	return err
}
