package appstate

import (
	"fmt"

	"github.com/rightsguard/incident-core/internal/model"
)

// Action is a named, pure state transition. The set is closed: only the
// constructors in this file produce Actions.
type Action interface {
	Name() string
	apply(State) (State, error)
}

type action struct {
	name string
	fn   func(State) (State, error)
}

func (a action) Name() string                 { return a.name }
func (a action) apply(s State) (State, error) { return a.fn(s) }

func newAction(name string, fn func(State) (State, error)) Action {
	return action{name: name, fn: fn}
}

// SetJurisdiction sets the user's jurisdiction code.
func SetJurisdiction(code string) Action {
	return newAction("setJurisdiction", func(s State) (State, error) {
		s.User.Jurisdiction = code
		return s, nil
	})
}

// SetPremium sets the premium flag.
func SetPremium(premium bool) Action {
	return newAction("setPremium", func(s State) (State, error) {
		s.User.Premium = premium
		return s, nil
	})
}

// SetSelectedLanguage sets the UI language code.
func SetSelectedLanguage(code string) Action {
	return newAction("setSelectedLanguage", func(s State) (State, error) {
		if code == "" {
			return s, model.NewValidationError("selectedLanguage", "required")
		}
		s.SelectedLanguage = code
		return s, nil
	})
}

// RecordLocation stores the latest location sample.
func RecordLocation(sample model.Location) Action {
	return newAction("recordLocation", func(s State) (State, error) {
		if err := sample.Validate(); err != nil {
			return s, err
		}
		s.CurrentLocation = &sample
		return s, nil
	})
}

// SetCaptureActive flags whether a capture is in progress.
func SetCaptureActive(active bool) Action {
	return newAction("setCaptureActive", func(s State) (State, error) {
		s.CaptureActive = active
		return s, nil
	})
}

// AppendIncident adds an incident to the front of the list. An id already
// held fails with model.ErrDuplicateIncidentID.
func AppendIncident(inc model.Incident) Action {
	return newAction("appendIncident", func(s State) (State, error) {
		for _, held := range s.Incidents {
			if held.ID == inc.ID {
				return s, fmt.Errorf("%w: %s", model.ErrDuplicateIncidentID, inc.ID)
			}
		}
		s.Incidents = append([]model.Incident{cloneIncident(inc)}, s.Incidents...)
		return s, nil
	})
}

// ReplaceIncidentLog swaps in a new incident list.
func ReplaceIncidentLog(list []model.Incident) Action {
	return newAction("replaceIncidentLog", func(s State) (State, error) {
		next, err := uniqueIncidents(list)
		if err != nil {
			return s, err
		}
		s.Incidents = next
		return s, nil
	})
}

// LoadSnapshot merges the non-nil fields of snap into the state.
func LoadSnapshot(snap Snapshot) Action {
	return newAction("loadSnapshot", func(s State) (State, error) {
		if snap.User != nil {
			s.User = *snap.User
			s.User.TrustedContacts = dedupe(snap.User.TrustedContacts)
		}
		if snap.CurrentLocation != nil {
			if err := snap.CurrentLocation.Validate(); err != nil {
				return s, err
			}
			loc := *snap.CurrentLocation
			s.CurrentLocation = &loc
		}
		if snap.Incidents != nil {
			next, err := uniqueIncidents(snap.Incidents)
			if err != nil {
				return s, err
			}
			s.Incidents = next
		}
		if snap.SelectedLanguage != nil && *snap.SelectedLanguage != "" {
			s.SelectedLanguage = *snap.SelectedLanguage
		}
		return s, nil
	})
}

// AddTrustedContact appends address unless an identical entry exists.
func AddTrustedContact(address string) Action {
	return newAction("addTrustedContact", func(s State) (State, error) {
		if address == "" {
			return s, model.NewValidationError("contact", "required")
		}
		for _, c := range s.User.TrustedContacts {
			if c == address {
				return s, nil
			}
		}
		s.User.TrustedContacts = append(s.User.TrustedContacts, address)
		return s, nil
	})
}

// RemoveTrustedContact drops address if present.
func RemoveTrustedContact(address string) Action {
	return newAction("removeTrustedContact", func(s State) (State, error) {
		kept := make([]string, 0, len(s.User.TrustedContacts))
		for _, c := range s.User.TrustedContacts {
			if c != address {
				kept = append(kept, c)
			}
		}
		s.User.TrustedContacts = kept
		return s, nil
	})
}

// Reset returns to the default state.
func Reset() Action {
	return newAction("reset", func(State) (State, error) {
		return Default(), nil
	})
}

func uniqueIncidents(list []model.Incident) ([]model.Incident, error) {
	seen := make(map[string]struct{}, len(list))
	out := make([]model.Incident, 0, len(list))
	for _, inc := range list {
		if _, dup := seen[inc.ID]; dup {
			return nil, fmt.Errorf("%w: %s", model.ErrDuplicateIncidentID, inc.ID)
		}
		seen[inc.ID] = struct{}{}
		out = append(out, cloneIncident(inc))
	}
	return out, nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
