package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rightsguard/incident-core/internal/api/respond"
	"github.com/rightsguard/incident-core/internal/appstate"
	"github.com/rightsguard/incident-core/internal/model"
)

const maxBackupBody = 16 << 20

// Backup is the export document covering every persisted key: the app state
// snapshot and the incident log. Incidents travel only in Incidents.
type Backup struct {
	ExportedAt time.Time          `json:"exportedAt"`
	State      *appstate.Snapshot `json:"state,omitempty"`
	Incidents  []model.Incident   `json:"incidents"`
}

// ExportData GET /api/data/export
func (h *Handler) ExportData(w http.ResponseWriter, r *http.Request) {
	snap := appstate.SnapshotOf(h.State.State())
	snap.Incidents = nil
	respond.WriteJSON(w, http.StatusOK, Backup{
		ExportedAt: time.Now().UTC(),
		State:      &snap,
		Incidents:  h.Incidents.List(),
	})
}

// ImportData POST /api/data/import restores a backup. The whole document is
// checked before anything is replaced; a rejected backup changes nothing.
func (h *Handler) ImportData(w http.ResponseWriter, r *http.Request) {
	var b Backup
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBackupBody)).Decode(&b); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if b.State == nil && b.Incidents == nil {
		respond.WriteErr(w, model.NewValidationError("backup", "nothing to import"))
		return
	}

	var snap appstate.Snapshot
	if b.State != nil {
		snap = *b.State
		// Older exports carried incidents inside the state.
		if b.Incidents == nil {
			b.Incidents = snap.Incidents
		}
		snap.Incidents = nil
		if err := snap.Validate(); err != nil {
			respond.WriteErr(w, err)
			return
		}
	}

	ctx := r.Context()
	if b.Incidents != nil {
		if err := h.Incidents.Replace(ctx, b.Incidents); err != nil {
			respond.WriteErr(w, err)
			return
		}
	}
	if b.State != nil {
		if _, err := h.State.Dispatch(ctx, appstate.LoadSnapshot(snap)); err != nil {
			respond.WriteErr(w, err)
			return
		}
	}
	h.syncIncidents(ctx)
	h.Log.Info().Int("incidents", len(b.Incidents)).Msg("backup imported")
	respond.WriteJSON(w, http.StatusOK, h.State.State())
}
