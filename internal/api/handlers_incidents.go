package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rightsguard/incident-core/internal/api/respond"
	"github.com/rightsguard/incident-core/internal/incidentlog"
	"github.com/rightsguard/incident-core/internal/model"
	"github.com/rightsguard/incident-core/internal/notify"
	"github.com/rightsguard/incident-core/internal/pinning"
)

// ListIncidents GET /api/incidents
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	list := h.Incidents.List()
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"incidents": list, "count": len(list)})
}

// GetIncident GET /api/incidents/{id}
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.Incidents.Get(mux.Vars(r)["id"])
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, inc)
}

// UpdateIncident PATCH /api/incidents/{id}
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var patch incidentlog.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	inc, err := h.Incidents.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	h.syncIncidents(r.Context())
	respond.WriteJSON(w, http.StatusOK, inc)
}

// DeleteIncident DELETE /api/incidents/{id}
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	h.Incidents.Delete(r.Context(), mux.Vars(r)["id"])
	h.syncIncidents(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// NotifyContacts POST /api/incidents/{id}/notify
// Without a body the trusted contacts from app state are used.
func (h *Handler) NotifyContacts(w http.ResponseWriter, r *http.Request) {
	inc, err := h.Incidents.Get(mux.Vars(r)["id"])
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	var req struct {
		Contacts []model.Contact `json:"contacts"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	contacts := req.Contacts
	if len(contacts) == 0 {
		contacts = notify.ContactsFromAddresses(h.State.State().User.TrustedContacts)
	}
	if len(contacts) == 0 {
		respond.WriteErr(w, model.NewValidationError("contacts", "no trusted contacts configured"))
		return
	}
	respond.WriteJSON(w, http.StatusOK, h.Notifier.Notify(r.Context(), inc, contacts))
}

// ShareIncident POST /api/incidents/{id}/share
func (h *Handler) ShareIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.Incidents.Get(mux.Vars(r)["id"])
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	var rights string
	if j := h.State.State().User.Jurisdiction; j != "" {
		rights = fmt.Sprintf("Jurisdiction: %s. Rights to remain silent, to refuse consent to searches, and to record police in public apply.", j)
	}
	respond.WriteJSON(w, http.StatusOK, h.Notifier.ShareSummary(r.Context(), inc, rights))
}

// ExportIncident POST /api/incidents/{id}/export
func (h *Handler) ExportIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.Incidents.Get(mux.Vars(r)["id"])
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	if h.Exporter == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, pinning.ErrNotConfigured.Error())
		return
	}
	pin, err := h.Exporter.PinJSON(r.Context(), fmt.Sprintf("incident-%s.json", inc.ID), inc, map[string]string{"incidentId": inc.ID})
	switch {
	case errors.Is(err, pinning.ErrNotConfigured):
		respond.WriteError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		respond.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		respond.WriteJSON(w, http.StatusCreated, pin)
	}
}
