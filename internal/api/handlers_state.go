package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rightsguard/incident-core/internal/api/respond"
	"github.com/rightsguard/incident-core/internal/appstate"
	"github.com/rightsguard/incident-core/internal/model"
)

// GetState GET /api/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, h.State.State())
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, a appstate.Action) {
	st, err := h.State.Dispatch(r.Context(), a)
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, st)
}

// SetJurisdiction PUT /api/settings/jurisdiction
func (h *Handler) SetJurisdiction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.dispatch(w, r, appstate.SetJurisdiction(strings.ToUpper(strings.TrimSpace(req.State))))
}

// SetLanguage PUT /api/settings/language
func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.dispatch(w, r, appstate.SetSelectedLanguage(strings.TrimSpace(req.Language)))
}

// SetPremium POST /api/billing/premium
func (h *Handler) SetPremium(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Premium *bool `json:"premium"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	premium := !h.State.State().User.Premium
	if req.Premium != nil {
		premium = *req.Premium
	}
	h.dispatch(w, r, appstate.SetPremium(premium))
}

// AddContact POST /api/contacts
func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Contact string `json:"contact"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.dispatch(w, r, appstate.AddTrustedContact(strings.TrimSpace(req.Contact)))
}

// RemoveContact DELETE /api/contacts/{address}
func (h *Handler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, appstate.RemoveTrustedContact(mux.Vars(r)["address"]))
}

// ClearData DELETE /api/data removes every incident and resets app state.
func (h *Handler) ClearData(w http.ResponseWriter, r *http.Request) {
	if err := h.Incidents.Clear(r.Context()); err != nil {
		respond.WriteErr(w, err)
		return
	}
	h.dispatch(w, r, appstate.Reset())
}

// GetClipboard GET /api/clipboard
func (h *Handler) GetClipboard(w http.ResponseWriter, r *http.Request) {
	if h.Clipboard == nil {
		respond.WriteErr(w, model.ErrUnavailable)
		return
	}
	text, at := h.Clipboard.Read()
	if text == "" {
		respond.WriteNotFound(w, "clipboard is empty")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"text": text, "copiedAt": at})
}
