// Package api is the HTTP surface of the incident service.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rightsguard/incident-core/internal/api/respond"
	"github.com/rightsguard/incident-core/internal/appstate"
	"github.com/rightsguard/incident-core/internal/incidentlog"
	"github.com/rightsguard/incident-core/internal/notify"
	"github.com/rightsguard/incident-core/internal/pinning"
	"github.com/rightsguard/incident-core/internal/probe"
	"github.com/rightsguard/incident-core/internal/recording"
)

// Exporter pins an incident document and returns where it can be fetched.
type Exporter interface {
	PinJSON(ctx context.Context, name string, content any, keyvalues map[string]string) (pinning.Pin, error)
}

// Deps are the components the handlers drive.
type Deps struct {
	State     *appstate.Store
	Incidents *incidentlog.Log
	Session   *recording.Session
	Locations *probe.ReportedLocation
	Device    *probe.RelayDevice
	Notifier  *notify.Notifier
	Clipboard *notify.MemoryClipboard
	Exporter  Exporter
	// Healthy reports cached service health; nil means always healthy.
	Healthy    func() bool
	Components func() map[string]bool
	Log        zerolog.Logger
}

// Handler serves every route.
type Handler struct {
	Deps
}

func NewHandler(d Deps) *Handler {
	d.Log = d.Log.With().Str("component", "api").Logger()
	return &Handler{Deps: d}
}

const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return false
	}
	return true
}

// syncIncidents mirrors the incident log into app state.
func (h *Handler) syncIncidents(ctx context.Context) {
	if _, err := h.State.Dispatch(ctx, appstate.ReplaceIncidentLog(h.Incidents.List())); err != nil {
		h.Log.Warn().Err(err).Msg("incident list not synced to app state")
	}
}
