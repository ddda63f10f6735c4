package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rightsguard/incident-core/internal/api/respond"
	"github.com/rightsguard/incident-core/internal/model"
	"github.com/rightsguard/incident-core/internal/probe"
	"github.com/rightsguard/incident-core/internal/recording"
)

const maxChunkBytes = 8 << 20

// ReportLocation POST /api/probe/location
// The handset reports either a fix or why it cannot provide one.
func (h *Handler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latitude  float64    `json:"latitude"`
		Longitude float64    `json:"longitude"`
		Timestamp *time.Time `json:"timestamp"`
		Denied    probe.Kind `json:"denied"`
		Reason    string     `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Denied != "" {
		h.Locations.Deny(req.Denied, req.Reason)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	loc := model.Location{Latitude: req.Latitude, Longitude: req.Longitude, Timestamp: time.Now().UTC()}
	if req.Timestamp != nil {
		loc.Timestamp = req.Timestamp.UTC()
	}
	if err := h.Locations.Report(loc); err != nil {
		respond.WriteErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AnnounceDevice POST /api/probe/device
func (h *Handler) AnnounceDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Available bool       `json:"available"`
		Denied    probe.Kind `json:"denied"`
		Reason    string     `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.Device.Announce(req.Available, req.Denied, req.Reason)
	w.WriteHeader(http.StatusNoContent)
}

// StartSession POST /api/session/start
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = h.State.State().User.UserID
	}

	inc, err := h.Session.Start(r.Context(), req.UserID)
	switch {
	case err == nil:
		respond.WriteJSON(w, http.StatusCreated, inc)
	case errors.Is(err, model.ErrCaptureDeviceUnavailable):
		code := respond.StatusFor(err)
		respond.WriteJSON(w, code, map[string]interface{}{
			"error":    http.StatusText(code),
			"code":     code,
			"message":  err.Error(),
			"incident": inc,
		})
	case errors.Is(err, recording.ErrAborted):
		respond.WriteError(w, http.StatusConflict, err.Error())
	default:
		respond.WriteErr(w, err)
	}
}

// PushChunk POST /api/session/chunks
// The body is one raw capture chunk.
func (h *Handler) PushChunk(w http.ResponseWriter, r *http.Request) {
	chunk, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		respond.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err := h.Device.Push(r.Context(), chunk); err != nil {
		respond.WriteErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// StopSession POST /api/session/stop
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	inc, err := h.Session.Stop(r.Context())
	if err != nil {
		respond.WriteErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, inc)
}

// AbortSession POST /api/session/abort
func (h *Handler) AbortSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Abort(r.Context()); err != nil {
		respond.WriteErr(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusAccepted, h.Session.Status())
}

// GetSession GET /api/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, h.Session.Status())
}
