package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rightsguard/incident-core/internal/api/recovery"
)

// NewRouter wires every route to h.
func NewRouter(h *Handler) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	// Health & metrics
	root.HandleFunc("/api/health", h.CheckHealth).Methods("GET")
	root.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// App state
	root.HandleFunc("/api/state", h.GetState).Methods("GET")
	root.HandleFunc("/api/settings/jurisdiction", h.SetJurisdiction).Methods("PUT")
	root.HandleFunc("/api/settings/language", h.SetLanguage).Methods("PUT")
	root.HandleFunc("/api/billing/premium", h.SetPremium).Methods("POST")
	root.HandleFunc("/api/contacts", h.AddContact).Methods("POST")
	root.HandleFunc("/api/contacts/{address}", h.RemoveContact).Methods("DELETE")
	root.HandleFunc("/api/data", h.ClearData).Methods("DELETE")
	root.HandleFunc("/api/data/export", h.ExportData).Methods("GET")
	root.HandleFunc("/api/data/import", h.ImportData).Methods("POST")
	root.HandleFunc("/api/clipboard", h.GetClipboard).Methods("GET")

	// Probes
	root.HandleFunc("/api/probe/location", h.ReportLocation).Methods("POST")
	root.HandleFunc("/api/probe/device", h.AnnounceDevice).Methods("POST")

	// Recording session
	root.HandleFunc("/api/session", h.GetSession).Methods("GET")
	root.HandleFunc("/api/session/start", h.StartSession).Methods("POST")
	root.HandleFunc("/api/session/chunks", h.PushChunk).Methods("POST")
	root.HandleFunc("/api/session/stop", h.StopSession).Methods("POST")
	root.HandleFunc("/api/session/abort", h.AbortSession).Methods("POST")

	// Incidents
	root.HandleFunc("/api/incidents", h.ListIncidents).Methods("GET")
	root.HandleFunc("/api/incidents/{id}", h.GetIncident).Methods("GET")
	root.HandleFunc("/api/incidents/{id}", h.UpdateIncident).Methods("PATCH")
	root.HandleFunc("/api/incidents/{id}", h.DeleteIncident).Methods("DELETE")
	root.HandleFunc("/api/incidents/{id}/notify", h.NotifyContacts).Methods("POST")
	root.HandleFunc("/api/incidents/{id}/share", h.ShareIncident).Methods("POST")
	root.HandleFunc("/api/incidents/{id}/export", h.ExportIncident).Methods("POST")
	return root
}
