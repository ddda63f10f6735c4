package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the application state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodGet, "/api/state", nil)
		},
	}
}

func newSettingsCmd() *cobra.Command {
	settings := &cobra.Command{Use: "settings", Short: "User settings"}

	settings.AddCommand(&cobra.Command{
		Use:   "jurisdiction CODE",
		Short: "Set the jurisdiction (two-letter state code)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodPut, "/api/settings/jurisdiction", map[string]string{"state": args[0]})
		},
	})
	settings.AddCommand(&cobra.Command{
		Use:   "language LANG",
		Short: "Set the selected language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodPut, "/api/settings/language", map[string]string{"language": args[0]})
		},
	})

	var off bool
	premium := &cobra.Command{
		Use:   "premium",
		Short: "Enable (or with --off disable) premium",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodPost, "/api/billing/premium", map[string]bool{"premium": !off})
		},
	}
	premium.Flags().BoolVar(&off, "off", false, "Disable premium")
	settings.AddCommand(premium)

	settings.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every incident and reset all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodDelete, "/api/data", nil)
		},
	})

	var outFile string
	export := &cobra.Command{
		Use:   "export",
		Short: "Back up settings and incidents as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outFile == "" {
				return run(cmd.OutOrStdout(), http.MethodGet, "/api/data/export", nil)
			}
			data, err := newClient().call(http.MethodGet, "/api/data/export", nil)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outFile, data, 0o600); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", outFile)
			return err
		},
	}
	export.Flags().StringVarP(&outFile, "out", "o", "", "Write the backup to this file")
	settings.AddCommand(export)

	settings.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Restore settings and incidents from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc json.RawMessage
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("%s is not a JSON backup: %w", args[0], err)
			}
			return run(cmd.OutOrStdout(), http.MethodPost, "/api/data/import", doc)
		},
	})
	return settings
}

func newContactsCmd() *cobra.Command {
	contacts := &cobra.Command{Use: "contacts", Short: "Trusted contacts"}
	contacts.AddCommand(&cobra.Command{
		Use:   "add CONTACT",
		Short: "Add a phone number or email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodPost, "/api/contacts", map[string]string{"contact": args[0]})
		},
	})
	contacts.AddCommand(&cobra.Command{
		Use:   "remove CONTACT",
		Short: "Remove a trusted contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodDelete, "/api/contacts/"+url.PathEscape(args[0]), nil)
		},
	})
	return contacts
}

func newProbeCmd() *cobra.Command {
	probe := &cobra.Command{Use: "probe", Short: "Report handset capabilities"}

	var lat, lon float64
	var denied, reason string
	location := &cobra.Command{
		Use:   "location",
		Short: "Report a location fix, or a denial with --denied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"latitude": lat, "longitude": lon}
			if denied != "" {
				body = map[string]any{"denied": denied, "reason": reason}
			}
			return run(cmd.OutOrStdout(), http.MethodPost, "/api/probe/location", body)
		},
	}
	location.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	location.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	location.Flags().StringVar(&denied, "denied", "", "Denial kind (permission_denied, not_supported, timeout)")
	location.Flags().StringVar(&reason, "reason", "", "Denial reason")
	probe.AddCommand(location)

	var unavailable bool
	var devDenied, devReason string
	device := &cobra.Command{
		Use:   "device",
		Short: "Announce capture device availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodPost, "/api/probe/device", map[string]any{
				"available": !unavailable && devDenied == "",
				"denied":    devDenied,
				"reason":    devReason,
			})
		},
	}
	device.Flags().BoolVar(&unavailable, "unavailable", false, "Device not available")
	device.Flags().StringVar(&devDenied, "denied", "", "Denial kind (permission_denied, device_busy)")
	device.Flags().StringVar(&devReason, "reason", "", "Denial reason")
	probe.AddCommand(device)
	return probe
}

func newSessionCmd() *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Recording session"}

	var user string
	start := &cobra.Command{
		Use:   "start",
		Short: "Start recording; opens a new incident",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodPost, "/api/session/start", map[string]string{"userId": user})
		},
	}
	start.Flags().StringVarP(&user, "user", "u", "", "Owner user id (defaults to the app user)")
	session.AddCommand(start)

	session.AddCommand(&cobra.Command{
		Use:   "push FILE",
		Short: "Push a capture chunk read from FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return run(cmd.OutOrStdout(), http.MethodPost, "/api/session/chunks", data)
		},
	})
	for _, op := range []struct{ name, short string }{
		{"stop", "Stop recording and complete the incident"},
		{"abort", "Abort the session, keeping buffered data"},
	} {
		path := "/api/session/" + op.name
		session.AddCommand(&cobra.Command{
			Use:   op.name,
			Short: op.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.OutOrStdout(), http.MethodPost, path, nil)
			},
		})
	}
	session.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show session phase and counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodGet, "/api/session", nil)
		},
	})
	return session
}

func newIncidentsCmd() *cobra.Command {
	incidents := &cobra.Command{Use: "incidents", Short: "Incident log"}
	incidents.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List incidents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodGet, "/api/incidents", nil)
		},
	})

	byID := []struct{ use, short, method, suffix string }{
		{"get", "Show one incident", http.MethodGet, ""},
		{"delete", "Delete an incident", http.MethodDelete, ""},
		{"notify", "Notify trusted contacts about an incident", http.MethodPost, "/notify"},
		{"share", "Share an incident summary", http.MethodPost, "/share"},
		{"export", "Pin the incident document", http.MethodPost, "/export"},
	}
	for _, c := range byID {
		c := c
		incidents.AddCommand(&cobra.Command{
			Use:   c.use + " ID",
			Short: c.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.OutOrStdout(), c.method, "/api/incidents/"+url.PathEscape(args[0])+c.suffix, nil)
			},
		})
	}

	var notes string
	var complete bool
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Update notes or complete an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if cmd.Flags().Changed("notes") {
				body["notes"] = notes
			}
			if complete {
				body["status"] = "completed"
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to update; use --notes or --complete")
			}
			return run(cmd.OutOrStdout(), http.MethodPatch, "/api/incidents/"+url.PathEscape(args[0]), body)
		},
	}
	update.Flags().StringVarP(&notes, "notes", "n", "", "Replace the notes")
	update.Flags().BoolVar(&complete, "complete", false, "Mark the incident completed")
	incidents.AddCommand(update)
	return incidents
}

func newClipboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clipboard",
		Short: "Show the clipboard fallback text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), http.MethodGet, "/api/clipboard", nil)
		},
	}
}
