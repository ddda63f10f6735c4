package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var apiFlag string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "incidentctl",
		Short:         "CLI client for the RightsGuard incident service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Incident service base URL")

	root.AddCommand(
		newStateCmd(),
		newSettingsCmd(),
		newContactsCmd(),
		newProbeCmd(),
		newSessionCmd(),
		newIncidentsCmd(),
		newClipboardCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
