package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/rightsguard/incident-core/incidentservice"
)

func main() {
	if err := incidentservice.Run(); err != nil {
		log.Error().Err(err).Msg("incident-service exited with error")
		os.Exit(1)
	}
}
