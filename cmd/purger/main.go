package main

import (
	"github.com/rs/zerolog/log"

	"queue-purger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatal().Err(err).Msg("purger failed")
	}
}
