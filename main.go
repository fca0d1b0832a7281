package main

import (
	"github.com/centrifugal/wsgate/internal/app"
	"github.com/centrifugal/wsgate/internal/cli"

	"github.com/rs/zerolog/log"
)

func main() {
	root := app.Gateway()
	root.AddCommand(
		cli.Version(),
		cli.CheckConfig(),
		cli.DefaultConfigCommand(),
		cli.DefaultEnv(),
	)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("error executing command")
	}
}
