package app

import (
	"github.com/centrifugal/wsgate/internal/config"

	"github.com/spf13/cobra"
)

// Gateway is a root command starting the server.
func Gateway() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "",
		Short: "wsgate",
		Long:  "wsgate – WebSocket gateway with emulated WebSocket sessions over plain HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			Run(cmd, configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "config.json", "path to config file")
	config.DefineFlags(cmd)
	return cmd
}
