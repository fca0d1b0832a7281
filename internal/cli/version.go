package cli

import (
	"fmt"
	"runtime"

	"github.com/centrifugal/wsgate/internal/build"

	"github.com/spf13/cobra"
)

func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "wsgate version information",
		Long:  `Print the version information of wsgate`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wsgate v%s (Go version: %s)\n", build.Version, runtime.Version())
		},
	}
}
