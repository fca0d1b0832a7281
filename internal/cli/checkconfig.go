package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/centrifugal/wsgate/internal/config"

	"github.com/spf13/cobra"
)

func CheckConfig() *cobra.Command {
	var checkConfigFile string
	var checkConfigStrict bool
	var checkConfigCmd = &cobra.Command{
		Use:   "checkconfig",
		Short: "Check configuration file",
		Long:  `Check wsgate configuration file`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := checkConfig(checkConfigFile, checkConfigStrict); err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	checkConfigCmd.Flags().StringVarP(&checkConfigFile, "config", "c", "config.json", "path to config file to check")
	checkConfigCmd.Flags().BoolVarP(&checkConfigStrict, "strict", "s", false, "strict check - fail on unknown fields")
	return checkConfigCmd
}

func checkConfig(configFile string, strict bool) error {
	cfg, cfgMeta, err := config.GetConfig(nil, configFile)
	if err != nil {
		return err
	}
	if cfgMeta.FileNotFound {
		return errors.New("config file not found")
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("error validating config: %w", err)
	}
	if strict && len(cfgMeta.UnknownKeys) > 0 {
		return fmt.Errorf("unknown keys in config: %s", strings.Join(cfgMeta.UnknownKeys, ", "))
	}
	return nil
}
