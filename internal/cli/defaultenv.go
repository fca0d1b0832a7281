package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/centrifugal/wsgate/internal/config"

	"github.com/spf13/cobra"
)

func DefaultEnv() *cobra.Command {
	var baseConfigFile string
	var defaultEnvCmd = &cobra.Command{
		Use:   "defaultenv",
		Short: "Generate full environment var list with defaults",
		Long:  `Generate full wsgate environment var list with defaults`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := defaultEnv(os.Stdout, baseConfigFile); err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	defaultEnvCmd.Flags().StringVarP(&baseConfigFile, "base", "b", "", "path to the base config file to use")
	return defaultEnvCmd
}

func defaultEnv(w io.Writer, baseFile string) error {
	conf, meta, err := config.GetConfig(nil, baseFile)
	if err != nil {
		return err
	}
	if err = conf.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(conf)
	if err != nil {
		return err
	}
	var values map[string]any
	if err = json.Unmarshal(data, &values); err != nil {
		return err
	}
	envs := make([]string, 0, len(meta.KnownEnvVars))
	for env := range meta.KnownEnvVars {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	for _, env := range envs {
		value, ok := lookupKey(values, meta.KnownEnvVars[env])
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s=%s\n", env, envValue(value))
	}
	return nil
}

func lookupKey(values map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var current any = values
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func envValue(v any) string {
	switch val := v.(type) {
	case nil:
		return `""`
	case string:
		return strconv.Quote(val)
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			items = append(items, fmt.Sprint(item))
		}
		return strconv.Quote(strings.Join(items, ","))
	default:
		return fmt.Sprint(val)
	}
}
