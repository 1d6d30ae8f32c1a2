package main

import (
	"github.com/spf13/cobra"

	"github.com/hanpama/gqlplan/internal/config"
)

// rootOptions holds the flags shared by all commands.
type rootOptions struct {
	configPath string
	schema     []string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "gqlplan",
		Short: "GraphQL query planner and server",
		Long: `gqlplan compiles GraphQL queries into a pushdown expression answered by a data
source and, when services are selected, a post pass evaluated in memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	cmd.PersistentFlags().StringSliceVar(&opts.schema, "schema", nil, "schema SDL files or globs (overrides the configuration)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newProtoCommand(opts))
	return cmd
}

// load reads the configuration file, if any, and applies the shared flags.
func (o *rootOptions) load() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	if len(o.schema) > 0 {
		cfg.Schema = o.schema
	}
	return cfg, nil
}
