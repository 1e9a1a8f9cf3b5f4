package main

import (
	"github.com/spf13/cobra"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application"

	bizConfig "github.com/grand-thief-cash/chaos/outreach/internal/config"
	_ "github.com/grand-thief-cash/chaos/outreach/internal/registry_ext"
)

type commonFlags struct {
	config  string
	env     string
	envFile string
}

func (f *commonFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.config, "config", "c", "config/config.yaml", "config file (.yaml, .json or .toml)")
	cmd.Flags().StringVar(&f.env, "env", "development", "running environment: development, test or production")
	cmd.Flags().StringVar(&f.envFile, "env-file", "", "optional .env file loaded before OUTREACH_* overrides")
}

func (f *commonFlags) newApp() *application.App {
	return application.NewApp(f.env, f.config,
		application.WithBizConfig(bizConfig.GetBizConfig()),
		application.WithEnvFile(f.envFile),
	)
}

func newServeCmd() *cobra.Command {
	var flags commonFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator HTTP API and background scanners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.newApp().Run()
		},
	}
	flags.bind(cmd)
	return cmd
}
