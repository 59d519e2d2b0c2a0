package main

import (
	"os"

	"github.com/builtbyproxy/retrieve-devices/internal/env"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "retrieve-devices",
	Short: "List the devices registered on an App Store Connect team",
	Long: `retrieve-devices signs in to App Store Connect (API key, existing lane
session or Apple ID), prints every registered device, writes devices.json and
publishes the list to the lane context for later pipeline steps.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		env.UseEnvironments(rootEnv)
		if err := env.Ensure(); err != nil {
			log.Warn().Err(err).Msg("load .env files failed")
		}
		if env.Bool("RETRIEVE_DEVICES_DEBUG", false) {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		if paths := env.LoadedPaths(); len(paths) > 0 {
			log.Debug().Strs("dotenv", paths).Msg("environment files loaded")
		}
		return nil
	},
}

var (
	rootLaneDB  string
	rootLaneRun string
	rootEnv     string
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	rootCmd.PersistentFlags().StringVar(&rootLaneDB, "lane-db", "", "Lane context SQLite path overriding $LANE_CONTEXT_DB_PATH")
	rootCmd.PersistentFlags().StringVar(&rootLaneRun, "lane-run", "", "Pipeline run id overriding $LANE_CONTEXT_RUN_ID; steps of one run share values")
	rootCmd.PersistentFlags().StringVar(&rootEnv, "env", "", "Also load .env.<name> files (comma separated), like fastlane --env")
	rootCmd.AddCommand(
		newRetrieveCmd(),
		newLaneContextCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("retrieve-devices command failed")
	}
}
