package main

import (
	"os"
	"os/signal"
	"syscall"

	retrievedevices "github.com/builtbyproxy/retrieve-devices"
	"github.com/builtbyproxy/retrieve-devices/internal/env"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRetrieveCmd() *cobra.Command {
	var (
		flagAPIKeyPath string
		flagAPIKey     string
		flagUsername   string
		flagOutput     string
		flagFormat     string
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Fetch registered devices and write devices.json",
		Long: `Fetch every device registered on the App Store Connect team, print one
"UDID: <udid> | NAME: <name>" line per device, write devices.json and publish
the list as DEVICES_FOR_APPLE_CERTIFICATE in the lane context.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey, err := retrievedevices.ParseAPIKeyOption(
				firstNonEmpty(flagAPIKey, env.Lookup(retrievedevices.EnvAPIKey...)))
			if err != nil {
				return err
			}
			opts := retrievedevices.Options{
				APIKey:     apiKey,
				APIKeyPath: firstNonEmpty(flagAPIKeyPath, env.Lookup(retrievedevices.EnvAPIKeyPath...)),
				Username:   firstNonEmpty(flagUsername, env.Lookup(retrievedevices.EnvUsername...)),
				OutputPath: firstNonEmpty(flagOutput, env.String(retrievedevices.EnvOutputPath, retrievedevices.DefaultOutputPath)),
				Format:     retrievedevices.OutputFormat(firstNonEmpty(flagFormat, env.String(retrievedevices.EnvFormat, string(retrievedevices.FormatLegacy)))),
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			lane, store, err := openLane()
			if err != nil {
				return err
			}
			defer lane.Close()

			recorder, err := retrievedevices.NewDeviceRecorderFromEnv()
			if err != nil {
				return err
			}
			retriever := retrievedevices.NewRetriever(lane)
			retriever.Recorder = recorder
			retriever.Console = cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			res, err := retriever.Run(ctx, opts)
			if err != nil {
				return err
			}
			log.Info().
				Str("auth", string(res.AuthMode)).
				Int("devices", len(res.Devices)).
				Str("output", res.OutputPath).
				Str("lane_db", store.Path()).
				Str("lane_run", store.RunID()).
				Msg("devices retrieved")
			return nil
		},
	}

	cmd.Flags().StringVar(&flagAPIKeyPath, "api-key-path", "", "API key JSON file overriding $FL_RETRIEVE_DEVICES_API_KEY_PATH / $APP_STORE_CONNECT_API_KEY_PATH")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "Inline API key mapping (JSON or YAML) overriding $FL_RETRIEVE_DEVICES_API_KEY / $APP_STORE_CONNECT_API_KEY")
	cmd.Flags().StringVarP(&flagUsername, "username", "u", "", "Apple ID overriding $DELIVER_USER")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Devices file path overriding $RETRIEVE_DEVICES_OUTPUT (default devices.json)")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Devices file layout: legacy or array, overriding $RETRIEVE_DEVICES_FORMAT")

	return cmd
}
