package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newLaneContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lane-context",
		Short: "Inspect values published to the lane context of a run",
	}
	cmd.AddCommand(
		newLaneContextGetCmd(),
		newLaneContextKeysCmd(),
		newLaneContextResetCmd(),
		newLaneContextNewRunCmd(),
	)
	return cmd
}

func newLaneContextGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <KEY>",
		Short: "Print the JSON value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lane, store, err := openLane()
			if err != nil {
				return err
			}
			defer lane.Close()
			key := strings.TrimSpace(args[0])
			raw, ok, err := lane.Value(cmd.Context(), key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("lane context key %s not found for run %s in %s", key, store.RunID(), store.Path())
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}
}

func newLaneContextKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the keys stored for the run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lane, _, err := openLane()
			if err != nil {
				return err
			}
			defer lane.Close()
			keys, err := lane.Keys(cmd.Context())
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}

func newLaneContextResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every value stored for the run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lane, store, err := openLane()
			if err != nil {
				return err
			}
			defer lane.Close()
			n, err := store.Reset(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Str("run_id", store.RunID()).Int64("deleted", n).Msg("lane context reset")
			return nil
		},
	}
}

func newLaneContextNewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new-run",
		Short: "Print a fresh run id to export as LANE_CONTEXT_RUN_ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), uuid.NewString())
			return nil
		},
	}
}
