package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Write a snapshot and truncate the write-ahead log",
		RunE:  runCheckpoint,
	}
}

func runCheckpoint(cmd *cobra.Command, _ []string) (err error) {
	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := s.Checkpoint(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "checkpoint written (%d entries)\n", s.Count())
	return nil
}
