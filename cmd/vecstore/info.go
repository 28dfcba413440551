package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show store statistics",
		RunE:  runInfo,
	}

	cmd.Flags().Bool("json", false, "emit statistics as JSON")

	return cmd
}

func runInfo(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	stats := s.Stats()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), struct {
			Count           int    `json:"count"`
			Deleted         int    `json:"deleted"`
			Capacity        int    `json:"capacity"`
			Dimension       int    `json:"dimension"`
			Kind            string `json:"kind"`
			NextID          uint64 `json:"next_id"`
			PersistFailures uint64 `json:"persist_failures"`
			Checkpoints     uint64 `json:"checkpoints"`
			WALEnabled      bool   `json:"wal_enabled"`
		}{
			Count:           stats.Count,
			Deleted:         stats.Deleted,
			Capacity:        stats.Capacity,
			Dimension:       stats.Dimension,
			Kind:            stats.Kind.String(),
			NextID:          stats.NextID,
			PersistFailures: stats.PersistFailures,
			Checkpoints:     stats.Checkpoints,
			WALEnabled:      stats.WALEnabled,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "path:       %s\n", cfg.Path)
	fmt.Fprintf(out, "index:      %s\n", stats.Kind)
	fmt.Fprintf(out, "dimension:  %d\n", stats.Dimension)
	fmt.Fprintf(out, "entries:    %d\n", stats.Count)
	fmt.Fprintf(out, "deleted:    %d\n", stats.Deleted)
	fmt.Fprintf(out, "capacity:   %d\n", stats.Capacity)
	fmt.Fprintf(out, "next id:    %d\n", stats.NextID)
	fmt.Fprintf(out, "wal:        %v\n", stats.WALEnabled)
	return nil
}
