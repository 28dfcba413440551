package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecstore"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one entry by ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	cmd.Flags().Bool("include-vector", false, "include the stored vector in the output")

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	includeVector, _ := cmd.Flags().GetBool("include-vector")

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.Get(ctx, id, func(o *vecstore.GetOptions) {
		o.IncludeVector = includeVector
	})
	if err != nil {
		return err
	}

	return writeJSON(cmd.OutOrStdout(), struct {
		ID       uint64         `json:"id"`
		Metadata map[string]any `json:"metadata,omitempty"`
		Vector   []float32      `json:"vector,omitempty"`
	}{
		ID:       item.ID,
		Metadata: item.Metadata.ToAny(),
		Vector:   item.Vector,
	})
}
