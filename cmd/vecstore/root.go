package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root vecstore command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vecstore",
		Short:         "vecstore is an embedded vector similarity store",
		Long: `vecstore manages an on-disk vector similarity store: add entries as raw
vectors or as text embedded via a configured provider, search by cosine
similarity with optional metadata filters, and back the store up to
local or object storage.

A store lives in a single directory (--path). The first command against
a fresh directory creates it and needs --dimension; afterwards the
dimension and index kind are read from the store itself.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("path", "p", "", "store directory")
	root.PersistentFlags().IntP("dimension", "d", 0, "vector dimension (required when creating a store)")
	root.PersistentFlags().String("index", "hnsw", "index kind: hnsw or flat")
	root.PersistentFlags().Bool("wal", false, "enable write-ahead logging (auto-detected on existing stores)")
	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newAddCmd(),
		newSearchCmd(),
		newGetCmd(),
		newDeleteCmd(),
		newInfoCmd(),
		newCheckpointCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newVersionCmd(),
	)

	return root
}
