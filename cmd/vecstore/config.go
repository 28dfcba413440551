package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/index"
	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/wal"
)

// fileConfig is the YAML config file schema.
//
//	path: ./my-store
//	dimension: 768
//	index: hnsw
//	wal: true
//	embedding:
//	  provider: openai
//	  model: text-embedding-3-small
type fileConfig struct {
	Path      string          `yaml:"path"`
	Dimension int             `yaml:"dimension"`
	Index     string          `yaml:"index"`
	WAL       bool            `yaml:"wal"`
	WALDir    string          `yaml:"wal_dir"`
	Capacity  int             `yaml:"capacity"`
	Codec     string          `yaml:"codec"`
	Embedding embeddingConfig `yaml:"embedding"`
}

type embeddingConfig struct {
	// Provider selects the embedder: "openai" or "static". Empty picks
	// openai when OPENAI_API_KEY is set and static otherwise.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// cliConfig is the effective configuration after merging the config
// file with command line flags. Flags win.
type cliConfig struct {
	Path      string
	Dimension int
	Index     string
	WAL       bool
	WALDir    string
	Capacity  int
	Codec     string
	Verbose   bool
	Embedding embeddingConfig

	// indexSet records whether the index kind was chosen explicitly,
	// as opposed to being the flag default.
	indexSet bool
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// resolveConfig merges flag values with the config file named by
// --config, if any. Explicitly set flags override file values.
func resolveConfig(cmd *cobra.Command) (cliConfig, error) {
	flags := cmd.Flags()

	var cfg cliConfig
	cfg.Path, _ = flags.GetString("path")
	cfg.Dimension, _ = flags.GetInt("dimension")
	cfg.Index, _ = flags.GetString("index")
	cfg.WAL, _ = flags.GetBool("wal")
	cfg.Verbose, _ = flags.GetBool("verbose")
	cfg.indexSet = flags.Changed("index")

	cfgFile, _ := flags.GetString("config")
	if cfgFile == "" {
		return cfg, nil
	}

	fc, err := loadConfigFile(cfgFile)
	if err != nil {
		return cliConfig{}, err
	}

	if !flags.Changed("path") && fc.Path != "" {
		cfg.Path = fc.Path
	}
	if !flags.Changed("dimension") && fc.Dimension != 0 {
		cfg.Dimension = fc.Dimension
	}
	if !flags.Changed("index") && fc.Index != "" {
		cfg.Index = fc.Index
		cfg.indexSet = true
	}
	if !flags.Changed("wal") && fc.WAL {
		cfg.WAL = true
	}
	cfg.WALDir = fc.WALDir
	cfg.Capacity = fc.Capacity
	cfg.Codec = fc.Codec
	cfg.Embedding = fc.Embedding

	return cfg, nil
}

// detectStore reads the snapshot header of an existing store so
// commands against it do not need --dimension repeated.
func detectStore(path string) (dim int, kind vecstore.IndexKind, ok bool) {
	f, err := os.Open(filepath.Join(path, persistence.IndexFileName))
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	h, err := persistence.ReadHeader(f)
	if err != nil {
		return 0, 0, false
	}

	kind = vecstore.IndexHNSW
	if h.Kind == persistence.FileKindFlat {
		kind = vecstore.IndexFlat
	}

	return int(h.Dimension), kind, true
}

// storeParams resolves the final dimension and index kind, preferring
// explicit flags and falling back to whatever an existing store at the
// path was created with.
func storeParams(cfg cliConfig) (int, vecstore.IndexKind, error) {
	kind, err := index.ParseKind(cfg.Index)
	if err != nil {
		return 0, 0, err
	}

	dim := cfg.Dimension
	if detected, detectedKind, ok := detectStore(cfg.Path); ok {
		if dim == 0 {
			dim = detected
		}
		if !cfg.indexSet {
			kind = detectedKind
		}
	}
	if dim == 0 {
		return 0, 0, errors.New("dimension required to create a new store: pass --dimension")
	}

	return dim, kind, nil
}

// openStore opens (or creates) the store described by cfg.
func openStore(ctx context.Context, cfg cliConfig) (*vecstore.Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store path required: pass --path or set path in the config file")
	}

	dim, kind, err := storeParams(cfg)
	if err != nil {
		return nil, err
	}

	opts, err := storeOptions(cfg)
	if err != nil {
		return nil, err
	}

	return vecstore.Open(ctx, vecstore.Config{
		Dimension: dim,
		Path:      cfg.Path,
		Kind:      kind,
	}, opts...)
}

func storeOptions(cfg cliConfig) ([]vecstore.Option, error) {
	var opts []vecstore.Option

	// A store that was running with a WAL must be reopened with one,
	// or the log would be silently ignored and later overwritten.
	walEnabled := cfg.WAL
	if !walEnabled {
		walDir := cfg.WALDir
		if walDir == "" {
			walDir = cfg.Path
		}
		if _, err := os.Stat(filepath.Join(walDir, wal.FileName)); err == nil {
			walEnabled = true
		}
	}
	if walEnabled {
		opts = append(opts, vecstore.WithWAL(cfg.WALDir))
	}

	if cfg.Capacity > 0 {
		opts = append(opts, vecstore.WithCapacity(cfg.Capacity))
	}
	if cfg.Codec != "" {
		c, ok := codec.ByName(cfg.Codec)
		if !ok {
			return nil, fmt.Errorf("unknown codec %q", cfg.Codec)
		}
		opts = append(opts, vecstore.WithCodec(c))
	}
	if cfg.Verbose {
		opts = append(opts, vecstore.WithLogLevel(slog.LevelDebug))
	}

	return opts, nil
}
