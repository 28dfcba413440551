package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/vecstore/embedding"
)

// newEmbedder builds the text embedder for --text inputs. The output
// dimension is pinned to the store's dimension.
func newEmbedder(cfg cliConfig, dim int) (embedding.Embedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")

	provider := cfg.Embedding.Provider
	if provider == "" {
		if apiKey != "" {
			provider = "openai"
		} else {
			provider = "static"
		}
	}

	switch provider {
	case "static":
		return embedding.NewStatic(dim), nil
	case "openai":
		if apiKey == "" {
			return nil, errors.New("embedding provider openai requires OPENAI_API_KEY")
		}
		return embedding.NewOpenAI(apiKey, func(o *embedding.Options) {
			o.Dimension = dim
			if cfg.Embedding.Model != "" {
				o.Model = cfg.Embedding.Model
			}
			if cfg.Embedding.BaseURL != "" {
				o.BaseURL = cfg.Embedding.BaseURL
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}
