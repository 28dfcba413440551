package main

import (
	"errors"
	"fmt"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecstore"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search for the most similar entries",
		Long: `Search the store by cosine similarity. The query is a raw vector
(--vector), a text to embed (--text or the positional argument), and
results can be narrowed with metadata filters.`,
		Example: `  vecstore search -p ./db --vector 0.1,0.2,0.3 -k 5
  vecstore search -p ./db "brown fox" --filter '{"lang":"en"}'
  vecstore search -p ./db "brown fox" --where '[{"key":"score","op":"gt","value":0.5}]'`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().String("vector", "", "comma-separated query vector")
	cmd.Flags().String("text", "", "query text to embed")
	cmd.Flags().IntP("limit", "k", 10, "maximum number of results")
	cmd.Flags().Int("ef", 0, "search breadth override (0 = index default)")
	cmd.Flags().String("filter", "", "equality filters as a JSON object")
	cmd.Flags().String("where", "", "typed filter conditions as a JSON array")
	cmd.Flags().Bool("include-vector", false, "include stored vectors in the output")
	cmd.Flags().Bool("json", false, "emit results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	vecStr, _ := cmd.Flags().GetString("vector")
	text, _ := cmd.Flags().GetString("text")
	if text == "" && len(args) == 1 {
		text = args[0]
	}
	if (vecStr == "") == (text == "") {
		return errors.New("exactly one of --vector or a text query required")
	}

	k, _ := cmd.Flags().GetInt("limit")
	ef, _ := cmd.Flags().GetInt("ef")
	filterStr, _ := cmd.Flags().GetString("filter")
	whereStr, _ := cmd.Flags().GetString("where")
	includeVector, _ := cmd.Flags().GetBool("include-vector")
	asJSON, _ := cmd.Flags().GetBool("json")

	filters, err := parseMetadata(filterStr)
	if err != nil {
		return err
	}
	where, err := parseWhere(whereStr)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var query []float32
	if text != "" {
		e, err := newEmbedder(cfg, s.Dimension())
		if err != nil {
			return err
		}
		if query, err = e.Embed(ctx, text); err != nil {
			return err
		}
	} else {
		if query, err = parseVector(vecStr); err != nil {
			return err
		}
	}

	results, err := s.Search(ctx, query, k, func(o *vecstore.SearchOptions) {
		o.EF = ef
		o.Filters = filters
		o.FilterSet = where
		o.IncludeVector = includeVector
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if asJSON {
		return writeJSON(out, resultsToAny(results))
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for _, r := range results {
		meta, err := gojson.Marshal(r.Metadata.ToAny())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d\t%.4f\t%s\n", r.ID, r.Similarity, meta)
	}
	return nil
}

// resultJSON is the machine-readable search result shape.
type resultJSON struct {
	ID         uint64         `json:"id"`
	Similarity float32        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Vector     []float32      `json:"vector,omitempty"`
}

func resultsToAny(results []vecstore.Result) []resultJSON {
	out := make([]resultJSON, len(results))
	for i, r := range results {
		out[i] = resultJSON{
			ID:         r.ID,
			Similarity: r.Similarity,
			Metadata:   r.Metadata.ToAny(),
			Vector:     r.Vector,
		}
	}
	return out
}
