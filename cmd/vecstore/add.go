package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/metadata"
)

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add entries to the store",
		Long: `Add one entry from --vector or --text, or many entries from a JSONL
file where each line is {"vector":[...]} or {"text":"..."} with an
optional "metadata" object. Text inputs are embedded via the configured
provider and keep the source text under the "text" metadata key.`,
		Example: `  vecstore add -p ./db -d 3 --vector 0.1,0.2,0.3 --meta '{"title":"first"}'
  vecstore add -p ./db --text "the quick brown fox"
  vecstore add -p ./db --file entries.jsonl`,
		RunE: runAdd,
	}

	cmd.Flags().String("vector", "", "comma-separated vector components")
	cmd.Flags().String("text", "", "text to embed")
	cmd.Flags().String("meta", "", "metadata as a JSON object")
	cmd.Flags().String("file", "", "JSONL file with one entry per line")

	return cmd
}

func runAdd(cmd *cobra.Command, _ []string) (err error) {
	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	vecStr, _ := cmd.Flags().GetString("vector")
	text, _ := cmd.Flags().GetString("text")
	file, _ := cmd.Flags().GetString("file")
	metaStr, _ := cmd.Flags().GetString("meta")

	sources := 0
	for _, s := range []string{vecStr, text, file} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of --vector, --text or --file required")
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

	out := cmd.OutOrStdout()

	if file != "" {
		ids, err := addFromFile(ctx, s, cfg, file)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %d entries (ids %d..%d)\n", len(ids), ids[0], ids[len(ids)-1])
		return nil
	}

	meta, err := parseMetadata(metaStr)
	if err != nil {
		return err
	}

	var vec []float32
	if text != "" {
		e, err := newEmbedder(cfg, s.Dimension())
		if err != nil {
			return err
		}
		if vec, err = e.Embed(ctx, text); err != nil {
			return err
		}
		meta = withText(meta, text)
	} else {
		if vec, err = parseVector(vecStr); err != nil {
			return err
		}
	}

	id, err := s.Add(ctx, vec, meta)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "added %d\n", id)
	return nil
}

// batchLine is one line of an add --file input.
type batchLine struct {
	Vector   []float32      `json:"vector"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

func addFromFile(ctx context.Context, s *vecstore.Store, cfg cliConfig, path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(nil, 8<<20)

	var lines []batchLine
	for n := 1; sc.Scan(); n++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var bl batchLine
		if err := gojson.Unmarshal(raw, &bl); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if len(bl.Vector) == 0 && bl.Text == "" {
			return nil, fmt.Errorf("line %d: vector or text required", n)
		}
		lines = append(lines, bl)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.New("no entries in input file")
	}

	// Embed all text-only lines in one batch.
	var texts []string
	var textAt []int
	for i, bl := range lines {
		if len(bl.Vector) == 0 {
			texts = append(texts, bl.Text)
			textAt = append(textAt, i)
		}
	}
	if len(texts) > 0 {
		e, err := newEmbedder(cfg, s.Dimension())
		if err != nil {
			return nil, err
		}
		vecs, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		for j, i := range textAt {
			lines[i].Vector = vecs[j]
		}
	}

	items := make([]vecstore.BatchItem, len(lines))
	for i, bl := range lines {
		doc, err := metadata.DocumentFromAny(bl.Metadata)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if bl.Text != "" {
			doc = withText(doc, bl.Text)
		}
		items[i] = vecstore.BatchItem{Vector: bl.Vector, Metadata: doc}
	}

	return s.AddBatch(ctx, items)
}

// withText records the source text under the "text" key unless the
// caller already set one.
func withText(doc metadata.Document, text string) metadata.Document {
	if doc == nil {
		doc = metadata.Document{}
	}
	if _, ok := doc["text"]; !ok {
		doc["text"] = metadata.String(text)
	}
	return doc
}
