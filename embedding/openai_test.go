package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingResponse builds a minimal OpenAI-compatible embedding
// response with a recognizable vector per input index.
func fakeEmbeddingResponse(dim, count int) []byte {
	type embItem struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	}
	type resp struct {
		Object string    `json:"object"`
		Model  string    `json:"model"`
		Data   []embItem `json:"data"`
	}

	data := make([]embItem, count)
	for i := range data {
		vec := make([]float64, dim)
		for j := range vec {
			vec[j] = float64(i+1) * 0.01 * float64(j+1)
		}
		data[i] = embItem{Object: "embedding", Index: i, Embedding: vec}
	}

	b, _ := json.Marshal(resp{Object: "list", Model: "test-model", Data: data})
	return b
}

// newFakeServer serves fake embeddings and counts requests.
func newFakeServer(t *testing.T, dim int, calls *atomic.Int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fakeEmbeddingResponse(dim, len(req.Input)))
	}))
}

func TestOpenAI_Embed(t *testing.T) {
	const dim = 8

	srv := newFakeServer(t, dim, nil)
	defer srv.Close()

	e := NewOpenAI("test-key", func(o *Options) {
		o.BaseURL = srv.URL
		o.Dimension = dim
	})

	assert.Equal(t, dim, e.Dimension())
	assert.Equal(t, ModelTextEmbedding3Small, e.Model())

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, dim)
}

func TestOpenAI_EmbedBatch(t *testing.T) {
	const dim = 4

	srv := newFakeServer(t, dim, nil)
	defer srv.Close()

	e := NewOpenAI("test-key", func(o *Options) {
		o.BaseURL = srv.URL
		o.Dimension = dim
	})

	texts := []string{"a", "b", "c", "d"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, vec := range vecs {
		require.Len(t, vec, dim)
		// Index i got the vector derived from i
		assert.InDelta(t, float64(i+1)*0.01, float64(vec[0]), 1e-6)
	}
}

func TestOpenAI_EmbedBatch_SplitsLargeBatches(t *testing.T) {
	const dim = 2

	var calls atomic.Int64
	srv := newFakeServer(t, dim, &calls)
	defer srv.Close()

	e := NewOpenAI("test-key", func(o *Options) {
		o.BaseURL = srv.URL
		o.Dimension = dim
	})

	texts := make([]string, openAIMaxBatch+52)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	assert.Equal(t, int64(2), calls.Load())
}

func TestOpenAI_EmptyInput(t *testing.T) {
	e := NewOpenAI("test-key")

	_, err := e.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = e.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAI_RateLimited(t *testing.T) {
	const dim = 2

	srv := newFakeServer(t, dim, nil)
	defer srv.Close()

	e := NewOpenAI("test-key", func(o *Options) {
		o.BaseURL = srv.URL
		o.Dimension = dim
		o.RequestsPerSecond = 1000
	})

	for i := 0; i < 3; i++ {
		_, err := e.Embed(context.Background(), fmt.Sprintf("text-%d", i))
		require.NoError(t, err)
	}
}
