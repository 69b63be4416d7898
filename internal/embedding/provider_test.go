package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
)

func TestDimensionForModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-large", 3072},
		{"text-embedding-3-small", 1536},
		{"text-embedding-ada-002", 1536},
		{"nomic-embed-text", 768},
		{"nomic-embed-text:latest", 768},
		{"mxbai-embed-large", 1024},
		{"openai/text-embedding-3-large", 3072},
		{"something-else", DefaultDimension},
		{"", DefaultDimension},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, DimensionForModel(tt.model))
		})
	}
}

func TestNewProvider(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		p, err := NewProvider(config.EmbeddingConfig{Provider: ProviderNone}, logging.Nop())
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("openai without key", func(t *testing.T) {
		_, err := NewProvider(config.EmbeddingConfig{Provider: ProviderOpenAI, Model: "text-embedding-3-small"}, logging.Nop())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewProvider(config.EmbeddingConfig{Provider: "cohere"}, logging.Nop())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})

	t.Run("explicit dimension wins", func(t *testing.T) {
		p, err := NewProvider(config.EmbeddingConfig{
			Provider:  ProviderOllama,
			Model:     "nomic-embed-text",
			Dimension: 42,
		}, logging.Nop())
		require.NoError(t, err)
		assert.Equal(t, 42, p.Dimension())
		assert.Equal(t, ProviderOllama, p.Name())
		assert.Equal(t, "nomic-embed-text", p.Model())
	})
}

func TestOpenAIProviderEmbed(t *testing.T) {
	var gotInputs []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInputs = req.Input

		// Out of order on purpose: the provider must honor the index field.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingConfig{
		Provider: ProviderOpenAI,
		Model:    "text-embedding-3-small",
		APIKey:   "sk-test",
		BaseURL:  srv.URL,
		Timeout:  "5s",
	}, logging.Nop())
	require.NoError(t, err)

	assert.Equal(t, 1536, p.Dimension())

	vectors, err := p.Embed(context.Background(), []string{"users", "orders"})
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "orders"}, gotInputs)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	assert.Equal(t, 2, p.Dimension(), "dimension follows the vectors actually returned")
}

func TestOpenAIProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingConfig{
		Provider: ProviderOpenAI,
		Model:    "text-embedding-3-small",
		APIKey:   "sk-bad",
		BaseURL:  srv.URL,
	}, logging.Nop())
	require.NoError(t, err)

	_, err = p.EmbedSingle(context.Background(), "users")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeProvider))
	assert.Contains(t, err.Error(), "openai")
}

func TestOllamaProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := ollamaEmbedResponse{Model: req.Model}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingConfig{
		Provider: ProviderOllama,
		Model:    "nomic-embed-text",
		BaseURL:  srv.URL,
	}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())

	vectors, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{2, 1}, vectors[2])
	assert.Equal(t, 2, p.Dimension())

	single, err := p.EmbedSingle(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, single)
}

func TestOllamaProviderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","embeddings":[[1,2]]}`))
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingConfig{Provider: ProviderOllama, Model: "m", BaseURL: srv.URL}, logging.Nop())
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeProvider))
}

func TestOllamaProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"m\" not found"}`))
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingConfig{Provider: ProviderOllama, Model: "m", BaseURL: srv.URL}, logging.Nop())
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
